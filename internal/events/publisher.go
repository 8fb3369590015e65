// Package events publishes session lifecycle transitions over MQTT so
// dashboards and other consumers can follow progress without polling this
// service. Publishing is optional and best-effort; the transcription
// pipeline never blocks on it.
package events

import (
	"encoding/json"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-gateway/internal/session"
)

type Publisher struct {
	conn      mqtt.Client
	topicBase string
	connected atomic.Bool
	log       zerolog.Logger
}

type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TopicBase string
	Log       zerolog.Logger
}

// Connect establishes the MQTT connection with auto-reconnect.
func Connect(opts Options) (*Publisher, error) {
	p := &Publisher{
		topicBase: opts.TopicBase,
		log:       opts.Log,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	p.conn = mqtt.NewClient(clientOpts)
	token := p.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return p, nil
}

type statusEvent struct {
	ID        string         `json:"id"`
	Status    session.Status `json:"status"`
	Progress  int            `json:"progress"`
	Error     string         `json:"error,omitempty"`
	UpdatedAt int64          `json:"updatedAt"`
}

// PublishStatus emits the session's current state on
// {topicBase}/{id}/status. Fire-and-forget.
func (p *Publisher) PublishStatus(s *session.Session) {
	payload, err := json.Marshal(statusEvent{
		ID:        s.ID,
		Status:    s.Status,
		Progress:  s.Progress,
		Error:     s.Error,
		UpdatedAt: s.LastUpdatedAt,
	})
	if err != nil {
		p.log.Warn().Err(err).Str("session_id", s.ID).Msg("failed to encode status event")
		return
	}

	topic := p.topicBase + "/" + s.ID + "/status"
	token := p.conn.Publish(topic, 0, false, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			p.log.Warn().Err(err).Str("topic", topic).Msg("mqtt publish failed")
		}
	}()
}

func (p *Publisher) onConnect(_ mqtt.Client) {
	p.connected.Store(true)
	p.log.Info().Str("topic_base", p.topicBase).Msg("mqtt connected")
}

func (p *Publisher) onConnectionLost(_ mqtt.Client, err error) {
	p.connected.Store(false)
	p.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (p *Publisher) IsConnected() bool {
	return p.connected.Load()
}

func (p *Publisher) Close() {
	p.log.Info().Msg("disconnecting mqtt publisher")
	p.conn.Disconnect(1000)
}
