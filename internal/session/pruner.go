package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pruner retires sessions nobody came back for. Non-terminal sessions older
// than the TTL are marked failed so they stop being recoverable; terminal
// sessions are deleted once well past the TTL.
type Pruner struct {
	store    Store
	ttl      time.Duration
	interval time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// terminalRetentionFactor controls how long finished sessions stay queryable
// after their last update, as a multiple of the TTL.
const terminalRetentionFactor = 7

// NewPruner creates a session pruner that runs every interval. A zero TTL
// disables pruning; a zero interval falls back to hourly.
func NewPruner(store Store, ttl, interval time.Duration, log zerolog.Logger) *Pruner {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	return &Pruner{
		store:    store,
		ttl:      ttl,
		interval: interval,
		log:      log.With().Str("component", "session-pruner").Logger(),
		stop:     make(chan struct{}),
	}
}

func (p *Pruner) Start() {
	go p.loop()
}

func (p *Pruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Pruner) loop() {
	// Run once on startup to clear any backlog from downtime
	p.prune()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.prune()
		case <-p.stop:
			return
		}
	}
}

func (p *Pruner) prune() {
	if p.ttl == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	all, err := p.store.GetAll(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("prune skipped: listing sessions failed")
		return
	}

	now := time.Now().UnixMilli()
	staleBefore := now - p.ttl.Milliseconds()
	deleteBefore := now - terminalRetentionFactor*p.ttl.Milliseconds()

	var abandoned, deleted int
	for _, s := range all {
		switch {
		case s.Active() && s.LastUpdatedAt < staleBefore:
			failed := StatusFailed
			msg := "abandoned: exceeded session TTL"
			if _, err := p.store.Update(ctx, s.ID, Patch{Status: &failed, Error: &msg}); err != nil {
				p.log.Warn().Err(err).Str("session_id", s.ID).Msg("failed to retire stale session")
				continue
			}
			abandoned++
		case !s.Active() && s.LastUpdatedAt < deleteBefore:
			if err := p.store.Delete(ctx, s.ID); err != nil {
				p.log.Warn().Err(err).Str("session_id", s.ID).Msg("failed to delete expired session")
				continue
			}
			deleted++
		}
	}

	if abandoned > 0 || deleted > 0 {
		p.log.Info().
			Int("abandoned", abandoned).
			Int("deleted", deleted).
			Msg("session prune complete")
	}
}
