// Package render proxies transcript PDF rendering to an external template
// service. It is independent of the transcription pipeline and only runs
// once a transcript exists.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrMissingTemplateID and ErrMissingData are request validation errors.
	ErrMissingTemplateID = errors.New("missing template id")
	ErrMissingData       = errors.New("missing render data")
	// ErrMissingAPIKey is a configuration error, distinct from request errors.
	ErrMissingAPIKey = errors.New("render API key is not configured")
	// ErrGatewayTimeout marks an outbound call that exceeded the hard timeout.
	ErrGatewayTimeout = errors.New("render service timed out")
)

// EmptyResponseError is a 2xx response with no body: the service claimed
// success but returned nothing to download.
type EmptyResponseError struct {
	Status      int
	ContentType string
	Length      int
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("render service returned empty body (status %d, content-type %q, length %d)",
		e.Status, e.ContentType, e.Length)
}

// UpstreamError is a non-2xx response from the render service.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("render service error (status %d): %s", e.Status, e.Body)
}

// Document is a rendered PDF ready to hand back as a download.
type Document struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Client calls the external template-rendering service.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a render proxy client with a hard per-call timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "render-client").Logger(),
	}
}

type renderRequest struct {
	Data map[string]any `json:"data"`
}

// Render forwards a template render request and relays the binary result.
func (c *Client) Render(ctx context.Context, templateID string, data map[string]any) (*Document, error) {
	if templateID == "" {
		return nil, ErrMissingTemplateID
	}
	if data == nil {
		return nil, ErrMissingData
	}
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	body, err := json.Marshal(renderRequest{Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal render request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.baseURL + "/templates/" + templateID + "/render"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrGatewayTimeout, c.timeout)
		}
		return nil, fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read render response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(payload)}
	}

	if len(payload) == 0 {
		return nil, &EmptyResponseError{
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Length:      len(payload),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}

	c.log.Debug().
		Str("template_id", templateID).
		Int("bytes", len(payload)).
		Msg("document rendered")

	return &Document{
		Data:        payload,
		ContentType: contentType,
		Filename:    "transcript.pdf",
	}, nil
}
