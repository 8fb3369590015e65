package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Prediction statuses as reported by the service.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
)

// Prediction is one invocation of the external transcription model.
type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
	Logs   string          `json:"logs,omitempty"`
}

// Terminal reports whether the prediction has finished, either way.
func (p *Prediction) Terminal() bool {
	return p.Status == StatusSucceeded || p.Status == StatusFailed
}

// ModelRef is a validated "owner/model:version" reference.
type ModelRef struct {
	Model   string
	Version string
}

// ParseModelRef validates and splits an "owner/model:version" reference.
// Both sides of the colon must be non-empty.
func ParseModelRef(ref string) (ModelRef, error) {
	model, version, found := strings.Cut(ref, ":")
	if !found || model == "" || version == "" {
		return ModelRef{}, &Error{
			Kind:   KindValidation,
			Detail: fmt.Sprintf("invalid model reference %q: expected owner/model:version", ref),
		}
	}
	return ModelRef{Model: model, Version: version}, nil
}

// Client calls a Replicate-compatible predictions API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a prediction API client.
func NewClient(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "predict-client").Logger(),
	}
}

type createRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

// Create submits a new prediction. A missing API token fails before any
// network call so operators can tell configuration from transient trouble.
func (c *Client) Create(ctx context.Context, version string, input map[string]any) (*Prediction, error) {
	if c.token == "" {
		return nil, &Error{Kind: KindConfig, Detail: "prediction API token is not configured"}
	}

	body, err := json.Marshal(createRequest{Version: version, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal prediction request: %w", err)
	}

	pred, err := c.do(ctx, http.MethodPost, c.baseURL+"/predictions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	// Some capacity failures come back as a 2xx prediction already in the
	// failed state rather than as an HTTP error.
	if pred.Status == StatusFailed && pred.Error != "" {
		return nil, &Error{Kind: classifyDetail(pred.Error), Detail: pred.Error}
	}

	return pred, nil
}

// Get fetches the current state of a prediction.
func (c *Client) Get(ctx context.Context, id string) (*Prediction, error) {
	if c.token == "" {
		return nil, &Error{Kind: KindConfig, Detail: "prediction API token is not configured"}
	}
	if id == "" {
		return nil, &Error{Kind: KindValidation, Detail: "missing prediction id"}
	}

	return c.do(ctx, http.MethodGet, c.baseURL+"/predictions/"+id, nil)
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader) (*Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Kind:   classifyDetail(string(payload)),
			Status: resp.StatusCode,
			Detail: string(payload),
		}
	}

	var pred Prediction
	if err := json.Unmarshal(payload, &pred); err != nil {
		return nil, fmt.Errorf("decode prediction response: %w", err)
	}

	return &pred, nil
}
