package predict

import (
	"context"
	"fmt"

	"github.com/snarg/scribe-gateway/internal/metrics"
)

// MaxRetries is the number of additional attempts after the first submit
// fails with a resource-exhaustion error.
const MaxRetries = 3

// SubmitParams describes one logical submission.
type SubmitParams struct {
	ModelRef  string
	Input     map[string]any // must include the resolved "audio" field
	BatchSize int
}

// SubmitWithRetry submits a prediction, halving batch_size (floor 1) each
// time the service reports resource exhaustion. Any other failure surfaces
// immediately. Attempts run strictly in sequence.
func (c *Client) SubmitWithRetry(ctx context.Context, params SubmitParams) (*Prediction, error) {
	ref, err := ParseModelRef(params.ModelRef)
	if err != nil {
		return nil, err
	}

	batch := params.BatchSize
	if batch < 1 {
		batch = 1
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		input := make(map[string]any, len(params.Input)+1)
		for k, v := range params.Input {
			input[k] = v
		}
		input["batch_size"] = batch

		pred, err := c.Create(ctx, ref.Version, input)
		if err == nil {
			c.log.Info().
				Str("model", ref.Model).
				Int("batch_size", batch).
				Int("attempt", attempt+1).
				Msg("prediction submitted")
			return pred, nil
		}

		lastErr = err
		if KindOf(err) != KindResourceExhausted {
			return nil, err
		}
		if attempt == MaxRetries {
			break
		}

		next := batch / 2
		if next < 1 {
			next = 1
		}
		c.log.Warn().
			Int("batch_size", batch).
			Int("next_batch_size", next).
			Int("attempt", attempt+1).
			Msg("resource exhaustion from prediction service, retrying with smaller batch")
		metrics.SubmitRetriesTotal.Inc()
		batch = next
	}

	return nil, fmt.Errorf("prediction submit failed after %d retries: %w", MaxRetries, lastErr)
}
