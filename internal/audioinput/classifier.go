package audioinput

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe-gateway/internal/blobstore"
)

// ErrNoAudio is returned when neither a URL nor inline data was supplied.
var ErrNoAudio = errors.New("no audio input provided")

// Uploader stores an oversized inline payload and returns a reference URL.
type Uploader interface {
	Upload(ctx context.Context, base64Data, mimeType string) (*blobstore.UploadResult, error)
}

// Input is the audio half of a transcription request: exactly one of
// AudioURL or AudioData should be set.
type Input struct {
	AudioURL  string
	AudioData string // base64, optionally with a data-URI prefix
	MimeType  string
}

// Resolved is the single audio field to submit to the prediction service.
type Resolved struct {
	Audio      string
	Uploaded   bool
	UploadPath string // object path for later cleanup, empty unless Uploaded
}

// Classifier decides whether audio is submitted inline or uploaded first and
// referenced by URL, based on estimated decoded size.
type Classifier struct {
	uploader    Uploader
	thresholdMB float64
	log         zerolog.Logger
}

// NewClassifier creates a classifier. The uploader may be nil when no blob
// store is configured, in which case oversized payloads are rejected.
func NewClassifier(uploader Uploader, thresholdMB float64, log zerolog.Logger) *Classifier {
	return &Classifier{
		uploader:    uploader,
		thresholdMB: thresholdMB,
		log:         log.With().Str("component", "audio-classifier").Logger(),
	}
}

// EstimatedSizeMB estimates the decoded binary size of a base64 payload.
func EstimatedSizeMB(base64Data string) float64 {
	return float64(len(base64Data)) * 0.75 / (1024 * 1024)
}

// Resolve produces the audio field for submission. URLs pass through
// untouched. Inline payloads at or below the threshold pass through
// unchanged; larger ones are uploaded and replaced by the returned URL.
func (c *Classifier) Resolve(ctx context.Context, in Input) (Resolved, error) {
	if in.AudioURL != "" {
		return Resolved{Audio: in.AudioURL}, nil
	}
	if in.AudioData == "" {
		return Resolved{}, ErrNoAudio
	}

	est := EstimatedSizeMB(in.AudioData)
	if est <= c.thresholdMB {
		return Resolved{Audio: in.AudioData}, nil
	}

	if c.uploader == nil {
		return Resolved{}, fmt.Errorf("audio payload is %.1f MB but no blob store is configured", est)
	}

	c.log.Info().Float64("estimated_mb", est).Msg("large inline payload, uploading to blob store")

	res, err := c.uploader.Upload(ctx, in.AudioData, in.MimeType)
	if err != nil {
		return Resolved{}, fmt.Errorf("upstream storage: %w", err)
	}

	return Resolved{Audio: res.URL, Uploaded: true, UploadPath: res.Path}, nil
}
