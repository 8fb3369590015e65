package transcribe

import (
	"encoding/json"
	"strings"

	"github.com/snarg/scribe-gateway/internal/session"
)

// outputPayload covers the shapes the transcription models are known to
// emit: a flat text/segments object, a chunked whisper output with
// timestamp pairs, or a wrapper carrying derived intelligence.
type outputPayload struct {
	Text             string                `json:"text"`
	Transcription    string                `json:"transcription"`
	DetectedLanguage string                `json:"detected_language"`
	Language         string                `json:"language"`
	Segments         []outputSegment       `json:"segments"`
	Chunks           []outputChunk         `json:"chunks"`
	Chapters         []session.Chapter     `json:"chapters"`
	Sentiment        string                `json:"sentiment"`
	KeyPhrases       []string              `json:"key_phrases"`
	Entities         []session.Entity      `json:"entities"`
	Intelligence     *session.Intelligence `json:"intelligence"`
}

type outputSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker"`
}

type outputChunk struct {
	Timestamp []float64 `json:"timestamp"` // [start, end]
	Text      string    `json:"text"`
	Speaker   string    `json:"speaker"`
}

// parseOutput converts a terminal prediction's output into a session result.
// Unknown shapes degrade to the raw payload rather than failing the session.
func parseOutput(raw json.RawMessage) *session.Result {
	result := &session.Result{Raw: raw}
	if len(raw) == 0 {
		return result
	}

	// Some models return the transcript as a bare JSON string.
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		result.Text = text
		return result
	}

	var payload outputPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return result
	}

	result.Text = payload.Text
	if result.Text == "" {
		result.Text = payload.Transcription
	}

	result.DetectedLanguage = payload.DetectedLanguage
	if result.DetectedLanguage == "" {
		result.DetectedLanguage = payload.Language
	}

	switch {
	case len(payload.Segments) > 0:
		result.Segments = make([]session.Segment, 0, len(payload.Segments))
		for _, seg := range payload.Segments {
			result.Segments = append(result.Segments, session.Segment{
				Start:   seg.Start,
				End:     seg.End,
				Text:    strings.TrimSpace(seg.Text),
				Speaker: seg.Speaker,
			})
		}
	case len(payload.Chunks) > 0:
		result.Segments = make([]session.Segment, 0, len(payload.Chunks))
		for _, ch := range payload.Chunks {
			seg := session.Segment{Text: strings.TrimSpace(ch.Text), Speaker: ch.Speaker}
			if len(ch.Timestamp) > 0 {
				seg.Start = ch.Timestamp[0]
			}
			if len(ch.Timestamp) > 1 {
				seg.End = ch.Timestamp[1]
			}
			result.Segments = append(result.Segments, seg)
		}
	}

	if result.Text == "" && len(result.Segments) > 0 {
		parts := make([]string, 0, len(result.Segments))
		for _, seg := range result.Segments {
			if seg.Text != "" {
				parts = append(parts, seg.Text)
			}
		}
		result.Text = strings.Join(parts, " ")
	}

	result.Intelligence = payload.Intelligence
	if result.Intelligence == nil &&
		(len(payload.Chapters) > 0 || payload.Sentiment != "" ||
			len(payload.KeyPhrases) > 0 || len(payload.Entities) > 0) {
		result.Intelligence = &session.Intelligence{
			Chapters:   payload.Chapters,
			Sentiment:  payload.Sentiment,
			KeyPhrases: payload.KeyPhrases,
			Entities:   payload.Entities,
		}
	}

	return result
}
