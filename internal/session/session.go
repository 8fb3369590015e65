package session

import "encoding/json"

// Status is the lifecycle state of a transcription session. It mirrors the
// prediction service's job states so a persisted session can be reconciled
// directly against a polled job.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// AudioSource describes where the session's audio came from. Immutable after
// creation, except that UploadPath is recorded once a large inline payload
// has been moved to the blob store.
type AudioSource struct {
	Type       string `json:"type"` // "file" or "url"
	Name       string `json:"name,omitempty"`
	Size       int64  `json:"size,omitempty"`
	URL        string `json:"url,omitempty"`
	UploadPath string `json:"uploadPath,omitempty"`
}

// Options are the transcription options passed through to the prediction
// service. Immutable after creation.
type Options struct {
	Language string `json:"language"`
	Diarize  bool   `json:"diarize"`
}

// Segment is one timestamped span of transcript text.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Chapter is an AI-derived chapter boundary.
type Chapter struct {
	Title string  `json:"title"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Entity is a named entity detected in the transcript.
type Entity struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// Intelligence is optional derived analysis of a transcript.
type Intelligence struct {
	Chapters   []Chapter `json:"chapters,omitempty"`
	Sentiment  string    `json:"sentiment,omitempty"`
	KeyPhrases []string  `json:"keyPhrases,omitempty"`
	Entities   []Entity  `json:"entities,omitempty"`
}

// Result is the transcript payload, present if and only if the session
// succeeded.
type Result struct {
	Text             string          `json:"text,omitempty"`
	DetectedLanguage string          `json:"detectedLanguage,omitempty"`
	Segments         []Segment       `json:"segments,omitempty"`
	Intelligence     *Intelligence   `json:"intelligence,omitempty"`
	Raw              json.RawMessage `json:"raw,omitempty"`
}

// Session is the persisted record tracking one transcription request
// end-to-end, independent of the job's own external lifecycle.
type Session struct {
	ID            string        `json:"id"`
	Status        Status        `json:"status"`
	Progress      int           `json:"progress"` // 0-100, non-decreasing while active
	JobID         string        `json:"jobId,omitempty"`
	AudioSource   AudioSource   `json:"audioSource"`
	Options       Options       `json:"options"`
	Error         string        `json:"error,omitempty"`
	Result        *Result       `json:"result,omitempty"`
	Segments      []Segment     `json:"segments,omitempty"`
	Intelligence  *Intelligence `json:"intelligence,omitempty"`
	CreatedAt     int64         `json:"createdAt"`     // epoch ms
	LastUpdatedAt int64         `json:"lastUpdatedAt"` // epoch ms, refreshed on every mutation
}

// Active reports whether the session is still recoverable.
func (s *Session) Active() bool {
	return !s.Status.Terminal()
}
