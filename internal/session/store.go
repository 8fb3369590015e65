package session

import "context"

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Status       *Status
	Progress     *int
	JobID        *string
	Error        *string
	Result       *Result
	Segments     []Segment
	Intelligence *Intelligence
}

// Store persists transcription sessions. Implementations are single-writer
// per session: the orchestrator serializes updates, so no row-level
// coordination beyond last-write-wins is required.
type Store interface {
	Create(ctx context.Context, opts Options, src AudioSource) (*Session, error)
	// Update merges the patch and refreshes LastUpdatedAt. Returns
	// (nil, nil) when no such session exists.
	Update(ctx context.Context, id string, patch Patch) (*Session, error)
	// Get returns (nil, nil) when no such session exists.
	Get(ctx context.Context, id string) (*Session, error)
	// GetAll returns every session, most recently created first.
	GetAll(ctx context.Context) ([]*Session, error)
	// GetActive returns the most recent non-terminal session, or (nil, nil).
	GetActive(ctx context.Context) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// applyPatch merges a patch into a session in place. Progress only moves
// forward: a stale poll result can never walk a session backwards.
func applyPatch(s *Session, p Patch, nowMillis int64) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Progress != nil {
		next := *p.Progress
		if next > 100 {
			next = 100
		}
		if next > s.Progress {
			s.Progress = next
		}
	}
	if p.JobID != nil {
		s.JobID = *p.JobID
	}
	if p.Error != nil {
		s.Error = *p.Error
	}
	if p.Result != nil {
		s.Result = p.Result
	}
	if p.Segments != nil {
		s.Segments = p.Segments
	}
	if p.Intelligence != nil {
		s.Intelligence = p.Intelligence
	}
	s.LastUpdatedAt = nowMillis
}
