// Package recovery offers a resume-or-discard choice for a transcription
// session that was still running when the client went away. It is a
// best-effort convenience: any storage failure degrades to a no-op instead
// of blocking a fresh transcription.
package recovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe-gateway/internal/session"
)

// State is the controller's position in the recovery flow.
type State string

const (
	StateIdle        State = "idle"
	StateLoading     State = "loading"
	StateRecoverable State = "recoverable"
	StateRecovered   State = "recovered"
	StateDiscarded   State = "discarded"
	StateError       State = "error"
)

// ResumeFunc hands a recovered session back to the transcription flow,
// typically re-entering the polling loop.
type ResumeFunc func(ctx context.Context, s *session.Session) error

// Controller finds a recoverable session and applies the user's choice.
type Controller struct {
	store session.Store
	log   zerolog.Logger

	mu    sync.Mutex
	state State
	sess  *session.Session
}

// NewController creates a recovery controller in the idle state.
func NewController(store session.Store, log zerolog.Logger) *Controller {
	return &Controller{
		store: store,
		log:   log.With().Str("component", "recovery").Logger(),
		state: StateIdle,
	}
}

// Check queries the store for an active session. A non-terminal session is
// exposed without auto-resuming; network activity only restarts on an
// explicit Recover call. Storage failures are logged and degrade to error.
func (c *Controller) Check(ctx context.Context) *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateLoading

	s, err := c.store.GetActive(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("recovery check failed, continuing without recovery")
		c.state = StateError
		c.sess = nil
		return nil
	}
	if s == nil || !s.Active() {
		c.state = StateIdle
		c.sess = nil
		return nil
	}

	c.log.Info().
		Str("session_id", s.ID).
		Str("status", string(s.Status)).
		Msg("recoverable session found")

	c.state = StateRecoverable
	c.sess = s
	return s
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the recoverable session, if any.
func (c *Controller) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// HasRecoverableSession reports whether a resume/discard choice is pending.
func (c *Controller) HasRecoverableSession() bool {
	return c.State() == StateRecoverable
}

// Recover refreshes the session's timestamp and hands it to resume. The
// controller holds no reference afterwards; the transcription flow owns it.
func (c *Controller) Recover(ctx context.Context, resume ResumeFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRecoverable || c.sess == nil {
		return fmt.Errorf("no recoverable session")
	}

	if _, err := c.store.Update(ctx, c.sess.ID, session.Patch{}); err != nil {
		c.log.Warn().Err(err).Str("session_id", c.sess.ID).Msg("failed to touch recovered session")
	}

	if err := resume(ctx, c.sess); err != nil {
		c.state = StateError
		return fmt.Errorf("resume session %s: %w", c.sess.ID, err)
	}

	c.log.Info().Str("session_id", c.sess.ID).Msg("session recovered")
	c.state = StateRecovered
	c.sess = nil
	return nil
}

// Discard deletes the recoverable session. Storage failures are logged and
// degrade to the error state rather than propagating.
func (c *Controller) Discard(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRecoverable || c.sess == nil {
		return fmt.Errorf("no recoverable session")
	}

	if err := c.store.Delete(ctx, c.sess.ID); err != nil {
		c.log.Warn().Err(err).Str("session_id", c.sess.ID).Msg("failed to discard session")
		c.state = StateError
		c.sess = nil
		return nil
	}

	c.log.Info().Str("session_id", c.sess.ID).Msg("session discarded")
	c.state = StateDiscarded
	c.sess = nil
	return nil
}
