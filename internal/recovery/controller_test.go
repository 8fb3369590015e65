package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe-gateway/internal/session"
)

// failingStore errors on every call, for exercising degraded paths.
type failingStore struct{}

var errStore = errors.New("store unavailable")

func (failingStore) Create(context.Context, session.Options, session.AudioSource) (*session.Session, error) {
	return nil, errStore
}
func (failingStore) Update(context.Context, string, session.Patch) (*session.Session, error) {
	return nil, errStore
}
func (failingStore) Get(context.Context, string) (*session.Session, error) { return nil, errStore }
func (failingStore) GetAll(context.Context) ([]*session.Session, error)    { return nil, errStore }
func (failingStore) GetActive(context.Context) (*session.Session, error)   { return nil, errStore }
func (failingStore) Delete(context.Context, string) error                  { return errStore }

func newActiveStore(t *testing.T) (*session.MemoryStore, *session.Session) {
	t.Helper()
	m := session.NewMemoryStore()
	s, err := m.Create(context.Background(), session.Options{Language: "en"},
		session.AudioSource{Type: "file", Name: "call.mp3"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	processing := session.StatusProcessing
	if _, err := m.Update(context.Background(), s.ID, session.Patch{Status: &processing}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	s.Status = processing
	return m, s
}

func TestCheck_FindsActiveSession(t *testing.T) {
	m, s := newActiveStore(t)
	c := NewController(m, zerolog.Nop())

	got := c.Check(context.Background())
	if got == nil || got.ID != s.ID {
		t.Fatalf("Check = %+v, want session %s", got, s.ID)
	}
	if c.State() != StateRecoverable {
		t.Errorf("state = %q, want recoverable", c.State())
	}
	if !c.HasRecoverableSession() {
		t.Error("HasRecoverableSession = false")
	}
}

func TestCheck_NoSessionIsIdle(t *testing.T) {
	c := NewController(session.NewMemoryStore(), zerolog.Nop())

	if got := c.Check(context.Background()); got != nil {
		t.Errorf("Check = %+v, want nil", got)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %q, want idle", c.State())
	}
	if c.HasRecoverableSession() {
		t.Error("HasRecoverableSession = true with empty store")
	}
}

func TestCheck_TerminalSessionIsIdle(t *testing.T) {
	m := session.NewMemoryStore()
	s, _ := m.Create(context.Background(), session.Options{}, session.AudioSource{Type: "file"})
	failed := session.StatusFailed
	m.Update(context.Background(), s.ID, session.Patch{Status: &failed})

	c := NewController(m, zerolog.Nop())
	if got := c.Check(context.Background()); got != nil {
		t.Errorf("Check = %+v, want nil for terminal session", got)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %q, want idle", c.State())
	}
}

func TestCheck_StoreErrorDegrades(t *testing.T) {
	c := NewController(failingStore{}, zerolog.Nop())

	if got := c.Check(context.Background()); got != nil {
		t.Errorf("Check = %+v, want nil on store error", got)
	}
	if c.State() != StateError {
		t.Errorf("state = %q, want error", c.State())
	}
}

func TestRecover_HandsSessionToResume(t *testing.T) {
	m, s := newActiveStore(t)
	c := NewController(m, zerolog.Nop())
	c.Check(context.Background())

	var resumed *session.Session
	err := c.Recover(context.Background(), func(ctx context.Context, got *session.Session) error {
		resumed = got
		return nil
	})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if resumed == nil || resumed.ID != s.ID {
		t.Fatalf("resume got %+v, want session %s", resumed, s.ID)
	}
	if c.State() != StateRecovered {
		t.Errorf("state = %q, want recovered", c.State())
	}
	if c.Session() != nil {
		t.Error("controller still holds session after recover")
	}
}

func TestRecover_ResumeFailureIsError(t *testing.T) {
	m, _ := newActiveStore(t)
	c := NewController(m, zerolog.Nop())
	c.Check(context.Background())

	err := c.Recover(context.Background(), func(context.Context, *session.Session) error {
		return errors.New("poller refused")
	})
	if err == nil {
		t.Fatal("Recover succeeded, want resume error")
	}
	if c.State() != StateError {
		t.Errorf("state = %q, want error", c.State())
	}
}

func TestRecover_WithoutRecoverableSession(t *testing.T) {
	c := NewController(session.NewMemoryStore(), zerolog.Nop())
	err := c.Recover(context.Background(), func(context.Context, *session.Session) error { return nil })
	if err == nil {
		t.Error("Recover succeeded with nothing to recover")
	}
}

func TestDiscard_RemovesSession(t *testing.T) {
	m, s := newActiveStore(t)
	c := NewController(m, zerolog.Nop())
	c.Check(context.Background())

	if err := c.Discard(context.Background()); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if c.State() != StateDiscarded {
		t.Errorf("state = %q, want discarded", c.State())
	}

	got, _ := m.Get(context.Background(), s.ID)
	if got != nil {
		t.Errorf("session still in store after discard: %+v", got)
	}
	active, _ := m.GetActive(context.Background())
	if active != nil {
		t.Errorf("GetActive after discard = %+v, want nil", active)
	}
}

func TestDiscard_StoreErrorDegrades(t *testing.T) {
	// Check needs a working store to find the session; swap in a failing
	// store for the delete.
	m, _ := newActiveStore(t)
	c := NewController(m, zerolog.Nop())
	c.Check(context.Background())
	c.store = failingStore{}

	if err := c.Discard(context.Background()); err != nil {
		t.Errorf("Discard returned %v, want degraded nil", err)
	}
	if c.State() != StateError {
		t.Errorf("state = %q, want error", c.State())
	}
}
