package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps sessions in process memory. Used for tests and for
// storeless dev runs where DATABASE_URL is unset; sessions do not survive a
// restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session

	// now is swappable for tests.
	now func() int64
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

func (m *MemoryStore) Create(_ context.Context, opts Options, src AudioSource) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s := &Session{
		ID:            uuid.NewString(),
		Status:        StatusStarting,
		Progress:      0,
		AudioSource:   src,
		Options:       opts,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	m.sessions[s.ID] = s
	return cloneSession(s), nil
}

func (m *MemoryStore) Update(_ context.Context, id string, patch Patch) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	applyPatch(s, patch, m.now())
	return cloneSession(s), nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) GetAll(_ context.Context) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetActive(ctx context.Context) (*Session, error) {
	all, err := m.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		if s.Active() {
			return s, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// cloneSession returns a copy so callers can't mutate store state behind the
// lock's back. Nested slices/pointers are shared but treated as immutable
// once written.
func cloneSession(s *Session) *Session {
	c := *s
	return &c
}
