package session

import (
	"context"
	"testing"
)

func newTestStore(nowMillis int64) *MemoryStore {
	m := NewMemoryStore()
	m.now = func() int64 { return nowMillis }
	return m
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	m := newTestStore(1000)
	ctx := context.Background()

	src := AudioSource{Type: "file", Name: "call.mp3", Size: 2048}
	opts := Options{Language: "en", Diarize: true}

	created, err := m.Create(ctx, opts, src)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create returned empty ID")
	}
	if created.Status != StatusStarting || created.Progress != 0 {
		t.Errorf("new session = status %q progress %d, want starting/0", created.Status, created.Progress)
	}
	if created.CreatedAt != 1000 || created.LastUpdatedAt != 1000 {
		t.Errorf("timestamps = %d/%d, want 1000/1000", created.CreatedAt, created.LastUpdatedAt)
	}

	got, err := m.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil for existing session")
	}
	if got.AudioSource != src {
		t.Errorf("AudioSource = %+v, want %+v", got.AudioSource, src)
	}
	if got.Options != opts {
		t.Errorf("Options = %+v, want %+v", got.Options, opts)
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	m := newTestStore(1000)
	got, err := m.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("Get(missing) = %+v, want nil", got)
	}
}

func TestMemoryStore_UpdateRefreshesTimestamp(t *testing.T) {
	m := newTestStore(1000)
	ctx := context.Background()

	s, _ := m.Create(ctx, Options{}, AudioSource{Type: "url", URL: "https://x/a.mp3"})

	m.now = func() int64 { return 2000 }
	got, err := m.Update(ctx, s.ID, Patch{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.LastUpdatedAt != 2000 {
		t.Errorf("LastUpdatedAt = %d, want 2000", got.LastUpdatedAt)
	}
	if got.CreatedAt != 1000 {
		t.Errorf("CreatedAt = %d, want unchanged 1000", got.CreatedAt)
	}
	if got.Status != StatusStarting || got.Progress != 0 || got.JobID != "" {
		t.Errorf("empty patch changed fields: %+v", got)
	}
}

func TestMemoryStore_UpdateMissing(t *testing.T) {
	m := newTestStore(1000)
	got, err := m.Update(context.Background(), "nope", Patch{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got != nil {
		t.Errorf("Update(missing) = %+v, want nil", got)
	}
}

func TestMemoryStore_ProgressNeverDecreases(t *testing.T) {
	m := newTestStore(1000)
	ctx := context.Background()

	s, _ := m.Create(ctx, Options{}, AudioSource{Type: "url", URL: "https://x/a.mp3"})

	set := func(p int) *Session {
		got, err := m.Update(ctx, s.ID, Patch{Progress: &p})
		if err != nil {
			t.Fatalf("Update progress %d: %v", p, err)
		}
		return got
	}

	if got := set(40); got.Progress != 40 {
		t.Errorf("progress = %d, want 40", got.Progress)
	}
	if got := set(20); got.Progress != 40 {
		t.Errorf("progress regressed to %d, want 40", got.Progress)
	}
	if got := set(150); got.Progress != 100 {
		t.Errorf("progress = %d, want clamp to 100", got.Progress)
	}
}

func TestMemoryStore_GetAllOrdering(t *testing.T) {
	m := newTestStore(1000)
	ctx := context.Background()

	first, _ := m.Create(ctx, Options{}, AudioSource{Type: "file", Name: "a"})
	m.now = func() int64 { return 2000 }
	second, _ := m.Create(ctx, Options{}, AudioSource{Type: "file", Name: "b"})

	all, err := m.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("GetAll returned %d sessions, want 2", len(all))
	}
	if all[0].ID != second.ID || all[1].ID != first.ID {
		t.Errorf("GetAll order = [%s %s], want newest first", all[0].ID, all[1].ID)
	}
}

func TestMemoryStore_GetActive(t *testing.T) {
	m := newTestStore(1000)
	ctx := context.Background()

	s, _ := m.Create(ctx, Options{}, AudioSource{Type: "file", Name: "a"})

	active, err := m.GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active == nil || active.ID != s.ID {
		t.Fatalf("GetActive = %+v, want session %s", active, s.ID)
	}

	failed := StatusFailed
	if _, err := m.Update(ctx, s.ID, Patch{Status: &failed}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	active, err = m.GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active != nil {
		t.Errorf("GetActive after terminal status = %+v, want nil", active)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	m := newTestStore(1000)
	ctx := context.Background()

	s, _ := m.Create(ctx, Options{}, AudioSource{Type: "file", Name: "a"})
	if err := m.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, _ := m.Get(ctx, s.ID)
	if got != nil {
		t.Errorf("Get after Delete = %+v, want nil", got)
	}
	// Deleting a missing session is not an error.
	if err := m.Delete(ctx, s.ID); err != nil {
		t.Errorf("Delete(missing): %v", err)
	}
}

func TestMemoryStore_ClonesAreIsolated(t *testing.T) {
	m := newTestStore(1000)
	ctx := context.Background()

	s, _ := m.Create(ctx, Options{}, AudioSource{Type: "file", Name: "a"})
	s.Status = StatusSucceeded

	got, _ := m.Get(ctx, s.ID)
	if got.Status != StatusStarting {
		t.Errorf("mutating a returned session leaked into the store: %q", got.Status)
	}
}
