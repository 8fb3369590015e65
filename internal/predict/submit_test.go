package predict

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakePredictionServer fails the first failures submissions with an OOM
// payload, then succeeds, recording the batch size of every attempt.
type fakePredictionServer struct {
	mu       sync.Mutex
	failures int
	batches  []int
}

func (f *fakePredictionServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Version string         `json:"version"`
			Input   map[string]any `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		batch := int(req.Input["batch_size"].(float64))
		f.batches = append(f.batches, batch)
		fail := len(f.batches) <= f.failures
		f.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"detail":"CUDA out of memory"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"pred-ok","status":"starting"}`))
	}
}

func (f *fakePredictionServer) seen() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.batches...)
}

func newSubmitClient(t *testing.T, f *fakePredictionServer) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "tok", time.Second, zerolog.Nop())
}

func TestSubmitWithRetry_HalvesBatchOnOOM(t *testing.T) {
	// Three OOM failures then success: batch sizes 8, 4, 2, 1.
	f := &fakePredictionServer{failures: 3}
	c := newSubmitClient(t, f)

	pred, err := c.SubmitWithRetry(context.Background(), SubmitParams{
		ModelRef:  "openai/whisper:v1",
		Input:     map[string]any{"audio": "abc"},
		BatchSize: 8,
	})
	if err != nil {
		t.Fatalf("SubmitWithRetry: %v", err)
	}
	if pred.ID != "pred-ok" {
		t.Errorf("prediction id = %q, want pred-ok", pred.ID)
	}

	want := []int{8, 4, 2, 1}
	got := f.seen()
	if len(got) != len(want) {
		t.Fatalf("attempts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("attempt %d batch_size = %d, want %d", i+1, got[i], want[i])
		}
	}
}

func TestSubmitWithRetry_StopsAfterMaxRetries(t *testing.T) {
	f := &fakePredictionServer{failures: 10}
	c := newSubmitClient(t, f)

	_, err := c.SubmitWithRetry(context.Background(), SubmitParams{
		ModelRef:  "openai/whisper:v1",
		Input:     map[string]any{"audio": "abc"},
		BatchSize: 8,
	})
	if err == nil {
		t.Fatal("SubmitWithRetry succeeded, want error")
	}
	if got := len(f.seen()); got != MaxRetries+1 {
		t.Errorf("attempts = %d, want %d", got, MaxRetries+1)
	}
	if !strings.Contains(err.Error(), "3 retries") {
		t.Errorf("error %q does not mention retry count", err)
	}
	if KindOf(err) != KindResourceExhausted {
		t.Errorf("error kind = %v, want resource_exhausted", KindOf(err))
	}
}

func TestSubmitWithRetry_BatchFloorIsOne(t *testing.T) {
	f := &fakePredictionServer{failures: 3}
	c := newSubmitClient(t, f)

	if _, err := c.SubmitWithRetry(context.Background(), SubmitParams{
		ModelRef:  "openai/whisper:v1",
		Input:     map[string]any{"audio": "abc"},
		BatchSize: 2,
	}); err != nil {
		t.Fatalf("SubmitWithRetry: %v", err)
	}

	want := []int{2, 1, 1, 1}
	got := f.seen()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("attempt %d batch_size = %d, want %d", i+1, got[i], want[i])
		}
	}
}

func TestSubmitWithRetry_NonRetryableSurfacesImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"version does not exist"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second, zerolog.Nop())
	_, err := c.SubmitWithRetry(context.Background(), SubmitParams{
		ModelRef:  "openai/whisper:v1",
		Input:     map[string]any{"audio": "abc"},
		BatchSize: 8,
	})
	if err == nil {
		t.Fatal("SubmitWithRetry succeeded, want error")
	}
	if KindOf(err) != KindUpstream {
		t.Errorf("error kind = %v, want upstream", KindOf(err))
	}
}

func TestSubmitWithRetry_InvalidModelRefBeforeNetwork(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second, zerolog.Nop())
	_, err := c.SubmitWithRetry(context.Background(), SubmitParams{
		ModelRef:  "openai/whisper",
		Input:     map[string]any{"audio": "abc"},
		BatchSize: 8,
	})
	if err == nil {
		t.Fatal("SubmitWithRetry succeeded with malformed model ref")
	}
	if KindOf(err) != KindValidation {
		t.Errorf("error kind = %v, want validation", KindOf(err))
	}
	if called {
		t.Error("network call made despite validation failure")
	}
}
