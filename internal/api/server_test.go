package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe-gateway/internal/audioinput"
	"github.com/snarg/scribe-gateway/internal/config"
	"github.com/snarg/scribe-gateway/internal/predict"
	"github.com/snarg/scribe-gateway/internal/recovery"
	"github.com/snarg/scribe-gateway/internal/render"
	"github.com/snarg/scribe-gateway/internal/session"
	"github.com/snarg/scribe-gateway/internal/transcribe"
)

// newTestServer wires the full router against in-memory storage and fake
// upstream services.
func newTestServer(t *testing.T, authToken string) (http.Handler, *session.MemoryStore) {
	t.Helper()

	predictSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"job-1","status":"starting"}`))
			return
		}
		w.Write([]byte(`{"id":"job-1","status":"starting"}`))
	}))
	t.Cleanup(predictSrv.Close)

	renderSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 fake"))
	}))
	t.Cleanup(renderSrv.Close)

	store := session.NewMemoryStore()
	orch := transcribe.New(transcribe.Options{
		Store:        store,
		Predict:      predict.NewClient(predictSrv.URL, "tok", time.Second, zerolog.Nop()),
		Classifier:   audioinput.NewClassifier(nil, 1000, zerolog.Nop()),
		ModelRef:     "openai/whisper:v1",
		BatchSize:    8,
		PollInterval: time.Hour, // tests drive state through the store, not polling
		Log:          zerolog.Nop(),
	})
	t.Cleanup(orch.Stop)

	srv := NewServer(Deps{
		Config:       &config.Config{HTTPAddr: ":0", AuthToken: authToken},
		Store:        store,
		Orchestrator: orch,
		Recovery:     recovery.NewController(store, zerolog.Nop()),
		Render:       render.NewClient(renderSrv.URL, "key", time.Second, zerolog.Nop()),
		Version:      "test",
		StartTime:    time.Now(),
		Log:          zerolog.Nop(),
	})
	return srv.http.Handler, store
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTranscriptions_CreateAndGet(t *testing.T) {
	h, _ := newTestServer(t, "")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/transcriptions",
		`{"audioData":"aGVsbG8=","mimeType":"audio/mpeg","filename":"call.mp3","language":"en"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created session.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.ID == "" || created.JobID != "job-1" {
		t.Errorf("created = %+v, want id and job-1", created)
	}
	if created.Options.Language != "en" {
		t.Errorf("Options = %+v", created.Options)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/transcriptions/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/transcriptions/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d, want 404", rec.Code)
	}
}

func TestTranscriptions_CreateValidation(t *testing.T) {
	h, _ := newTestServer(t, "")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/transcriptions", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/transcriptions", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed body", rec.Code)
	}
}

func TestTranscriptions_Delete(t *testing.T) {
	h, store := newTestServer(t, "")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/transcriptions", `{"audioData":"aGVsbG8="}`)
	var created session.Session
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/transcriptions/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	got, _ := store.Get(context.Background(), created.ID)
	if got != nil {
		t.Errorf("session still present after delete: %+v", got)
	}
}

func TestSessions_ListAndActive(t *testing.T) {
	h, _ := newTestServer(t, "")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list struct {
		Sessions []*session.Session `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Sessions) != 0 {
		t.Errorf("sessions = %d, want empty", len(list.Sessions))
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/sessions/active", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("active status = %d, want 404 with no sessions", rec.Code)
	}

	doJSON(t, h, http.MethodPost, "/api/v1/transcriptions", `{"audioData":"aGVsbG8="}`)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/sessions/active", "")
	if rec.Code != http.StatusOK {
		t.Errorf("active status = %d, want 200", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/v1/sessions", "")
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list.Sessions) != 1 {
		t.Errorf("sessions = %d, want 1", len(list.Sessions))
	}
}

func TestRecovery_StatusAndDiscard(t *testing.T) {
	h, _ := newTestServer(t, "")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/recovery", "")
	var status struct {
		State                 string           `json:"state"`
		HasRecoverableSession bool             `json:"hasRecoverableSession"`
		Session               *session.Session `json:"session"`
	}
	json.Unmarshal(rec.Body.Bytes(), &status)
	if status.State != "idle" || status.HasRecoverableSession {
		t.Errorf("empty-store recovery status = %+v", status)
	}

	doJSON(t, h, http.MethodPost, "/api/v1/transcriptions", `{"audioData":"aGVsbG8="}`)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/recovery", "")
	json.Unmarshal(rec.Body.Bytes(), &status)
	if status.State != "recoverable" || !status.HasRecoverableSession || status.Session == nil {
		t.Fatalf("recovery status = %+v, want recoverable", status)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/recovery/discard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("discard status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/sessions/active", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("active after discard = %d, want 404", rec.Code)
	}
}

func TestRecovery_RecoverWithoutSession(t *testing.T) {
	h, _ := newTestServer(t, "")
	rec := doJSON(t, h, http.MethodPost, "/api/v1/recovery/recover", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("recover status = %d, want 409", rec.Code)
	}
}

func TestRender_ProxiesDocument(t *testing.T) {
	h, _ := newTestServer(t, "")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/render/tpl-1", `{"data":{"title":"Transcript"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("render status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "transcript.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF") {
		t.Error("body is not the rendered document")
	}
}

func TestRender_MissingData(t *testing.T) {
	h, _ := newTestServer(t, "")
	rec := doJSON(t, h, http.MethodPost, "/api/v1/render/tpl-1", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("render status = %d, want 400", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t, "")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	var body HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.Checks["database"] != "disabled" || body.Checks["mqtt"] != "disabled" {
		t.Errorf("checks = %+v, want optional deps disabled", body.Checks)
	}
}

func TestAuth_ProtectsAPIButNotHealth(t *testing.T) {
	h, _ := newTestServer(t, "secret")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/sessions", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated sessions status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret")
	authed := httptest.NewRecorder()
	h.ServeHTTP(authed, req)
	if authed.Code != http.StatusOK {
		t.Errorf("authenticated sessions status = %d, want 200", authed.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want unauthenticated 200", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want unauthenticated 200", rec.Code)
	}
}
