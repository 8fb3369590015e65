package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-gateway/internal/session"
	"github.com/snarg/scribe-gateway/internal/transcribe"
)

// SessionsHandler exposes the session store directly: list history, look up
// the active session, fetch or delete by id.
type SessionsHandler struct {
	store session.Store
	orch  *transcribe.Orchestrator
	log   zerolog.Logger
}

func NewSessionsHandler(store session.Store, orch *transcribe.Orchestrator, log zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{store: store, orch: orch, log: log}
}

func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.GetAll(r.Context())
	if err != nil {
		WriteErrorDetail(w, http.StatusInternalServerError, "failed to list sessions", err.Error())
		return
	}
	if all == nil {
		all = []*session.Session{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"sessions": all})
}

func (h *SessionsHandler) Active(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.GetActive(r.Context())
	if err != nil {
		WriteErrorDetail(w, http.StatusInternalServerError, "failed to query active session", err.Error())
		return
	}
	if s == nil {
		WriteError(w, http.StatusNotFound, "no active session")
		return
	}
	WriteJSON(w, http.StatusOK, s)
}

func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteErrorDetail(w, http.StatusInternalServerError, "failed to load session", err.Error())
		return
	}
	if s == nil {
		WriteError(w, http.StatusNotFound, "session not found")
		return
	}
	WriteJSON(w, http.StatusOK, s)
}

func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteErrorDetail(w, http.StatusInternalServerError, "failed to delete session", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
