package api

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe-gateway/internal/metrics"
	"github.com/snarg/scribe-gateway/internal/recovery"
	"github.com/snarg/scribe-gateway/internal/session"
	"github.com/snarg/scribe-gateway/internal/transcribe"
)

// RecoveryHandler surfaces the resume-or-discard choice for an interrupted
// session. Resuming requires an explicit POST; checking never restarts
// network activity on its own.
type RecoveryHandler struct {
	ctrl *recovery.Controller
	orch *transcribe.Orchestrator
	log  zerolog.Logger
}

func NewRecoveryHandler(ctrl *recovery.Controller, orch *transcribe.Orchestrator, log zerolog.Logger) *RecoveryHandler {
	return &RecoveryHandler{ctrl: ctrl, orch: orch, log: log}
}

type recoveryStatus struct {
	State                 recovery.State   `json:"state"`
	HasRecoverableSession bool             `json:"hasRecoverableSession"`
	Session               *session.Session `json:"session,omitempty"`
}

// Status re-checks the store and reports whether a session is recoverable.
func (h *RecoveryHandler) Status(w http.ResponseWriter, r *http.Request) {
	s := h.ctrl.Check(r.Context())
	WriteJSON(w, http.StatusOK, recoveryStatus{
		State:                 h.ctrl.State(),
		HasRecoverableSession: s != nil,
		Session:               s,
	})
}

// Recover re-enters the polling loop for the recoverable session.
func (h *RecoveryHandler) Recover(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Recover(r.Context(), h.orch.Resume); err != nil {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}
	metrics.RecoveryActionsTotal.WithLabelValues("recover").Inc()
	WriteJSON(w, http.StatusOK, recoveryStatus{State: h.ctrl.State()})
}

// Discard deletes the recoverable session.
func (h *RecoveryHandler) Discard(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Discard(r.Context()); err != nil {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}
	metrics.RecoveryActionsTotal.WithLabelValues("discard").Inc()
	WriteJSON(w, http.StatusOK, recoveryStatus{State: h.ctrl.State()})
}
