package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-gateway/internal/session"
	"github.com/snarg/scribe-gateway/internal/transcribe"
)

// TranscriptionsHandler exposes the submit/poll/cancel boundary.
type TranscriptionsHandler struct {
	orch  *transcribe.Orchestrator
	store session.Store
	log   zerolog.Logger
}

func NewTranscriptionsHandler(orch *transcribe.Orchestrator, store session.Store, log zerolog.Logger) *TranscriptionsHandler {
	return &TranscriptionsHandler{orch: orch, store: store, log: log}
}

type submitRequest struct {
	AudioURL  string `json:"audioUrl"`
	AudioData string `json:"audioData"`
	MimeType  string `json:"mimeType"`
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	Language  string `json:"language"`
	Diarize   bool   `json:"diarize"`
	BatchSize int    `json:"batchSize"`
}

// Create starts a transcription and returns the persisted session. The
// client polls GET /transcriptions/{id} until a terminal status.
func (h *TranscriptionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AudioURL == "" && req.AudioData == "" {
		WriteError(w, http.StatusBadRequest, "either audioUrl or audioData is required")
		return
	}

	sess, err := h.orch.Start(r.Context(), transcribe.StartRequest{
		AudioURL:  req.AudioURL,
		AudioData: req.AudioData,
		MimeType:  req.MimeType,
		Filename:  req.Filename,
		Size:      req.Size,
		Options:   session.Options{Language: req.Language, Diarize: req.Diarize},
		BatchSize: req.BatchSize,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("transcription submit failed")
		WriteClassifiedError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, sess)
}

// Get returns the session's current state, including the result once
// succeeded.
func (h *TranscriptionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := h.store.Get(r.Context(), id)
	if err != nil {
		WriteErrorDetail(w, http.StatusInternalServerError, "failed to load session", err.Error())
		return
	}
	if sess == nil {
		WriteError(w, http.StatusNotFound, "session not found")
		return
	}
	WriteJSON(w, http.StatusOK, sess)
}

// Delete cancels any in-flight polling and removes the session and its
// uploaded payload.
func (h *TranscriptionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.orch.Delete(r.Context(), id); err != nil {
		WriteErrorDetail(w, http.StatusInternalServerError, "failed to delete session", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
