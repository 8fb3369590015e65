package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/snarg/scribe-gateway/internal/audioinput"
	"github.com/snarg/scribe-gateway/internal/predict"
	"github.com/snarg/scribe-gateway/internal/render"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the normalized error body: a friendly classified message
// first, raw technical detail secondary.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteErrorDetail writes a JSON error response with detail.
func WriteErrorDetail(w http.ResponseWriter, status int, msg, detail string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Detail: detail})
}

// DecodeJSON reads and decodes a JSON request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// WriteClassifiedError maps the error taxonomy onto HTTP statuses with a
// user-facing message first and the raw detail secondary.
func WriteClassifiedError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, audioinput.ErrNoAudio):
		WriteError(w, http.StatusBadRequest, "either audioUrl or audioData is required")
		return
	case errors.Is(err, render.ErrMissingTemplateID), errors.Is(err, render.ErrMissingData):
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, render.ErrMissingAPIKey):
		WriteErrorDetail(w, http.StatusInternalServerError,
			"service configuration error", err.Error())
		return
	case errors.Is(err, render.ErrGatewayTimeout):
		WriteErrorDetail(w, http.StatusGatewayTimeout,
			"the rendering service took too long to respond", err.Error())
		return
	}

	var emptyErr *render.EmptyResponseError
	if errors.As(err, &emptyErr) {
		WriteErrorDetail(w, http.StatusBadGateway,
			"the rendering service returned no document", err.Error())
		return
	}
	var upstreamErr *render.UpstreamError
	if errors.As(err, &upstreamErr) {
		WriteErrorDetail(w, http.StatusBadGateway,
			"the rendering service rejected the request", err.Error())
		return
	}

	var predErr *predict.Error
	if errors.As(err, &predErr) {
		switch predErr.Kind {
		case predict.KindValidation:
			WriteError(w, http.StatusBadRequest, predErr.Detail)
		case predict.KindConfig:
			WriteErrorDetail(w, http.StatusInternalServerError,
				"service configuration error", predErr.Detail)
		case predict.KindResourceExhausted:
			WriteErrorDetail(w, http.StatusServiceUnavailable,
				"the transcription service is out of capacity, try again later", err.Error())
		case predict.KindNetwork:
			WriteErrorDetail(w, http.StatusBadGateway,
				"could not reach the transcription service, check your connection", err.Error())
		default:
			WriteErrorDetail(w, http.StatusBadGateway,
				"the transcription service reported an error", err.Error())
		}
		return
	}

	WriteErrorDetail(w, http.StatusInternalServerError, "internal error", err.Error())
}
