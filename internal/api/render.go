package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-gateway/internal/metrics"
	"github.com/snarg/scribe-gateway/internal/render"
)

// RenderHandler proxies transcript PDF rendering.
type RenderHandler struct {
	client *render.Client
	log    zerolog.Logger
}

func NewRenderHandler(client *render.Client, log zerolog.Logger) *RenderHandler {
	return &RenderHandler{client: client, log: log}
}

type renderRequest struct {
	Data map[string]any `json:"data"`
}

// Render forwards the template render call and relays the PDF as a download.
func (h *RenderHandler) Render(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "templateID")

	var req renderRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	doc, err := h.client.Render(r.Context(), templateID, req.Data)
	if err != nil {
		metrics.RendersTotal.WithLabelValues("error").Inc()
		h.log.Warn().Err(err).Str("template_id", templateID).Msg("render failed")
		WriteClassifiedError(w, err)
		return
	}
	metrics.RendersTotal.WithLabelValues("ok").Inc()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(doc.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(doc.Data)
}
