package api

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker verifies a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnStatus reports a long-lived connection's state.
type ConnStatus interface {
	IsConnected() bool
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

// HealthHandler reports service and dependency health. Optional dependencies
// report "disabled" rather than failing the check.
type HealthHandler struct {
	db        HealthChecker // nil when running on the in-memory store
	mqtt      ConnStatus    // nil when event publishing is disabled
	version   string
	startTime time.Time
}

func NewHealthHandler(db HealthChecker, mqtt ConnStatus, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{db: db, mqtt: mqtt, version: version, startTime: startTime}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "ok"

	if h.db == nil {
		checks["database"] = "disabled"
	} else if err := h.db.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error: " + err.Error()
		status = "degraded"
	} else {
		checks["database"] = "ok"
	}

	switch {
	case h.mqtt == nil:
		checks["mqtt"] = "disabled"
	case h.mqtt.IsConnected():
		checks["mqtt"] = "connected"
	default:
		checks["mqtt"] = "disconnected"
		status = "degraded"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	WriteJSON(w, code, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	})
}
