package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-gateway/internal/config"
	"github.com/snarg/scribe-gateway/internal/recovery"
	"github.com/snarg/scribe-gateway/internal/render"
	"github.com/snarg/scribe-gateway/internal/session"
	"github.com/snarg/scribe-gateway/internal/transcribe"
)

// Deps is everything the HTTP surface needs.
type Deps struct {
	Config       *config.Config
	Store        session.Store
	Orchestrator *transcribe.Orchestrator
	Recovery     *recovery.Controller
	Render       *render.Client
	DBHealth     HealthChecker // nil on the in-memory store
	MQTT         ConnStatus    // nil when events are disabled
	Version      string
	StartTime    time.Time
	Log          zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(d Deps) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(d.Log))
	r.Use(CORS)
	r.Use(HTTPMetrics)

	// Unauthenticated endpoints
	health := NewHealthHandler(d.DBHealth, d.MQTT, d.Version, d.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	transcriptions := NewTranscriptionsHandler(d.Orchestrator, d.Store, d.Log)
	sessions := NewSessionsHandler(d.Store, d.Orchestrator, d.Log)
	recoveryH := NewRecoveryHandler(d.Recovery, d.Orchestrator, d.Log)
	renderH := NewRenderHandler(d.Render, d.Log)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(d.Config.AuthToken))
		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/transcriptions", transcriptions.Create)
			r.Get("/transcriptions/{id}", transcriptions.Get)
			r.Delete("/transcriptions/{id}", transcriptions.Delete)

			r.Get("/sessions", sessions.List)
			r.Get("/sessions/active", sessions.Active)
			r.Get("/sessions/{id}", sessions.Get)
			r.Delete("/sessions/{id}", sessions.Delete)

			r.Get("/recovery", recoveryH.Status)
			r.Post("/recovery/recover", recoveryH.Recover)
			r.Post("/recovery/discard", recoveryH.Discard)

			r.Post("/render/{templateID}", renderH.Render)
		})
	})

	return &Server{
		http: &http.Server{
			Addr:         d.Config.HTTPAddr,
			Handler:      r,
			ReadTimeout:  d.Config.ReadTimeout,
			WriteTimeout: d.Config.WriteTimeout,
			IdleTimeout:  d.Config.IdleTimeout,
		},
		log: d.Log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
