package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe-gateway/internal/api"
	"github.com/snarg/scribe-gateway/internal/audioinput"
	"github.com/snarg/scribe-gateway/internal/blobstore"
	"github.com/snarg/scribe-gateway/internal/config"
	"github.com/snarg/scribe-gateway/internal/events"
	"github.com/snarg/scribe-gateway/internal/predict"
	"github.com/snarg/scribe-gateway/internal/recovery"
	"github.com/snarg/scribe-gateway/internal/render"
	"github.com/snarg/scribe-gateway/internal/session"
	"github.com/snarg/scribe-gateway/internal/spool"
	"github.com/snarg/scribe-gateway/internal/transcribe"
)

var version = "dev"

// spoolSubmitter feeds spooled files through the normal submission path.
type spoolSubmitter struct {
	orch *transcribe.Orchestrator
}

func (s spoolSubmitter) SubmitFile(ctx context.Context, name, base64Data, mimeType string, size int64) error {
	_, err := s.orch.Start(ctx, transcribe.StartRequest{
		AudioData: base64Data,
		MimeType:  mimeType,
		Filename:  name,
		Size:      size,
	})
	return err
}

func main() {
	startTime := time.Now()

	var flags config.Overrides
	flag.StringVar(&flags.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&flags.HTTPAddr, "http-addr", "", "listen address override")
	flag.StringVar(&flags.LogLevel, "log-level", "", "log level override")
	flag.StringVar(&flags.DatabaseURL, "database-url", "", "database URL override")
	flag.StringVar(&flags.SpoolDir, "spool-dir", "", "spool directory override")
	flag.Parse()

	// Config
	cfg, err := config.Load(flags)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("scribe-gateway starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Session store
	var (
		store    session.Store
		dbHealth api.HealthChecker
	)
	if cfg.DatabaseURL != "" {
		pg, err := session.ConnectPostgres(ctx, cfg.DatabaseURL,
			log.With().Str("component", "session-store").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to session store")
		}
		defer pg.Close()
		store = pg
		dbHealth = pg
	} else {
		log.Warn().Msg("DATABASE_URL not set, sessions will not survive a restart")
		store = session.NewMemoryStore()
	}

	// Blob store for oversized inline payloads
	var (
		uploader audioinput.Uploader
		cleaner  transcribe.BlobCleaner
	)
	if cfg.S3.Bucket != "" {
		s3, err := blobstore.NewS3Store(cfg.S3, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create blob store")
		}
		if err := s3.HeadBucket(ctx); err != nil {
			log.Warn().Err(err).Str("bucket", cfg.S3.Bucket).Msg("blob store bucket check failed")
		}
		uploader = s3
		cleaner = s3
	} else {
		log.Warn().Msg("S3_BUCKET not set, large inline payloads will be rejected")
	}

	classifier := audioinput.NewClassifier(uploader, cfg.LargeFileThresholdMB, log)

	// Prediction client
	predictLog := log.With().Str("component", "predict").Logger()
	predictClient := predict.NewClient(cfg.PredictAPIURL, cfg.PredictAPIToken, cfg.PredictTimeout, predictLog)

	// Lifecycle events
	var (
		publisher  transcribe.StatusPublisher
		mqttStatus api.ConnStatus
	)
	if cfg.MQTTBrokerURL != "" {
		pub, err := events.Connect(events.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			TopicBase: cfg.MQTTTopicBase,
			Log:       log.With().Str("component", "events").Logger(),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer pub.Close()
		publisher = pub
		mqttStatus = pub
	}

	// Orchestrator
	orch := transcribe.New(transcribe.Options{
		Store:        store,
		Predict:      predictClient,
		Classifier:   classifier,
		Cleaner:      cleaner,
		Events:       publisher,
		ModelRef:     cfg.ModelRef,
		BatchSize:    cfg.BatchSize,
		PollInterval: cfg.PollInterval,
		Log:          log,
	})
	defer orch.Stop()

	// Recovery: surface any interrupted session, but never auto-resume.
	recoveryCtrl := recovery.NewController(store, log)
	if s := recoveryCtrl.Check(ctx); s != nil {
		log.Info().
			Str("session_id", s.ID).
			Str("status", string(s.Status)).
			Msg("recoverable session found, resume or discard via /api/v1/recovery")
	}

	// Session TTL pruner
	pruner := session.NewPruner(store, cfg.SessionTTL, cfg.SessionPruneInterval, log)
	pruner.Start()
	defer pruner.Stop()

	// Spool ingestion
	if cfg.SpoolDir != "" {
		watcher, err := spool.NewWatcher(cfg.SpoolDir, spoolSubmitter{orch: orch},
			log)
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.SpoolDir).Msg("failed to watch spool directory")
		}
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	// Render proxy
	renderClient := render.NewClient(cfg.RenderAPIURL, cfg.RenderAPIKey, cfg.RenderTimeout,
		log.With().Str("component", "render").Logger())

	// HTTP server
	srv := api.NewServer(api.Deps{
		Config:       cfg,
		Store:        store,
		Orchestrator: orch,
		Recovery:     recoveryCtrl,
		Render:       renderClient,
		DBHealth:     dbHealth,
		MQTT:         mqttStatus,
		Version:      version,
		StartTime:    startTime,
		Log:          log.With().Str("component", "http").Logger(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("scribe-gateway stopped")
}
