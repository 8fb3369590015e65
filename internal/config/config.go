package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Empty means sessions are kept in memory only (dev / tests).
	DatabaseURL string `env:"DATABASE_URL"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	// Prediction service (Replicate-compatible).
	PredictAPIURL   string        `env:"PREDICT_API_URL" envDefault:"https://api.replicate.com/v1"`
	PredictAPIToken string        `env:"PREDICT_API_TOKEN"`
	PredictTimeout  time.Duration `env:"PREDICT_TIMEOUT" envDefault:"30s"`
	ModelRef        string        `env:"MODEL_REF" envDefault:"vaibhavs10/incredibly-fast-whisper:3ab86df6c8f54c11309d4d1f930ac292bad43ace52d10c80d87eb258b3c9f79c"`
	BatchSize       int           `env:"BATCH_SIZE" envDefault:"24"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"3s"`

	// Inline payloads above this estimated decoded size are uploaded to the
	// blob store and submitted by reference URL instead.
	LargeFileThresholdMB float64 `env:"LARGE_FILE_THRESHOLD_MB" envDefault:"1"`

	SessionTTL           time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SessionPruneInterval time.Duration `env:"SESSION_PRUNE_INTERVAL" envDefault:"1h"`

	S3 S3Config

	// Document rendering service.
	RenderAPIURL  string        `env:"RENDER_API_URL" envDefault:"https://api.printerz.app"`
	RenderAPIKey  string        `env:"RENDER_API_KEY"`
	RenderTimeout time.Duration `env:"RENDER_TIMEOUT" envDefault:"25s"`

	// MQTT lifecycle events. Empty broker URL disables publishing.
	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"scribe-gateway"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`
	MQTTTopicBase string `env:"MQTT_TOPIC_BASE" envDefault:"scribe/sessions"`

	// Spool directory ingestion. Empty disables the watcher.
	SpoolDir string `env:"SPOOL_DIR"`
}

type S3Config struct {
	Endpoint      string        `env:"S3_ENDPOINT"`
	Region        string        `env:"S3_REGION" envDefault:"us-east-1"`
	Bucket        string        `env:"S3_BUCKET"`
	AccessKey     string        `env:"S3_ACCESS_KEY"`
	SecretKey     string        `env:"S3_SECRET_KEY"`
	Prefix        string        `env:"S3_PREFIX" envDefault:"temp_audio"`
	PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"24h"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	SpoolDir    string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.SpoolDir != "" {
		cfg.SpoolDir = overrides.SpoolDir
	}

	return cfg, nil
}
