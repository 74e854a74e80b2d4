package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	LLM      LLMConfig
	Mail     MailConfig
	Workflow WorkflowConfig
	Events   EventsConfig
	Sweeper  SweeperConfig
	Tracing  TracingConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// AuthConfig defines bearer token verification parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// LLMConfig points at an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float64
	TimeoutSeconds int
}

// MailConfig selects the email transport. SMTP wins over SendGrid; with
// neither configured mail is only logged.
type MailConfig struct {
	From           string
	SMTPHost       string
	SMTPPort       string
	SMTPUser       string
	SMTPPass       string
	SendGridAPIKey string
}

// WorkflowConfig tunes the step runner.
type WorkflowConfig struct {
	MaxAttempts          int
	InitialBackoffMillis int
	MaxBackoffSeconds    int
	CheckpointTTLHours   int
}

// EventsConfig selects the event queue.
type EventsConfig struct {
	Backend    string
	QueueKey   string
	BufferSize int
	Workers    int
}

// SweeperConfig controls the stale-triage sweeper.
type SweeperConfig struct {
	Enabled           bool
	Schedule          string
	StaleAfterMinutes int
	BatchSize         int
}

// TracingConfig enables OTLP trace export.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	temperature, err := strconv.ParseFloat(getEnv("LLM_TEMPERATURE", "0.2"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TEMPERATURE: %w", err)
	}
	sampleRatio, err := strconv.ParseFloat(getEnv("TRACING_SAMPLE_RATIO", "0.1"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TRACING_SAMPLE_RATIO: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-assist"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 14),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		LLM: LLMConfig{
			BaseURL:        getEnv("LLM_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai"),
			APIKey:         os.Getenv("LLM_API_KEY"),
			Model:          getEnv("LLM_MODEL", "gemini-2.5-flash"),
			Temperature:    temperature,
			TimeoutSeconds: getEnvAsInt("LLM_TIMEOUT_SECONDS", 60),
		},
		Mail: MailConfig{
			From:           getEnv("EMAIL_FROM", "noreply@example.com"),
			SMTPHost:       os.Getenv("SMTP_HOST"),
			SMTPPort:       getEnv("SMTP_PORT", "587"),
			SMTPUser:       os.Getenv("SMTP_USER"),
			SMTPPass:       os.Getenv("SMTP_PASS"),
			SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		},
		Workflow: WorkflowConfig{
			MaxAttempts:          getEnvAsInt("WORKFLOW_MAX_ATTEMPTS", 4),
			InitialBackoffMillis: getEnvAsInt("WORKFLOW_INITIAL_BACKOFF_MS", 500),
			MaxBackoffSeconds:    getEnvAsInt("WORKFLOW_MAX_BACKOFF_SECONDS", 30),
			CheckpointTTLHours:   getEnvAsInt("WORKFLOW_CHECKPOINT_TTL_HOURS", 72),
		},
		Events: EventsConfig{
			Backend:    getEnv("EVENTS_BACKEND", "memory"),
			QueueKey:   getEnv("EVENTS_QUEUE_KEY", "ticket-assist:events"),
			BufferSize: getEnvAsInt("EVENTS_BUFFER_SIZE", 256),
			Workers:    getEnvAsInt("EVENTS_WORKERS", 4),
		},
		Sweeper: SweeperConfig{
			Enabled:           getEnvAsBool("SWEEPER_ENABLED", true),
			Schedule:          getEnv("SWEEPER_SCHEDULE", "@every 5m"),
			StaleAfterMinutes: getEnvAsInt("SWEEPER_STALE_AFTER_MINUTES", 15),
			BatchSize:         getEnvAsInt("SWEEPER_BATCH_SIZE", 50),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("TRACING_ENABLED", false),
			Endpoint:    getEnv("TRACING_ENDPOINT", "localhost:4317"),
			Insecure:    getEnvAsBool("TRACING_INSECURE", true),
			SampleRatio: sampleRatio,
		},
	}

	if cfg.Events.Backend != "memory" && cfg.Events.Backend != "redis" {
		return nil, fmt.Errorf("invalid EVENTS_BACKEND %q", cfg.Events.Backend)
	}
	if cfg.Events.Backend == "redis" && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("EVENTS_BACKEND=redis requires REDIS_ADDR")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout bounds a single LLM call.
func (l LLMConfig) Timeout() time.Duration {
	if l.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// InitialBackoff returns the first retry delay.
func (w WorkflowConfig) InitialBackoff() time.Duration {
	return time.Duration(w.InitialBackoffMillis) * time.Millisecond
}

// MaxBackoff caps the retry delay.
func (w WorkflowConfig) MaxBackoff() time.Duration {
	return time.Duration(w.MaxBackoffSeconds) * time.Second
}

// CheckpointTTL bounds how long step results are kept.
func (w WorkflowConfig) CheckpointTTL() time.Duration {
	return time.Duration(w.CheckpointTTLHours) * time.Hour
}

// StaleAfter is the age past which an untriaged ticket is swept.
func (s SweeperConfig) StaleAfter() time.Duration {
	return time.Duration(s.StaleAfterMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
