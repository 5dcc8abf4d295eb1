// Package config loads process configuration from the environment. A .env
// file in the working directory is read first when present; variables
// already set in the environment win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/matthewbaird/propmaint/internal/logger"
)

type Config struct {
	Port        int
	DatabaseURL string

	JWTSecret      string
	AuthDevHeaders bool

	WeeklyCapacity int
	StaffIDs       []string

	PredictionDedup     bool
	PredictionRulesFile string
	PredictionCron      string
	AssignmentCron      string
	JobTimeout          time.Duration

	Storage StorageConfig

	NATSURL     string
	NATSSubject string

	RedisURL   string
	MetricsTTL time.Duration

	MaxUploadBytes int64

	Log logger.Config
}

type StorageConfig struct {
	Backend  string // local, s3
	LocalDir string
	S3       S3Config
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Load reads .env (if any) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults.
func FromEnv(getenv func(string) string) (Config, error) {
	e := env{get: getenv}
	cfg := Config{
		Port:        e.int("PORT", 8080),
		DatabaseURL: e.str("DATABASE_URL", "file:propmaint.db?_pragma=foreign_keys(1)"),

		JWTSecret:      e.str("JWT_SECRET", ""),
		AuthDevHeaders: e.bool("AUTH_DEV_HEADERS", false),

		WeeklyCapacity: e.int("WEEKLY_CAPACITY", 10),
		StaffIDs:       e.list("STAFF_IDS"),

		PredictionDedup:     e.bool("PREDICTION_DEDUP", true),
		PredictionRulesFile: e.str("PREDICTION_RULES_FILE", ""),
		PredictionCron:      e.str("PREDICTION_CRON", "0 2 * * *"),
		AssignmentCron:      e.str("ASSIGNMENT_CRON", "0 3 * * 1"),
		JobTimeout:          e.duration("JOB_TIMEOUT", 5*time.Minute),

		Storage: StorageConfig{
			Backend:  strings.ToLower(e.str("STORAGE_BACKEND", "local")),
			LocalDir: e.str("LOCAL_UPLOAD_DIR", "./uploads"),
			S3: S3Config{
				Endpoint:  e.str("S3_ENDPOINT", "localhost:9000"),
				AccessKey: e.str("S3_ACCESS_KEY", ""),
				SecretKey: e.str("S3_SECRET_KEY", ""),
				Bucket:    e.str("S3_BUCKET", "propmaint-attachments"),
				Region:    e.str("S3_REGION", ""),
				UseSSL:    e.bool("S3_USE_SSL", false),
			},
		},

		NATSURL:     e.str("NATS_URL", ""),
		NATSSubject: e.str("NATS_SUBJECT", "propmaint.events"),

		RedisURL:   e.str("REDIS_URL", ""),
		MetricsTTL: e.duration("METRICS_TTL", 30*time.Second),

		MaxUploadBytes: int64(e.int("MAX_UPLOAD_BYTES", 10<<20)),

		Log: logger.Config{
			Level:      e.str("LOG_LEVEL", "info"),
			Format:     e.str("LOG_FORMAT", "json"),
			Output:     e.str("LOG_OUTPUT", "stdout"),
			FilePath:   e.str("LOG_FILE", "logs/propmaint.log"),
			MaxSizeMB:  e.int("LOG_MAX_SIZE", 100),
			MaxBackups: e.int("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: e.int("LOG_MAX_AGE", 30),
			Compress:   e.bool("LOG_COMPRESS", true),
		},
	}
	if len(e.errs) > 0 {
		return Config{}, fmt.Errorf("config: %s", strings.Join(e.errs, "; "))
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.WeeklyCapacity < 1 {
		return fmt.Errorf("config: WEEKLY_CAPACITY must be at least 1, got %d", c.WeeklyCapacity)
	}
	if c.JWTSecret == "" && !c.AuthDevHeaders {
		return fmt.Errorf("config: set JWT_SECRET or enable AUTH_DEV_HEADERS")
	}
	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.S3.AccessKey == "" || c.Storage.S3.SecretKey == "" {
			return fmt.Errorf("config: S3_ACCESS_KEY and S3_SECRET_KEY are required for the s3 backend")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("config: JOB_TIMEOUT must be positive")
	}
	return nil
}

// env reads typed values, collecting parse errors.
type env struct {
	get  func(string) string
	errs []string
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}

func (e *env) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.get(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
