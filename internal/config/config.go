package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

// Config holds all configuration for the podcastgate server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Queue      QueueConfig
	Worker     WorkerConfig
	Auth       AuthConfig
	Generation GenerationConfig
	Storage    StorageConfig
	Retention  RetentionConfig
}

type ServerConfig struct {
	Port          int
	Env           string
	LogLevel      slog.Level
	PublicBaseURL string
	// InputPrecedence decides which input channel wins when several are set.
	InputPrecedence []models.InputChannel
}

// DatabaseConfig is optional; an empty URL selects the in-memory job store.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

// RedisConfig is optional; an empty URL selects the in-memory rate limiter.
type RedisConfig struct {
	URL string
}

type QueueConfig struct {
	Capacity int
}

type WorkerConfig struct {
	Count        int
	TextTimeout  time.Duration
	TTSTimeout   time.Duration
	StoreTimeout time.Duration
	MaxAttempts  int
}

type AuthConfig struct {
	Keys       []KeyConfig
	BcryptCost int
	FailOpen   bool
}

// KeyConfig describes one configured API key and its limits.
type KeyConfig struct {
	Key                string
	Name               string
	Tier               string
	RateLimitPerMinute int
	DailyQuota         int
}

type GenerationConfig struct {
	TextProvider string
	OpenAI       OpenAIConfig
	ElevenLabs   ElevenLabsConfig
}

type OpenAIConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	TTSModel string
	VoiceQ   string
	VoiceA   string
}

type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
	ModelID string
	VoiceQ  string
	VoiceA  string
}

type StorageConfig struct {
	Backend    string
	Dir        string
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string
}

type RetentionConfig struct {
	JobRetention           time.Duration
	SweepInterval          time.Duration
	StaleRunningAfter      time.Duration
	StaleQueuedAfter       time.Duration
	DeleteExpiredArtifacts bool
}

const maxWorkerAttempts = 5

var validTextProviders = map[string]bool{
	"openai": true,
	"mock":   true,
}

var validStorageBackends = map[string]bool{
	"fs": true,
	"s3": true,
}

// Load reads configuration from environment variables (after an optional .env file)
// and returns a validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	precedence, err := models.ParsePrecedence(os.Getenv("INPUT_PRECEDENCE"))
	if err != nil {
		return nil, fmt.Errorf("INPUT_PRECEDENCE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("PORT", 8080),
			Env:             envString("ENV", "development"),
			LogLevel:        envLevel("LOG_LEVEL", slog.LevelInfo),
			PublicBaseURL:   strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
			InputPrecedence: precedence,
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("DATABASE_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Queue: QueueConfig{
			Capacity: envInt("QUEUE_CAPACITY", 100),
		},
		Worker: WorkerConfig{
			Count:        envInt("WORKER_COUNT", 4),
			TextTimeout:  envDuration("TEXT_TIMEOUT", 5*time.Minute),
			TTSTimeout:   envDuration("TTS_TIMEOUT", 10*time.Minute),
			StoreTimeout: envDuration("STORE_TIMEOUT", time.Minute),
			MaxAttempts:  envInt("WORKER_MAX_ATTEMPTS", 1),
		},
		Auth: AuthConfig{
			Keys: []KeyConfig{
				{
					Key:                envString("DEMO_API_KEY", "pk_demo123"),
					Name:               "demo",
					Tier:               models.TierDemo,
					RateLimitPerMinute: envInt("DEMO_RATE_LIMIT", 10),
					DailyQuota:         envInt("DEMO_DAILY_QUOTA", 100),
				},
				{
					Key:                envString("PROD_API_KEY", "pk_prod456"),
					Name:               "production",
					Tier:               models.TierProduction,
					RateLimitPerMinute: envInt("PROD_RATE_LIMIT", 100),
					DailyQuota:         envInt("PROD_DAILY_QUOTA", 10000),
				},
			},
			BcryptCost: envInt("API_KEY_BCRYPT_COST", 10),
			FailOpen:   envBool("RATE_LIMIT_FAIL_OPEN", true),
		},
		Generation: GenerationConfig{
			TextProvider: envString("TEXT_PROVIDER", "mock"),
			OpenAI: OpenAIConfig{
				APIKey:   os.Getenv("OPENAI_API_KEY"),
				BaseURL:  envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Model:    envString("OPENAI_MODEL", "gpt-4o-mini"),
				TTSModel: envString("OPENAI_TTS_MODEL", "tts-1-hd"),
				VoiceQ:   envString("OPENAI_VOICE_QUESTION", "echo"),
				VoiceA:   envString("OPENAI_VOICE_ANSWER", "shimmer"),
			},
			ElevenLabs: ElevenLabsConfig{
				APIKey:  os.Getenv("ELEVENLABS_API_KEY"),
				BaseURL: envString("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1/text-to-speech"),
				ModelID: envString("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
				VoiceQ:  envString("ELEVENLABS_VOICE_QUESTION", "Chris"),
				VoiceA:  envString("ELEVENLABS_VOICE_ANSWER", "Jessica"),
			},
		},
		Storage: StorageConfig{
			Backend:    envString("ARTIFACT_BACKEND", "fs"),
			Dir:        envString("ARTIFACT_DIR", "./data/audio"),
			S3Bucket:   os.Getenv("S3_BUCKET"),
			S3Region:   envString("AWS_REGION", "us-east-1"),
			S3Endpoint: os.Getenv("S3_ENDPOINT"),
			S3Prefix:   envString("S3_PREFIX", "podcasts/"),
		},
		Retention: RetentionConfig{
			JobRetention:           envDuration("JOB_RETENTION", 6*time.Hour),
			SweepInterval:          envDuration("RETENTION_SWEEP_INTERVAL", 5*time.Minute),
			StaleRunningAfter:      envDuration("STALE_RUNNING_AFTER", time.Hour),
			StaleQueuedAfter:       envDuration("STALE_QUEUED_AFTER", 15*time.Minute),
			DeleteExpiredArtifacts: envBool("DELETE_EXPIRED_ARTIFACTS", false),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.PublicBaseURL != "" &&
		!strings.HasPrefix(c.Server.PublicBaseURL, "http://") && !strings.HasPrefix(c.Server.PublicBaseURL, "https://") {
		return fmt.Errorf("PUBLIC_BASE_URL must start with http:// or https://, got %q", c.Server.PublicBaseURL)
	}

	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("QUEUE_CAPACITY must be positive, got %d", c.Queue.Capacity)
	}

	if c.Worker.Count <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive, got %d", c.Worker.Count)
	}
	if c.Worker.MaxAttempts < 1 || c.Worker.MaxAttempts > maxWorkerAttempts {
		return fmt.Errorf("WORKER_MAX_ATTEMPTS must be between 1 and %d, got %d", maxWorkerAttempts, c.Worker.MaxAttempts)
	}
	if c.Worker.TextTimeout <= 0 || c.Worker.TTSTimeout <= 0 || c.Worker.StoreTimeout <= 0 {
		return fmt.Errorf("TEXT_TIMEOUT, TTS_TIMEOUT and STORE_TIMEOUT must be positive")
	}

	seen := map[string]bool{}
	for _, k := range c.Auth.Keys {
		if len(k.Key) < 8 {
			return fmt.Errorf("API key for %q must be at least 8 characters", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("API key for %q duplicates another configured key", k.Name)
		}
		seen[k.Key] = true
		if k.RateLimitPerMinute <= 0 || k.DailyQuota <= 0 {
			return fmt.Errorf("rate limit and daily quota for %q must be positive", k.Name)
		}
	}

	if !validTextProviders[c.Generation.TextProvider] {
		return fmt.Errorf("TEXT_PROVIDER must be one of openai, mock; got %q", c.Generation.TextProvider)
	}
	if c.Generation.TextProvider == "openai" && c.Generation.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when TEXT_PROVIDER is openai")
	}

	if !validStorageBackends[c.Storage.Backend] {
		return fmt.Errorf("ARTIFACT_BACKEND must be one of fs, s3; got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" && c.Storage.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when ARTIFACT_BACKEND is s3")
	}
	if c.Storage.Backend == "fs" && c.Storage.Dir == "" {
		return fmt.Errorf("ARTIFACT_DIR is required when ARTIFACT_BACKEND is fs")
	}

	if c.Retention.JobRetention <= 0 {
		return fmt.Errorf("JOB_RETENTION must be positive")
	}
	if c.Retention.SweepInterval <= 0 {
		return fmt.Errorf("RETENTION_SWEEP_INTERVAL must be positive")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return lvl
}
