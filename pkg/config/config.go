// Package config loads the governance runtime's configuration from an
// optional YAML file plus environment-variable overrides, following the
// same load/normalize shape as the teacher's config package.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP transport.
type ServerConfig struct {
	Host string `json:"host" env:"SERVER_HOST"`
	Port int    `json:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the durable store connection, per §6's
// DB_BACKEND/DB_URL/DB_MIN_CONN/DB_MAX_CONN environment variables.
type DatabaseConfig struct {
	Backend         string `json:"backend" env:"DB_BACKEND"`
	URL             string `json:"url" env:"DB_URL"`
	MinConns        int    `json:"min_conns" env:"DB_MIN_CONN"`
	MaxConns        int    `json:"max_conns" env:"DB_MAX_CONN"`
	ConnMaxLifetime int    `json:"conn_max_lifetime_seconds" env:"DB_CONN_MAX_LIFETIME_SECONDS"`
	MigrateOnStart  bool   `json:"migrate_on_start" env:"DB_MIGRATE_ON_START"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Format string `json:"format" env:"LOG_FORMAT"`
	Output string `json:"output" env:"LOG_OUTPUT"`
}

// CacheConfig controls the external session/rate-limit cache, per §6's
// CACHE_URL/CACHE_ENABLED.
type CacheConfig struct {
	URL     string `json:"url" env:"CACHE_URL"`
	Enabled bool   `json:"enabled" env:"CACHE_ENABLED"`
}

// LockConfig controls the named write-lock capability.
type LockConfig struct {
	TimeoutSeconds   int `json:"timeout_seconds" env:"LOCK_TIMEOUT_SECONDS"`
	AcquireTimeoutMS int `json:"acquire_timeout_ms" env:"LOCK_ACQUIRE_TIMEOUT_MS"`
}

// SessionConfig controls the session cache binding TTL.
type SessionConfig struct {
	TTLSeconds   int    `json:"ttl_seconds" env:"SESSION_TTL_SECONDS"`
	JWTSecret    string `json:"jwt_secret" env:"SESSION_JWT_SECRET"`
	ClaimTTLMins int    `json:"claim_ttl_minutes" env:"SESSION_CLAIM_TTL_MINUTES"`
}

// DynamicsConfig holds every tunable constant the EISV Dynamics Engine
// uses, so recalibration never requires a rebuild.
type DynamicsConfig struct {
	Mode string `json:"mode" env:"I_DYNAMICS_MODE"` // "linear" or "nonlinear" (default)

	DT float64 `json:"dt" env:"DYNAMICS_DT"`

	Alpha   float64 `json:"alpha" env:"DYNAMICS_ALPHA"`
	BetaE   float64 `json:"beta_e" env:"DYNAMICS_BETA_E"`
	BetaI   float64 `json:"beta_i" env:"DYNAMICS_BETA_I"`
	GammaI  float64 `json:"gamma_i" env:"DYNAMICS_GAMMA_I"`
	K       float64 `json:"k" env:"DYNAMICS_K"`
	Mu      float64 `json:"mu" env:"DYNAMICS_MU"`
	Lambda2 float64 `json:"lambda2" env:"DYNAMICS_LAMBDA2"`
	Kappa   float64 `json:"kappa" env:"DYNAMICS_KAPPA"`
	Delta   float64 `json:"delta" env:"DYNAMICS_DELTA"`

	Lambda1Base float64 `json:"lambda1_base" env:"DYNAMICS_LAMBDA1_BASE"`
	Lambda1EMA  float64 `json:"lambda1_ema_rate" env:"DYNAMICS_LAMBDA1_EMA_RATE"`

	CMax float64 `json:"c_max" env:"DYNAMICS_C_MAX"`
	C1   float64 `json:"c1" env:"DYNAMICS_C1"`

	SMin float64 `json:"s_min" env:"DYNAMICS_S_MIN"`

	ConfidenceGate float64 `json:"confidence_gate" env:"DYNAMICS_CONFIDENCE_GATE"`

	ParamDim int `json:"param_dim" env:"DYNAMICS_PARAM_DIM"`
	DriftDim int `json:"drift_dim" env:"DYNAMICS_DRIFT_DIM"`

	TemperatureMin float64 `json:"temperature_min" env:"DYNAMICS_TEMPERATURE_MIN"`
	TemperatureMax float64 `json:"temperature_max" env:"DYNAMICS_TEMPERATURE_MAX"`
	TopPMin        float64 `json:"top_p_min" env:"DYNAMICS_TOP_P_MIN"`
	TopPMax        float64 `json:"top_p_max" env:"DYNAMICS_TOP_P_MAX"`
	MaxTokensMin   int     `json:"max_tokens_min" env:"DYNAMICS_MAX_TOKENS_MIN"`
	MaxTokensMax   int     `json:"max_tokens_max" env:"DYNAMICS_MAX_TOKENS_MAX"`
}

// StuckDetectorConfig controls the periodic stuck-agent sweep.
type StuckDetectorConfig struct {
	SweepIntervalSeconds int `json:"sweep_interval_seconds" env:"STUCK_SWEEP_INTERVAL_SECONDS"`
	WarmupSeconds        int `json:"warmup_seconds" env:"STUCK_WARMUP_SECONDS"`
}

// CollaboratorConfig controls the optional external summarizer/embedder.
type CollaboratorConfig struct {
	SummarizerEndpoint string `json:"summarizer_endpoint" env:"SUMMARIZER_ENDPOINT"`
	EmbeddingsEndpoint string `json:"embeddings_endpoint" env:"EMBEDDINGS_ENDPOINT"`
}

// RateLimitConfig controls the token-bucket per-operation-class limits.
type RateLimitConfig struct {
	NotesPerHour int `json:"notes_per_hour" env:"RATE_LIMIT_NOTES_PER_HOUR"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server       ServerConfig        `json:"server"`
	Database     DatabaseConfig      `json:"database"`
	Logging      LoggingConfig       `json:"logging"`
	Cache        CacheConfig         `json:"cache"`
	Lock         LockConfig          `json:"lock"`
	Session      SessionConfig       `json:"session"`
	Dynamics     DynamicsConfig      `json:"dynamics"`
	StuckDetector StuckDetectorConfig `json:"stuck_detector"`
	Collaborator CollaboratorConfig  `json:"collaborator"`
	RateLimit    RateLimitConfig     `json:"rate_limit"`
}

// New returns a configuration populated with the defaults named throughout
// the spec (§4.1's tuned constants, §6's environment-variable table).
func New() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			Backend:         "postgres",
			MinConns:        5,
			MaxConns:        25,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		Cache:   CacheConfig{Enabled: true},
		Lock: LockConfig{
			TimeoutSeconds:   30,
			AcquireTimeoutMS: 5000,
		},
		Session: SessionConfig{
			TTLSeconds:   3600,
			ClaimTTLMins: 10,
		},
		Dynamics: DynamicsConfig{
			Mode: "nonlinear",
			DT:   0.1,

			Alpha:   0.8,
			BetaE:   0.5,
			BetaI:   0.3,
			GammaI:  0.1,
			K:       0.4,
			Mu:      0.3,
			Lambda2: 0.2,
			Kappa:   0.5,
			Delta:   0.2,

			Lambda1Base: 0.3,
			Lambda1EMA:  0.1,

			CMax: 1.0,
			C1:   3.0,

			SMin: 0.001,

			ConfidenceGate: 0.8,

			ParamDim: 128,
			DriftDim: 3,

			TemperatureMin: 0.1,
			TemperatureMax: 1.2,
			TopPMin:        0.5,
			TopPMax:        0.99,
			MaxTokensMin:   64,
			MaxTokensMax:   512,
		},
		StuckDetector: StuckDetectorConfig{
			SweepIntervalSeconds: 300,
			WarmupSeconds:        10,
		},
		Collaborator: CollaboratorConfig{},
		RateLimit:    RateLimitConfig{NotesPerHour: 20},
	}
}

// Load loads configuration from an optional file and environment-variable
// overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors when no tagged fields are present in the
		// environment; treat that as "no overrides" so local runs work
		// without exporting every variable.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

// LoadFile reads configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// LoadConfig is a helper used by tests to load JSON config snippets.
func LoadConfig(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

func applyDatabaseURLOverride(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := strings.TrimSpace(os.Getenv("DB_URL")); dsn != "" {
		cfg.Database.URL = dsn
	}
}
