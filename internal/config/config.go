// Package config provides configuration management for cadence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultWorkerPort         = 37900
	DefaultDBDriver           = "sqlite"
	DefaultMaxConns           = 4
	DefaultEmbeddingProvider  = "genai"
	DefaultEmbeddingModel     = "gemini-embedding-001"
	DefaultEmbeddingMaxTokens = 2048
	DefaultLockBackend        = "db"
	DefaultRunLeaseTTL        = "30m"
	DefaultActionWindowDays   = 30
)

// Supported values for enumerated settings.
var (
	DBDrivers          = []string{"postgres", "sqlite"}
	LockBackends       = []string{"db", "redis"}
	EmbeddingProviders = []string{"genai"}
)

// Config holds cadence settings. Every field is read from the settings file
// under its key and can be overridden by an environment variable of the same name.
type Config struct {
	WorkerPort         int    `json:"CADENCE_WORKER_PORT" yaml:"CADENCE_WORKER_PORT"`
	DBDriver           string `json:"CADENCE_DB_DRIVER" yaml:"CADENCE_DB_DRIVER"`
	DatabaseURL        string `json:"CADENCE_DATABASE_URL" yaml:"CADENCE_DATABASE_URL"`
	DBPath             string `json:"CADENCE_DB_PATH" yaml:"CADENCE_DB_PATH"`
	MaxConns           int    `json:"CADENCE_MAX_CONNS" yaml:"CADENCE_MAX_CONNS"`
	CronSecret         string `json:"CADENCE_CRON_SECRET" yaml:"CADENCE_CRON_SECRET"`
	EmbeddingProvider  string `json:"CADENCE_EMBEDDING_PROVIDER" yaml:"CADENCE_EMBEDDING_PROVIDER"`
	GenAIAPIKey        string `json:"CADENCE_GENAI_API_KEY" yaml:"CADENCE_GENAI_API_KEY"`
	EmbeddingModel     string `json:"CADENCE_EMBEDDING_MODEL" yaml:"CADENCE_EMBEDDING_MODEL"`
	EmbeddingMaxTokens int    `json:"CADENCE_EMBEDDING_MAX_TOKENS" yaml:"CADENCE_EMBEDDING_MAX_TOKENS"`
	LockBackend        string `json:"CADENCE_LOCK_BACKEND" yaml:"CADENCE_LOCK_BACKEND"`
	RedisAddr          string `json:"CADENCE_REDIS_ADDR" yaml:"CADENCE_REDIS_ADDR"`
	RunLeaseTTL        string `json:"CADENCE_RUN_LEASE_TTL" yaml:"CADENCE_RUN_LEASE_TTL"`
	ActionWindowDays   int    `json:"CADENCE_ACTION_WINDOW_DAYS" yaml:"CADENCE_ACTION_WINDOW_DAYS"`
}

var (
	global   *Config
	globalMu sync.RWMutex
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		WorkerPort:         DefaultWorkerPort,
		DBDriver:           DefaultDBDriver,
		DBPath:             DBPath(),
		MaxConns:           DefaultMaxConns,
		EmbeddingProvider:  DefaultEmbeddingProvider,
		EmbeddingModel:     DefaultEmbeddingModel,
		EmbeddingMaxTokens: DefaultEmbeddingMaxTokens,
		LockBackend:        DefaultLockBackend,
		RunLeaseTTL:        DefaultRunLeaseTTL,
		ActionWindowDays:   DefaultActionWindowDays,
	}
}

// DataDir returns $CADENCE_DATA_DIR, or ~/.cadence.
func DataDir() string {
	if dir := os.Getenv("CADENCE_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".cadence")
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "cadence.db")
}

// SettingsPath returns the JSON settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// YAMLSettingsPath returns the YAML settings file path, read when no JSON file exists.
func YAMLSettingsPath() string {
	return filepath.Join(DataDir(), "settings.yaml")
}

// EnsureDataDir creates the data directory.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings writes a default settings file if neither settings file exists.
func EnsureSettings() error {
	for _, p := range []string{SettingsPath(), YAMLSettingsPath()} {
		if _, err := os.Stat(p); err == nil {
			return nil
		}
	}
	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(SettingsPath(), data, 0600)
}

// EnsureAll creates the data directory and a default settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := EnsureSettings(); err != nil {
		return fmt.Errorf("create settings: %w", err)
	}
	return nil
}

// ErrInvalidSettings reports a settings file that exists but cannot be parsed.
var ErrInvalidSettings = errors.New("invalid settings file")

// Load reads the settings file and applies environment overrides.
// A missing or unparsable settings file yields the defaults.
func Load() (*Config, error) {
	cfg, err := read()
	if errors.Is(err, ErrInvalidSettings) {
		log.Warn().Err(err).Msg("Invalid settings file, using defaults")
		cfg = Default()
		applyEnv(cfg)
		return cfg, nil
	}
	return cfg, err
}

// read loads the settings file with environment overrides applied. Unlike
// Load it reports an unparsable file as ErrInvalidSettings.
func read() (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(SettingsPath()); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrInvalidSettings, SettingsPath(), err)
		}
	} else if data, err := os.ReadFile(YAMLSettingsPath()); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrInvalidSettings, YAMLSettingsPath(), err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	globalMu.RLock()
	cfg := global
	globalMu.RUnlock()
	if cfg != nil {
		return cfg
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		loaded, err := Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load settings, using defaults")
			loaded = Default()
			applyEnv(loaded)
		}
		global = loaded
	}
	return global
}

// Reload re-reads the settings and replaces the process-wide configuration.
// An unparsable file, typically one caught half-written, returns
// ErrInvalidSettings and leaves the current configuration in place.
func Reload() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	globalMu.Lock()
	global = cfg
	globalMu.Unlock()
	return cfg, nil
}

// GetWorkerPort returns the worker port, preferring a valid CADENCE_WORKER_PORT.
func GetWorkerPort() int {
	if port, err := strconv.Atoi(os.Getenv("CADENCE_WORKER_PORT")); err == nil && port > 0 {
		return port
	}
	return Get().WorkerPort
}

// LeaseTTL parses RunLeaseTTL, falling back to the default on a bad value.
func (c *Config) LeaseTTL() time.Duration {
	if d, err := time.ParseDuration(c.RunLeaseTTL); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(DefaultRunLeaseTTL)
	return d
}

// ActionWindow returns the trailing action window.
func (c *Config) ActionWindow() time.Duration {
	days := c.ActionWindowDays
	if days <= 0 {
		days = DefaultActionWindowDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if !oneOf(c.DBDriver, DBDrivers) {
		errs = append(errs, fmt.Errorf("CADENCE_DB_DRIVER must be one of %s", strings.Join(DBDrivers, ", ")))
	}
	if c.DBDriver == "postgres" && c.DatabaseURL == "" {
		errs = append(errs, errors.New("CADENCE_DATABASE_URL is required for postgres"))
	}
	if !oneOf(c.LockBackend, LockBackends) {
		errs = append(errs, fmt.Errorf("CADENCE_LOCK_BACKEND must be one of %s", strings.Join(LockBackends, ", ")))
	}
	if c.LockBackend == "redis" && c.RedisAddr == "" {
		errs = append(errs, errors.New("CADENCE_REDIS_ADDR is required for the redis lock backend"))
	}
	if !oneOf(c.EmbeddingProvider, EmbeddingProviders) {
		errs = append(errs, fmt.Errorf("CADENCE_EMBEDDING_PROVIDER must be one of %s", strings.Join(EmbeddingProviders, ", ")))
	}
	if c.WorkerPort <= 0 || c.WorkerPort > 65535 {
		errs = append(errs, fmt.Errorf("CADENCE_WORKER_PORT %d out of range", c.WorkerPort))
	}
	return errors.Join(errs...)
}

// applyEnv overrides fields from identically named environment variables.
// Unparsable numbers are ignored.
func applyEnv(cfg *Config) {
	envInt("CADENCE_WORKER_PORT", &cfg.WorkerPort)
	envString("CADENCE_DB_DRIVER", &cfg.DBDriver)
	envString("CADENCE_DATABASE_URL", &cfg.DatabaseURL)
	envString("CADENCE_DB_PATH", &cfg.DBPath)
	envInt("CADENCE_MAX_CONNS", &cfg.MaxConns)
	envString("CADENCE_CRON_SECRET", &cfg.CronSecret)
	envString("CADENCE_EMBEDDING_PROVIDER", &cfg.EmbeddingProvider)
	envString("CADENCE_GENAI_API_KEY", &cfg.GenAIAPIKey)
	envString("CADENCE_EMBEDDING_MODEL", &cfg.EmbeddingModel)
	envInt("CADENCE_EMBEDDING_MAX_TOKENS", &cfg.EmbeddingMaxTokens)
	envString("CADENCE_LOCK_BACKEND", &cfg.LockBackend)
	envString("CADENCE_REDIS_ADDR", &cfg.RedisAddr)
	envString("CADENCE_RUN_LEASE_TTL", &cfg.RunLeaseTTL)
	envInt("CADENCE_ACTION_WINDOW_DAYS", &cfg.ActionWindowDays)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			*dst = n
		}
	}
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
