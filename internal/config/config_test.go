// Package config provides configuration management for cadence.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var envKeys = []string{
	"CADENCE_DATA_DIR", "CADENCE_WORKER_PORT", "CADENCE_DB_DRIVER", "CADENCE_DATABASE_URL",
	"CADENCE_DB_PATH", "CADENCE_MAX_CONNS", "CADENCE_CRON_SECRET", "CADENCE_EMBEDDING_PROVIDER",
	"CADENCE_GENAI_API_KEY", "CADENCE_EMBEDDING_MODEL", "CADENCE_EMBEDDING_MAX_TOKENS",
	"CADENCE_LOCK_BACKEND", "CADENCE_REDIS_ADDR", "CADENCE_RUN_LEASE_TTL", "CADENCE_ACTION_WINDOW_DAYS",
}

// isolate points HOME at a temp dir and clears every CADENCE_* variable.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	globalMu.Lock()
	global = nil
	globalMu.Unlock()
	return home
}

// ConfigSuite is a test suite for config operations.
type ConfigSuite struct {
	suite.Suite
	home string
}

func (s *ConfigSuite) SetupTest() {
	s.home = isolate(s.T())
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) writeSettings(name, content string) {
	dir := filepath.Join(s.home, ".cadence")
	s.Require().NoError(os.MkdirAll(dir, 0750))
	s.Require().NoError(os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
}

// TestDefault tests default configuration values.
func (s *ConfigSuite) TestDefault() {
	cfg := Default()

	s.Equal(DefaultWorkerPort, cfg.WorkerPort)
	s.Equal("sqlite", cfg.DBDriver)
	s.Equal(filepath.Join(s.home, ".cadence", "cadence.db"), cfg.DBPath)
	s.Equal(4, cfg.MaxConns)
	s.Equal("genai", cfg.EmbeddingProvider)
	s.Equal("db", cfg.LockBackend)
	s.Equal(30*time.Minute, cfg.LeaseTTL())
	s.Equal(30*24*time.Hour, cfg.ActionWindow())
	s.Empty(cfg.CronSecret)
	s.NoError(cfg.Validate())
}

func (s *ConfigSuite) TestPaths() {
	s.Equal(filepath.Join(s.home, ".cadence"), DataDir())
	s.Contains(SettingsPath(), "settings.json")
	s.Contains(YAMLSettingsPath(), "settings.yaml")

	custom := filepath.Join(s.home, "elsewhere")
	s.T().Setenv("CADENCE_DATA_DIR", custom)
	s.Equal(custom, DataDir())
	s.Equal(filepath.Join(custom, "cadence.db"), DBPath())
}

// TestEnsureAll tests full initialization.
func (s *ConfigSuite) TestEnsureAll() {
	s.Require().NoError(EnsureAll())

	info, err := os.Stat(DataDir())
	s.Require().NoError(err)
	s.True(info.IsDir())
	_, err = os.Stat(SettingsPath())
	s.NoError(err)

	// The generated file loads back to the defaults.
	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(Default(), cfg)

	// Second call keeps the existing file.
	s.writeSettings("settings.json", `{"CADENCE_WORKER_PORT": 40000}`)
	s.Require().NoError(EnsureAll())
	cfg, err = Load()
	s.Require().NoError(err)
	s.Equal(40000, cfg.WorkerPort)
}

func (s *ConfigSuite) TestEnsureSettingsRespectsYAML() {
	s.writeSettings("settings.yaml", "CADENCE_WORKER_PORT: 40001\n")
	s.Require().NoError(EnsureSettings())
	_, err := os.Stat(SettingsPath())
	s.True(os.IsNotExist(err))
}

// TestLoad_TableDriven tests configuration loading with various scenarios.
func (s *ConfigSuite) TestLoad_TableDriven() {
	tests := []struct {
		name         string
		file         string
		content      string
		expectedPort int
		expectedLock string
		expectedDays int
	}{
		{
			name:         "no settings file",
			expectedPort: DefaultWorkerPort,
			expectedLock: "db",
			expectedDays: 30,
		},
		{
			name:         "json settings",
			file:         "settings.json",
			content:      `{"CADENCE_WORKER_PORT": 38888, "CADENCE_LOCK_BACKEND": "redis", "CADENCE_ACTION_WINDOW_DAYS": 14}`,
			expectedPort: 38888,
			expectedLock: "redis",
			expectedDays: 14,
		},
		{
			name:         "yaml settings",
			file:         "settings.yaml",
			content:      "CADENCE_WORKER_PORT: 39999\nCADENCE_LOCK_BACKEND: redis\n",
			expectedPort: 39999,
			expectedLock: "redis",
			expectedDays: 30,
		},
		{
			name:         "invalid JSON returns defaults",
			file:         "settings.json",
			content:      `{invalid}`,
			expectedPort: DefaultWorkerPort,
			expectedLock: "db",
			expectedDays: 30,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.home = isolate(s.T())
			if tt.file != "" {
				s.writeSettings(tt.file, tt.content)
			}

			cfg, err := Load()
			s.Require().NoError(err)
			s.Equal(tt.expectedPort, cfg.WorkerPort)
			s.Equal(tt.expectedLock, cfg.LockBackend)
			s.Equal(tt.expectedDays, cfg.ActionWindowDays)
		})
	}
}

func (s *ConfigSuite) TestJSONWinsOverYAML() {
	s.writeSettings("settings.json", `{"CADENCE_WORKER_PORT": 1111}`)
	s.writeSettings("settings.yaml", "CADENCE_WORKER_PORT: 2222\n")

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(1111, cfg.WorkerPort)
}

func (s *ConfigSuite) TestEnvOverridesFile() {
	s.writeSettings("settings.json", `{"CADENCE_CRON_SECRET": "from-file", "CADENCE_MAX_CONNS": 8}`)
	s.T().Setenv("CADENCE_CRON_SECRET", "from-env")
	s.T().Setenv("CADENCE_MAX_CONNS", "not-a-number")
	s.T().Setenv("CADENCE_RUN_LEASE_TTL", "5m")

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal("from-env", cfg.CronSecret)
	s.Equal(8, cfg.MaxConns, "unparsable override is ignored")
	s.Equal(5*time.Minute, cfg.LeaseTTL())
}

func (s *ConfigSuite) TestGetAndReload() {
	s.writeSettings("settings.json", `{"CADENCE_CRON_SECRET": "one"}`)
	s.Equal("one", Get().CronSecret)

	s.writeSettings("settings.json", `{"CADENCE_CRON_SECRET": "two"}`)
	s.Equal("one", Get().CronSecret, "Get caches")

	cfg, err := Reload()
	s.Require().NoError(err)
	s.Equal("two", cfg.CronSecret)
	s.Equal("two", Get().CronSecret)
}

func (s *ConfigSuite) TestReloadKeepsConfigOnInvalidFile() {
	s.writeSettings("settings.json", `{"CADENCE_CRON_SECRET": "one"}`)
	s.Equal("one", Get().CronSecret)

	s.writeSettings("settings.json", `{"CADENCE_CRON_SECRET": "tw`)
	_, err := Reload()
	s.ErrorIs(err, ErrInvalidSettings)
	s.Equal("one", Get().CronSecret)

	cfg, err := Load()
	s.Require().NoError(err, "Load still falls back to defaults")
	s.Empty(cfg.CronSecret)
}

func (s *ConfigSuite) TestGetWorkerPort() {
	s.T().Setenv("CADENCE_WORKER_PORT", "45678")
	s.Equal(45678, GetWorkerPort())

	s.T().Setenv("CADENCE_WORKER_PORT", "0")
	s.Equal(DefaultWorkerPort, GetWorkerPort())
}

func TestLeaseTTLFallback(t *testing.T) {
	cfg := &Config{RunLeaseTTL: "soon"}
	assert.Equal(t, 30*time.Minute, cfg.LeaseTTL())
	cfg.RunLeaseTTL = "-1m"
	assert.Equal(t, 30*time.Minute, cfg.LeaseTTL())
}

func TestValidate(t *testing.T) {
	isolate(t)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, "CADENCE_DB_DRIVER"},
		{"postgres without url", func(c *Config) { c.DBDriver = "postgres" }, "CADENCE_DATABASE_URL"},
		{"postgres with url", func(c *Config) { c.DBDriver = "postgres"; c.DatabaseURL = "postgres://x" }, ""},
		{"redis without addr", func(c *Config) { c.LockBackend = "redis" }, "CADENCE_REDIS_ADDR"},
		{"unknown lock", func(c *Config) { c.LockBackend = "etcd" }, "CADENCE_LOCK_BACKEND"},
		{"unknown provider", func(c *Config) { c.EmbeddingProvider = "bert" }, "CADENCE_EMBEDDING_PROVIDER"},
		{"bad port", func(c *Config) { c.WorkerPort = 70000 }, "CADENCE_WORKER_PORT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
