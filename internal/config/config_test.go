package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "cards.yml")

	validConfig := `version: "1.0"
checker_timeout: 50ms
refresh: "@every 1m"
server:
  port: 8080
conditions:
  low_storage:
    enabled: true
    mount: /data
    free_percent: 15
  overheating:
    enabled: false
`
	require.NoError(t, os.WriteFile(configPath, []byte(validConfig), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, cfg.CheckerTimeout)
	assert.Equal(t, "@every 1m", cfg.Refresh)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/data", cfg.Conditions.LowStorage.Mount)
	assert.Equal(t, 15.0, cfg.Conditions.LowStorage.FreePercent)
	assert.False(t, cfg.Conditions.Overheating.Enabled)

	// Sections not mentioned keep their defaults
	assert.True(t, cfg.Conditions.Offline.Enabled)
	assert.Equal(t, []string{"/etc/resolv.conf"}, cfg.Conditions.Offline.WatchFiles)
	assert.Equal(t, 20.0, cfg.Conditions.BatterySaver.ThresholdPercent)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/cards.yml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("version: \"1.0\"\nconditions:\n  - nope\n    nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParse_ZeroDurationsFallBack(t *testing.T) {
	cfg, err := Parse([]byte("version: \"1.0\"\nchecker_timeout: 0s\npoll_interval: 0s\n"))
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, cfg.CheckerTimeout)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *CardsConfig)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *CardsConfig) {},
		},
		{
			name:    "unsupported version",
			mutate:  func(c *CardsConfig) { c.Version = "2.0" },
			wantErr: "unsupported version",
		},
		{
			name:    "bad refresh cron",
			mutate:  func(c *CardsConfig) { c.Refresh = "sometimes" },
			wantErr: "refresh",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *CardsConfig) { c.CheckerTimeout = -time.Second },
			wantErr: "checker_timeout",
		},
		{
			name:    "cert without key",
			mutate:  func(c *CardsConfig) { c.Server.CertFile = "server.crt" },
			wantErr: "must be set together",
		},
		{
			name:    "client ca without server cert",
			mutate:  func(c *CardsConfig) { c.Server.CAFile = "ca.crt" },
			wantErr: "server.ca_file",
		},
		{
			name:    "port out of range",
			mutate:  func(c *CardsConfig) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "storage percent out of range",
			mutate:  func(c *CardsConfig) { c.Conditions.LowStorage.FreePercent = 120 },
			wantErr: "free_percent",
		},
		{
			name:    "storage without mount",
			mutate:  func(c *CardsConfig) { c.Conditions.LowStorage.Mount = "" },
			wantErr: "mount is required",
		},
		{
			name: "disabled sections are not validated",
			mutate: func(c *CardsConfig) {
				c.Conditions.HighLoad.Enabled = false
				c.Conditions.HighLoad.PerCPU = -1
			},
		},
		{
			name:    "non-positive load threshold",
			mutate:  func(c *CardsConfig) { c.Conditions.HighLoad.PerCPU = 0 },
			wantErr: "per_cpu",
		},
		{
			name:    "battery percent out of range",
			mutate:  func(c *CardsConfig) { c.Conditions.BatterySaver.ThresholdPercent = -5 },
			wantErr: "threshold_percent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := Default()

	t.Setenv("CARDS_DB_PATH", "/tmp/override.db")
	assert.Equal(t, "/tmp/override.db", cfg.DatabasePath())

	t.Setenv("CARDS_DB_PATH", "")
	cfg.Database.Path = "/var/lib/cards/cards.db"
	assert.Equal(t, "/var/lib/cards/cards.db", cfg.DatabasePath())
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, "1.0", cfg.Version)

	_, err = LoadOrDefault("/nonexistent/cards.yml")
	assert.Error(t, err)
}
