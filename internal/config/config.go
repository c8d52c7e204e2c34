package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mscrnt/homecards/pkg/broadcast"
)

// DefaultFileName is looked up in the working directory when no --config is given
const DefaultFileName = "cards.yml"

// CardsConfig represents the top-level cards.yml configuration
type CardsConfig struct {
	Version        string           `yaml:"version"`
	CheckerTimeout time.Duration    `yaml:"checker_timeout,omitempty"` // Per-controller wait, default 20ms
	Refresh        string           `yaml:"refresh,omitempty"`         // Cron expression forcing a refresh
	PollInterval   time.Duration    `yaml:"poll_interval,omitempty"`   // How often host state is sampled for changes
	Database       DatabaseConfig   `yaml:"database,omitempty"`
	Server         ServerConfig     `yaml:"server,omitempty"`
	Conditions     ConditionsConfig `yaml:"conditions"`
}

// DatabaseConfig specifies where dismissals and refresh history are kept
type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"`
}

// ServerConfig specifies the HTTP agent
type ServerConfig struct {
	Port     int    `yaml:"port,omitempty"`
	CertFile string `yaml:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`
	CAFile   string `yaml:"ca_file,omitempty"` // Requires client certificates signed by this CA
	LogFile  string `yaml:"log_file,omitempty"`
}

// ConditionsConfig holds one section per host condition
type ConditionsConfig struct {
	Offline        OfflineConfig     `yaml:"offline"`
	BatterySaver   BatteryConfig     `yaml:"battery_saver"`
	LowStorage     StorageConfig     `yaml:"low_storage"`
	MemoryPressure MemoryConfig      `yaml:"memory_pressure"`
	HighLoad       LoadConfig        `yaml:"high_load"`
	Overheating    TemperatureConfig `yaml:"overheating"`
}

// OfflineConfig configures the no-network condition
type OfflineConfig struct {
	Enabled    bool     `yaml:"enabled"`
	WatchFiles []string `yaml:"watch_files,omitempty"` // Files whose changes signal a network change
}

// BatteryConfig configures the battery saver condition
type BatteryConfig struct {
	Enabled          bool    `yaml:"enabled"`
	ThresholdPercent float64 `yaml:"threshold_percent"`
	PowerSupplyDir   string  `yaml:"power_supply_dir,omitempty"`
}

// StorageConfig configures the low storage suggestion
type StorageConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Mount       string  `yaml:"mount"`
	FreePercent float64 `yaml:"free_percent"`
}

// MemoryConfig configures the memory pressure condition
type MemoryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	UsedPercent float64 `yaml:"used_percent"`
}

// LoadConfig configures the high load condition
type LoadConfig struct {
	Enabled bool    `yaml:"enabled"`
	PerCPU  float64 `yaml:"per_cpu"`
}

// TemperatureConfig configures the overheating condition
type TemperatureConfig struct {
	Enabled bool    `yaml:"enabled"`
	Celsius float64 `yaml:"celsius"`
}

// Default returns the configuration used when no file exists
func Default() *CardsConfig {
	return &CardsConfig{
		Version:        "1.0",
		CheckerTimeout: 20 * time.Millisecond,
		Refresh:        "@every 5m",
		PollInterval:   10 * time.Second,
		Server: ServerConfig{
			Port: 2223,
		},
		Conditions: ConditionsConfig{
			Offline: OfflineConfig{
				Enabled:    true,
				WatchFiles: []string{"/etc/resolv.conf"},
			},
			BatterySaver: BatteryConfig{
				Enabled:          true,
				ThresholdPercent: 20,
				PowerSupplyDir:   "/sys/class/power_supply",
			},
			LowStorage: StorageConfig{
				Enabled:     true,
				Mount:       "/",
				FreePercent: 10,
			},
			MemoryPressure: MemoryConfig{
				Enabled:     true,
				UsedPercent: 90,
			},
			HighLoad: LoadConfig{
				Enabled: true,
				PerCPU:  1.5,
			},
			Overheating: TemperatureConfig{
				Enabled: true,
				Celsius: 85,
			},
		},
	}
}

// Validate performs strict validation on the configuration
func (c *CardsConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.CheckerTimeout < 0 {
		return fmt.Errorf("checker_timeout must be >= 0, got %s", c.CheckerTimeout)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll_interval must be >= 0, got %s", c.PollInterval)
	}
	if c.Refresh != "" {
		if err := broadcast.ValidateCron(c.Refresh); err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return fmt.Errorf("server.cert_file and server.key_file must be set together")
	}
	if c.Server.CAFile != "" && c.Server.CertFile == "" {
		return fmt.Errorf("server.ca_file requires server.cert_file and server.key_file")
	}

	cond := c.Conditions
	if cond.BatterySaver.Enabled && !validPercent(cond.BatterySaver.ThresholdPercent) {
		return fmt.Errorf("conditions.battery_saver.threshold_percent must be within 0-100, got %v", cond.BatterySaver.ThresholdPercent)
	}
	if cond.LowStorage.Enabled {
		if cond.LowStorage.Mount == "" {
			return fmt.Errorf("conditions.low_storage.mount is required")
		}
		if !validPercent(cond.LowStorage.FreePercent) {
			return fmt.Errorf("conditions.low_storage.free_percent must be within 0-100, got %v", cond.LowStorage.FreePercent)
		}
	}
	if cond.MemoryPressure.Enabled && !validPercent(cond.MemoryPressure.UsedPercent) {
		return fmt.Errorf("conditions.memory_pressure.used_percent must be within 0-100, got %v", cond.MemoryPressure.UsedPercent)
	}
	if cond.HighLoad.Enabled && cond.HighLoad.PerCPU <= 0 {
		return fmt.Errorf("conditions.high_load.per_cpu must be positive, got %v", cond.HighLoad.PerCPU)
	}
	if cond.Overheating.Enabled && cond.Overheating.Celsius <= 0 {
		return fmt.Errorf("conditions.overheating.celsius must be positive, got %v", cond.Overheating.Celsius)
	}

	return nil
}

func validPercent(v float64) bool {
	return v >= 0 && v <= 100
}

// applyDefaults fills zero values that have a sensible default
func (c *CardsConfig) applyDefaults() {
	def := Default()
	if c.CheckerTimeout == 0 {
		c.CheckerTimeout = def.CheckerTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = def.PollInterval
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Conditions.BatterySaver.PowerSupplyDir == "" {
		c.Conditions.BatterySaver.PowerSupplyDir = def.Conditions.BatterySaver.PowerSupplyDir
	}
}

// Parse decodes a cards.yml document on top of the defaults and validates it
func Parse(data []byte) (*CardsConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Load reads and validates a cards.yml file
func Load(path string) (*CardsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path if given, otherwise cards.yml from the working
// directory when present, otherwise the defaults
func LoadOrDefault(path string) (*CardsConfig, error) {
	if path != "" {
		return Load(path)
	}
	if _, err := os.Stat(DefaultFileName); err == nil {
		return Load(DefaultFileName)
	}
	return Default(), nil
}

// DatabasePath resolves where the database lives. CARDS_DB_PATH wins, then the
// config, then ~/.cards/cards.db, then the working directory.
func (c *CardsConfig) DatabasePath() string {
	if p := os.Getenv("CARDS_DB_PATH"); p != "" {
		return p
	}
	if c.Database.Path != "" {
		return c.Database.Path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "cards.db"
	}

	dir := filepath.Join(homeDir, ".cards")
	if err := os.MkdirAll(dir, 0o755); err == nil {
		return filepath.Join(dir, "cards.db")
	}

	return "cards.db"
}
