package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/philtim/figured/clock"
)

// Store drivers.
const (
	DriverYAML   = "yaml"
	DriverSQLite = "sqlite"
)

// StoreConfig selects where cards are persisted
type StoreConfig struct {
	Driver string `yaml:"driver" env:"FIGURED_STORE_DRIVER"`
	Path   string `yaml:"path" env:"FIGURED_STORE_PATH"`
}

// Config represents the application configuration
type Config struct {
	Store StoreConfig `yaml:"store"`

	// LocationsFile replaces the built-in city table when set. JSON files use
	// the locations.json layout; other files are read as GeoNames dumps.
	LocationsFile string `yaml:"locations_file,omitempty" env:"FIGURED_LOCATIONS_FILE"`
	// GeoNames also downloads the GeoNames cities15000 table in the background.
	GeoNames bool `yaml:"geonames" env:"FIGURED_GEONAMES"`
	// SharedCities is how many reference cities sharing the same time are
	// added along with a city the user picks.
	SharedCities int `yaml:"shared_cities" env:"FIGURED_SHARED_CITIES"`

	LogLevel string `yaml:"log_level" env:"FIGURED_LOG_LEVEL"`
	LogFile  string `yaml:"log_file,omitempty" env:"FIGURED_LOG_FILE"`

	// ListenAddr serves the HTTP API instead of the terminal UI when set.
	ListenAddr   string        `yaml:"listen_addr,omitempty" env:"FIGURED_LISTEN_ADDR"`
	TickInterval time.Duration `yaml:"tick_interval" env:"FIGURED_TICK_INTERVAL"`

	// Timezone overrides the detected system timezone.
	Timezone string `yaml:"timezone,omitempty" env:"FIGURED_TIMEZONE"`
}

// DefaultSharedCities is how many cities sharing a picked city's time join
// its card when shared_cities is not set.
const DefaultSharedCities = 3

// Default returns the configuration written on first run
func Default() Config {
	return Config{
		Store:        StoreConfig{Driver: DriverYAML},
		SharedCities: DefaultSharedCities,
		LogLevel:     "info",
		TickInterval: time.Second,
	}
}

// Load reads the configuration from ~/.config/figured/config.yaml, or from
// $FIGURED_CONFIG when set. If the file doesn't exist, it creates a default one
func Load() (*Config, error) {
	configPath := os.Getenv("FIGURED_CONFIG")
	if configPath == "" {
		var err error
		configPath, err = getConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
	}
	return LoadFrom(configPath)
}

// LoadFrom reads the configuration from path, creating a default file there
// when none exists. Environment variables override file values.
func LoadFrom(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := createDefaultConfig(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.fillPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for values the application cannot use
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverYAML, DriverSQLite:
	default:
		return fmt.Errorf("unknown store driver '%s' (want %s or %s)", c.Store.Driver, DriverYAML, DriverSQLite)
	}

	if c.SharedCities < 0 {
		return fmt.Errorf("shared_cities must not be negative, got %d", c.SharedCities)
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}

	if c.Timezone != "" {
		if _, err := clock.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
	}

	return nil
}

// fillPaths derives the state and log paths that were left empty
func (c *Config) fillPaths() error {
	if c.Store.Path != "" && c.LogFile != "" {
		return nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	if c.Store.Path == "" {
		name := "state.yaml"
		if c.Store.Driver == DriverSQLite {
			name = "state.db"
		}
		c.Store.Path = filepath.Join(homeDir, ".config", "figured", name)
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(homeDir, ".cache", "figured", "figured.log")
	}
	return nil
}

// getConfigPath returns the path to the config file
func getConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "figured", "config.yaml"), nil
}

// createDefaultConfig creates a default configuration file
func createDefaultConfig(path string) error {
	// Create the config directory if it doesn't exist
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	defaultConfig := Default()

	data, err := yaml.Marshal(&defaultConfig)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// SystemTimezone returns the device's IANA timezone name. It honours $TZ,
// then the /etc/localtime symlink, then /etc/timezone, and falls back to UTC.
//
// time.Local reports itself as "Local", which is not a usable id.
func SystemTimezone() string {
	if tz := strings.TrimPrefix(os.Getenv("TZ"), ":"); tz != "" {
		if _, err := clock.LoadLocation(tz); err == nil {
			return tz
		}
	}

	if target, err := os.Readlink("/etc/localtime"); err == nil {
		if _, name, ok := strings.Cut(target, "zoneinfo/"); ok {
			if _, err := clock.LoadLocation(name); err == nil {
				return name
			}
		}
	}

	if data, err := os.ReadFile("/etc/timezone"); err == nil {
		name := strings.TrimSpace(string(data))
		if _, err := clock.LoadLocation(name); err == nil {
			return name
		}
	}

	return "UTC"
}

// Zone returns the configured timezone override or the system timezone
func (c *Config) Zone() string {
	if c.Timezone != "" {
		return c.Timezone
	}
	return SystemTimezone()
}
