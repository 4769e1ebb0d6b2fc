package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/philtim/figured/config"
)

// isolate points HOME at a temp dir and clears the FIGURED_* overrides.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"FIGURED_CONFIG", "FIGURED_STORE_DRIVER", "FIGURED_STORE_PATH",
		"FIGURED_LOCATIONS_FILE", "FIGURED_GEONAMES", "FIGURED_SHARED_CITIES",
		"FIGURED_LOG_LEVEL", "FIGURED_LOG_FILE", "FIGURED_LISTEN_ADDR",
		"FIGURED_TICK_INTERVAL", "FIGURED_TIMEZONE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return home
}

// TestLoad_createsDefault verifies that a missing config file is written with
// defaults and derived paths are filled in.
func TestLoad_createsDefault(t *testing.T) {
	home := isolate(t)

	cfg, err := config.Load()

	require.NoError(t, err)
	require.FileExists(t, filepath.Join(home, ".config", "figured", "config.yaml"))
	require.Equal(t, config.DriverYAML, cfg.Store.Driver)
	require.Equal(t, filepath.Join(home, ".config", "figured", "state.yaml"), cfg.Store.Path)
	require.Equal(t, filepath.Join(home, ".cache", "figured", "figured.log"), cfg.LogFile)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, time.Second, cfg.TickInterval)
	require.Equal(t, config.DefaultSharedCities, cfg.SharedCities)
}

// TestLoadFrom_file verifies values read from YAML.
func TestLoadFrom_file(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: sqlite
shared_cities: 0
log_level: debug
tick_interval: 5s
timezone: Europe/Vienna
geonames: true
`), 0644))

	cfg, err := config.LoadFrom(path)

	require.NoError(t, err)
	require.Equal(t, config.DriverSQLite, cfg.Store.Driver)
	require.Equal(t, filepath.Join(home, ".config", "figured", "state.db"), cfg.Store.Path)
	require.Zero(t, cfg.SharedCities, "an explicit 0 turns shared cities off")
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 5*time.Second, cfg.TickInterval)
	require.True(t, cfg.GeoNames)
	require.Equal(t, "Europe/Vienna", cfg.Zone())
}

// TestLoadFrom_envOverrides verifies that FIGURED_* variables win over the file.
func TestLoadFrom_envOverrides(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: yaml\nshared_cities: 1\n"), 0644))

	t.Setenv("FIGURED_STORE_DRIVER", "sqlite")
	t.Setenv("FIGURED_STORE_PATH", "/tmp/figured-test.db")
	t.Setenv("FIGURED_SHARED_CITIES", "4")
	t.Setenv("FIGURED_LISTEN_ADDR", "127.0.0.1:7777")
	t.Setenv("FIGURED_TICK_INTERVAL", "250ms")

	cfg, err := config.LoadFrom(path)

	require.NoError(t, err)
	require.Equal(t, config.DriverSQLite, cfg.Store.Driver)
	require.Equal(t, "/tmp/figured-test.db", cfg.Store.Path)
	require.Equal(t, 4, cfg.SharedCities)
	require.Equal(t, "127.0.0.1:7777", cfg.ListenAddr)
	require.Equal(t, 250*time.Millisecond, cfg.TickInterval)
}

// TestLoadFrom_invalid verifies that Validate rejects unusable values and
// names the offending field.
func TestLoadFrom_invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"driver", "store:\n  driver: postgres\n", "store driver"},
		{"shared cities", "shared_cities: -1\n", "shared_cities"},
		{"tick", "tick_interval: 0s\n", "tick_interval"},
		{"timezone", "timezone: Mars/Olympus\n", "timezone"},
		{"malformed", "store: [\n", "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))

			_, err := config.LoadFrom(path)

			require.Error(t, err)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

// TestSystemTimezone_fromTZ verifies that $TZ is honoured when it names a
// real zone.
func TestSystemTimezone_fromTZ(t *testing.T) {
	t.Setenv("TZ", "Asia/Tokyo")
	require.Equal(t, "Asia/Tokyo", config.SystemTimezone())

	t.Setenv("TZ", ":America/Denver")
	require.Equal(t, "America/Denver", config.SystemTimezone())
}
