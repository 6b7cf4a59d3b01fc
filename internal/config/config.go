package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/scienceol/devbox/internal/relay"
	"gopkg.in/yaml.v3"
)

// Environment variables read by devbox.
const (
	EnvIdleTimeout = "DEVBOX_IDLE_TIMEOUT"
	EnvRelay       = "DEVBOX_RELAY"
	EnvNoInhibit   = "DEVBOX_NO_INHIBIT"
	EnvDebug       = "DEVBOX_DEBUG"
	EnvConfigDir   = "DEVBOX_CONFIG_DIR"
)

const (
	configFileName = "config.yaml"
	envFileName    = "devbox.env"
)

type Config struct {
	// IdleTimeout and CheckInterval are in seconds; nil means unset.
	IdleTimeout   *float64 `yaml:"idle_timeout"`
	CheckInterval *float64 `yaml:"check_interval"`
	Relay         string   `yaml:"relay"`
	NoInhibit     bool     `yaml:"no_inhibit"`
	Debug         bool     `yaml:"debug"`

	// Env holds the variables of the env file. They rank below the real
	// process environment.
	Env map[string]string `yaml:"-"`

	// Mode is Relay, parsed.
	Mode relay.Mode `yaml:"-"`
}

// Flags are the command-line overrides.
type Flags struct {
	Relay     string
	NoInhibit bool
	Debug     bool
}

// Load resolves configuration from flags > env > env file > config file.
func Load(flags Flags) (*Config, error) {
	cfg := &Config{Env: map[string]string{}}
	dir := Dir()

	// 1. Load config file as base
	if data, err := os.ReadFile(filepath.Join(dir, configFileName)); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Join(dir, configFileName), err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// 2. Env file, without touching the process environment
	envPath := filepath.Join(dir, envFileName)
	if _, err := os.Stat(envPath); err == nil {
		vars, err := godotenv.Read(envPath)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", envPath, err)
		}
		cfg.Env = vars
	}

	// 3. Environment variables override both files
	if v, ok := cfg.Lookup(EnvRelay); ok && v != "" {
		cfg.Relay = v
	}
	if v, ok := cfg.Lookup(EnvNoInhibit); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s=%q: %w", EnvNoInhibit, v, err)
		}
		cfg.NoInhibit = b
	}
	if v, ok := cfg.Lookup(EnvDebug); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s=%q: %w", EnvDebug, v, err)
		}
		cfg.Debug = b
	}

	// 4. CLI flags override everything
	if flags.Relay != "" {
		cfg.Relay = flags.Relay
	}
	if flags.NoInhibit {
		cfg.NoInhibit = true
	}
	if flags.Debug {
		cfg.Debug = true
	}

	mode, err := relay.ParseMode(cfg.Relay)
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode

	if cfg.CheckInterval != nil && *cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("check_interval must be positive, got %v", *cfg.CheckInterval)
	}
	if cfg.CheckInterval != nil && !inRange(*cfg.CheckInterval) {
		return nil, fmt.Errorf("check_interval out of range: %v", *cfg.CheckInterval)
	}
	if cfg.IdleTimeout != nil && !inRange(*cfg.IdleTimeout) {
		return nil, fmt.Errorf("idle_timeout out of range: %v", *cfg.IdleTimeout)
	}

	return cfg, nil
}

// Lookup returns a variable from the process environment, falling back to
// the env file.
func (c *Config) Lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	v, ok := c.Env[key]
	return v, ok
}

// FileIdleTimeout returns idle_timeout from the config file, if set.
func (c *Config) FileIdleTimeout() (time.Duration, bool) {
	if c.IdleTimeout == nil {
		return 0, false
	}
	return floatSeconds(*c.IdleTimeout), true
}

// CheckIntervalDuration returns check_interval, or 0 when unset.
func (c *Config) CheckIntervalDuration() time.Duration {
	if c.CheckInterval == nil {
		return 0
	}
	return floatSeconds(*c.CheckInterval)
}

// Dir returns the configuration directory: $DEVBOX_CONFIG_DIR, or
// devbox under the XDG config home.
func Dir() string {
	if v := os.Getenv(EnvConfigDir); v != "" {
		return v
	}
	return filepath.Join(xdg.ConfigHome, "devbox")
}

// ParseSeconds parses a count of seconds, integer or fractional.
func ParseSeconds(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seconds %q: %w", s, err)
	}
	if !inRange(f) {
		return 0, fmt.Errorf("invalid seconds %q: out of range", s)
	}
	return floatSeconds(f), nil
}

// inRange reports whether f seconds fits in a time.Duration.
func inRange(f float64) bool {
	ns := f * float64(time.Second)
	return !math.IsNaN(ns) && ns < math.MaxInt64 && ns > math.MinInt64
}

func floatSeconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
