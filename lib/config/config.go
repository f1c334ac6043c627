// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file the daemon reads when neither
// the --config flag nor DTXD_CONFIG is set.
const DefaultPath = "/etc/dtxd/dtxd.yaml"

// EnvVar names the environment variable that overrides the default
// configuration path.
const EnvVar = "DTXD_CONFIG"

// LevelTrace is a slog level below Debug, used for per-event logging
// on the hardware event path.
const LevelTrace = slog.Level(-8)

// Config is the daemon configuration.
type Config struct {
	// Log configures logging output.
	Log LogConfig `yaml:"log"`

	// Handler configures the external handler programs run at
	// lifecycle points.
	Handler HandlerConfig `yaml:"handler"`

	// Delay configures software-enforced delays.
	Delay DelayConfig `yaml:"delay"`

	// Journal configures the optional SQLite event journal.
	Journal JournalConfig `yaml:"journal"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	// Level is one of "trace", "debug", "info", "warn", "error".
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name onto a slog level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	switch c.Level {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("config: unknown log level %q", c.Level)
	}
}

// HandlerConfig holds the optional executable paths for the attach,
// detach, and detach-abort handlers, and the working directory all
// handler subprocesses run in. Empty paths mean no handler.
type HandlerConfig struct {
	Dir         string `yaml:"dir"`
	Attach      string `yaml:"attach"`
	Detach      string `yaml:"detach"`
	DetachAbort string `yaml:"detach_abort"`
}

// DelayConfig holds software-enforced delays.
type DelayConfig struct {
	// Attach is the pre-delay before the attach handler runs, in
	// fractional seconds.
	Attach float64 `yaml:"attach"`
}

// AttachDelay returns the attach pre-delay with millisecond
// granularity.
func (c DelayConfig) AttachDelay() time.Duration {
	return time.Duration(c.Attach*1000) * time.Millisecond
}

// JournalConfig configures the optional event journal. An empty Path
// disables the journal.
type JournalConfig struct {
	Path      string   `yaml:"path"`
	Retention Duration `yaml:"retention"`
}

// RetentionWindow returns the configured retention, defaulting to one
// week.
func (c JournalConfig) RetentionWindow() time.Duration {
	if c.Retention <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.Retention)
}

// Duration is a time.Duration that unmarshals from a YAML string in
// time.ParseDuration syntax ("2s", "168h").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return fmt.Errorf("config: duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the built-in configuration used when no file is
// present.
func Default() *Config {
	return &Config{
		Log:     LogConfig{Level: "info"},
		Handler: HandlerConfig{Dir: "/etc/dtxd"},
	}
}

// Load reads the configuration. An empty path consults DTXD_CONFIG
// and then the default location; a missing default file yields
// Default(). An explicit path that cannot be read is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		if env := os.Getenv(EnvVar); env != "" {
			path = env
			explicit = true
		} else {
			path = DefaultPath
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for problems that would only
// surface mid-operation otherwise: missing or non-executable handler
// programs, a missing working directory, a negative delay.
func (c *Config) Validate() error {
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Delay.Attach < 0 {
		return fmt.Errorf("delay.attach must not be negative (got %v)", c.Delay.Attach)
	}

	anyHandler := c.Handler.Attach != "" || c.Handler.Detach != "" || c.Handler.DetachAbort != ""

	// The working directory only matters when a handler will run in it.
	if anyHandler && c.Handler.Dir != "" {
		info, err := os.Stat(c.Handler.Dir)
		if err != nil {
			return fmt.Errorf("handler.dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("handler.dir %s is not a directory", c.Handler.Dir)
		}
	}

	handlers := []struct {
		name string
		path string
	}{
		{"handler.attach", c.Handler.Attach},
		{"handler.detach", c.Handler.Detach},
		{"handler.detach_abort", c.Handler.DetachAbort},
	}
	for _, handler := range handlers {
		if handler.path == "" {
			continue
		}
		info, err := os.Stat(handler.path)
		if err != nil {
			return fmt.Errorf("%s: %w", handler.name, err)
		}
		if info.IsDir() || info.Mode().Perm()&0111 == 0 {
			return fmt.Errorf("%s: %s is not executable", handler.name, handler.path)
		}
	}

	return nil
}
