package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultLimit     = 20
	DefaultMaxLimit  = 50
	DefaultBatchSize = 4
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Stream StreamConfig `yaml:"stream"`
	Worker WorkerConfig `yaml:"worker"`
	Check  CheckConfig  `yaml:"check"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RateLimit      RateLimit     `yaml:"rate_limit"`
}

// RateLimit bounds how fast new streams may be opened. A zero RPS disables
// the limiter.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type StreamConfig struct {
	// Mode selects the default producer: "inprocess" or "external".
	Mode             string `yaml:"mode"`
	DefaultLimit     int    `yaml:"default_limit"`
	MaxLimit         int    `yaml:"max_limit"`
	DefaultBatchSize int    `yaml:"default_batch_size"`
	MaxBatchSize     int    `yaml:"max_batch_size"`
	// ListMaxLimit caps the buffered /api/perfect/list endpoint.
	ListMaxLimit int `yaml:"list_max_limit"`
}

type WorkerConfig struct {
	Command      string        `yaml:"command"`
	Args         []string      `yaml:"args"`
	Env          []string      `yaml:"env"`
	KillGrace    time.Duration `yaml:"kill_grace"`
	MaxLineBytes int           `yaml:"max_line_bytes"`
}

type CheckConfig struct {
	// MaxDigits bounds the decimal length of n accepted by /api/perfect/check.
	MaxDigits int `yaml:"max_digits"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "127.0.0.1",
			WriteTimeout: 30 * time.Second,
			RateLimit: RateLimit{
				RPS:   5,
				Burst: 10,
			},
		},
		Stream: StreamConfig{
			Mode:             "inprocess",
			DefaultLimit:     DefaultLimit,
			MaxLimit:         DefaultMaxLimit,
			DefaultBatchSize: DefaultBatchSize,
			MaxBatchSize:     64,
			ListMaxLimit:     20,
		},
		Worker: WorkerConfig{
			Command:      "perfect-worker",
			KillGrace:    2 * time.Second,
			MaxLineBytes: 4 << 20,
		},
		Check: CheckConfig{
			MaxDigits: 5000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to the defaults when the
// file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Stream.Mode {
	case "inprocess", "external":
	default:
		errs = append(errs, fmt.Errorf("stream.mode must be inprocess or external, got %q", c.Stream.Mode))
	}
	if c.Stream.DefaultLimit < 0 {
		errs = append(errs, errors.New("stream.default_limit must not be negative"))
	}
	if c.Stream.MaxLimit > 0 && c.Stream.DefaultLimit > c.Stream.MaxLimit {
		errs = append(errs, fmt.Errorf("stream.default_limit %d exceeds stream.max_limit %d", c.Stream.DefaultLimit, c.Stream.MaxLimit))
	}
	if c.Stream.DefaultBatchSize < 1 {
		errs = append(errs, errors.New("stream.default_batch_size must be at least 1"))
	}
	if c.Stream.MaxBatchSize < c.Stream.DefaultBatchSize {
		errs = append(errs, errors.New("stream.max_batch_size must be at least stream.default_batch_size"))
	}
	if c.Stream.Mode == "external" && strings.TrimSpace(c.Worker.Command) == "" {
		errs = append(errs, errors.New("worker.command is required in external mode"))
	}
	if c.Server.RateLimit.RPS < 0 || c.Server.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("server.rate_limit values must not be negative"))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LogLevel parses Log.Level ("debug", "info", "warn", "error").
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// ClampLimit applies the stream defaults to a requested result limit. A
// negative request means "use the default"; zero is honored.
func (c *Config) ClampLimit(requested int) int {
	if requested < 0 {
		requested = c.Stream.DefaultLimit
	}
	if c.Stream.MaxLimit > 0 && requested > c.Stream.MaxLimit {
		return c.Stream.MaxLimit
	}
	return requested
}

// ClampBatchSize keeps a requested batch size within [1, MaxBatchSize]. Zero
// or negative means "use the default".
func (c *Config) ClampBatchSize(requested int) int {
	if requested < 1 {
		requested = c.Stream.DefaultBatchSize
	}
	if requested > c.Stream.MaxBatchSize {
		return c.Stream.MaxBatchSize
	}
	return requested
}
