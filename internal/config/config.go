// Package config loads .safepkt.yaml and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jward/safepkt/internal/verify"
)

// FileName is the configuration file looked up at the repository root.
const FileName = ".safepkt.yaml"

const (
	DefaultSource  = "src/lib.rs"
	DefaultSources = "src/*.rs"
)

// ErrNoBackend is returned by Validate when no backend URL is configured.
var ErrNoBackend = errors.New("config: no verification backend configured")

// Backend is the verification backend base URL. In YAML it may be written
// as a single string or as a list of parts that are joined in order.
type Backend string

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (b *Backend) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*b = Backend(strings.TrimSpace(node.Value))
		return nil
	case yaml.SequenceNode:
		var parts []string
		if err := node.Decode(&parts); err != nil {
			return fmt.Errorf("config: backend parts: %w", err)
		}
		*b = Backend(strings.Join(parts, ""))
		return nil
	default:
		return fmt.Errorf("config: backend must be a string or a list of strings (line %d)", node.Line)
	}
}

// Duration is a time.Duration written as "2s", "500ms" and so on.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("config: poll_interval: %w", err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds the verification and discovery settings.
type Config struct {
	Backend      Backend  `yaml:"backend"`
	PollInterval Duration `yaml:"poll_interval"`
	MaxAttempts  int      `yaml:"max_attempts"`
	Source       string   `yaml:"source"`
	Sources      string   `yaml:"sources"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		PollInterval: Duration(verify.DefaultPollInterval),
		MaxAttempts:  verify.DefaultMaxAttempts,
		Source:       DefaultSource,
		Sources:      DefaultSources,
	}
}

// Load reads the file at path over the defaults and then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := cfg.merge(data); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if err := applyEnvironmentOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// merge decodes data into a scratch config and copies the fields the file
// actually set, so an empty key never erases a default.
func (c *Config) merge(data []byte) error {
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Backend != "" {
		c.Backend = file.Backend
	}
	if file.PollInterval > 0 {
		c.PollInterval = file.PollInterval
	}
	if file.MaxAttempts != 0 {
		c.MaxAttempts = file.MaxAttempts
	}
	if file.Source != "" {
		c.Source = file.Source
	}
	if file.Sources != "" {
		c.Sources = file.Sources
	}
	return nil
}

func applyEnvironmentOverrides(c *Config) error {
	if val := os.Getenv("SAFEPKT_BACKEND"); val != "" {
		c.Backend = Backend(val)
	}
	if val := os.Getenv("SAFEPKT_POLL_INTERVAL"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("config: SAFEPKT_POLL_INTERVAL: %w", err)
		}
		c.PollInterval = Duration(d)
	}
	if val := os.Getenv("SAFEPKT_MAX_ATTEMPTS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("config: SAFEPKT_MAX_ATTEMPTS: %w", err)
		}
		c.MaxAttempts = n
	}
	return nil
}

// Validate checks the settings needed to run a verification job.
func (c *Config) Validate() error {
	if c.Backend == "" {
		return ErrNoBackend
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive, got %s", time.Duration(c.PollInterval))
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("config: max_attempts must not be negative, got %d", c.MaxAttempts)
	}
	return nil
}

// ClientOptions translates the settings into verify.Client options.
func (c *Config) ClientOptions() []verify.Option {
	return []verify.Option{
		verify.WithPollInterval(time.Duration(c.PollInterval)),
		verify.WithMaxAttempts(c.MaxAttempts),
	}
}
