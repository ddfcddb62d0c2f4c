package host

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/zeuscript/internal/core/observability/log"
)

// Config holds host configuration
type Config struct {
	// Script sources
	ScriptRoot         string        `yaml:"script_root"`
	HTTPBase           string        `yaml:"http_base"`
	MaxParallelFetches int           `yaml:"max_parallel_fetches"`
	LoadTimeout        time.Duration `yaml:"load_timeout"`

	// Scene manifest, YAML or JSON. Empty starts with an empty scene.
	Scene string `yaml:"scene"`

	// Ticks per second for Update/FixedUpdate/PostUpdate
	TickRate int `yaml:"tick_rate"`

	// Console; an empty address disables it, an empty token disables auth
	ConsoleAddr  string `yaml:"console_addr"`
	ConsoleToken string `yaml:"console_token"`

	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns default host configuration
func DefaultConfig() Config {
	return Config{
		ScriptRoot:         "scripts",
		MaxParallelFetches: 8,
		LoadTimeout:        30 * time.Second,
		TickRate:           60,
		ConsoleAddr:        "127.0.0.1:8090",
		LogLevel:           "info",
	}
}

// LoadConfig overlays the YAML file at path onto DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	if err = yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.TickRate <= 0:
		return fmt.Errorf("%w: tick_rate must be positive, got %d", ErrInvalidConfig, c.TickRate)
	case c.MaxParallelFetches < 0:
		return fmt.Errorf("%w: max_parallel_fetches must not be negative", ErrInvalidConfig)
	case c.LoadTimeout < 0:
		return fmt.Errorf("%w: load_timeout must not be negative", ErrInvalidConfig)
	case c.ScriptRoot == "" && c.HTTPBase == "":
		return fmt.Errorf("%w: one of script_root or http_base is required", ErrInvalidConfig)
	}
	return nil
}

// TickInterval is the wall time between ticks.
func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

func (c Config) Level() log.Level {
	return log.ParseLevel(c.LogLevel)
}
