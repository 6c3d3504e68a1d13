package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Scheduler SchedulerConfig `toml:"scheduler" yaml:"scheduler"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
	Stress    StressConfig    `toml:"stress" yaml:"stress"`
}

type SchedulerConfig struct {
	Executor    string        `toml:"executor" yaml:"executor"`         // "single" or "parallel"
	Workers     int           `toml:"workers" yaml:"workers"`           // 0 = GOMAXPROCS
	ApplyPolicy string        `toml:"apply_policy" yaml:"apply_policy"` // "boundary" or "immediate"
	Ambiguity   string        `toml:"ambiguity" yaml:"ambiguity"`       // "ignore", "warn" or "error"
	TickRate    time.Duration `toml:"tick_rate" yaml:"tick_rate"`       // 0 = run frames back to back
}

type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"` // "json" or "console"
}

type StressConfig struct {
	Entities       int           `toml:"entities" yaml:"entities"`
	Duration       time.Duration `toml:"duration" yaml:"duration"`
	Profile        string        `toml:"profile" yaml:"profile"` // "cpu", "mem" or "off"
	GCPauseMetrics bool          `toml:"gc_pause_metrics" yaml:"gc_pause_metrics"`
	Seed           int64         `toml:"seed" yaml:"seed"`
}

// Load reads a TOML or YAML file, chosen by extension, over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read config %s", path)
	}
	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	checks := []struct {
		field, value string
		allowed      []string
	}{
		{"scheduler.executor", c.Scheduler.Executor, []string{"single", "parallel"}},
		{"scheduler.apply_policy", c.Scheduler.ApplyPolicy, []string{"boundary", "immediate"}},
		{"scheduler.ambiguity", c.Scheduler.Ambiguity, []string{"ignore", "warn", "error"}},
		{"logging.format", c.Logging.Format, []string{"json", "console"}},
		{"stress.profile", c.Stress.Profile, []string{"cpu", "mem", "off"}},
	}
	for _, check := range checks {
		if !slices.Contains(check.allowed, check.value) {
			return eris.Errorf("%s: unknown value %q (want one of %s)", check.field, check.value, strings.Join(check.allowed, ", "))
		}
	}
	if c.Scheduler.Workers < 0 {
		return eris.Errorf("scheduler.workers: must not be negative, got %d", c.Scheduler.Workers)
	}
	if c.Stress.Entities < 0 {
		return eris.Errorf("stress.entities: must not be negative, got %d", c.Stress.Entities)
	}
	return nil
}

// Defaults returns the configuration used when no file is given.
func Defaults() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			Executor:    "parallel",
			Workers:     0,
			ApplyPolicy: "boundary",
			Ambiguity:   "warn",
			TickRate:    0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Stress: StressConfig{
			Entities: 10000,
			Duration: 10 * time.Second,
			Profile:  "off",
			Seed:     1,
		},
	}
}
