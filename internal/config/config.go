package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/marcelocantos/spm/internal/logging"
	"github.com/marcelocantos/spm/internal/pipeline"
)

// Config holds the global spm configuration.
type Config struct {
	Env   EnvConfig   `yaml:"env"`
	Log   LogConfig   `yaml:"log"`
	Audit AuditConfig `yaml:"audit"`
}

// EnvConfig describes the environment pipelines are spawned with.
type EnvConfig struct {
	// Clear starts every stage from an empty environment, keeping only
	// Keep, KeepPrefixes and Vars.
	Clear        bool              `yaml:"clear"`
	Keep         []string          `yaml:"keep"`
	KeepPrefixes []string          `yaml:"keep_prefixes"`
	Vars         map[string]string `yaml:"vars"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// AuditConfig controls the run log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// overrides is the subset of the config settable from SPM_* variables.
type overrides struct {
	LogLevel     string `split_words:"true"`
	LogDev       bool   `split_words:"true"`
	AuditEnabled bool   `split_words:"true"`
	AuditPath    string `split_words:"true"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Log: LogConfig{Level: "warn"},
		Audit: AuditConfig{
			Enabled: true,
			Path:    filepath.Join(home, ".local", "share", "spm", "audit.jsonl"),
		},
	}
}

// Load reads the config from the standard location (~/.config/spm/config.yaml)
// and applies SPM_* environment overrides.
// If the file doesn't exist, the defaults are used.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config from the given path and applies SPM_*
// environment overrides.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	// envconfig only overwrites fields whose variable is set, so the
	// file values act as defaults.
	o := overrides{
		LogLevel:     cfg.Log.Level,
		LogDev:       cfg.Log.Development,
		AuditEnabled: cfg.Audit.Enabled,
		AuditPath:    cfg.Audit.Path,
	}
	if err := envconfig.Process("spm", &o); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	cfg.Log = LogConfig{Level: o.LogLevel, Development: o.LogDev}
	cfg.Audit = AuditConfig{Enabled: o.AuditEnabled, Path: o.AuditPath}

	cfg.Audit.Path = expandHome(cfg.Audit.Path)
	return cfg, nil
}

// EnvPolicy turns the env section into the policy stages are spawned with.
func (c *Config) EnvPolicy() pipeline.EnvPolicy {
	e := c.Env
	var p pipeline.EnvPolicy
	switch {
	case e.Clear:
		p = pipeline.KeepEnv(e.Keep, e.KeepPrefixes)
	default:
		p = pipeline.InheritEnv()
	}
	for k, v := range e.Vars {
		p = p.With(k, v)
	}
	return p
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:       c.Log.Level,
		Development: c.Log.Development,
	}
}

// ConfigPath returns the standard config file path.
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "spm", "config.yaml")
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, path[1:])
}
