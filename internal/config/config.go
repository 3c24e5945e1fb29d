// Package config loads run settings from YAML or TOML with environment
// overrides.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/justact/internal/audit"
	"github.com/ppiankov/justact/internal/policy/builtin"
)

// CEL tunes the cel backend.
type CEL struct {
	CostLimit uint64 `yaml:"cost_limit" toml:"cost_limit" env:"JUSTACT_CEL_COST_LIMIT"`
}

// Lua tunes the lua backend.
type Lua struct {
	FactLimit int `yaml:"fact_limit" toml:"fact_limit" env:"JUSTACT_LUA_FACT_LIMIT"`
}

// Config holds everything a run can be tuned with outside the scenario.
type Config struct {
	MaxRounds    uint64              `yaml:"max_rounds" toml:"max_rounds" env:"JUSTACT_MAX_ROUNDS"`
	TracePath    string              `yaml:"trace" toml:"trace" env:"JUSTACT_TRACE"`
	SQLitePath   string              `yaml:"sqlite" toml:"sqlite" env:"JUSTACT_SQLITE"`
	LogLevel     string              `yaml:"log_level" toml:"log_level" env:"JUSTACT_LOG_LEVEL"`
	Requirements []audit.Requirement `yaml:"requirements" toml:"requirements" env:"-"`
	CEL          CEL                 `yaml:"cel" toml:"cel"`
	Lua          Lua                 `yaml:"lua" toml:"lua"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		MaxRounds:    1000,
		LogLevel:     "info",
		Requirements: audit.DefaultRequirements(),
	}
}

// Backends returns the backend options the config selects.
func (c *Config) Backends() builtin.Options {
	return builtin.Options{CELCostLimit: c.CEL.CostLimit, LuaFactLimit: c.Lua.FactLimit}
}

// DefaultPath is ~/.justact/config.yaml, or "" when there is no home.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".justact", "config.yaml")
}

// Load reads the config at path. Empty path falls back to DefaultPath.
// A missing file yields the defaults. Environment variables override
// whatever the file sets.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash is Load plus the SHA-256 of the bytes on disk. When no file
// exists the hash is that of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("failed to read config: %w", err)
		}
	}
	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	// Start with defaults, the file overwrites only specified fields
	cfg := DefaultConfig()
	if len(data) > 0 {
		if err := decode(path, data, cfg); err != nil {
			return nil, "", err
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, "", fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, "", err
	}
	return cfg, hash, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	for i, r := range c.Requirements {
		if r.Pred == "" || r.Requires == "" {
			return fmt.Errorf("config: requirement %d: pred and requires are both needed", i)
		}
	}
	if c.Lua.FactLimit < 0 {
		return fmt.Errorf("config: lua fact_limit must not be negative")
	}
	return nil
}

// DefaultYAML renders DefaultConfig as a commented YAML file.
func DefaultYAML() (string, error) {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}
	header := "# justact configuration.\n" +
		"# Every value can be overridden with a JUSTACT_* environment variable,\n" +
		"# e.g. JUSTACT_MAX_ROUNDS=50 or JUSTACT_TRACE=run.jsonl.\n\n"
	return header + string(data), nil
}
