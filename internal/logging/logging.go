// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "JUSTACT_LOG_LEVEL"
	EnvLogNoColor = "JUSTACT_LOG_NOCOLOR"
	EnvLogJSON    = "JUSTACT_LOG_JSON"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config is the resolved logger setup.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	JSON      bool
}

var (
	configureOnce sync.Once
	root          = zerolog.Nop()
)

func ConfigureRuntime() {
	Configure(ProfileRuntime, os.Stderr, "")
}

func ConfigureTests() {
	Configure(ProfileTest, io.Discard, "")
}

// Configure builds the root logger once. level, when valid, wins over the
// profile default; the environment wins over both.
func Configure(profile Profile, w io.Writer, level string) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		if lvl, ok := parseLevel(level); ok {
			cfg.Level = lvl
		}
		applyEnvOverrides(&cfg)
		root = New(w, cfg)
	})
}

// Logger returns the root logger, or a no-op logger before Configure.
func Logger() zerolog.Logger {
	return root
}

// New builds a logger writing to w.
func New(w io.Writer, cfg Config) zerolog.Logger {
	if !cfg.JSON {
		w = zerolog.ConsoleWriter{Out: w, NoColor: cfg.NoColor, TimeFormat: time.TimeOnly}
	}
	ctx := zerolog.New(w).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func defaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{Level: zerolog.DebugLevel, NoColor: true}
	default:
		return Config{Level: zerolog.InfoLevel, Timestamp: true}
	}
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogJSON)); ok {
		cfg.JSON = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
