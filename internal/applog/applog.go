// Package applog provides the operator-facing structured logger used by the
// supervisor process itself (boot messages, lifecycle transitions,
// orchestration decisions). It is distinct from internal/logsink, which
// persists each managed child process's own stdout/stderr lines verbatim.
package applog

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Config controls the global logger's level and output format.
type Config struct {
	// Level is one of trace, debug, info, warn, error. Default: info.
	Level string
	// Format is "json" or "console". Default: console.
	Format string
	Output io.Writer
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "console", Output: os.Stderr}
}

var (
	logger zerolog.Logger
	mu     sync.RWMutex
)

func init() {
	Init(DefaultConfig())
}

// Init (re)configures the global logger. Safe to call once at startup;
// concurrent calls are serialized but later callers win.
func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	var w io.Writer = cfg.Output
	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	mu.Lock()
	logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	mu.Unlock()
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug() *zerolog.Event { l := current(); return l.Debug() }
func Info() *zerolog.Event  { l := current(); return l.Info() }
func Warn() *zerolog.Event  { l := current(); return l.Warn() }
func Error() *zerolog.Event { l := current(); return l.Error() }

// With returns a child logger pre-populated with the given field, e.g. for
// tagging every log line emitted by one supervisor with its server name.
func With(key, value string) zerolog.Logger {
	return current().With().Str(key, value).Logger()
}
