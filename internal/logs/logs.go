// Package logs configures the process-wide structured logger.
package logs

import (
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// LevelNone disables logging entirely; higher than slog.LevelError so every
// record is filtered out.
const LevelNone = slog.Level(12)

var logLevel string

func getLevelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none", "":
		return LevelNone
	default:
		return LevelNone
	}
}

// NewLogger builds a tint-colored logger writing to stderr, matching ssoctl's
// interactive CLI output.
func NewLogger() *slog.Logger {
	w := os.Stderr
	handler := tint.NewHandler(w, &tint.Options{
		Level:   getLevelFromString(logLevel),
		NoColor: !isatty.IsTerminal(w.Fd()),
	})
	return slog.New(handler)
}

// NewFileLogger builds a JSON logger appending to path, used for the
// AWS_SSO_CREDENTIAL_PROCESS_DEBUG log file where structured, greppable
// output matters more than color.
func NewFileLogger(path string) (*slog.Logger, func() error, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, err
	}
	handler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: getLevelFromString(logLevel)})
	return slog.New(handler), f.Close, nil
}

// SetLogLevel sets the process-wide log level string consulted by NewLogger/NewFileLogger.
func SetLogLevel(level string) {
	logLevel = level
}

// ConfigureDefaults installs the default slog logger for the process.
func ConfigureDefaults(level string) {
	SetLogLevel(level)
	slog.SetDefault(NewLogger())
}

// WithComponent returns a child logger tagged with the originating component.
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}
