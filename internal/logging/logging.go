package logging

import (
	"io"
	stdlog "log"
	"log/slog"
	"os"
	"strings"

	tlog "go.temporal.io/sdk/log"
)

const (
	EnvFormat = "LOG_FORMAT"
	EnvLevel  = "LOG_LEVEL"
)

// Init builds the process logger from LOG_FORMAT (json or text) and
// LOG_LEVEL, installs it as the slog default and routes the stdlib log
// package through it.
func Init(service string, w io.Writer) *slog.Logger {
	logger := New(service, os.Getenv(EnvFormat), os.Getenv(EnvLevel), w)
	slog.SetDefault(logger)
	stdlog.SetFlags(0)
	stdlog.SetOutput(&stdlibWriter{logger: logger})
	return logger
}

// New builds a logger without touching process globals.
func New(service, format, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With(slog.String("service", service))
}

// Temporal adapts a slog logger for the Temporal client and worker.
func Temporal(logger *slog.Logger) tlog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return tlog.NewStructuredLogger(logger.With(slog.String("source", "temporal")))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type stdlibWriter struct {
	logger *slog.Logger
}

func (w *stdlibWriter) Write(p []byte) (int, error) {
	w.logger.Info(strings.TrimRight(string(p), "\n"), slog.String("source", "stdlib"))
	return len(p), nil
}
