package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewWithLevel returns a structured logger with secret redaction at the
// named level. Empty or unknown levels fall back to info.
func NewWithLevel(level string) *slog.Logger {
	return newLogger(os.Stderr, parseLevel(level))
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func redact(_ []string, a slog.Attr) slog.Attr {
	if isSecretKey(a.Key) {
		a.Value = slog.StringValue("[redacted]")
	}
	return a
}

func isSecretKey(k string) bool {
	k = strings.ToLower(k)
	return strings.Contains(k, "token") || strings.Contains(k, "secret") || strings.Contains(k, "key") || strings.Contains(k, "pass")
}
