package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level aliases slog.Level so callers configure logging without
// importing log/slog themselves.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format selects the handler encoding.
type Format string

// Output formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config describes one logger.
type Config struct {
	// Level is the minimum level emitted.
	Level Level

	// Format picks the encoding; empty means text.
	Format Format

	// Output is the destination writer. Defaults to os.Stderr.
	Output io.Writer
}

// New builds a slog.Logger from cfg.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}

	if cfg.Format == FormatJSON {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// Nop returns a logger that discards everything. Components fall back
// to it when no logger is supplied, so nil checks never appear at call
// sites.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel maps a level name to a Level. Unknown names and the empty
// string mean info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ParseFormat maps a format name to a Format. Anything but json means
// text.
func ParseFormat(s string) Format {
	if strings.EqualFold(s, string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}
