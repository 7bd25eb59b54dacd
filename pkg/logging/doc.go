// Package logging provides structured logging configuration for fieldgate.
//
// All components log through *slog.Logger instances constructed here so that
// level, format, and destination are decided in one place (the CLI), not by
// the packages doing the logging.
package logging
