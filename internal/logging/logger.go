// Package logging provides structured logging for the transfer engine and CLI.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "15:04:05"

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Logger wraps zerolog. Components get their own child via Named.
type Logger struct {
	zlog zerolog.Logger
}

// NewLogger creates a human readable console logger writing to w.
func NewLogger(w io.Writer) *Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	return &Logger{zlog: zerolog.New(out).With().Timestamp().Logger()}
}

// NewDefaultCLILogger logs to stderr so stdout stays clean for command output.
func NewDefaultCLILogger() *Logger {
	return NewLogger(os.Stderr)
}

// NewLoggerWithWriter writes raw JSON lines to w, one per event.
// Tests use it to inspect levels and fields.
func NewLoggerWithWriter(w io.Writer) *Logger {
	return &Logger{zlog: zerolog.New(w).Level(zerolog.DebugLevel)}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Named returns a child logger whose events carry component=name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", name).Logger()}
}

func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zlog.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zlog.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }

// Debugf is shown only with --debug or --verbose.
func (l *Logger) Debugf(format string, args ...any) {
	l.zlog.Debug().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.zlog.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.zlog.Error().Msgf(format, args...)
}

// SetDebug switches the process-wide level between debug and info.
func SetDebug(enabled bool) {
	level := zerolog.InfoLevel
	if enabled {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

// RetryLogger adapts Logger to retryablehttp's LeveledLogger. The library
// narrates every attempt, so all of it goes to debug; the executor logs the
// outcomes that matter itself.
type RetryLogger struct {
	zlog zerolog.Logger
}

// NewRetryLogger wraps l for use as a retryablehttp logger.
func NewRetryLogger(l *Logger) *RetryLogger {
	return &RetryLogger{zlog: l.zlog.With().Str("source", "retryablehttp").Logger()}
}

func (r *RetryLogger) log(msg string, kv []any) {
	r.zlog.Debug().Fields(kv).Msg(msg)
}

func (r *RetryLogger) Error(msg string, kv ...any) { r.log(msg, kv) }
func (r *RetryLogger) Warn(msg string, kv ...any)  { r.log(msg, kv) }
func (r *RetryLogger) Info(msg string, kv ...any)  { r.log(msg, kv) }
func (r *RetryLogger) Debug(msg string, kv ...any) { r.log(msg, kv) }
