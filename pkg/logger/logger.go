package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const (
	EMPTY   = ""
	DEBUG   = "debug"
	INFO    = "info"
	WARN    = "warn"
	ERROR   = "error"
	JSON    = "json"
	TEXT    = "text"
	SERVICE = "service"
)

// Logger keeps the key/value call style used across the services
// (log.Info("msg", "key", value)) on top of a zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

type Config struct {
	Level     string
	Format    string
	Output    io.Writer
	AddSource bool
	Service   string
}

func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Format == EMPTY {
		cfg.Format = JSON
	}

	out := cfg.Output
	if cfg.Format == TEXT {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp()
	if cfg.AddSource {
		ctx = ctx.CallerWithSkipFrameCount(3)
	}
	if cfg.Service != EMPTY {
		ctx = ctx.Str(SERVICE, cfg.Service)
	}

	return &Logger{zl: ctx.Logger()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) Debug(msg string, args ...any) {
	l.write(l.zl.Debug(), msg, args)
}

func (l *Logger) Info(msg string, args ...any) {
	l.write(l.zl.Info(), msg, args)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.write(l.zl.Warn(), msg, args)
}

func (l *Logger) Error(msg string, args ...any) {
	l.write(l.zl.Error(), msg, args)
}

// Fatal logs a critical error and exits the application with status code 1
// Use this for unrecoverable errors that prevent the application from starting or continuing
func (l *Logger) Fatal(msg string, args ...any) {
	l.write(l.zl.WithLevel(zerolog.FatalLevel), msg, args)
	os.Exit(1)
}

// With returns a child logger that always carries the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{zl: l.zl.With().Fields(args).Logger()}
}

// Zerolog exposes the underlying logger for libraries that take one directly.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

// Printf adapts the logger to printf-style callbacks such as kafka.LoggerFunc.
func (l *Logger) Printf(format string, args ...any) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *Logger) write(evt *zerolog.Event, msg string, args []any) {
	if evt == nil {
		return
	}
	if len(args) > 0 {
		evt = evt.Fields(args)
	}
	evt.Msg(msg)
}

// Errorf is Printf at error level, for error callbacks.
func (l *Logger) Errorf(format string, args ...any) {
	l.zl.Error().Msgf(format, args...)
}
