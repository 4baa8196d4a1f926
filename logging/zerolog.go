// Package logging adapts zerolog to identity.Logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/rs/zerolog"
)

// Format selects the output encoding
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Logger wraps a zerolog.Logger
type Logger struct {
	zl zerolog.Logger
}

var _ identity.Logger = (*Logger)(nil)

// New builds a logger writing to w. An unknown level falls back to info.
func New(w io.Writer, level string, format Format, component string) *Logger {
	if w == nil {
		w = os.Stdout
	}
	if format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	ctx := zerolog.New(w).Level(lvl).With().Timestamp()
	if component != "" {
		ctx = ctx.Str("component", component)
	}
	return &Logger{zl: ctx.Logger()}
}

// FromZerolog wraps an existing zerolog logger
func FromZerolog(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// Named returns a child logger tagged with component
func (l *Logger) Named(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger()}
}

// Zerolog exposes the underlying logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

func (l *Logger) Debug(msg string, args ...any) { emit(l.zl.Debug(), msg, args) }
func (l *Logger) Info(msg string, args ...any)  { emit(l.zl.Info(), msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { emit(l.zl.Warn(), msg, args) }
func (l *Logger) Error(msg string, args ...any) { emit(l.zl.Error(), msg, args) }

// Printf satisfies loggers that only know printf style output
func (l *Logger) Printf(format string, args ...any) {
	l.zl.Debug().Msg(fmt.Sprintf(format, args...))
}

// emit turns key/value pairs into fields. A trailing key without a value is
// kept under "extra".
func emit(ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			ev = ev.Interface("extra", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		switch v := args[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		case string:
			ev = ev.Str(key, v)
		case fmt.Stringer:
			ev = ev.Stringer(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}
