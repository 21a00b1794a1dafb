/*
Package logx provides a structured logging wrapper based on zerolog.

It initializes the global logger (console output in development, JSON otherwise, at the level named by
LOG_LEVEL), hands out component loggers to the long-lived parts of the server (event loop, hub, arbiter,
SFU clients), and offers key/value helpers for one-off messages from HTTP handlers.
*/
package logx

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitGlobalLogger initializes the global zerolog instance. level is a zerolog level name; an empty
// level means debug in development and info otherwise. All logs carry a Unix timestamp and the caller.
func InitGlobalLogger(isDevelopment bool, level string) error {
	return initLogger(os.Stdout, isDevelopment, level)
}

func initLogger(out io.Writer, isDevelopment bool, level string) error {
	lvl := zerolog.InfoLevel
	if isDevelopment {
		lvl = zerolog.DebugLevel
	}
	if level != "" {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if isDevelopment {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(out).Level(lvl).With().Timestamp().Caller().Logger()
	return nil
}

// Logger returns a pointer to the global zerolog.Logger instance.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// For returns a child logger tagged with the given component name.
func For(component string) zerolog.Logger {
	return Logger().With().Str("component", component).Logger()
}

// checkFields validates that the variadic fields parameter has an even number (key-value pairs).
// If the count is odd, it logs a warning and returns nil to prevent zerolog from panicking.
func checkFields(level zerolog.Level, fields []any) []any {
	if len(fields)%2 != 0 {
		Logger().Warn().
			Int("fields_count", len(fields)).
			Str("log_level", level.String()).
			Msgf("Logx call received odd number of fields: %v. Fields ignored.", fields)
		return nil
	}
	return fields
}

// emit writes one event two frames above the exported helper.
func emit(event *zerolog.Event, level zerolog.Level, err error, msg string, fields []any) {
	if err != nil {
		event = event.Err(err)
	}
	event.Fields(checkFields(level, fields)).CallerSkipFrame(2).Msg(msg)
}

// Debug records a message at the Debug level with optional key-value fields.
func Debug(msg string, fields ...any) {
	emit(Logger().Debug(), zerolog.DebugLevel, nil, msg, fields)
}

// Info records a message at the Info level with optional key-value fields.
func Info(msg string, fields ...any) {
	emit(Logger().Info(), zerolog.InfoLevel, nil, msg, fields)
}

// Warn records a message at the Warn level with optional key-value fields.
func Warn(msg string, fields ...any) {
	emit(Logger().Warn(), zerolog.WarnLevel, nil, msg, fields)
}

// Error records err and a message at the Error level with optional key-value fields.
func Error(err error, msg string, fields ...any) {
	emit(Logger().Error(), zerolog.ErrorLevel, err, msg, fields)
}

// Fatal records err at the Fatal level and exits the process with status 1. The SFU wedge
// path relies on this to get the server restarted by its supervisor.
func Fatal(err error, msg string, fields ...any) {
	emit(Logger().Fatal(), zerolog.FatalLevel, err, msg, fields)
}
