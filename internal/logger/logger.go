package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the global logger instance. Components derive their own
// loggers from it via WithComponent / WithOutput.
var Logger zerolog.Logger

func init() {
	Logger = zerolog.New(os.Stderr).
		With().
		Timestamp().
		Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = Logger
}

// Init reconfigures the global logger. level is one of debug/info/warn/error;
// pretty switches to a human-readable console writer for interactive use.
func Init(level string, pretty bool) {
	var zlLevel zerolog.Level
	switch strings.ToLower(level) {
	case "debug":
		zlLevel = zerolog.DebugLevel
	case "info":
		zlLevel = zerolog.InfoLevel
	case "warn", "warning":
		zlLevel = zerolog.WarnLevel
	case "error":
		zlLevel = zerolog.ErrorLevel
	default:
		zlLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(zlLevel)

	var output io.Writer = os.Stderr
	if pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Logger()
	log.Logger = Logger
}

// Get returns the global logger instance.
func Get() *zerolog.Logger {
	return &Logger
}

// WithComponent returns a logger with a component field set.
func WithComponent(component string) *zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()
	return &l
}

// WithOutput returns a logger tagged with a component and the numeric
// output it belongs to. Sinks log through this so every line can be
// traced back to one output.
func WithOutput(component string, outputID int) *zerolog.Logger {
	l := Logger.With().Str("component", component).Int("output_id", outputID).Logger()
	return &l
}

// Debug logs a debug message on the global logger.
func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

// Info logs an info message on the global logger.
func Info(msg string) {
	Logger.Info().Msg(msg)
}

// Warn logs a warning message on the global logger.
func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

// Error logs an error message on the global logger.
func Error(msg string) {
	Logger.Error().Msg(msg)
}

// Fatal logs a fatal message and exits.
func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
