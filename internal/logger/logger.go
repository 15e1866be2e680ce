// Package logger configures the process-wide structured logger.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the global logger instance.
var Log zerolog.Logger

// Initialize sets up the global logger with configuration.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "legacy-use-gateway").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

// Orchestrator creates a logger for the orchestrator adapter.
func Orchestrator() *zerolog.Logger {
	l := Log.With().Str("component", "orchestrator").Logger()
	return &l
}

// Pool creates a logger for the container pool.
func Pool() *zerolog.Logger {
	l := Log.With().Str("component", "pool").Logger()
	return &l
}

// Lifecycle creates a logger for the session lifecycle manager.
func Lifecycle() *zerolog.Logger {
	l := Log.With().Str("component", "lifecycle").Logger()
	return &l
}

// Gateway creates a logger for the WebSocket gateway endpoints.
func Gateway() *zerolog.Logger {
	l := Log.With().Str("component", "gateway").Logger()
	return &l
}

// Bridge creates a logger for the RFB bridge.
func Bridge() *zerolog.Logger {
	l := Log.With().Str("component", "bridge").Logger()
	return &l
}

// Health creates a logger for the health monitor.
func Health() *zerolog.Logger {
	l := Log.With().Str("component", "health").Logger()
	return &l
}

// Database creates a logger for session-store events.
func Database() *zerolog.Logger {
	l := Log.With().Str("component", "store").Logger()
	return &l
}

// HTTP creates a logger for HTTP request events.
func HTTP() *zerolog.Logger {
	l := Log.With().Str("component", "http").Logger()
	return &l
}
