// Package logging builds component-scoped structured loggers shared by
// both services.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

// New returns a base logger writing to stderr, tagged with service.
func New(service string) zerolog.Logger {
	return zerolog.New(os.Stderr).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Component returns a child logger scoped to a subsystem name.
func Component(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

// Session returns a child logger scoped to a single connection.
func Session(base zerolog.Logger, sessionID string) zerolog.Logger {
	return base.With().Str("session_id", sessionID).Logger()
}
