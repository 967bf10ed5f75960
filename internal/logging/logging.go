// Package logging provides the shared zerolog setup used by every vlink
// component (AGV controller, master controller, transport client, daemons).
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns a component-scoped logger writing to stderr. component is
// attached to every event as a "component" field so multi-plane log output
// (agv vs mastercontrol) can be filtered downstream.
func New(component string) zerolog.Logger {
	return zerolog.New(os.Stderr).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// Nop returns a logger that discards all output, used as the default when a
// caller does not configure one explicitly.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
