// Package telemetry provides concrete logging backends for
// reactor.Logger. The core reactor and bufferevent packages never import
// a logging library directly (see reactor/logging.go's Logger seam);
// this package supplies the one adapter go-reactor ships out of the box,
// standardizing on zerolog as a backend.
package telemetry

import "github.com/rs/zerolog"

// Zerolog adapts a zerolog.Logger to reactor.Logger (and, by the same
// three-method shape, bufferevent.BufferEvent.SetLogger). The zero value
// is not useful; construct with NewZerolog.
type Zerolog struct {
	z zerolog.Logger
}

// NewZerolog wraps z as a reactor.Logger/bufferevent logger.
func NewZerolog(z zerolog.Logger) *Zerolog {
	return &Zerolog{z: z}
}

// Debugf logs at zerolog's debug level.
func (l *Zerolog) Debugf(format string, args ...any) {
	l.z.Debug().Msgf(format, args...)
}

// Warnf logs at zerolog's warn level.
func (l *Zerolog) Warnf(format string, args ...any) {
	l.z.Warn().Msgf(format, args...)
}

// Errorf logs at zerolog's error level.
func (l *Zerolog) Errorf(format string, args ...any) {
	l.z.Error().Msgf(format, args...)
}
