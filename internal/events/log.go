package events

import (
	"github.com/rs/zerolog"
)

// LogSink writes events to a logger at info level.
type LogSink struct {
	Logger zerolog.Logger
}

// Publish implements Sink.
func (s LogSink) Publish(ev Event) {
	e := s.Logger.Info().Str("event", string(ev.Kind)).Uint64("height", ev.Height)
	if !ev.Hash.IsZero() {
		e = e.Str("hash", ev.Hash.String())
	}
	if !ev.Operator.IsZero() {
		e = e.Str("operator", ev.Operator.String())
	}
	if ev.Amount != 0 {
		e = e.Uint64("amount", ev.Amount)
	}
	e.Msg("bridge event")
}
