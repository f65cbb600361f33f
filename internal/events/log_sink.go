package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes events to the log, used when no broker is configured.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{log: logger.With().Str("component", "events").Logger()}
}

func (l *LogSink) Send(_ context.Context, events []Event) (int, error) {
	for _, e := range events {
		ev := l.log.Debug().
			Str("session", e.Session).
			Int("worker", int(e.Worker)).
			Str("kind", string(e.Kind)).
			Int("step", e.Step).
			Int("size", e.Size)
		if e.Error != "" {
			ev = ev.Str("error", e.Error)
		}
		ev.Msg("formation event")
	}
	return len(events), nil
}
