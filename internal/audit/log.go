package audit

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// LogSink writes events to a zerolog logger.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink that logs every event at Info.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "audit").Logger()}
}

// Publish logs the event.
func (s *LogSink) Publish(_ context.Context, event Event) error {
	e := s.logger.Info().
		Str("event_id", event.ID).
		Str("topic", string(event.Topic)).
		Time("at", event.At)
	for k, v := range event.Payload {
		switch val := v.(type) {
		case string:
			e = e.Str(k, val)
		case uint64:
			e = e.Uint64(k, val)
		case uint32:
			e = e.Uint32(k, val)
		default:
			e = e.Str(k, fmt.Sprint(val))
		}
	}
	e.Msg("audit event")
	return nil
}
