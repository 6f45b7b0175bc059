package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamSink appends events to a Redis stream.
type StreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamSink creates a sink writing to stream. When maxLen is positive
// the stream is approximately trimmed to that many entries.
func NewStreamSink(client *redis.Client, stream string, maxLen int64) *StreamSink {
	return &StreamSink{client: client, stream: stream, maxLen: maxLen}
}

// Publish appends the event with XADD.
func (s *StreamSink) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"id":      event.ID,
			"topic":   string(event.Topic),
			"at":      event.At.Format(time.RFC3339),
			"payload": string(payload),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}
