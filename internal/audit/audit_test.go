package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestNewEventAssignsUniqueIDs(t *testing.T) {
	at := time.Unix(1000, 0)
	a := NewEvent(TopicStart, map[string]any{"owner": "alice"}, at)
	b := NewEvent(TopicStart, map[string]any{"owner": "alice"}, at)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
	if !a.At.Equal(at) {
		t.Errorf("At = %v, want %v", a.At, at)
	}
}

func TestBuffer(t *testing.T) {
	var buf Buffer
	buf.Add(NewEvent(TopicPackageSet, nil, time.Now()))
	buf.Add(NewEvent(TopicGrant, nil, time.Now()))

	events := buf.Events()
	if len(events) != 2 || events[0].Topic != TopicPackageSet || events[1].Topic != TopicGrant {
		t.Fatalf("unexpected events: %+v", events)
	}

	buf.Reset()
	if len(buf.Events()) != 0 {
		t.Fatal("expected empty buffer after reset")
	}
}

func TestLogSink(t *testing.T) {
	var out bytes.Buffer
	sink := NewLogSink(zerolog.New(&out))

	event := NewEvent(TopicGrant, map[string]any{
		"owner":     "alice",
		"order_id":  uint64(2),
		"remaining": uint64(7200),
	}, time.Unix(1000, 0))
	if err := sink.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(out.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["topic"] != "grant" || line["owner"] != "alice" || line["component"] != "audit" {
		t.Errorf("unexpected log line: %s", out.String())
	}
	if line["remaining"] != float64(7200) {
		t.Errorf("expected remaining 7200, got %v", line["remaining"])
	}
}

func TestStreamSink(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sink := NewStreamSink(client, "events", 100)
	event := NewEvent(TopicPurchaseCreated, map[string]any{
		"owner":      "alice",
		"package_id": uint32(1),
		"order_id":   uint64(1),
		"price":      uint64(10),
	}, time.Unix(1000, 0))

	ctx := context.Background()
	if err := sink.Publish(ctx, event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	entries, err := client.XRange(ctx, "events", "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	values := entries[0].Values
	if values["topic"] != "purchase_created" || values["id"] != event.ID {
		t.Errorf("unexpected entry: %+v", values)
	}
	if payload, _ := values["payload"].(string); !strings.Contains(payload, `"price":10`) {
		t.Errorf("unexpected payload: %v", values["payload"])
	}
}
