package redisbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestBus(t *testing.T) (*Bus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewBus(client, "sb", nil), mr
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventStatementSubmitted, map[string]any{"statement_id": "42"})
	if e.Source != Source || e.CorrelationID == "" || e.Timestamp.IsZero() {
		t.Errorf("event = %+v", e)
	}

	data, err := e.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	back, err := UnmarshalEvent(data)
	if err != nil {
		t.Fatalf("UnmarshalEvent: %v", err)
	}
	if back.EventType != e.EventType || back.CorrelationID != e.CorrelationID ||
		back.Payload["statement_id"] != "42" || !back.Timestamp.Equal(e.Timestamp) {
		t.Errorf("round trip = %+v", back)
	}
}

func TestUnmarshalEventRejectsGarbage(t *testing.T) {
	for _, in := range []string{"not json", `{"payload": {}}`} {
		if _, err := UnmarshalEvent([]byte(in)); err == nil {
			t.Errorf("UnmarshalEvent(%q) succeeded", in)
		}
	}
}

func TestListen(t *testing.T) {
	bus, mr := newTestBus(t)
	if err := bus.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *Event, 2)
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- bus.Listen(ctx, ready, func(_ context.Context, e *Event) error {
			received <- e
			return nil
		}, EventStatementSubmitted, EventStatementEdited)
	}()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("Listen returned early: %v", err)
	}

	// Undecodable payloads are dropped without stopping the listener.
	mr.Publish("sb:"+EventStatementEdited, "not json")

	submitted := NewEvent(EventStatementSubmitted, map[string]any{"statement_id": "7"})
	edited := NewEvent(EventStatementEdited, map[string]any{"statement_id": "7"})
	for _, e := range []*Event{submitted, edited} {
		if err := bus.Publish(ctx, e); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	for _, want := range []*Event{submitted, edited} {
		select {
		case got := <-received:
			if got.CorrelationID != want.CorrelationID || got.Payload["statement_id"] != "7" {
				t.Errorf("received %+v, want %s", got, want.EventType)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Listen returned %v on shutdown", err)
	}
}

func TestListenNeedsEventTypes(t *testing.T) {
	bus, _ := newTestBus(t)
	if err := bus.Listen(context.Background(), nil, func(context.Context, *Event) error { return nil }); err == nil {
		t.Error("expected an error without event types")
	}
}

func TestPublishUsesPrefixedChannel(t *testing.T) {
	bus, mr := newTestBus(t)
	if got := bus.channelFor(EventDraftSaved); got != "sb:statement_draft_saved" {
		t.Errorf("channel = %q", got)
	}

	mr.Close()
	if err := bus.Publish(context.Background(), NewEvent(EventDraftSaved, nil)); err == nil {
		t.Error("expected an error publishing to a stopped server")
	}
}
