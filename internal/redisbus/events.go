package redisbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types published by the statement service.
const (
	EventStatementSubmitted = "statement_submitted"
	EventStatementEdited    = "statement_edited"
	EventDraftSaved         = "statement_draft_saved"
)

// Source identifies this service on the bus.
const Source = "statement-builder"

// Event represents a message flowing through the Redis bus.
type Event struct {
	EventType     string         `json:"event_type"`
	Payload       map[string]any `json:"payload"`
	Source        string         `json:"source"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
}

// NewEvent stamps an event with the current time and a fresh correlation id.
func NewEvent(eventType string, payload map[string]any) *Event {
	return &Event{
		EventType:     eventType,
		Payload:       payload,
		Source:        Source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.NewString(),
	}
}

// Marshal serializes an event to JSON.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent deserializes an event from JSON bytes.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshalling event JSON: %w", err)
	}
	if e.EventType == "" {
		return nil, fmt.Errorf("event has no event_type")
	}
	return &e, nil
}
