package stream

import (
	"time"

	"pulsefeed/internal/model"
)

// EventType is the wire type tag of a stream event.
type EventType string

const (
	EventConnected EventType = "connected"
	EventUpdate    EventType = "update"
	EventHeartbeat EventType = "heartbeat"
	EventError     EventType = "error"
)

// Event is one newline-delimited JSON event sent to a subscriber.
// Within a session events are strictly ordered; a single goroutine per
// session is the only writer.
type Event struct {
	Type      EventType             `json:"type"`
	SessionID string                `json:"session_id,omitempty"`
	Messages  []model.ScoredMessage `json:"messages,omitempty"`
	NewCount  int                   `json:"new_count,omitempty"`
	Error     string                `json:"error,omitempty"`
	Time      int64                 `json:"time"`
}

func newEvent(eventType EventType) Event {
	return Event{Type: eventType, Time: time.Now().Unix()}
}
