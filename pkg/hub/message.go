// Package hub fans recorder events out to websocket clients using a
// channel-based broadcast loop.
package hub

import (
	"encoding/json"
	"time"
)

// EventType names the kind of payload carried by an Event.
type EventType string

const (
	// EventMetrics carries a capture.Metrics snapshot, sent every pump tick.
	EventMetrics EventType = "metrics"
	// EventState is sent when the recorder changes state.
	EventState EventType = "state"
	// EventExport is sent when an export finishes.
	EventExport EventType = "export"
)

// Event is the JSON envelope written to clients.
type Event struct {
	Type EventType `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// Message is an encoded event ready to write to a socket.
type Message []byte

func encode(typ EventType, data any, now time.Time) (Message, error) {
	return json.Marshal(Event{Type: typ, Time: now, Data: data})
}
