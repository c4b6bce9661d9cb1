package eventlog

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrClosed         = errors.New("event log is closed")
	ErrInvalidPayload = errors.New("invalid event payload")
)

// Event is an immutable, sequence-numbered fact recorded for one session.
type Event struct {
	SessionID string          `json:"session_id"`
	Seq       uint64          `json:"seq"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Hooks run while the log still holds its append slot, so they observe
// events in sequence order. They must not block.
type Hooks struct {
	Appended func(Event)
	Closed   func()
}
