package eventlog

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

var emptyPayload = json.RawMessage(`{}`)

// Log is the append-only event history of a single session.
// Sequence numbers start at 1 and are dense: events[i].Seq == i+1.
type Log struct {
	mu        sync.Mutex
	sessionID string
	events    []Event
	closed    bool
	hooks     Hooks
	now       func() time.Time
}

func New(sessionID string, hooks Hooks) *Log {
	return &Log{
		sessionID: sessionID,
		hooks:     hooks,
		now:       time.Now,
	}
}

func (l *Log) SessionID() string {
	return l.sessionID
}

// Append records a new event and returns it with its assigned sequence number.
func (l *Log) Append(kind string, payload any) (Event, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return Event{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Event{}, ErrClosed
	}

	event := Event{
		SessionID: l.sessionID,
		Seq:       uint64(len(l.events)) + 1,
		Kind:      kind,
		Payload:   raw,
		Timestamp: l.now(),
	}
	l.events = append(l.events, event)

	if l.hooks.Appended != nil {
		l.hooks.Appended(event)
	}
	return event, nil
}

// ReadFrom returns a snapshot of every event with a sequence number greater than cursor.
func (l *Log) ReadFrom(cursor uint64) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.after(cursor)
}

// Attach calls fn with the events after cursor while holding the append slot.
// Anything fn registers to receive Appended notifications therefore continues
// exactly where the backlog ends. With fromNow set the cursor is ignored and
// the backlog is empty.
func (l *Log) Attach(cursor uint64, fromNow bool, fn func(backlog []Event, closed bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if fromNow {
		cursor = uint64(len(l.events))
	}
	fn(l.after(cursor), l.closed)
}

// Close seals the log. It reports false if the log was already closed.
func (l *Log) Close() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	l.closed = true
	if l.hooks.Closed != nil {
		l.hooks.Closed()
	}
	return true
}

func (l *Log) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Last returns the most recently assigned sequence number, 0 when empty.
func (l *Log) Last() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.events))
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *Log) after(cursor uint64) []Event {
	if cursor >= uint64(len(l.events)) {
		return nil
	}
	out := make([]Event, len(l.events)-int(cursor))
	copy(out, l.events[cursor:])
	return out
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return emptyPayload, nil
	case json.RawMessage:
		if len(p) == 0 {
			return emptyPayload, nil
		}
		if !json.Valid(p) {
			return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidPayload)
		}
		out := make(json.RawMessage, len(p))
		copy(out, p)
		return out, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return raw, nil
}
