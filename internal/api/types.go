package api

import (
	"encoding/json"
	"time"

	"devserver/internal/eventlog"
	"devserver/internal/session"
)

type CreateSessionRequest struct {
	Metadata map[string]any `json:"metadata"`
}

type AppendEventRequest struct {
	Kind    string          `json:"kind" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

type SessionResponse struct {
	ID        string         `json:"id"`
	Status    string         `json:"status"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt string         `json:"created_at"`
	ClosedAt  string         `json:"closed_at,omitempty"`
}

type EventResponse struct {
	SessionID string          `json:"session_id"`
	Seq       uint64          `json:"seq"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// StreamFrame is one WebSocket message. ID is empty for control frames.
type StreamFrame struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
	Data any    `json:"data"`
}

// StreamEnd is the data of the terminal frame of a stream.
type StreamEnd struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

func toSessionResponse(s *session.Session) SessionResponse {
	metadata := s.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return SessionResponse{
		ID:        s.ID,
		Status:    string(s.Status),
		Metadata:  metadata,
		CreatedAt: formatTime(s.CreatedAt),
		ClosedAt:  formatTime(s.ClosedAt),
	}
}

func toEventResponse(e eventlog.Event) EventResponse {
	return EventResponse{
		SessionID: e.SessionID,
		Seq:       e.Seq,
		Kind:      e.Kind,
		Payload:   e.Payload,
		Timestamp: formatTime(e.Timestamp),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}
