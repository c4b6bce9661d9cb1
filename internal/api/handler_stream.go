package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"devserver/internal/eventbus"
	"devserver/internal/monitor"
	"devserver/internal/service"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

const (
	sseEventError  = service.KindError
	sseEventPing   = service.KindPing
	sseEventClosed = service.KindSessionClosed
)

type StreamHandler struct {
	svc       *service.Service
	heartbeat time.Duration
	hijacked  connTracker
}

func NewStreamHandler(svc *service.Service, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &StreamHandler{svc: svc, heartbeat: heartbeat}
}

// StreamEvents GET /event?session={id}&cursor={n}
// Pushes the session's events as server-sent events. Each block carries the
// sequence number as its id, so a reconnecting EventSource resumes through
// Last-Event-ID without gaps or duplicates.
func (h *StreamHandler) StreamEvents(c *gin.Context) {
	sub, ok := h.subscribe(c)
	if !ok {
		return
	}
	defer h.svc.Unsubscribe(sub)

	start := time.Now()
	defer func() { monitor.StreamDuration.Observe(time.Since(start).Seconds()) }()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	// The stream outlives the server-wide read and write timeouts.
	rc := http.NewResponseController(c.Writer)
	if err := rc.SetReadDeadline(time.Time{}); err != nil {
		slog.Warn("Failed to disable read deadline for SSE", "error", err)
	}
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		slog.Warn("Failed to disable write deadline for SSE", "error", err)
	}

	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		waitCtx, cancel := context.WithTimeout(ctx, h.heartbeat)
		event, err := sub.Next(waitCtx)
		cancel()

		switch {
		case err == nil:
			c.Render(-1, sse.Event{
				Id:    strconv.FormatUint(event.Seq, 10),
				Event: event.Kind,
				Data:  toEventResponse(event),
			})
			return true

		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			c.SSEvent(sseEventPing, "")
			return true

		case errors.Is(err, eventbus.ErrSessionClosed):
			c.SSEvent(sseEventClosed, StreamEnd{SessionID: sub.SessionID, Reason: err.Error()})
			return false

		case errors.Is(err, eventbus.ErrOverflow), errors.Is(err, eventbus.ErrShutdown):
			c.SSEvent(sseEventError, StreamEnd{SessionID: sub.SessionID, Reason: err.Error()})
			return false

		default:
			// Client went away.
			return false
		}
	})
}

// subscribe resolves the session and cursor of a stream request. On failure
// it has already written the error response.
func (h *StreamHandler) subscribe(c *gin.Context) (*eventbus.Subscriber, bool) {
	sessionID := c.Query("session")
	if sessionID == "" {
		respondErrorWithDetails(c, http.StatusBadRequest, ErrInvalidRequest, "session query parameter required")
		return nil, false
	}

	cursor, err := parseCursor(c.Query("cursor"), c.GetHeader("Last-Event-ID"))
	if err != nil {
		respondErrorWithDetails(c, http.StatusBadRequest, ErrInvalidRequest, err.Error())
		return nil, false
	}

	sub, err := h.svc.Subscribe(c.Request.Context(), sessionID, cursor)
	if err != nil {
		respondServiceError(c, err)
		return nil, false
	}
	return sub, true
}

// parseCursor prefers the explicit query value over the Last-Event-ID header.
// Neither present means "only new events".
func parseCursor(query, lastEventID string) (*uint64, error) {
	raw := query
	if raw == "" {
		raw = lastEventID
	}
	if raw == "" {
		return nil, nil
	}

	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, errors.New("cursor must be a non-negative integer")
	}
	return &n, nil
}
