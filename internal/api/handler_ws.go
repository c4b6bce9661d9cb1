package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"devserver/internal/eventbus"
	"devserver/internal/monitor"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	// Same permissive policy as CORS.
	CheckOrigin: func(*http.Request) bool { return true },
}

// StreamEventsWS GET /event/ws?session={id}&cursor={n}
// The WebSocket flavour of StreamEvents: one JSON StreamFrame per event,
// followed by a terminal frame and a close message.
func (h *StreamHandler) StreamEventsWS(c *gin.Context) {
	if !h.hijacked.add() {
		respondError(c, http.StatusServiceUnavailable, eventbus.ErrShutdown)
		return
	}
	defer h.hijacked.done()

	sub, ok := h.subscribe(c)
	if !ok {
		return
	}
	defer h.svc.Unsubscribe(sub)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		slog.Warn("WebSocket upgrade failed", "session_id", sub.SessionID, "error", err)
		return
	}
	defer conn.Close()

	start := time.Now()
	defer func() { monitor.StreamDuration.Observe(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reader: the client never sends data, but reading is what surfaces
	// close frames and dead connections.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		waitCtx, waitCancel := context.WithTimeout(ctx, h.heartbeat)
		event, err := sub.Next(waitCtx)
		waitCancel()

		switch {
		case err == nil:
			frame := StreamFrame{
				ID:   strconv.FormatUint(event.Seq, 10),
				Type: event.Kind,
				Data: toEventResponse(event),
			}
			if !writeFrame(conn, frame) {
				return
			}

		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}

		case errors.Is(err, eventbus.ErrSessionClosed):
			writeFrame(conn, StreamFrame{Type: sseEventClosed, Data: StreamEnd{SessionID: sub.SessionID, Reason: err.Error()}})
			closeWS(conn, websocket.CloseNormalClosure, err.Error())
			return

		case errors.Is(err, eventbus.ErrOverflow):
			writeFrame(conn, StreamFrame{Type: sseEventError, Data: StreamEnd{SessionID: sub.SessionID, Reason: err.Error()}})
			closeWS(conn, websocket.ClosePolicyViolation, err.Error())
			return

		case errors.Is(err, eventbus.ErrShutdown):
			writeFrame(conn, StreamFrame{Type: sseEventError, Data: StreamEnd{SessionID: sub.SessionID, Reason: err.Error()}})
			closeWS(conn, websocket.CloseGoingAway, err.Error())
			return

		default:
			return
		}
	}
}

// connTracker counts handlers whose connection has left net/http's
// bookkeeping. Once wait has been called no new ones are admitted.
type connTracker struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	closing bool
}

func (t *connTracker) add() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing {
		return false
	}
	t.wg.Add(1)
	return true
}

func (t *connTracker) done() {
	t.wg.Done()
}

func (t *connTracker) wait(ctx context.Context) error {
	t.mu.Lock()
	t.closing = true
	t.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeFrame(conn *websocket.Conn, frame StreamFrame) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return false
	}
	return conn.WriteJSON(frame) == nil
}

func closeWS(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
