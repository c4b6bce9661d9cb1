package eventbus

import (
	"context"

	"devserver/internal/eventlog"
)

// Mirror republishes appended events to an external system. Forward is
// called while the session's append slot is held and must never block.
type Mirror interface {
	Forward(event eventlog.Event)
	Close() error
}

// MirrorSubscriber reads events back from a mirror.
type MirrorSubscriber interface {
	Subscribe(ctx context.Context, sessionID string) (<-chan eventlog.Event, error)
}
