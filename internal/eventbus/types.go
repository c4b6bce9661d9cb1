package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"devserver/internal/eventlog"

	"github.com/google/uuid"
)

var (
	ErrOverflow      = errors.New("subscriber queue overflow")
	ErrShutdown      = errors.New("server shutting down")
	ErrSessionClosed = errors.New("session closed")
	ErrUnsubscribed  = errors.New("unsubscribed")
)

// DefaultQueueSize bounds the live events buffered per subscriber.
const DefaultQueueSize = 256

// Subscriber is one live consumer of a session's events. It first yields the
// replayed backlog, then live events in sequence order, then a terminal error.
type Subscriber struct {
	ID        string
	SessionID string
	CreatedAt time.Time

	// after is the resume cursor; live events at or below it are skipped
	// when the cursor points past the end of the log.
	after   uint64
	backlog []eventlog.Event
	queue   chan eventlog.Event
	done    chan struct{}

	once sync.Once
	err  error
}

func newSubscriber(sessionID string, queueSize int) *Subscriber {
	return &Subscriber{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		CreatedAt: time.Now(),
		queue:     make(chan eventlog.Event, queueSize),
		done:      make(chan struct{}),
	}
}

// Next blocks until the next event is available, the subscription ends or ctx is done.
// Once the subscription has ended every call returns the same terminal error.
func (s *Subscriber) Next(ctx context.Context) (eventlog.Event, error) {
	select {
	case <-s.done:
		if !s.drains() {
			return eventlog.Event{}, s.err
		}
	default:
	}

	if len(s.backlog) > 0 {
		ev := s.backlog[0]
		s.backlog = s.backlog[1:]
		return ev, nil
	}

	select {
	case ev := <-s.queue:
		return ev, nil
	case <-s.done:
		if s.drains() {
			select {
			case ev := <-s.queue:
				return ev, nil
			default:
			}
		}
		return eventlog.Event{}, s.err
	case <-ctx.Done():
		return eventlog.Event{}, ctx.Err()
	}
}

// Done is closed once the subscription has been ended by the broadcaster.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error, nil while the subscription is live.
func (s *Subscriber) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// drains reports whether buffered events are still delivered after the end.
// Only a closed session ends gracefully; overflow and shutdown end at once.
func (s *Subscriber) drains() bool {
	return errors.Is(s.err, ErrSessionClosed)
}

func (s *Subscriber) finish(err error) bool {
	first := false
	s.once.Do(func() {
		s.err = err
		close(s.done)
		first = true
	})
	return first
}

// offer enqueues without blocking; false means the queue is full.
func (s *Subscriber) offer(ev eventlog.Event) bool {
	if ev.Seq <= s.after {
		return true
	}
	select {
	case s.queue <- ev:
		return true
	default:
		return false
	}
}
