package eventbus

import (
	"log/slog"
	"sync"

	"devserver/internal/eventlog"
	"devserver/internal/monitor"
)

// Broadcaster fans appended events out to the live subscribers of each session.
//
// Publish and SessionClosed are invoked from eventlog hooks, i.e. while the
// session's append slot is held, so delivery order equals sequence order.
// Lock order is always log -> broadcaster.
type Broadcaster struct {
	mu        sync.RWMutex
	sessions  map[string]map[*Subscriber]struct{}
	queueSize int
	shutdown  bool
	logger    *slog.Logger
}

func NewBroadcaster(queueSize int, logger *slog.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Broadcaster{
		sessions:  make(map[string]map[*Subscriber]struct{}),
		queueSize: queueSize,
		logger:    logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber on log. A nil cursor starts with the next
// appended event; otherwise every recorded event after *cursor is replayed
// first. A cursor past the end of the log skips live events up to and
// including it. Subscribing to a closed log yields the backlog and then
// ErrSessionClosed.
func (b *Broadcaster) Subscribe(log *eventlog.Log, cursor *uint64) (*Subscriber, error) {
	sub := newSubscriber(log.SessionID(), b.queueSize)

	var from uint64
	if cursor != nil {
		from = *cursor
		sub.after = from
	}

	var err error
	log.Attach(from, cursor == nil, func(backlog []eventlog.Event, closed bool) {
		sub.backlog = backlog
		if closed {
			sub.finish(ErrSessionClosed)
			return
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.shutdown {
			err = ErrShutdown
			return
		}
		subs, ok := b.sessions[sub.SessionID]
		if !ok {
			subs = make(map[*Subscriber]struct{})
			b.sessions[sub.SessionID] = subs
		}
		subs[sub] = struct{}{}
		monitor.StreamActiveSubscribers.Inc()
	})
	if err != nil {
		return nil, err
	}

	b.logger.Debug("Subscriber attached",
		"session_id", sub.SessionID,
		"subscriber_id", sub.ID,
		"backlog", len(sub.backlog),
	)
	return sub, nil
}

// Unsubscribe detaches sub. It receives nothing further.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	b.remove(sub)
	b.mu.Unlock()
	sub.finish(ErrUnsubscribed)
}

// Publish delivers event to every subscriber of its session without blocking.
// A subscriber whose queue is full is dropped with ErrOverflow.
func (b *Broadcaster) Publish(event eventlog.Event) {
	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.sessions[event.SessionID]))
	for sub := range b.sessions[event.SessionID] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	var overflowed []*Subscriber
	for _, sub := range subs {
		if sub.Err() != nil {
			continue
		}
		if !sub.offer(event) {
			overflowed = append(overflowed, sub)
		}
	}

	if len(overflowed) == 0 {
		return
	}

	b.mu.Lock()
	for _, sub := range overflowed {
		b.remove(sub)
	}
	b.mu.Unlock()

	for _, sub := range overflowed {
		if sub.finish(ErrOverflow) {
			monitor.StreamOverflowsTotal.Inc()
			b.logger.Warn("Subscriber too slow, dropping",
				"session_id", sub.SessionID,
				"subscriber_id", sub.ID,
				"seq", event.Seq,
			)
		}
	}
}

// SessionClosed ends every subscription of the session after its buffered events.
func (b *Broadcaster) SessionClosed(sessionID string) {
	b.mu.Lock()
	subs := b.sessions[sessionID]
	delete(b.sessions, sessionID)
	monitor.StreamActiveSubscribers.Sub(float64(len(subs)))
	b.mu.Unlock()

	for sub := range subs {
		sub.finish(ErrSessionClosed)
	}
}

// Shutdown ends every subscription immediately and refuses new ones.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		return
	}
	b.shutdown = true
	sessions := b.sessions
	b.sessions = make(map[string]map[*Subscriber]struct{})
	b.mu.Unlock()

	n := 0
	for _, subs := range sessions {
		for sub := range subs {
			sub.finish(ErrShutdown)
			n++
		}
	}
	monitor.StreamActiveSubscribers.Sub(float64(n))
	b.logger.Info("Broadcaster shut down", "subscribers", n)
}

// Count returns the number of live subscribers across all sessions.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.sessions {
		n += len(subs)
	}
	return n
}

// SessionCount returns the number of live subscribers of one session.
func (b *Broadcaster) SessionCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions[sessionID])
}

// remove must be called with b.mu held.
func (b *Broadcaster) remove(sub *Subscriber) {
	subs, ok := b.sessions[sub.SessionID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.sessions, sub.SessionID)
	}
	monitor.StreamActiveSubscribers.Dec()
}
