package session

import (
	"log/slog"
	"sync"
	"time"

	"devserver/internal/eventlog"

	"github.com/google/uuid"
)

var _ Purger = (*Registry)(nil)

// HooksFunc builds the event log hooks for a newly created session.
type HooksFunc func(sessionID string) eventlog.Hooks

type entry struct {
	session *Session
	log     *eventlog.Log
}

// Registry owns every session of the process and one event log per session.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	hooks   HooksFunc
	logger  *slog.Logger
	now     func() time.Time
}

func NewRegistry(hooks HooksFunc, logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		hooks:   hooks,
		logger:  logger.With("component", "session-registry"),
		now:     time.Now,
	}
}

func (r *Registry) Create(metadata map[string]any) *Session {
	id := uuid.New().String()

	var hooks eventlog.Hooks
	if r.hooks != nil {
		hooks = r.hooks(id)
	}

	sess := &Session{
		ID:       id,
		Status:   StatusActive,
		Metadata: metadata,
	}
	e := &entry{session: sess.clone(), log: eventlog.New(id, hooks)}

	r.mu.Lock()
	e.session.CreatedAt = r.now()
	r.entries[id] = e
	r.order = append(r.order, id)
	r.mu.Unlock()

	r.logger.Info("Session created", slog.String("session_id", id))
	return e.session.clone()
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.session.clone(), nil
}

// List returns every known session in creation order.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].session.clone())
	}
	return out
}

func (r *Registry) Log(id string) (*eventlog.Log, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.log, nil
}

// Close seals the session's log and then flags the session closed, so no
// append can succeed once the session reports closed. The session and its
// events stay readable. Closing twice returns the already closed session.
func (r *Registry) Close(id string) (*Session, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	// Outside the registry lock: the log's close hook fans out to subscribers.
	sealed := e.log.Close()

	r.mu.Lock()
	if e.session.Status != StatusClosed {
		e.session.Status = StatusClosed
		e.session.ClosedAt = r.now()
	}
	sess := e.session.clone()
	r.mu.Unlock()

	if sealed {
		r.logger.Info("Session closed", slog.String("session_id", id))
	}
	return sess, nil
}

// PurgeClosed forgets sessions closed before cutoff and returns their ids.
func (r *Registry) PurgeClosed(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged []string
	kept := r.order[:0]
	for _, id := range r.order {
		e := r.entries[id]
		if e.session.Status == StatusClosed && e.session.ClosedAt.Before(cutoff) {
			delete(r.entries, id)
			purged = append(purged, id)
			continue
		}
		kept = append(kept, id)
	}
	clear(r.order[len(kept):])
	r.order = kept
	return purged
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.session.Status == StatusActive {
			n++
		}
	}
	return n
}
