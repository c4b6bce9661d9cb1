package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"devserver/internal/eventbus"
	"devserver/internal/eventlog"
	"devserver/internal/monitor"
	"devserver/internal/session"
)

var ErrInvalidKind = errors.New("invalid event kind")

// Event stream control names. Producer events may not use them, so a stream
// consumer can always tell a control block from a recorded event.
const (
	KindPing          = "ping"
	KindError         = "error"
	KindSessionClosed = "session.closed"
)

func IsReservedKind(kind string) bool {
	switch kind {
	case KindPing, KindError, KindSessionClosed:
		return true
	}
	return false
}

// Service coordinates the session registry, the per-session event logs and the
// broadcaster. It is the context object handed to every HTTP handler.
type Service struct {
	Sessions *session.Registry
	Bus      *eventbus.Broadcaster
	Mirror   eventbus.Mirror
	Logger   *slog.Logger
}

// NewService wires every new session's log to the broadcaster and, when set, the mirror.
func NewService(bus *eventbus.Broadcaster, mirror eventbus.Mirror, logger *slog.Logger) *Service {
	s := &Service{
		Bus:    bus,
		Mirror: mirror,
		Logger: logger,
	}
	s.Sessions = session.NewRegistry(s.hooksFor, logger)
	return s
}

func (s *Service) hooksFor(sessionID string) eventlog.Hooks {
	return eventlog.Hooks{
		Appended: func(event eventlog.Event) {
			monitor.EventsAppendedTotal.Inc()
			s.Bus.Publish(event)
			if s.Mirror != nil {
				s.Mirror.Forward(event)
			}
		},
		Closed: func() {
			s.Bus.SessionClosed(sessionID)
		},
	}
}

func (s *Service) CreateSession(ctx context.Context, metadata map[string]any) (*session.Session, error) {
	sess := s.Sessions.Create(metadata)
	monitor.SessionCreatedTotal.Inc()
	monitor.SessionActiveCount.Set(float64(s.Sessions.ActiveCount()))
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return s.Sessions.Get(id)
}

func (s *Service) ListSessions(ctx context.Context) ([]*session.Session, error) {
	return s.Sessions.List(), nil
}

// CloseSession marks the session closed. Its subscribers drain what is
// buffered and then end; its history stays readable.
func (s *Service) CloseSession(ctx context.Context, id string) (*session.Session, error) {
	sess, err := s.Sessions.Close(id)
	if err != nil {
		return nil, err
	}
	monitor.SessionActiveCount.Set(float64(s.Sessions.ActiveCount()))
	return sess, nil
}

// AppendEvent is the producer contract: it records an event on the session's
// log and fans it out. It never waits on subscribers.
func (s *Service) AppendEvent(ctx context.Context, id, kind string, payload any) (eventlog.Event, error) {
	if kind == "" {
		return eventlog.Event{}, fmt.Errorf("%w: kind is required", ErrInvalidKind)
	}
	if IsReservedKind(kind) {
		return eventlog.Event{}, fmt.Errorf("%w: %q is reserved for stream control", ErrInvalidKind, kind)
	}

	log, err := s.Sessions.Log(id)
	if err != nil {
		return eventlog.Event{}, err
	}

	event, err := log.Append(kind, payload)
	if err != nil {
		return eventlog.Event{}, fmt.Errorf("append to session %s: %w", id, err)
	}
	return event, nil
}

// Events returns the recorded events after cursor.
func (s *Service) Events(ctx context.Context, id string, cursor uint64) ([]eventlog.Event, error) {
	log, err := s.Sessions.Log(id)
	if err != nil {
		return nil, err
	}
	return log.ReadFrom(cursor), nil
}

// Subscribe opens a live subscription. See eventbus.Broadcaster.Subscribe for cursor semantics.
func (s *Service) Subscribe(ctx context.Context, id string, cursor *uint64) (*eventbus.Subscriber, error) {
	log, err := s.Sessions.Log(id)
	if err != nil {
		return nil, err
	}

	sub, err := s.Bus.Subscribe(log, cursor)
	if err != nil {
		return nil, err
	}

	s.Logger.Debug("Stream subscribed",
		"session_id", id,
		"subscriber_id", sub.ID,
	)
	return sub, nil
}

func (s *Service) Unsubscribe(sub *eventbus.Subscriber) {
	s.Bus.Unsubscribe(sub)
}
