package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"devserver/internal/eventlog"
	"devserver/internal/monitor"

	"github.com/redis/go-redis/v9"
)

var (
	_ Mirror           = (*RedisMirror)(nil)
	_ MirrorSubscriber = (*RedisMirror)(nil)
	_ MirrorSubscriber = (*RedisSubscriber)(nil)
)

const mirrorPublishTimeout = 2 * time.Second

// RedisMirror republishes every appended event as JSON on a per-session Redis
// channel so tools outside the process can follow sessions. Publishing happens
// on a background worker; a full queue drops the event rather than slowing the producer.
type RedisMirror struct {
	*RedisSubscriber

	client *redis.Client
	logger *slog.Logger
	queue  chan eventlog.Event
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func NewRedisMirror(client *redis.Client, queueSize int, logger *slog.Logger) *RedisMirror {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	m := &RedisMirror{
		RedisSubscriber: NewRedisSubscriber(client, logger),
		client:          client,
		logger:          logger.With("component", "redis-mirror"),
		queue:           make(chan eventlog.Event, queueSize),
		stopCh:          make(chan struct{}),
	}

	m.wg.Add(1)
	go m.worker()

	return m
}

func (m *RedisMirror) Forward(event eventlog.Event) {
	select {
	case m.queue <- event:
	default:
		monitor.MirrorDroppedTotal.Inc()
		m.logger.Warn("Mirror queue full, dropping event",
			"session_id", event.SessionID,
			"seq", event.Seq,
		)
	}
}

// Close flushes queued events and stops the worker.
func (m *RedisMirror) Close() error {
	m.once.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
	return nil
}

func (m *RedisMirror) worker() {
	defer m.wg.Done()
	for {
		select {
		case event := <-m.queue:
			m.publish(event)
		case <-m.stopCh:
			for {
				select {
				case event := <-m.queue:
					m.publish(event)
				default:
					return
				}
			}
		}
	}
}

func (m *RedisMirror) publish(event eventlog.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		m.logger.Error("failed to marshal event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), mirrorPublishTimeout)
	defer cancel()

	if err := m.client.Publish(ctx, SessionChannelKey(event.SessionID), data).Err(); err != nil {
		m.logger.Error("failed to mirror event",
			"session_id", event.SessionID,
			"seq", event.Seq,
			"error", err,
		)
	}
}

func SessionChannelKey(sessionID string) string {
	return "session:" + sessionID + ":events"
}

// RedisSubscriber reads mirrored events back from Redis. Only events
// published after Subscribe returns are seen; Redis keeps no history.
type RedisSubscriber struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisSubscriber(client *redis.Client, logger *slog.Logger) *RedisSubscriber {
	return &RedisSubscriber{
		client: client,
		logger: logger.With("component", "redis-subscriber"),
	}
}

func (r *RedisSubscriber) Subscribe(ctx context.Context, sessionID string) (<-chan eventlog.Event, error) {
	pubSub := r.client.Subscribe(ctx, SessionChannelKey(sessionID))
	if _, err := pubSub.Receive(ctx); err != nil {
		pubSub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	ch := make(chan eventlog.Event)

	go func() {
		defer close(ch)
		defer func(pubSub *redis.PubSub) {
			err := pubSub.Close()
			if err != nil {
				r.logger.Error("failed to close pubsub", "error", err)
			}
		}(pubSub)

		msgs := pubSub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event eventlog.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					r.logger.Error("failed to unmarshal event", "error", err)
					continue
				}
				select {
				case ch <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
