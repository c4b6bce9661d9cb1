package eventbus

import (
	"context"
	"os"
	"testing"
	"time"

	"devserver/internal/eventlog"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisMirror(t *testing.T) {
	client := newTestRedis(t)
	m := NewRedisMirror(client, 16, testLogger())
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := m.Subscribe(ctx, "mirror-session")
	require.NoError(t, err)

	l := eventlog.New("mirror-session", eventlog.Hooks{Appended: m.Forward})
	_, err = l.Append("start", nil)
	require.NoError(t, err)
	_, err = l.Append("done", map[string]bool{"ok": true})
	require.NoError(t, err)

	for want := uint64(1); want <= 2; want++ {
		select {
		case ev := <-events:
			assert.Equal(t, want, ev.Seq)
			assert.Equal(t, "mirror-session", ev.SessionID)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for mirrored event %d", want)
		}
	}
}

func TestRedisSubscriber_EndsWithContext(t *testing.T) {
	client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := NewRedisSubscriber(client, testLogger()).Subscribe(ctx, "tail-session")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestSessionChannelKey(t *testing.T) {
	assert.Equal(t, "session:abc:events", SessionChannelKey("abc"))
}
