package session

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"devserver/internal/eventlog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(hooks HooksFunc) *Registry {
	return NewRegistry(hooks, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestRegistry(t *testing.T) {
	t.Run("CreateAndGet", func(t *testing.T) {
		r := newTestRegistry(nil)

		s := r.Create(map[string]any{"title": "first"})
		require.NotEmpty(t, s.ID)
		assert.Equal(t, StatusActive, s.Status)
		assert.False(t, s.CreatedAt.IsZero())

		got, err := r.Get(s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, "first", got.Metadata["title"])

		log, err := r.Log(s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ID, log.SessionID())
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		r := newTestRegistry(nil)
		s := r.Create(nil)
		s.Metadata["x"] = 1
		s.Status = StatusClosed

		got, err := r.Get(s.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, got.Status)
		assert.Empty(t, got.Metadata)
	})

	t.Run("UnknownID", func(t *testing.T) {
		r := newTestRegistry(nil)

		_, err := r.Get("missing")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = r.Close("missing")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = r.Log("missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListKeepsCreationOrder", func(t *testing.T) {
		r := newTestRegistry(nil)
		var want []string
		for range 10 {
			want = append(want, r.Create(nil).ID)
		}

		var got []string
		for _, s := range r.List() {
			got = append(got, s.ID)
		}
		assert.Equal(t, want, got)
	})

	t.Run("ConcurrentCreateIsCollisionFree", func(t *testing.T) {
		r := newTestRegistry(nil)
		const n = 500

		ids := make(chan string, n)
		var wg sync.WaitGroup
		for range n {
			wg.Go(func() { ids <- r.Create(nil).ID })
		}
		wg.Wait()
		close(ids)

		created := make(map[string]bool, n)
		for id := range ids {
			require.False(t, created[id], "duplicate id %s", id)
			created[id] = true
		}

		list := r.List()
		require.Len(t, list, n)
		for i, s := range list {
			assert.True(t, created[s.ID])
			if i > 0 {
				assert.False(t, s.CreatedAt.Before(list[i-1].CreatedAt))
			}
		}
	})

	t.Run("CloseIsLogicalAndIdempotent", func(t *testing.T) {
		closedHooks := 0
		r := newTestRegistry(func(string) eventlog.Hooks {
			return eventlog.Hooks{Closed: func() { closedHooks++ }}
		})
		s := r.Create(nil)
		log, err := r.Log(s.ID)
		require.NoError(t, err)
		_, err = log.Append("start", nil)
		require.NoError(t, err)

		closed, err := r.Close(s.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusClosed, closed.Status)
		assert.False(t, closed.ClosedAt.IsZero())

		again, err := r.Close(s.ID)
		require.NoError(t, err)
		assert.Equal(t, closed.ClosedAt, again.ClosedAt)
		assert.Equal(t, 1, closedHooks)

		got, err := r.Get(s.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusClosed, got.Status)
		assert.Len(t, log.ReadFrom(0), 1)
		assert.True(t, log.Closed())
		assert.Equal(t, 0, r.ActiveCount())
	})
}

func TestCleaner(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := newTestRegistry(nil)
	r.now = clock.Now

	old := r.Create(nil)
	_, err := r.Close(old.ID)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	recent := r.Create(nil)
	_, err = r.Close(recent.ID)
	require.NoError(t, err)
	active := r.Create(nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("DisabledByDefault", func(t *testing.T) {
		c := NewCleaner(r, CleanupConfig{}, logger)
		assert.Equal(t, 0, c.Sweep())
		assert.Len(t, r.List(), 3)
	})

	t.Run("PurgesOnlyExpiredClosedSessions", func(t *testing.T) {
		c := NewCleaner(r, CleanupConfig{Retention: 30 * time.Minute}, logger)
		c.now = clock.Now

		assert.Equal(t, 1, c.Sweep())

		_, err := r.Get(old.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		var ids []string
		for _, s := range r.List() {
			ids = append(ids, s.ID)
		}
		assert.Equal(t, []string{recent.ID, active.ID}, ids)
	})

	t.Run("StopIsIdempotent", func(t *testing.T) {
		c := NewCleaner(r, CleanupConfig{Retention: time.Hour, Interval: time.Millisecond}, logger)
		done := make(chan struct{})
		go func() {
			c.Start()
			close(done)
		}()
		c.Stop()
		c.Stop()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("cleaner did not stop")
		}
	})

	t.Run("SealsLogBeforeReportingClosed", func(t *testing.T) {
		var r *Registry
		var statusAtSeal Status
		r = newTestRegistry(func(id string) eventlog.Hooks {
			return eventlog.Hooks{Closed: func() {
				s, err := r.Get(id)
				if assert.NoError(t, err) {
					statusAtSeal = s.Status
				}
			}}
		})
		s := r.Create(nil)

		_, err := r.Close(s.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, statusAtSeal)
	})

	t.Run("NoAppendSucceedsAfterClosedIsVisible", func(t *testing.T) {
		r := newTestRegistry(nil)
		s := r.Create(nil)
		log, err := r.Log(s.ID)
		require.NoError(t, err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = r.Close(s.ID)
		}()

		for {
			got, err := r.Get(s.ID)
			require.NoError(t, err)
			closedSeen := got.Status == StatusClosed
			_, appendErr := log.Append("tick", nil)
			if closedSeen {
				require.ErrorIs(t, appendErr, eventlog.ErrClosed)
				break
			}
		}
		<-done
	})
}
