package eventlog

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend(t *testing.T) {
	t.Run("AssignsDenseSequenceNumbers", func(t *testing.T) {
		l := New("sess-1", Hooks{})

		first, err := l.Append("start", nil)
		require.NoError(t, err)
		second, err := l.Append("done", map[string]bool{"ok": true})
		require.NoError(t, err)

		assert.Equal(t, uint64(1), first.Seq)
		assert.Equal(t, uint64(2), second.Seq)
		assert.Equal(t, "sess-1", second.SessionID)
		assert.JSONEq(t, `{}`, string(first.Payload))
		assert.JSONEq(t, `{"ok":true}`, string(second.Payload))
		assert.Equal(t, uint64(2), l.Last())
	})

	t.Run("RejectsInvalidRawPayload", func(t *testing.T) {
		l := New("sess-1", Hooks{})
		_, err := l.Append("bad", json.RawMessage(`{"open":`))
		require.ErrorIs(t, err, ErrInvalidPayload)
		assert.Equal(t, 0, l.Len())
	})

	t.Run("RejectsAfterClose", func(t *testing.T) {
		l := New("sess-1", Hooks{})
		require.True(t, l.Close())
		require.False(t, l.Close())

		_, err := l.Append("late", nil)
		require.ErrorIs(t, err, ErrClosed)
	})

	t.Run("ConcurrentAppendsNeverShareANumber", func(t *testing.T) {
		const writers, perWriter = 16, 200

		var (
			mu       sync.Mutex
			observed []uint64
		)
		l := New("sess-c", Hooks{
			Appended: func(e Event) {
				mu.Lock()
				observed = append(observed, e.Seq)
				mu.Unlock()
			},
		})

		var wg sync.WaitGroup
		for w := range writers {
			wg.Go(func() {
				for i := range perWriter {
					_, err := l.Append("tick", map[string]int{"writer": w, "i": i})
					assert.NoError(t, err)
				}
			})
		}
		wg.Wait()

		require.Len(t, observed, writers*perWriter)
		for i, seq := range observed {
			require.Equal(t, uint64(i+1), seq, "hook order must follow sequence order")
		}
	})
}

func TestReadFrom(t *testing.T) {
	l := New("sess-r", Hooks{})
	for range 5 {
		_, err := l.Append("tick", nil)
		require.NoError(t, err)
	}

	assert.Len(t, l.ReadFrom(0), 5)
	assert.Empty(t, l.ReadFrom(5))
	assert.Empty(t, l.ReadFrom(99))

	tail := l.ReadFrom(3)
	require.Len(t, tail, 2)
	assert.Equal(t, uint64(4), tail[0].Seq)
	assert.Equal(t, uint64(5), tail[1].Seq)

	// Snapshots are copies.
	tail[0].Kind = "mutated"
	assert.Equal(t, "tick", l.ReadFrom(3)[0].Kind)
}

func TestAttach(t *testing.T) {
	l := New("sess-a", Hooks{})
	for range 3 {
		_, err := l.Append("tick", nil)
		require.NoError(t, err)
	}

	t.Run("FromCursor", func(t *testing.T) {
		l.Attach(1, false, func(backlog []Event, closed bool) {
			require.Len(t, backlog, 2)
			assert.Equal(t, uint64(2), backlog[0].Seq)
			assert.False(t, closed)
		})
	})

	t.Run("FromNow", func(t *testing.T) {
		l.Attach(0, true, func(backlog []Event, closed bool) {
			assert.Empty(t, backlog)
		})
	})

	t.Run("ReportsClosed", func(t *testing.T) {
		closedHook := 0
		c := New("sess-closed", Hooks{Closed: func() { closedHook++ }})
		_, err := c.Append("only", nil)
		require.NoError(t, err)
		c.Close()
		c.Close()

		c.Attach(0, false, func(backlog []Event, closed bool) {
			assert.Len(t, backlog, 1)
			assert.True(t, closed)
		})
		assert.Equal(t, 1, closedHook)
	})
}
