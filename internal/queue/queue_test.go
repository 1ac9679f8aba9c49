package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/autopilot/internal/model"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func cmd(source, command string, priority int, debounce time.Duration) model.QueuedCommand {
	return model.QueuedCommand{Source: source, Command: command, Priority: priority, Debounce: debounce}
}

func TestEnqueue_CoalescesByKey(t *testing.T) {
	q := New()

	assert.True(t, q.Enqueue(cmd("ts", "npm run lint", 1, time.Second), t0))
	assert.False(t, q.Enqueue(cmd("ts", "npm run lint", 1, time.Second), t0.Add(500*time.Millisecond)))
	assert.Equal(t, 1, q.Len())

	e, ok := q.Get(Key("ts", "npm run lint"))
	require.True(t, ok)
	assert.Equal(t, t0.Add(500*time.Millisecond), e.EnqueuedAt, "repeat must restart the debounce window")
	assert.Equal(t, uint64(1), e.Seq)
}

func TestReady_DebounceElapsed(t *testing.T) {
	q := New()
	q.Enqueue(cmd("ts", "a", 0, 100*time.Millisecond), t0)
	q.Enqueue(cmd("ts", "b", 0, time.Second), t0)

	assert.Empty(t, q.Ready(t0.Add(99*time.Millisecond)))

	ready := q.Ready(t0.Add(100 * time.Millisecond))
	require.Len(t, ready, 1)
	assert.Equal(t, "a", ready[0].Command)
}

func TestReady_PriorityOrderStable(t *testing.T) {
	q := New()
	q.Enqueue(cmd("r2", "p2", 2, 0), t0)
	q.Enqueue(cmd("r0a", "p0-first", 0, 0), t0)
	q.Enqueue(cmd("r1", "p1", 1, 0), t0)
	q.Enqueue(cmd("r0b", "p0-second", 0, 0), t0)

	ready := q.Ready(t0)
	got := []string{}
	for _, r := range ready {
		got = append(got, r.Command)
	}
	assert.Equal(t, []string{"p0-first", "p0-second", "p1", "p2"}, got)
}

func TestRemoveAndClear(t *testing.T) {
	q := New()
	q.Enqueue(cmd("a", "x", 0, 0), t0)
	q.Enqueue(cmd("b", "y", 0, 0), t0)

	q.Remove(Key("a", "x"))
	assert.Equal(t, 1, q.Len())
	_, ok := q.Get(Key("a", "x"))
	assert.False(t, ok)

	q.Clear()
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Snapshot())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "typescript-npm run lint", Key("typescript", "npm run lint"))
}
