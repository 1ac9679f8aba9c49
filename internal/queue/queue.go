// Package queue holds pending commands keyed by source and command, coalescing repeats.
package queue

import (
	"sort"
	"time"

	"github.com/msageha/autopilot/internal/model"
)

// Key builds the coalescing key for a command from a rule or workflow.
func Key(source, command string) string {
	return source + "-" + command
}

// Queue is a debounced, keyed store of pending commands. It is not safe for
// concurrent use; the engine serializes access.
type Queue struct {
	entries map[string]*model.QueuedCommand
	seq     uint64
}

func New() *Queue {
	return &Queue{entries: make(map[string]*model.QueuedCommand)}
}

// Enqueue inserts cmd or, when its key is already pending, restarts the debounce
// window from now. A coalesced entry keeps its original sequence number.
// It reports whether a new entry was created.
func (q *Queue) Enqueue(cmd model.QueuedCommand, now time.Time) bool {
	if cmd.Key == "" {
		cmd.Key = Key(cmd.Source, cmd.Command)
	}
	if existing, ok := q.entries[cmd.Key]; ok {
		existing.EnqueuedAt = now
		existing.FilePath = cmd.FilePath
		return false
	}
	q.seq++
	cmd.Seq = q.seq
	cmd.EnqueuedAt = now
	q.entries[cmd.Key] = &cmd
	return true
}

// Ready returns the entries whose debounce window has elapsed at now,
// sorted by priority ASC then enqueue order ASC.
func (q *Queue) Ready(now time.Time) []model.QueuedCommand {
	var ready []model.QueuedCommand
	for _, e := range q.entries {
		if now.Sub(e.EnqueuedAt) >= e.Debounce {
			ready = append(ready, *e)
		}
	}
	SortByPriority(ready)
	return ready
}

// SortByPriority orders entries by priority ASC, then sequence ASC.
func SortByPriority(entries []model.QueuedCommand) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority < entries[j].Priority
		}
		return entries[i].Seq < entries[j].Seq
	})
}

// Remove drops key from the queue.
func (q *Queue) Remove(key string) {
	delete(q.entries, key)
}

// Get returns a copy of the entry for key.
func (q *Queue) Get(key string) (model.QueuedCommand, bool) {
	e, ok := q.entries[key]
	if !ok {
		return model.QueuedCommand{}, false
	}
	return *e, true
}

func (q *Queue) Len() int {
	return len(q.entries)
}

// Snapshot returns copies of all pending entries in dispatch order.
func (q *Queue) Snapshot() []model.QueuedCommand {
	out := make([]model.QueuedCommand, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	SortByPriority(out)
	return out
}

// Clear drops every pending entry.
func (q *Queue) Clear() {
	q.entries = make(map[string]*model.QueuedCommand)
}
