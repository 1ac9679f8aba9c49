// Package events carries engine lifecycle events to subscribers and to the audit log.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents the type of event being published.
type EventType string

const (
	// EventStarted is published once the engine is running.
	EventStarted EventType = "started"
	// EventStopped is published after a graceful stop completes.
	EventStopped EventType = "stopped"
	// EventCommandSuccess is published when a command exits 0.
	EventCommandSuccess EventType = "command_success"
	// EventCommandError is published when a command fails, times out or cannot spawn.
	EventCommandError EventType = "command_error"
	// EventError reports a non-fatal fault outside a command, e.g. from the watcher.
	EventError EventType = "error"
)

// AllTypes lists every lifecycle event type.
var AllTypes = []EventType{EventStarted, EventStopped, EventCommandSuccess, EventCommandError, EventError}

// Event represents a system event.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

// Bus is a non-blocking event bus using Publish/Subscribe pattern.
// Events are delivered asynchronously via buffered channels.
// If a subscriber's channel is full, the event is dropped for that subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
	logger      zerolog.Logger
}

// NewBus creates a new event bus with the specified buffer size per subscriber.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
		logger:      zerolog.Nop(),
	}
}

// SetLogger sets the logger used to report dropped events and subscriber panics.
func (b *Bus) SetLogger(l zerolog.Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = l.With().Str("component", "events").Logger()
}

// Subscribe registers a subscriber for a specific event type.
// The subscriber function is called asynchronously in a goroutine.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	logger := b.logger

	go func() {
		for event := range ch {
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error().Interface("panic", r).Str("event", string(event.Type)).Msg("subscriber panicked")
					}
				}()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// SubscribeAll registers fn for every lifecycle event type.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	unsubs := make([]func(), 0, len(AllTypes))
	for _, t := range AllTypes {
		unsubs = append(unsubs, b.Subscribe(t, fn))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Publish sends an event to all subscribers of the given type without blocking.
func (b *Bus) Publish(eventType EventType, data map[string]interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
			b.logger.Debug().Str("event", string(eventType)).Msg("subscriber buffer full, event dropped")
		}
	}
}

// Close closes all subscriber channels and clears subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
}
