// Package progress carries structured progress events from long-running
// operations to whatever frontend is listening, keeping the core UI-agnostic.
package progress

import (
	"log/slog"
	"sync"
)

// Kind classifies a progress event.
type Kind string

// Event kinds.
const (
	KindLog      Kind = "log"      // append-only log line
	KindProgress Kind = "progress" // coarse position within a run
	KindError    Kind = "error"    // a unit of work failed, run continues
)

// Event is a single progress notification.
type Event struct {
	Kind    Kind
	Message string
}

// Sink receives progress events. Publish must be safe for concurrent use.
type Sink interface {
	Publish(e Event)
}

// Nop discards all events.
type Nop struct{}

// Publish implements Sink.
func (Nop) Publish(Event) {}

// Logger forwards events to a slog.Logger.
type Logger struct {
	Log *slog.Logger
}

// Publish implements Sink.
func (l Logger) Publish(e Event) {
	switch e.Kind {
	case KindError:
		l.Log.Warn(e.Message)
	default:
		l.Log.Info(e.Message)
	}
}

// Buffer collects events in memory, for tests and for the CLI's
// append-only progress log.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Sink.
func (b *Buffer) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

// Events returns a copy of all collected events.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]Event, len(b.events))
	copy(cp, b.events)
	return cp
}

// Messages returns the messages of all collected events.
func (b *Buffer) Messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := make([]string, len(b.events))
	for i, e := range b.events {
		msgs[i] = e.Message
	}
	return msgs
}
