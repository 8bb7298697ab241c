package orchestrator

import (
	"fmt"
	"sync"
)

// eventBuffer is the per-subscriber channel size.
const eventBuffer = 64

// Broadcaster fans events out to any number of subscribers through buffered
// channels. Slow subscribers lose events rather than blocking the queue.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	closed bool
}

// NewBroadcaster creates a Broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Emit sends an event to every subscriber in a non-blocking fashion.
// If a subscriber's channel is full, the event is dropped for it.
func (b *Broadcaster) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel of future events and a function that
// unsubscribes and closes it. After Close the returned channel is already
// closed.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, eventBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Close closes every subscriber channel. Later Emits are dropped.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// FormatEvent formats an Event as a human-readable status line.
func FormatEvent(event Event) string {
	subject := event.RequestID
	if subject == "" {
		subject = event.BuildID
	}
	if event.Section != "" {
		subject += " " + event.Section
	}

	switch event.Status {
	case ProgressPending:
		return fmt.Sprintf("  ○ %s %s (pending)", event.Step, subject)
	case ProgressWorking:
		return fmt.Sprintf("  ● %s %s...", event.Step, subject)
	case ProgressComplete:
		return fmt.Sprintf("  ✓ %s %s complete", event.Step, subject)
	case ProgressFailed:
		return fmt.Sprintf("  ✗ %s %s failed: %s", event.Step, subject, event.Message)
	default:
		return fmt.Sprintf("  ? %s %s (unknown status)", event.Step, subject)
	}
}
