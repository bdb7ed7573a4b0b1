// Package activity carries the human-readable operator activity feed. It is a
// write-only side channel: nothing in the allocation path reads it back.
package activity

import (
	"sync"
	"time"
)

// Entry is one line of operator activity
type Entry struct {
	At       time.Time      `json:"at"`
	Operator string         `json:"operator"`
	Action   string         `json:"action"`
	Message  string         `json:"message"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Sink receives activity entries
type Sink interface {
	Record(e Entry)
}

// Discard drops every entry
type Discard struct{}

func (Discard) Record(Entry) {}

// Bus keeps the most recent entries in a ring buffer and fans new entries out
// to subscribers. Slow subscribers miss entries rather than block Record.
type Bus struct {
	mu     sync.RWMutex
	buf    []Entry
	cap    int
	subs   map[chan Entry]struct{}
	closed bool
}

var _ Sink = (*Bus)(nil)

// NewBus creates a bus retaining up to capacity entries
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 200
	}
	return &Bus{
		cap:  capacity,
		buf:  make([]Entry, 0, capacity),
		subs: make(map[chan Entry]struct{}),
	}
}

// Close disconnects every subscriber; later Records are dropped
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.buf = nil
}

// Snapshot returns the retained entries, oldest first
func (b *Bus) Snapshot() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, len(b.buf))
	copy(out, b.buf)
	return out
}

// Subscribe returns a channel of new entries and a cancel func
func (b *Bus) Subscribe(buffer int) (<-chan Entry, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Entry, buffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if b.subs != nil {
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Record appends the entry and notifies subscribers
func (b *Bus) Record(e Entry) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if len(b.buf) < b.cap {
		b.buf = append(b.buf, e)
	} else {
		copy(b.buf, b.buf[1:])
		b.buf[b.cap-1] = e
	}
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
