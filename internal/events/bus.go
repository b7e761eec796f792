// Package events fans committed mutations out to in-process subscribers.
// The store's event table is the audit trail of record; the bus only exists
// so live consumers (UI streams, integrations) can react without polling.
package events

import (
	"sync"

	"github.com/gantry-io/gantry/internal/model"
)

// Notice is one committed mutation: the persisted audit event plus the
// project it belongs to, for project-scoped consumers.
type Notice struct {
	ProjectID int64
	Event     model.Event
}

// Subscriber is a function that receives notices.
type Subscriber func(Notice)

// Bus is a non-blocking publish/subscribe fan-out keyed by event type.
// Delivery is asynchronous over buffered channels; a subscriber whose
// channel is full misses the notice. Publishing happens after commit, so a
// dropped notice never means a lost audit record.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[model.EventType][]chan Notice
	bufferSize  int
}

// NewBus creates a bus with the given buffer size per subscriber.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[model.EventType][]chan Notice),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for one event type. The function runs on its own
// goroutine. The returned function unsubscribes.
func (b *Bus) Subscribe(t model.EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Notice, b.bufferSize)
	b.subscribers[t] = append(b.subscribers[t], ch)

	go func() {
		for notice := range ch {
			func() {
				defer func() {
					// A panicking subscriber must not take the bus down.
					_ = recover()
				}()
				fn(notice)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[t]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[t] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// Publish delivers a notice to every subscriber of its event type without
// blocking; full channels drop it.
func (b *Bus) Publish(notice Notice) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[notice.Event.Type] {
		select {
		case ch <- notice:
		default:
		}
	}
}

// Close closes all subscriber channels and clears subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for t, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, t)
	}
}
