package feed

import (
	"context"
	"sync"
)

type subscription struct {
	pred Predicate
	ch   chan ChangeEvent
	done chan struct{}
}

// Hub fans published events out to every subscription whose predicate
// matches. Publish blocks until each matching subscriber accepted the event,
// left, or ctx ended, so a slow consumer applies backpressure to the poller
// instead of losing events.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	next   uint64
	buffer int
}

// NewHub returns a hub whose subscription channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer < 0 {
		buffer = 0
	}
	return &Hub{subs: make(map[uint64]*subscription), buffer: buffer}
}

// Subscribe registers pred until ctx is done.
func (h *Hub) Subscribe(ctx context.Context, pred Predicate) <-chan ChangeEvent {
	sub := &subscription{
		pred: pred,
		ch:   make(chan ChangeEvent, h.buffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		close(sub.done)
		// publishers hold the read lock while sending
		h.mu.Lock()
		delete(h.subs, id)
		close(sub.ch)
		h.mu.Unlock()
	}()
	return sub.ch
}

// Publish delivers ev to matching subscribers.
func (h *Hub) Publish(ctx context.Context, ev ChangeEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.pred != nil && !sub.pred(ev.Order) {
			continue
		}
		select {
		case sub.ch <- ev:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
