package collection

import (
	"context"
	"sync"
)

// Hub fans collection snapshots out to the feeds subscribed to them.
// Each feed keeps at most one pending snapshot: a newer one replaces a stale one.
type Hub struct {
	mu     sync.RWMutex
	next   uint64
	feeds  map[uint64]*Feed
	closed bool
}

func NewHub() *Hub {
	return &Hub{feeds: make(map[uint64]*Feed)}
}

// Subscribe registers a feed for name. The caller primes it with Deliver.
func (h *Hub) Subscribe(name Name, filter Filter) *Feed {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	f := &Feed{
		id:     h.next,
		hub:    h,
		name:   name,
		filter: filter,
		ch:     make(chan Snapshot, 1),
	}
	if h.closed {
		f.closed = true
		close(f.ch)
		return f
	}
	h.feeds[f.id] = f
	return f
}

// Publish hands a full, unfiltered snapshot to every feed of its collection.
func (h *Hub) Publish(s Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, f := range h.feeds {
		if f.name == s.Name {
			f.Deliver(s)
		}
	}
}

// Len returns the number of open feeds.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.feeds)
}

// Close releases every feed. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	feeds := h.feeds
	h.feeds = make(map[uint64]*Feed)
	h.closed = true
	h.mu.Unlock()

	for _, f := range feeds {
		f.release()
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.feeds, id)
}

// Feed is the subscription handed out by the hub.
type Feed struct {
	id     uint64
	hub    *Hub
	name   Name
	filter Filter

	mu        sync.Mutex
	ch        chan Snapshot
	delivered bool
	version   uint64
	closed    bool
	stop      func() bool
}

func (f *Feed) Snapshots() <-chan Snapshot {
	return f.ch
}

// Deliver filters s and queues it, dropping any snapshot not yet consumed.
// Snapshots older than the last delivered version are ignored.
func (f *Feed) Deliver(s Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || (f.delivered && s.Version < f.version) {
		return
	}
	select {
	case <-f.ch:
	default:
	}
	// f.mu makes this the only sender, the buffer is free
	f.ch <- s.Select(f.filter)
	f.delivered = true
	f.version = s.Version
}

// Bind closes the feed when ctx is done.
func (f *Feed) Bind(ctx context.Context) *Feed {
	stop := context.AfterFunc(ctx, f.Close)
	f.mu.Lock()
	f.stop = stop
	f.mu.Unlock()
	return f
}

func (f *Feed) Close() {
	f.hub.remove(f.id)
	f.release()
}

func (f *Feed) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.ch)
	if f.stop != nil {
		f.stop()
	}
}
