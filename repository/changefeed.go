package repository

import (
	"sync"
)

// changeFeed fans out post-write change events to per-order subscribers.
// SQLite has no server-side change stream, so the sqlite-backed store
// publishes here after every successful write; this gives single-process
// push semantics (dev and tests). The Mongo store uses real change streams
// and does not need the feed.
type changeFeed struct {
	mu   sync.Mutex
	subs map[string]map[int]chan ChangeEvent
	next int
}

func newChangeFeed() *changeFeed {
	return &changeFeed{subs: make(map[string]map[int]chan ChangeEvent)}
}

// subscribe registers a buffered channel for one order id and returns it
// with its cancel func. A slow subscriber drops events rather than blocking
// the writer; the tracker's poll fallback covers the gap.
func (f *changeFeed) subscribe(orderID string) (<-chan ChangeEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan ChangeEvent, 16)
	id := f.next
	f.next++
	if f.subs[orderID] == nil {
		f.subs[orderID] = make(map[int]chan ChangeEvent)
	}
	f.subs[orderID][id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if m := f.subs[orderID]; m != nil {
			if c, ok := m[id]; ok {
				delete(m, id)
				close(c)
			}
			if len(m) == 0 {
				delete(f.subs, orderID)
			}
		}
	}
	return ch, cancel
}

func (f *changeFeed) publish(ev ChangeEvent) {
	if ev.Order == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs[ev.Order.ID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// subscriberCount exists for leak checks in tests.
func (f *changeFeed) subscriberCount(orderID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[orderID])
}
