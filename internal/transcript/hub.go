package transcript

import (
	"log/slog"
	"sync"
)

// subscriberBuffer is the per-client channel depth. A client that cannot
// drain this many items gets further items dropped rather than stalling
// the emitting run.
const subscriberBuffer = 64

// Hub fans transcript items out to subscribers and retains a bounded
// replay buffer.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Item]struct{}
	buffer []Item
	max    int
}

// NewHub creates a hub retaining at most max items for replay.
func NewHub(max int) *Hub {
	if max <= 0 {
		max = 200
	}
	return &Hub{
		subs: make(map[chan Item]struct{}),
		max:  max,
	}
}

// Subscribe registers a new client. The returned cancel function must be
// called when the client disconnects.
func (h *Hub) Subscribe() (<-chan Item, func()) {
	ch := make(chan Item, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast appends an item to the replay buffer and delivers it to every
// subscriber. Delivery never blocks the caller.
func (h *Hub) Broadcast(item Item) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buffer = append(h.buffer, item)
	if len(h.buffer) > h.max {
		h.buffer = h.buffer[len(h.buffer)-h.max:]
	}

	for ch := range h.subs {
		select {
		case ch <- item:
		default:
			slog.Warn("Transcript subscriber lagging, dropping item", "type", item.Type)
		}
	}
}

// Replay returns a copy of the retained item buffer, oldest first.
func (h *Hub) Replay() []Item {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Item, len(h.buffer))
	copy(out, h.buffer)
	return out
}
