package delivery

import (
	"sync"

	"logwarden/internal/model"
)

// Hub fans stream events out to live API subscribers. Sends never
// block: a subscriber that falls behind loses events instead of
// stalling the pipeline.
type Hub struct {
	mu   sync.Mutex
	subs map[chan model.StreamEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan model.StreamEvent]struct{})}
}

// Subscribe registers a new consumer. The returned cancel func is
// idempotent and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan model.StreamEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan model.StreamEvent, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (h *Hub) Broadcast(ev model.StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
