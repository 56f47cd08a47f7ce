package routes

import (
	"log/slog"
	"sync"

	"cdpproxy/core/types"
)

const defaultHubBuffer = 64

// Hub fans committed events out to websocket subscribers. A subscriber that
// falls a full buffer behind is dropped rather than slowing the node.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	buffer int
	logger *slog.Logger
}

type subscription struct {
	ch    chan *types.Event
	kinds map[string]struct{}
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultHubBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[*subscription]struct{}), buffer: buffer, logger: logger}
}

// Listener adapts the hub to the node's event subscription.
func (h *Hub) Listener() func(*types.Event) {
	return h.Publish
}

func (h *Hub) Publish(ev *types.Event) {
	if ev == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if len(sub.kinds) > 0 {
			if _, ok := sub.kinds[ev.Type]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("dropping slow event subscriber", slog.Int("buffer", h.buffer))
			delete(h.subs, sub)
			close(sub.ch)
		}
	}
}

// Subscribe returns a channel of events of the given types, all types when
// none are named, and a function that ends the subscription.
func (h *Hub) Subscribe(kinds []string) (<-chan *types.Event, func()) {
	sub := &subscription{ch: make(chan *types.Event, h.buffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[string]struct{}, len(kinds))
		for _, kind := range kinds {
			sub.kinds[kind] = struct{}{}
		}
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.ch)
			}
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
