package live

import (
	"context"
	"sync"
)

// Hub hands out one controller per date so that every client of a date
// shares its lifecycle gate
type Hub struct {
	chats Chats
	opts  []Option

	mu          sync.Mutex
	controllers map[string]*Controller
}

// NewHub creates a hub; opts apply to every controller it creates
func NewHub(chats Chats, opts ...Option) *Hub {
	return &Hub{chats: chats, opts: opts, controllers: make(map[string]*Controller)}
}

// Controller returns the controller for date, loading the stored chat the
// first time the date is requested
func (h *Hub) Controller(ctx context.Context, date string) (*Controller, error) {
	h.mu.Lock()
	c, ok := h.controllers[date]
	h.mu.Unlock()
	if ok {
		return c, nil
	}

	c = NewController(date, h.chats, h.opts...)
	if err := c.Load(ctx); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.controllers[date]; ok {
		return existing, nil
	}
	h.controllers[date] = c
	return c, nil
}
