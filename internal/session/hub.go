package session

import "sync"

// Hub is an observer registry for store changes.
// Publish calls subscribers synchronously, outside the registry lock, in
// subscription order.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]ChangeFunc
	order  []uint64
}

// NewHub creates an empty Hub
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]ChangeFunc)}
}

// Subscribe registers fn and returns its unsubscribe function.
// Calling the returned function more than once is harmless.
func (h *Hub) Subscribe(fn ChangeFunc) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.order = append(h.order, id)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			for i, v := range h.order {
				if v == id {
					h.order = append(h.order[:i:i], h.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers c to every current subscriber
func (h *Hub) Publish(c Change) {
	h.mu.RLock()
	fns := make([]ChangeFunc, 0, len(h.order))
	for _, id := range h.order {
		fns = append(fns, h.subs[id])
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Len returns the number of subscribers
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
