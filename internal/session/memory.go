package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	values  map[Slot]string
	touched time.Time
}

// MemoryStore keeps sessions in process memory.
// Suitable for single-instance deployments and tests. When ttl is positive,
// sessions idle for longer than ttl read as empty and are removed by Sweep.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memoryEntry
	ttl      time.Duration
	now      func() time.Time
	hub      *Hub
}

// NewMemoryStore creates an in-memory store; ttl <= 0 disables idle expiry
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memoryEntry),
		ttl:      ttl,
		now:      time.Now,
		hub:      NewHub(),
	}
}

func (m *MemoryStore) expired(e *memoryEntry, now time.Time) bool {
	return m.ttl > 0 && now.Sub(e.touched) > m.ttl
}

// Read returns the raw value of a slot
func (m *MemoryStore) Read(ctx context.Context, sessionID string, slot Slot) (string, bool, error) {
	raw, _, ok, err := m.ReadExpiring(ctx, sessionID, slot)
	return raw, ok, err
}

// ReadExpiring returns the raw value of a slot and when the session goes idle
func (m *MemoryStore) ReadExpiring(ctx context.Context, sessionID string, slot Slot) (string, time.Time, bool, error) {
	if sessionID == "" {
		return "", time.Time{}, false, ErrInvalidSessionID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[sessionID]
	if !ok || m.expired(e, m.now()) {
		return "", time.Time{}, false, nil
	}
	raw, ok := e.values[slot]
	if !ok {
		return "", time.Time{}, false, nil
	}

	var expires time.Time
	if m.ttl > 0 {
		expires = e.touched.Add(m.ttl)
	}
	return raw, expires, true, nil
}

// Write replaces the value of a slot and publishes the change
func (m *MemoryStore) Write(ctx context.Context, sessionID string, slot Slot, raw string) error {
	return m.WriteSlots(ctx, sessionID, map[Slot]string{slot: raw})
}

// WriteSlots replaces several slots under one lock and publishes one change
// per slot
func (m *MemoryStore) WriteSlots(ctx context.Context, sessionID string, values map[Slot]string) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	slots := OrderedSlots(values)

	now := m.now()
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if !ok || m.expired(e, now) {
		e = &memoryEntry{values: make(map[Slot]string)}
		m.sessions[sessionID] = e
	}
	for _, slot := range slots {
		e.values[slot] = values[slot]
	}
	e.touched = now
	m.mu.Unlock()

	for _, slot := range slots {
		m.hub.Publish(Change{SessionID: sessionID, Slot: slot})
	}
	return nil
}

// Clear removes slots (all slots when none are given) and publishes one
// change per slot
func (m *MemoryStore) Clear(ctx context.Context, sessionID string, slots ...Slot) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	slots = SlotsOrAll(slots)

	m.mu.Lock()
	if e, ok := m.sessions[sessionID]; ok {
		for _, slot := range slots {
			delete(e.values, slot)
		}
		if len(e.values) == 0 {
			delete(m.sessions, sessionID)
		}
	}
	m.mu.Unlock()

	for _, slot := range slots {
		m.hub.Publish(Change{SessionID: sessionID, Slot: slot, Cleared: true})
	}
	return nil
}

// OnChange registers a change subscriber
func (m *MemoryStore) OnChange(fn ChangeFunc) func() {
	return m.hub.Subscribe(fn)
}

// Sweep removes sessions idle for longer than the ttl and returns how many
// were removed
func (m *MemoryStore) Sweep(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}

	var removed []string
	m.mu.Lock()
	for id, e := range m.sessions {
		if m.expired(e, now) {
			delete(m.sessions, id)
			removed = append(removed, id)
		}
	}
	m.mu.Unlock()

	for _, id := range removed {
		for _, slot := range AllSlots {
			m.hub.Publish(Change{SessionID: id, Slot: slot, Cleared: true})
		}
	}
	return len(removed)
}

// Len returns the number of stored sessions
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
