// Package session holds the server-side session store and the current-user
// provider built on top of it.
//
// A session is addressed by an opaque id (carried in a cookie) and has two
// slots: the access token issued by the auth API and the cached user profile.
// Stores publish a Change after every successful write or clear so readers can
// drop stale snapshots.
package session

import (
	"context"
	"errors"
	"time"
)

// Slot names one stored value of a session
type Slot string

const (
	SlotToken Slot = "token"
	SlotUser  Slot = "user"
)

// AllSlots lists every slot a session can hold
var AllSlots = []Slot{SlotToken, SlotUser}

// ErrInvalidSessionID is returned for an empty session id
var ErrInvalidSessionID = errors.New("session id cannot be empty")

// Change describes a completed write or clear.
// An empty SessionID means any session may have changed.
type Change struct {
	SessionID string
	Slot      Slot
	Cleared   bool
}

// ChangeFunc receives store change notifications
type ChangeFunc func(Change)

// Store persists session slots as raw strings.
// Implementations must be safe for concurrent use and must publish a Change
// only after the write is visible to subsequent reads.
type Store interface {
	// Read returns the raw value of a slot; ok is false when the slot is empty
	Read(ctx context.Context, sessionID string, slot Slot) (raw string, ok bool, err error)

	// Write replaces the value of a slot
	Write(ctx context.Context, sessionID string, slot Slot, raw string) error

	// WriteSlots replaces several slots at once; readers never observe a
	// subset of them
	WriteSlots(ctx context.Context, sessionID string, values map[Slot]string) error

	// Clear removes the given slots, or every slot when none are given
	Clear(ctx context.Context, sessionID string, slots ...Slot) error

	// OnChange registers fn for change notifications and returns a function
	// that removes the registration
	OnChange(fn ChangeFunc) (unsubscribe func())
}

// ExpiryReader is implemented by stores with idle expiry. expires is the
// instant the session stops being readable; zero means it never expires.
type ExpiryReader interface {
	ReadExpiring(ctx context.Context, sessionID string, slot Slot) (raw string, expires time.Time, ok bool, err error)
}

// OrderedSlots returns the slots present in values in AllSlots order
func OrderedSlots(values map[Slot]string) []Slot {
	slots := make([]Slot, 0, len(values))
	for _, slot := range AllSlots {
		if _, ok := values[slot]; ok {
			slots = append(slots, slot)
		}
	}
	return slots
}

// All reports whether the change applies to every session
func (c Change) All() bool {
	return c.SessionID == ""
}

// SlotsOrAll returns slots, or AllSlots when slots is empty
func SlotsOrAll(slots []Slot) []Slot {
	if len(slots) == 0 {
		return AllSlots
	}
	return slots
}
