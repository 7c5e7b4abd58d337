package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/role-dashboard/internal/session"
	"github.com/upb/role-dashboard/models"
	"github.com/upb/role-dashboard/repositories"
	"go.uber.org/zap"
)

// SessionStore implements session.Store on top of the session_slots table.
// Writes and clears notify ChangeChannel inside their transaction so other
// instances drop their cached snapshots once the change commits.
type SessionStore struct {
	slots  repositories.SessionSlotRepository
	txm    repositories.TransactionManager
	hub    *session.Hub
	logger *zap.Logger
	origin string
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionStore creates a postgres backed session store; ttl <= 0 disables idle expiry
func NewSessionStore(slots repositories.SessionSlotRepository, txm repositories.TransactionManager, ttl time.Duration, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		slots:  slots,
		txm:    txm,
		hub:    session.NewHub(),
		logger: logger,
		origin: uuid.NewString(),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Origin identifies this store instance in change payloads
func (s *SessionStore) Origin() string {
	return s.origin
}

// Read returns the raw value of a slot; idle sessions read as empty
func (s *SessionStore) Read(ctx context.Context, sessionID string, slot session.Slot) (string, bool, error) {
	raw, _, ok, err := s.ReadExpiring(ctx, sessionID, slot)
	return raw, ok, err
}

// ReadExpiring returns the raw value of a slot and when the session goes idle
func (s *SessionStore) ReadExpiring(ctx context.Context, sessionID string, slot session.Slot) (string, time.Time, bool, error) {
	if sessionID == "" {
		return "", time.Time{}, false, session.ErrInvalidSessionID
	}

	row, err := s.slots.Get(ctx, sessionID, string(slot))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", time.Time{}, false, nil
		}
		return "", time.Time{}, false, err
	}

	if s.ttl <= 0 {
		return row.Value, time.Time{}, true, nil
	}
	expires := row.UpdatedAt.Add(s.ttl)
	if s.now().After(expires) {
		return "", time.Time{}, false, nil
	}
	return row.Value, expires, true, nil
}

// Write replaces the value of a slot
func (s *SessionStore) Write(ctx context.Context, sessionID string, slot session.Slot, raw string) error {
	return s.WriteSlots(ctx, sessionID, map[session.Slot]string{slot: raw})
}

// WriteSlots upserts several slots and notifies in one transaction
func (s *SessionStore) WriteSlots(ctx context.Context, sessionID string, values map[session.Slot]string) error {
	if sessionID == "" {
		return session.ErrInvalidSessionID
	}

	slots := session.OrderedSlots(values)
	updatedAt := s.now().UTC()

	err := s.txm.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		repo := s.slots.WithTx(tx)
		for _, slot := range slots {
			row := models.NewSessionSlot(sessionID, string(slot), values[slot])
			row.UpdatedAt = updatedAt
			if err := repo.Upsert(ctx, row); err != nil {
				return err
			}
		}
		for _, slot := range slots {
			change := session.Change{SessionID: sessionID, Slot: slot}
			if err := repo.Notify(ctx, EncodeChangePayload(s.origin, change)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, slot := range slots {
		s.hub.Publish(session.Change{SessionID: sessionID, Slot: slot})
	}
	return nil
}

// Clear removes the given slots, or every slot when none are given
func (s *SessionStore) Clear(ctx context.Context, sessionID string, slots ...session.Slot) error {
	if sessionID == "" {
		return session.ErrInvalidSessionID
	}

	slots = session.SlotsOrAll(slots)
	names := make([]string, len(slots))
	for i, slot := range slots {
		names[i] = string(slot)
	}

	err := s.txm.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		repo := s.slots.WithTx(tx)
		if _, err := repo.Delete(ctx, sessionID, names); err != nil {
			return err
		}
		for _, slot := range slots {
			change := session.Change{SessionID: sessionID, Slot: slot, Cleared: true}
			if err := repo.Notify(ctx, EncodeChangePayload(s.origin, change)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, slot := range slots {
		s.hub.Publish(session.Change{SessionID: sessionID, Slot: slot, Cleared: true})
	}
	return nil
}

// Sweep deletes sessions idle since before now minus the ttl and reports how
// many distinct sessions were removed
func (s *SessionStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}

	var removed []*models.SessionSlot
	err := s.txm.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		repo := s.slots.WithTx(tx)
		var err error
		removed, err = repo.DeleteIdle(ctx, now.Add(-s.ttl))
		if err != nil {
			return err
		}
		for _, row := range removed {
			change := session.Change{SessionID: row.SessionID, Slot: session.Slot(row.Slot), Cleared: true}
			if err := repo.Notify(ctx, EncodeChangePayload(s.origin, change)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	sessions := make(map[string]struct{})
	for _, row := range removed {
		sessions[row.SessionID] = struct{}{}
		s.hub.Publish(session.Change{SessionID: row.SessionID, Slot: session.Slot(row.Slot), Cleared: true})
	}
	return len(sessions), nil
}

// OnChange registers fn for change notifications
func (s *SessionStore) OnChange(fn session.ChangeFunc) func() {
	return s.hub.Subscribe(fn)
}

// Deliver republishes a change received from another instance.
// Payloads that originated here were already published and are ignored.
func (s *SessionStore) Deliver(payload string) error {
	origin, change, err := ParseChangePayload(payload)
	if err != nil {
		return err
	}
	if origin == s.origin {
		return nil
	}
	s.hub.Publish(change)
	return nil
}

// Invalidate publishes a change for every session, used after the change
// feed was interrupted and notifications may have been missed
func (s *SessionStore) Invalidate() {
	s.hub.Publish(session.Change{})
}
