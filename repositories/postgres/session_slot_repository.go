package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/upb/role-dashboard/models"
	"github.com/upb/role-dashboard/repositories"
	"go.uber.org/zap"
)

// ChangeChannel is the NOTIFY channel carrying session changes
const ChangeChannel = "session_changes"

// SessionSlotRepository implements the repositories.SessionSlotRepository interface
type SessionSlotRepository struct {
	db     *DB
	tx     *sql.Tx // set by WithTx
	logger *zap.Logger
}

// NewSessionSlotRepository creates a new session slot repository
func NewSessionSlotRepository(db *DB, logger *zap.Logger) repositories.SessionSlotRepository {
	return &SessionSlotRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves one slot of a session
func (r *SessionSlotRepository) Get(ctx context.Context, sessionID, slot string) (*models.SessionSlot, error) {
	query := `
		SELECT session_id, slot, value, updated_at
		FROM session_slots
		WHERE session_id = $1 AND slot = $2
	`

	executor := r.executor(ctx)
	row := &models.SessionSlot{}

	err := executor.QueryRowContext(ctx, query, sessionID, slot).Scan(
		&row.SessionID,
		&row.Slot,
		&row.Value,
		&row.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session slot: %w", err)
	}

	return row, nil
}

// Upsert inserts or replaces a slot. Every other slot of the session is
// touched too so the session ages as a unit.
func (r *SessionSlotRepository) Upsert(ctx context.Context, slot *models.SessionSlot) error {
	upsert := `
		INSERT INTO session_slots (session_id, slot, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, slot)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	touch := `UPDATE session_slots SET updated_at = $2 WHERE session_id = $1`

	executor := r.executor(ctx)
	if _, err := executor.ExecContext(ctx, upsert,
		slot.SessionID,
		slot.Slot,
		slot.Value,
		slot.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert session slot: %w", err)
	}

	if _, err := executor.ExecContext(ctx, touch, slot.SessionID, slot.UpdatedAt); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	r.logger.Debug("session slot written",
		zap.String("session_id", slot.SessionID),
		zap.String("slot", slot.Slot))
	return nil
}

// Delete removes the named slots of a session
func (r *SessionSlotRepository) Delete(ctx context.Context, sessionID string, slots []string) (int64, error) {
	query := `DELETE FROM session_slots WHERE session_id = $1 AND slot = ANY($2)`

	executor := r.executor(ctx)
	result, err := executor.ExecContext(ctx, query, sessionID, pq.Array(slots))
	if err != nil {
		return 0, fmt.Errorf("failed to delete session slots: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// DeleteIdle removes every slot last touched before cutoff and returns the removed rows
func (r *SessionSlotRepository) DeleteIdle(ctx context.Context, cutoff time.Time) ([]*models.SessionSlot, error) {
	query := `
		DELETE FROM session_slots
		WHERE updated_at < $1
		RETURNING session_id, slot, value, updated_at
	`

	executor := r.executor(ctx)
	rows, err := executor.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete idle sessions: %w", err)
	}
	defer rows.Close()

	var removed []*models.SessionSlot
	for rows.Next() {
		row := &models.SessionSlot{}
		if err := rows.Scan(&row.SessionID, &row.Slot, &row.Value, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session slot: %w", err)
		}
		removed = append(removed, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session slots: %w", err)
	}

	return removed, nil
}

// Notify publishes payload on ChangeChannel; delivery happens on commit
func (r *SessionSlotRepository) Notify(ctx context.Context, payload string) error {
	executor := r.executor(ctx)
	if _, err := executor.ExecContext(ctx, `SELECT pg_notify($1, $2)`, ChangeChannel, payload); err != nil {
		return fmt.Errorf("failed to notify session change: %w", err)
	}
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *SessionSlotRepository) WithTx(tx repositories.Transaction) repositories.SessionSlotRepository {
	bound := *r
	if t, ok := tx.(*Transaction); ok {
		bound.tx = t.tx
	}
	return &bound
}

func (r *SessionSlotRepository) executor(ctx context.Context) Executor {
	if r.tx != nil {
		return r.tx
	}
	return GetExecutor(ctx, r.db)
}
