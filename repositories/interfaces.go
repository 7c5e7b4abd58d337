package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/upb/role-dashboard/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// SessionSlotRepository handles session slot rows
type SessionSlotRepository interface {
	// Get retrieves one slot of a session; ErrNotFound when it is empty
	Get(ctx context.Context, sessionID, slot string) (*models.SessionSlot, error)

	// Upsert inserts or replaces a slot and refreshes the session's idle clock
	Upsert(ctx context.Context, slot *models.SessionSlot) error

	// Delete removes the named slots of a session
	Delete(ctx context.Context, sessionID string, slots []string) (int64, error)

	// DeleteIdle removes every slot last touched before cutoff
	DeleteIdle(ctx context.Context, cutoff time.Time) ([]*models.SessionSlot, error)

	// Notify publishes a change payload to other instances
	Notify(ctx context.Context, payload string) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) SessionSlotRepository
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	SessionSlots SessionSlotRepository
}
