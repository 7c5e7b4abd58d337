package postgres

import (
	"context"

	"github.com/upb/role-dashboard/config"
	"github.com/upb/role-dashboard/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db     *DB
	cfg    *config.Config
	logger *zap.Logger
}

// NewRepositoryFactory opens the database and prepares the session schema
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &RepositoryFactory{db: db, cfg: cfg, logger: logger}, nil
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		SessionSlots: NewSessionSlotRepository(f.db, f.logger),
	}
}

// NewSessionStore builds the session store over the session_slots table
func (f *RepositoryFactory) NewSessionStore() *SessionStore {
	return NewSessionStore(
		NewSessionSlotRepository(f.db, f.logger),
		f.GetTransactionManager(),
		f.cfg.Session.TTL,
		f.logger,
	)
}

// NewChangeListener subscribes store to changes written by other instances
func (f *RepositoryFactory) NewChangeListener(store *SessionStore) (*ChangeListener, error) {
	return NewChangeListener(f.cfg.Database.DSN(), store, f.logger)
}

// GetTransactionManager returns a transaction manager
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
