package session

import (
	"context"
	"sync"
	"time"

	"github.com/upb/role-dashboard/models"
	"go.uber.org/zap"
)

// snapshot is a resolved user record. expires is when the session goes idle
// in the store; zero means never.
type snapshot struct {
	user    *models.User
	expires time.Time
}

func (s snapshot) stale(now time.Time) bool {
	return !s.expires.IsZero() && now.After(s.expires)
}

// Provider is the single source of truth for "who is the active user".
// It resolves the user slot of a session into a normalized record and keeps
// that snapshot until the store reports a change for the session or the
// session's idle expiry passes. Only signed-in sessions are cached, so the
// cache never outgrows the store.
type Provider struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]snapshot
	gen   uint64 // bumped on every change

	hub         *Hub
	unsubscribe func()
}

// NewProvider creates a Provider and subscribes it to store changes
func NewProvider(store Store, logger *zap.Logger) *Provider {
	p := &Provider{
		store:  store,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]snapshot),
		hub:    NewHub(),
	}
	p.unsubscribe = store.OnChange(p.handleChange)
	return p
}

// Current returns the signed-in user of a session, or nil.
// Malformed stored data and store failures are logged and read as "no user".
func (p *Provider) Current(ctx context.Context, sessionID string) *models.User {
	if sessionID == "" {
		return nil
	}

	p.mu.RLock()
	snap, cached := p.cache[sessionID]
	gen := p.gen
	p.mu.RUnlock()
	if cached {
		if !snap.stale(p.now()) {
			return snap.user
		}
		p.evict(sessionID, snap)
	}

	snap = p.resolve(ctx, sessionID)
	if snap.user == nil {
		return nil
	}

	p.mu.Lock()
	// A change may have landed while resolving; only cache if none did.
	if p.gen == gen {
		p.cache[sessionID] = snap
	}
	p.mu.Unlock()

	return snap.user
}

// evict drops an expired snapshot unless it was already replaced
func (p *Provider) evict(sessionID string, snap snapshot) {
	p.mu.Lock()
	if cur, ok := p.cache[sessionID]; ok && cur.user == snap.user {
		delete(p.cache, sessionID)
	}
	p.mu.Unlock()
}

func (p *Provider) resolve(ctx context.Context, sessionID string) snapshot {
	raw, expires, ok, err := p.read(ctx, sessionID)
	if err != nil {
		p.logger.Error("failed to read user from session store",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return snapshot{}
	}
	if !ok {
		return snapshot{}
	}

	user, err := models.ParseUser(raw)
	if err != nil {
		p.logger.Warn("discarding malformed user record",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return snapshot{}
	}
	return snapshot{user: user, expires: expires}
}

func (p *Provider) read(ctx context.Context, sessionID string) (string, time.Time, bool, error) {
	if er, ok := p.store.(ExpiryReader); ok {
		return er.ReadExpiring(ctx, sessionID, SlotUser)
	}
	raw, ok, err := p.store.Read(ctx, sessionID, SlotUser)
	return raw, time.Time{}, ok, err
}

// Token returns the access token stored for a session
func (p *Provider) Token(ctx context.Context, sessionID string) (string, bool) {
	if sessionID == "" {
		return "", false
	}
	raw, ok, err := p.store.Read(ctx, sessionID, SlotToken)
	if err != nil {
		p.logger.Error("failed to read token from session store",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return "", false
	}
	return raw, ok && raw != ""
}

func (p *Provider) handleChange(c Change) {
	p.mu.Lock()
	if c.All() {
		p.cache = make(map[string]snapshot)
	} else {
		delete(p.cache, c.SessionID)
	}
	p.gen++
	p.mu.Unlock()

	p.logger.Debug("session changed",
		zap.String("session_id", c.SessionID),
		zap.String("slot", string(c.Slot)),
		zap.Bool("cleared", c.Cleared))

	p.hub.Publish(c)
}

// Subscribe registers fn to run after the provider has dropped its snapshot
// for a changed session
func (p *Provider) Subscribe(fn ChangeFunc) func() {
	return p.hub.Subscribe(fn)
}

// Len returns the number of cached snapshots
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.cache)
}

// Close detaches the provider from its store
func (p *Provider) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
}
