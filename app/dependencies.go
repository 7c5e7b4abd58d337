package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/upb/role-dashboard/config"
	"github.com/upb/role-dashboard/internal/gate"
	"github.com/upb/role-dashboard/internal/observability"
	"github.com/upb/role-dashboard/internal/session"
	"github.com/upb/role-dashboard/middleware"
	"github.com/upb/role-dashboard/repositories"
	"github.com/upb/role-dashboard/repositories/postgres"
	"github.com/upb/role-dashboard/services"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics // nil when metrics are disabled

	// Set only for the postgres session backend
	RepoFactory  *postgres.RepositoryFactory
	DB           *postgres.DB
	Repositories *repositories.Repositories
	listener     *postgres.ChangeListener

	// Sessions
	Store    session.Store
	Provider *session.Provider
	sweep    func(ctx context.Context, now time.Time) (int, error)

	// Auth
	AuthAPI     *services.AuthAPIClient
	AuthService *services.AuthService

	// HTTP
	SessionMiddleware *middleware.SessionMiddleware
	RateLimiter       *middleware.IPRateLimiter

	unsubscribe []func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics()
	}

	if err := deps.initSessionStore(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	deps.initSessions()
	deps.initAuth()

	logger.Info("dependencies initialized",
		zap.String("session_backend", cfg.Session.Backend),
		zap.Bool("metrics_enabled", deps.Metrics != nil))

	return deps, nil
}

// initSessionStore picks the session backend
func (d *Dependencies) initSessionStore(ctx context.Context) error {
	if !d.Config.UsesPostgres() {
		store := session.NewMemoryStore(d.Config.Session.TTL)
		d.Store = store
		d.sweep = func(_ context.Context, now time.Time) (int, error) {
			return store.Sweep(now), nil
		}
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(ctx, d.Config, d.Logger.Named("postgres"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	store := factory.NewSessionStore()
	listener, err := factory.NewChangeListener(store)
	if err != nil {
		factory.Close()
		return fmt.Errorf("failed to start session change listener: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()
	d.Repositories = factory.NewRepositories()
	d.listener = listener
	d.Store = store
	d.sweep = store.Sweep
	return nil
}

// initSessions wires the current-user provider and metrics over the store
func (d *Dependencies) initSessions() {
	if d.Metrics != nil {
		d.unsubscribe = append(d.unsubscribe, d.Store.OnChange(d.Metrics.SessionChange))
	}
	d.Provider = session.NewProvider(d.Store, d.Logger.Named("session"))
}

// initAuth wires the auth API client, auth service and HTTP guards
func (d *Dependencies) initAuth() {
	var (
		attempts services.AttemptRecorder
		limited  middleware.RateLimitRecorder
	)
	if d.Metrics != nil {
		attempts = d.Metrics
		limited = d.Metrics
	}

	d.AuthAPI = services.NewAuthAPIClient(d.Config.AuthAPI, d.Logger.Named("auth_api"))
	d.AuthService = services.NewAuthService(d.AuthAPI, d.Store, attempts, d.Logger.Named("auth"))
	d.SessionMiddleware = middleware.NewSessionMiddleware(d.Provider, d.Store, d.Config.Session, d.Logger)
	d.RateLimiter = middleware.NewIPRateLimiter(d.Config.RateLimit, limited, d.Logger)
}

// GateObserver reports gate decisions to metrics; nil when metrics are disabled
func (d *Dependencies) GateObserver() gate.Observer {
	if d.Metrics == nil {
		return nil
	}
	return d.Metrics.GateDecision
}

// SessionBackend names the configured session backend
func (d *Dependencies) SessionBackend() string {
	return d.Config.Session.Backend
}

// Start launches background work: the expiry sweeper and, for postgres, the
// change listener. It returns immediately.
func (d *Dependencies) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)

	if d.listener != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.listener.Run(ctx)
		}()
	}

	interval := d.Config.Session.SweepInterval
	if interval <= 0 {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				d.runSweep(ctx, now)
			}
		}
	}()
}

func (d *Dependencies) runSweep(ctx context.Context, now time.Time) {
	removed, err := d.sweep(ctx, now)
	if err != nil {
		d.Logger.Warn("session sweep failed", zap.Error(err))
	} else if removed > 0 {
		d.Logger.Debug("expired sessions removed", zap.Int("count", removed))
	}

	if pruned := d.RateLimiter.Prune(); pruned > 0 {
		d.Logger.Debug("idle rate limiters pruned", zap.Int("count", pruned))
	}
}

// Close gracefully shuts down all dependencies. Calling it twice is safe.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error

	d.closeOnce.Do(func() {
		d.Logger.Info("closing dependencies")

		if d.cancel != nil {
			d.cancel()
		}
		d.wg.Wait()

		if d.listener != nil {
			if err := d.listener.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close change listener: %w", err))
			}
		}

		if d.Provider != nil {
			d.Provider.Close()
		}
		for _, unsubscribe := range d.unsubscribe {
			unsubscribe()
		}

		if d.RepoFactory != nil {
			if err := d.RepoFactory.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close database: %w", err))
			}
		}
	})

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	d.Logger.Info("dependencies closed successfully")
	return nil
}
