package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/role-dashboard/config"
	"github.com/upb/role-dashboard/internal/session"
	"github.com/upb/role-dashboard/models"
	"go.uber.org/zap/zaptest"
)

func TestNewDependencies(t *testing.T) {
	t.Run("memory backend with metrics", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps)

		// Verify infrastructure
		assert.NotNil(t, deps.Config)
		assert.NotNil(t, deps.Logger)
		assert.NotNil(t, deps.Metrics)
		assert.NotNil(t, deps.GateObserver())

		// No database for the memory backend
		assert.Nil(t, deps.RepoFactory)
		assert.Nil(t, deps.DB)
		assert.IsType(t, &session.MemoryStore{}, deps.Store)
		assert.Equal(t, config.SessionBackendMemory, deps.SessionBackend())

		// Verify auth wiring
		assert.NotNil(t, deps.Provider)
		assert.NotNil(t, deps.AuthAPI)
		assert.NotNil(t, deps.AuthService)
		assert.NotNil(t, deps.SessionMiddleware)
		assert.NotNil(t, deps.RateLimiter)

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("metrics disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.Observability.MetricsEnabled = false

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.Nil(t, deps.Metrics)
		assert.Nil(t, deps.GateObserver())
		assert.NoError(t, deps.Close(context.Background()))
	})

	t.Run("database connection failure", func(t *testing.T) {
		cfg := testConfig()
		cfg.Session.Backend = config.SessionBackendPostgres
		cfg.Database = config.DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     1,
			User:     "dashboard",
			Database: "dashboard_test",
			SSLMode:  "disable",
		}

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})
}

func TestDependenciesProviderSeesStoreWrites(t *testing.T) {
	ctx := context.Background()
	deps, err := NewDependencies(ctx, testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer deps.Close(ctx)

	sid := "0b1e6a8c-3f4d-4e8a-9d2c-7c1f5b6a2e90"
	assert.Nil(t, deps.Provider.Current(ctx, sid))

	raw, err := (&models.User{Name: "Ana", Roles: []string{"admin"}}).Marshal()
	require.NoError(t, err)
	require.NoError(t, deps.Store.Write(ctx, sid, session.SlotUser, raw))

	user := deps.Provider.Current(ctx, sid)
	require.NotNil(t, user)
	assert.Equal(t, "Ana", user.Name)

	require.NoError(t, deps.AuthService.Logout(ctx, sid))
	assert.Nil(t, deps.Provider.Current(ctx, sid))
}

func TestDependenciesStartAndClose(t *testing.T) {
	t.Run("sweeper removes expired sessions", func(t *testing.T) {
		cfg := testConfig()
		cfg.Session.TTL = 10 * time.Millisecond
		cfg.Session.SweepInterval = 5 * time.Millisecond

		ctx := context.Background()
		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		store := deps.Store.(*session.MemoryStore)
		require.NoError(t, store.Write(ctx, "expiring", session.SlotToken, "tok"))

		deps.Start(ctx)
		assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("second close is a no-op", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)

		deps.Start(ctx)
		assert.NoError(t, deps.Close(ctx))
		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("close without start", func(t *testing.T) {
		deps, err := NewDependencies(context.Background(), testConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.NoError(t, deps.Close(context.Background()))
	})
}

// Test helpers

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"http://localhost:8080"},
		},
		AuthAPI: config.AuthAPIConfig{
			BaseURL: "http://127.0.0.1:8000/api",
			Timeout: 5 * time.Second,
		},
		Session: config.SessionConfig{
			Backend:       config.SessionBackendMemory,
			CookieName:    "dashboard_session",
			TTL:           time.Hour,
			SweepInterval: time.Minute,
		},
		RateLimit: config.RateLimitConfig{
			LoginPerMinute: 10,
			LoginBurst:     5,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:       "debug",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}
