package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/role-dashboard/config"
	"github.com/upb/role-dashboard/internal/auth"
	"github.com/upb/role-dashboard/internal/session"
	"github.com/upb/role-dashboard/models"
	"go.uber.org/zap"
)

const testCookie = "dashboard_session"

func newTestSessionMiddleware(t *testing.T) (*SessionMiddleware, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore(0)
	provider := session.NewProvider(store, zap.NewNop())
	t.Cleanup(provider.Close)

	m := NewSessionMiddleware(provider, store, config.SessionConfig{
		CookieName: testCookie,
		TTL:        time.Hour,
	}, zap.NewNop())
	return m, store
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

// captured holds what LoadSession put in the request context
type captured struct {
	sessionID     string
	authenticated bool
	user          *models.User
}

func capture(out *captured) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		out.sessionID = GetSessionIDFromContext(ctx)
		out.authenticated = IsAuthenticated(ctx)
		out.user = GetUserFromContext(ctx)
		w.WriteHeader(http.StatusOK)
	})
}

func TestLoadSession(t *testing.T) {
	ctx := context.Background()

	t.Run("issues a cookie when none is sent", func(t *testing.T) {
		m, _ := newTestSessionMiddleware(t)
		var got captured

		w := httptest.NewRecorder()
		m.LoadSession(capture(&got)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, testCookie, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
		assert.Equal(t, 3600, cookies[0].MaxAge)
		assert.Equal(t, cookies[0].Value, got.sessionID)
		assert.False(t, got.authenticated)
		assert.Nil(t, got.user)
	})

	t.Run("reuses a valid cookie", func(t *testing.T) {
		m, store := newTestSessionMiddleware(t)
		sessionID := uuid.NewString()
		require.NoError(t, store.Write(ctx, sessionID, session.SlotToken, "opaque-token"))
		require.NoError(t, store.Write(ctx, sessionID, session.SlotUser, `{"name":"Ann","roles":["admin"]}`))

		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		req.AddCookie(&http.Cookie{Name: testCookie, Value: sessionID})
		w := httptest.NewRecorder()
		var got captured
		m.LoadSession(capture(&got)).ServeHTTP(w, req)

		assert.Empty(t, w.Result().Cookies())
		assert.Equal(t, sessionID, got.sessionID)
		assert.True(t, got.authenticated)
		require.NotNil(t, got.user)
		assert.Equal(t, []string{"admin"}, got.user.Roles)
	})

	t.Run("replaces a malformed cookie", func(t *testing.T) {
		m, _ := newTestSessionMiddleware(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: testCookie, Value: "../../etc/passwd"})
		w := httptest.NewRecorder()
		var got captured
		m.LoadSession(capture(&got)).ServeHTTP(w, req)

		require.Len(t, w.Result().Cookies(), 1)
		assert.NotEqual(t, "../../etc/passwd", got.sessionID)
		assert.NoError(t, uuid.Validate(got.sessionID))
	})

	t.Run("expired token clears the session", func(t *testing.T) {
		m, store := newTestSessionMiddleware(t)
		sessionID := uuid.NewString()
		require.NoError(t, store.Write(ctx, sessionID, session.SlotToken, signedToken(t, time.Now().Add(-time.Minute))))
		require.NoError(t, store.Write(ctx, sessionID, session.SlotUser, `{"name":"Ann","roles":["admin"]}`))

		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		req.AddCookie(&http.Cookie{Name: testCookie, Value: sessionID})
		var got captured
		m.LoadSession(capture(&got)).ServeHTTP(httptest.NewRecorder(), req)

		assert.False(t, got.authenticated)
		assert.Nil(t, got.user)
		_, ok, err := store.Read(ctx, sessionID, session.SlotUser)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unexpired token is kept", func(t *testing.T) {
		m, store := newTestSessionMiddleware(t)
		sessionID := uuid.NewString()
		require.NoError(t, store.Write(ctx, sessionID, session.SlotToken, signedToken(t, time.Now().Add(time.Hour))))

		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		req.AddCookie(&http.Cookie{Name: testCookie, Value: sessionID})
		var got captured
		m.LoadSession(capture(&got)).ServeHTTP(httptest.NewRecorder(), req)

		assert.True(t, got.authenticated)
	})
}

func TestRequireToken(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name          string
		path          string
		accept        string
		authenticated bool
		wantStatus    int
		wantLocation  string
	}{
		{name: "authenticated page", path: "/dashboard", authenticated: true, wantStatus: http.StatusOK},
		{name: "anonymous page redirects", path: "/dashboard", wantStatus: http.StatusSeeOther, wantLocation: "/login"},
		{name: "anonymous API call", path: "/api/v1/me", wantStatus: http.StatusUnauthorized},
		{name: "anonymous JSON accept", path: "/dashboard", accept: "application/json", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			req = req.WithContext(WithAuthenticated(req.Context(), tt.authenticated))
			w := httptest.NewRecorder()

			RequireToken(ok).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantLocation, w.Header().Get("Location"))
		})
	}
}

func TestRequireRoles(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	denied := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("403 page"))
	})

	admin := &models.User{Name: "Ann", Roles: []string{"admin"}}
	both := &models.User{Name: "Bo", Roles: []string{"admin", "manager"}}

	tests := []struct {
		name       string
		req        auth.Requirement
		user       *models.User
		path       string
		denied     http.Handler
		wantStatus int
		wantBody   string
	}{
		{name: "single role granted", req: auth.AnyOf("admin"), user: admin, path: "/admin/users", wantStatus: http.StatusOK},
		{name: "any mode granted", req: auth.AnyOf("manager", "admin"), user: admin, path: "/reports", wantStatus: http.StatusOK},
		{name: "all mode denied", req: auth.AllOf("admin", "manager"), user: admin, path: "/ops", denied: denied, wantStatus: http.StatusForbidden, wantBody: "403 page"},
		{name: "all mode granted", req: auth.AllOf("admin", "manager"), user: both, path: "/ops", wantStatus: http.StatusOK},
		{name: "no user denied", req: auth.AnyOf("user"), path: "/profile", denied: denied, wantStatus: http.StatusForbidden, wantBody: "403 page"},
		{name: "plain 403 without page", req: auth.AnyOf("manager"), user: admin, path: "/manager/reports", wantStatus: http.StatusForbidden, wantBody: "Forbidden"},
		{name: "API call gets JSON", req: auth.AnyOf("manager"), user: admin, path: "/api/v1/reports", denied: denied, wantStatus: http.StatusForbidden, wantBody: "Insufficient permissions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req = req.WithContext(WithUser(req.Context(), tt.user))
			w := httptest.NewRecorder()

			RequireRoles(tt.req, tt.denied, zap.NewNop())(ok).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

type fakeRecorder struct {
	limited []string
	routes  []string
	status  []int
}

func (f *fakeRecorder) RateLimited(route string) { f.limited = append(f.limited, route) }

func (f *fakeRecorder) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	f.routes = append(f.routes, method+" "+route)
	f.status = append(f.status, status)
}

func TestIPRateLimiter(t *testing.T) {
	rec := &fakeRecorder{}
	limiter := NewIPRateLimiter(config.RateLimitConfig{LoginPerMinute: 1, LoginBurst: 2}, rec, zap.NewNop())
	handler := limiter.Limit(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(method, ip string) int {
		req := httptest.NewRequest(method, "/login", nil)
		req.RemoteAddr = ip + ":12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPost, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "10.0.0.1"), "rendering the form is never limited")
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "10.0.0.2"), "limits are per client")
	assert.Equal(t, []string{"/login"}, rec.limited)

	limiter.now = func() time.Time { return time.Now().Add(time.Hour) }
	assert.Equal(t, 2, limiter.Prune())
}

func TestIPRateLimiter_Disabled(t *testing.T) {
	limiter := NewIPRateLimiter(config.RateLimitConfig{}, nil, zap.NewNop())
	for i := 0; i < 100; i++ {
		require.True(t, limiter.Allow("10.0.0.1"))
	}
}

func TestInstrument(t *testing.T) {
	rec := &fakeRecorder{}
	r := chi.NewRouter()
	r.Use(Instrument(rec, zap.NewNop()))
	r.Get("/admin/{page}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin/users", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, []string{"GET /admin/{page}", "GET /healthz"}, rec.routes)
	assert.Equal(t, []int{http.StatusForbidden, http.StatusOK}, rec.status)
}
