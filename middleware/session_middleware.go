package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/upb/role-dashboard/config"
	"github.com/upb/role-dashboard/internal/auth"
	"github.com/upb/role-dashboard/internal/session"
	"github.com/upb/role-dashboard/models"
	"github.com/upb/role-dashboard/utils"
	"go.uber.org/zap"
)

// UserProvider resolves the token and user of a session
type UserProvider interface {
	Current(ctx context.Context, sessionID string) *models.User
	Token(ctx context.Context, sessionID string) (string, bool)
}

// SessionClearer removes session slots
type SessionClearer interface {
	Clear(ctx context.Context, sessionID string, slots ...session.Slot) error
}

// SessionMiddleware ties requests to a server-side session
type SessionMiddleware struct {
	provider UserProvider
	store    SessionClearer
	cfg      config.SessionConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionMiddleware creates a new SessionMiddleware
func NewSessionMiddleware(provider UserProvider, store SessionClearer, cfg config.SessionConfig, logger *zap.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		provider: provider,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// LoadSession reads the session cookie, issuing a new id when it is missing
// or malformed, and puts the session id, the token state and the current user
// snapshot in the request context. A session whose JWT access token has
// expired is cleared before anything reads it.
func (m *SessionMiddleware) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		sessionID := m.sessionID(w, r)
		ctx = WithSessionID(ctx, sessionID)

		token, hasToken := m.provider.Token(ctx, sessionID)
		if hasToken && auth.TokenExpired(token, m.now()) {
			m.logger.Info("access token expired, clearing session",
				zap.String("request_id", requestID),
				zap.String("session_id", sessionID))
			if err := m.store.Clear(ctx, sessionID); err != nil {
				m.logger.Error("failed to clear expired session",
					zap.String("request_id", requestID),
					zap.String("session_id", sessionID),
					zap.Error(err))
			}
			hasToken = false
		}

		ctx = WithAuthenticated(ctx, hasToken)
		ctx = WithUser(ctx, m.provider.Current(ctx, sessionID))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *SessionMiddleware) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(m.cfg.CookieName); err == nil {
		if utils.ValidateUUID(c.Value) == nil {
			return c.Value
		}
	}

	sessionID := uuid.NewString()
	m.SetSessionCookie(w, sessionID)
	return sessionID
}

// SetSessionCookie points the client at sessionID
func (m *SessionMiddleware) SetSessionCookie(w http.ResponseWriter, sessionID string) {
	cookie := &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if m.cfg.TTL > 0 {
		cookie.MaxAge = int(m.cfg.TTL.Seconds())
	}
	http.SetCookie(w, cookie)
}

// RequireToken rejects requests whose session holds no access token.
// Pages are redirected to /login, API calls get a 401.
func RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsAuthenticated(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}
		if utils.WantsJSON(r) {
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})
}

// RequireRoles allows the request only when the current user satisfies req.
// Denied page requests are served by denied, which must write the 403 status
// itself (a plain 403 when nil); API calls get a JSON 403.
func RequireRoles(req auth.Requirement, denied http.Handler, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			user := GetUserFromContext(ctx)
			if auth.Evaluate(user, req) {
				next.ServeHTTP(w, r)
				return
			}

			logger.Debug("role requirement not met",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("path", r.URL.Path),
				zap.Strings("required", req.Roles),
				zap.String("mode", req.Mode.String()),
				zap.Strings("roles", auth.RolesOf(user)))

			if utils.WantsJSON(r) {
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}
			if denied == nil {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			denied.ServeHTTP(w, r)
		})
	}
}
