package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/role-dashboard/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// SessionIDKey is the context key for the session id taken from the cookie
	SessionIDKey contextKey = "session_id"

	// UserKey is the context key for the current user snapshot
	UserKey contextKey = "user"

	// AuthenticatedKey is the context key marking a session that holds a token
	AuthenticatedKey contextKey = "authenticated"
)

// GetRequestIDFromContext retrieves the request ID from context.
// Falls back to the id assigned by chi's RequestID middleware.
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetSessionIDFromContext retrieves the session id from context
func GetSessionIDFromContext(ctx context.Context) string {
	if val := ctx.Value(SessionIDKey); val != nil {
		if sessionID, ok := val.(string); ok {
			return sessionID
		}
	}
	return ""
}

// WithSessionID adds a session id to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// GetUserFromContext retrieves the current user snapshot, or nil
func GetUserFromContext(ctx context.Context) *models.User {
	if val := ctx.Value(UserKey); val != nil {
		if user, ok := val.(*models.User); ok {
			return user
		}
	}
	return nil
}

// WithUser adds the current user snapshot to the context
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// IsAuthenticated reports whether the session carries an access token
func IsAuthenticated(ctx context.Context) bool {
	authenticated, _ := ctx.Value(AuthenticatedKey).(bool)
	return authenticated
}

// WithAuthenticated marks whether the session carries an access token
func WithAuthenticated(ctx context.Context, authenticated bool) context.Context {
	return context.WithValue(ctx, AuthenticatedKey, authenticated)
}
