package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/role-dashboard/internal/session"
	"github.com/upb/role-dashboard/models"
	"github.com/upb/role-dashboard/utils"
	"go.uber.org/zap"
)

// Auth actions reported to the AttemptRecorder
const (
	ActionLogin    = "login"
	ActionRegister = "register"
	ActionRefresh  = "refresh"
)

// LoginRequest is the sign-in form
type LoginRequest struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
}

// RegisterRequest is the sign-up form
type RegisterRequest struct {
	Name                 string `json:"name" form:"name" validate:"required,max=255"`
	Email                string `json:"email" form:"email" validate:"required,email"`
	Password             string `json:"password" form:"password" validate:"required"`
	PasswordConfirmation string `json:"password_confirmation" form:"password_confirmation" validate:"required"`
}

// AuthAPI is the remote authentication API
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Register(ctx context.Context, req RegisterRequest) error
	Me(ctx context.Context, token string) (*models.User, error)
}

// SignIn is the result of a successful login
type SignIn struct {
	// SessionID is the freshly issued session holding the token and user.
	SessionID string
	// User is nil when the API returned no profile.
	User *models.User
}

// AttemptRecorder observes the outcome of auth actions
type AttemptRecorder interface {
	AuthAttempt(action string, err error)
}

// AuthService signs users in and out and keeps the session slots in step
// with the remote API
type AuthService struct {
	api     AuthAPI
	store   session.Store
	metrics AttemptRecorder
	logger  *zap.Logger
	newID   func() string
}

// NewAuthService creates a new AuthService; metrics may be nil
func NewAuthService(api AuthAPI, store session.Store, metrics AttemptRecorder, logger *zap.Logger) *AuthService {
	return &AuthService{
		api:     api,
		store:   store,
		metrics: metrics,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

func (s *AuthService) record(action string, err error) {
	if s.metrics != nil {
		s.metrics.AuthAttempt(action, err)
	}
}

// Login authenticates against the API and stores the token and user under a
// new session id in one store write. The previous session is cleared once the
// new one is in place; on failure it is left as it was. The caller must hand
// the new id to the client.
func (s *AuthService) Login(ctx context.Context, sessionID string, req LoginRequest) (*SignIn, error) {
	signIn, err := s.login(ctx, sessionID, req)
	s.record(ActionLogin, err)
	return signIn, err
}

func (s *AuthService) login(ctx context.Context, sessionID string, req LoginRequest) (*SignIn, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	req.Email = strings.TrimSpace(req.Email)
	if err := validationError(utils.ValidateStruct(req), "email", "password"); err != nil {
		return nil, err
	}

	result, err := s.api.Login(ctx, req.Email, req.Password)
	if err != nil {
		s.logger.Info("login rejected",
			zap.String("session_id", sessionID),
			zap.String("email", req.Email),
			zap.Error(err))
		return nil, err
	}

	slots := map[session.Slot]string{session.SlotToken: result.Token}
	user := models.NormalizeUser(result.User)
	if user != nil {
		raw, err := user.Marshal()
		if err != nil {
			return nil, WrapInternal("failed to encode user", err)
		}
		slots[session.SlotUser] = raw
	}

	signIn := &SignIn{SessionID: s.newID(), User: user}
	if err := s.store.WriteSlots(ctx, signIn.SessionID, slots); err != nil {
		return nil, WrapError(ErrorTypeInternal, ErrSessionStore.Message, err)
	}

	if sessionID != signIn.SessionID {
		if err := s.store.Clear(ctx, sessionID); err != nil {
			s.logger.Warn("failed to clear previous session",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}

	if user == nil {
		s.logger.Warn("auth API returned no user profile", zap.String("session_id", signIn.SessionID))
		return signIn, nil
	}

	s.logger.Info("user signed in",
		zap.String("session_id", signIn.SessionID),
		zap.String("email", user.Email),
		zap.Strings("roles", user.Roles))
	return signIn, nil
}

// Register creates an account through the API. It never touches the session;
// the user signs in afterwards.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) error {
	err := s.register(ctx, req)
	s.record(ActionRegister, err)
	return err
}

func (s *AuthService) register(ctx context.Context, req RegisterRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)

	if err := validationError(utils.ValidateStruct(req), "name", "email", "password", "password_confirmation"); err != nil {
		return err
	}
	if req.Password != req.PasswordConfirmation {
		return ErrPasswordMismatch
	}
	if PasswordStrength(req.Password) < MinPasswordStrength {
		return ErrWeakPassword
	}

	if err := s.api.Register(ctx, req); err != nil {
		s.logger.Info("registration rejected",
			zap.String("email", req.Email),
			zap.Error(err))
		return err
	}

	s.logger.Info("account registered", zap.String("email", req.Email))
	return nil
}

// Logout clears every slot of the session
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.store.Clear(ctx, sessionID); err != nil {
		return WrapError(ErrorTypeInternal, ErrSessionStore.Message, err)
	}
	s.logger.Info("user signed out", zap.String("session_id", sessionID))
	return nil
}

// RefreshProfile reloads the user from the API and replaces the user slot.
// A token the API no longer accepts clears the whole session.
func (s *AuthService) RefreshProfile(ctx context.Context, sessionID string) (*models.User, error) {
	user, err := s.refreshProfile(ctx, sessionID)
	s.record(ActionRefresh, err)
	return user, err
}

func (s *AuthService) refreshProfile(ctx context.Context, sessionID string) (*models.User, error) {
	if sessionID == "" {
		return nil, ErrUnauthorized
	}

	token, ok, err := s.store.Read(ctx, sessionID, session.SlotToken)
	if err != nil {
		return nil, WrapError(ErrorTypeInternal, ErrSessionStore.Message, err)
	}
	if !ok || token == "" {
		return nil, ErrUnauthorized
	}

	user, err := s.api.Me(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			if clearErr := s.store.Clear(ctx, sessionID); clearErr != nil {
				return nil, WrapError(ErrorTypeInternal, ErrSessionStore.Message, clearErr)
			}
			s.logger.Info("token rejected, session cleared", zap.String("session_id", sessionID))
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	user = models.NormalizeUser(user)
	if user == nil {
		return nil, NewDomainError(ErrorTypeExternal, "auth API returned no user profile", nil)
	}
	if err := s.writeUser(ctx, sessionID, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) writeUser(ctx context.Context, sessionID string, user *models.User) error {
	raw, err := user.Marshal()
	if err != nil {
		return WrapInternal("failed to encode user", err)
	}
	if err := s.store.Write(ctx, sessionID, session.SlotUser, raw); err != nil {
		return WrapError(ErrorTypeInternal, ErrSessionStore.Message, err)
	}
	return nil
}

// validationError turns a validator failure into a validation DomainError
// whose message is the first failing field in order
func validationError(err error, order ...string) error {
	if err == nil {
		return nil
	}
	var vErr *utils.ValidationError
	if errors.As(err, &vErr) {
		return NewDomainError(ErrorTypeValidation, vErr.First(order...), vErr).
			WithDetail("fields", vErr.Fields)
	}
	return NewDomainError(ErrorTypeValidation, ErrInvalidInput.Message, err)
}
