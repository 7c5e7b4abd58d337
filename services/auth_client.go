package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/upb/role-dashboard/config"
	"github.com/upb/role-dashboard/models"
	"go.uber.org/zap"
)

// APIError is a non-2xx answer from the auth API other than 401
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("auth API returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("auth API returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// LoginResult is the token and profile returned by a successful login
type LoginResult struct {
	Token string
	User  *models.User
}

// loginResponse accepts both {"data":{"access_token","user"}} and a top-level token
type loginResponse struct {
	Token string `json:"token"`
	Data  struct {
		AccessToken string       `json:"access_token"`
		User        *models.User `json:"user"`
	} `json:"data"`
}

// registerPayload is the body of POST auth/register
type registerPayload struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// AuthAPIClient talks to the remote authentication API
type AuthAPIClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAuthAPIClient creates a client for cfg.BaseURL
func NewAuthAPIClient(cfg config.AuthAPIConfig, logger *zap.Logger) *AuthAPIClient {
	return &AuthAPIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Login exchanges credentials for an access token and profile
func (c *AuthAPIClient) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var resp loginResponse
	err := c.Fetch(ctx, "", http.MethodPost, "auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.Is(err, ErrUnauthorized) ||
			(errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	token := resp.Data.AccessToken
	if token == "" {
		token = resp.Token
	}
	if token == "" {
		c.logger.Warn("auth API returned no access token")
		return nil, ErrAuthAPIError
	}

	return &LoginResult{Token: token, User: resp.Data.User}, nil
}

// Register creates an account; it never signs the user in
func (c *AuthAPIClient) Register(ctx context.Context, req RegisterRequest) error {
	err := c.Fetch(ctx, "", http.MethodPost, "auth/register", registerPayload{
		Name:                 req.Name,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	}, nil)
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	message := apiErr.Message
	if message == "" {
		message = "registration failed"
	}
	switch apiErr.StatusCode {
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return NewDomainError(ErrorTypeValidation, message, apiErr)
	case http.StatusConflict:
		if apiErr.Message == "" {
			return WrapError(ErrorTypeConflict, ErrDuplicateEmail.Message, apiErr)
		}
		return NewDomainError(ErrorTypeConflict, message, apiErr)
	default:
		return NewDomainError(ErrorTypeExternal, message, apiErr)
	}
}

// Me fetches the profile belonging to token
func (c *AuthAPIClient) Me(ctx context.Context, token string) (*models.User, error) {
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := c.Fetch(ctx, token, http.MethodGet, "auth/me", nil, &resp); err != nil {
		return nil, err
	}

	// The profile may be the data object itself or nested under data.user.
	var nested struct {
		User *models.User `json:"user"`
	}
	if err := json.Unmarshal(resp.Data, &nested); err == nil && nested.User != nil {
		return nested.User, nil
	}

	var user models.User
	if err := json.Unmarshal(resp.Data, &user); err != nil {
		return nil, WrapExternal("failed to decode profile", err)
	}
	return &user, nil
}

// Fetch performs a JSON request against the API. The endpoint is relative to
// the base URL; leading slashes are ignored. A non-empty token is sent as a
// bearer credential. 401 yields ErrUnauthorized, other non-2xx an *APIError.
func (c *AuthAPIClient) Fetch(ctx context.Context, token, method, endpoint string, body, out interface{}) error {
	url := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("auth API request failed",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return NewDomainError(ErrorTypeExternal, ErrAuthAPIUnavailable.Message, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return WrapExternal("read auth API response", err)
	}

	c.logger.Debug("auth API response",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode))

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return WrapExternal("decode auth API response", err)
	}
	return nil
}

// errorMessage pulls "message" out of an error body, if any
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.Message
}
