package handlers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/upb/role-dashboard/internal/gate"
	"github.com/upb/role-dashboard/middleware"
	"github.com/upb/role-dashboard/models"
	"github.com/upb/role-dashboard/services"
	"go.uber.org/zap"
)

// registeredMessage is shown on the login page after a successful sign-up
const registeredMessage = "Registration successful! Please sign in."

// AuthFlow signs users in and out
type AuthFlow interface {
	Login(ctx context.Context, sessionID string, req services.LoginRequest) (*services.SignIn, error)
	Register(ctx context.Context, req services.RegisterRequest) error
	Logout(ctx context.Context, sessionID string) error
	RefreshProfile(ctx context.Context, sessionID string) (*models.User, error)
}

// SessionCookies hands a session id to the client
type SessionCookies interface {
	SetSessionCookie(w http.ResponseWriter, sessionID string)
}

// PageHandler serves the HTML pages
type PageHandler struct {
	auth    AuthFlow
	cookies SessionCookies
	views   *Views
	layout  gate.Layout
	observe gate.Observer
	logger  *zap.Logger
}

// NewPageHandler creates a new PageHandler; observe may be nil
func NewPageHandler(auth AuthFlow, cookies SessionCookies, views *Views, observe gate.Observer, logger *zap.Logger) *PageHandler {
	return &PageHandler{
		auth:    auth,
		cookies: cookies,
		views:   views,
		layout:  DashboardLayout(views),
		observe: observe,
		logger:  logger,
	}
}

type loginData struct {
	Title   string
	Message string
	Email   string
	Error   string
}

type registerData struct {
	Title string
	Name  string
	Email string
	Error string
}

type dashboardData struct {
	pageData
	Sections []gate.Rendered
}

type rolePageData struct {
	pageData
	Heading     string
	Description string
}

func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, status int, name string, data interface{}) {
	if err := h.views.Render(w, status, name, data); err != nil {
		h.logger.Error("failed to render page",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("template", name),
			zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// HandleLoginPage handles GET /login
func (h *PageHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.render(w, r, http.StatusOK, "login", loginData{
		Title:   "Sign in",
		Message: q.Get("message"),
		Email:   q.Get("email"),
	})
}

// HandleLogin handles POST /login
func (h *PageHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, "login", loginData{Title: "Sign in", Error: "Invalid form submission"})
		return
	}

	req := services.LoginRequest{
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
	}

	signIn, err := h.auth.Login(ctx, middleware.GetSessionIDFromContext(ctx), req)
	if err != nil {
		h.logFormError(r, "login", err)
		h.render(w, r, statusForError(err), "login", loginData{
			Title: "Sign in",
			Email: req.Email,
			Error: formMessage(err, "Login failed"),
		})
		return
	}

	h.cookies.SetSessionCookie(w, signIn.SessionID)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HandleRegisterPage handles GET /register
func (h *PageHandler) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "register", registerData{Title: "Register"})
}

// HandleRegister handles POST /register. A new account is not signed in;
// the user is sent to the login page with the email prefilled.
func (h *PageHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, "register", registerData{Title: "Register", Error: "Invalid form submission"})
		return
	}

	req := services.RegisterRequest{
		Name:                 r.PostForm.Get("name"),
		Email:                r.PostForm.Get("email"),
		Password:             r.PostForm.Get("password"),
		PasswordConfirmation: r.PostForm.Get("password_confirmation"),
	}

	if err := h.auth.Register(r.Context(), req); err != nil {
		h.logFormError(r, "register", err)
		h.render(w, r, statusForError(err), "register", registerData{
			Title: "Register",
			Name:  req.Name,
			Email: req.Email,
			Error: formMessage(err, "Registration failed"),
		})
		return
	}

	q := url.Values{}
	q.Set("message", registeredMessage)
	q.Set("email", req.Email)
	http.Redirect(w, r, "/login?"+q.Encode(), http.StatusSeeOther)
}

// HandleLogout handles POST /logout
func (h *PageHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.auth.Logout(ctx, middleware.GetSessionIDFromContext(ctx)); err != nil {
		h.logger.Error("failed to clear session on logout",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.Error(err))
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// HandleDashboard handles GET /dashboard
func (h *PageHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	data := dashboardData{pageData: newPageData("Dashboard", user)}

	sections, err := h.layout.Render(user, data.pageData, h.observe)
	if err != nil {
		h.logger.Error("failed to render dashboard sections",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data.Sections = sections

	h.render(w, r, http.StatusOK, "dashboard", data)
}

// HandleRefresh handles POST /session/refresh
func (h *PageHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := h.auth.RefreshProfile(ctx, middleware.GetSessionIDFromContext(ctx)); err != nil {
		if services.IsUnauthorizedError(err) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		h.logger.Warn("profile refresh failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.Error(err))
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// RolePage returns a handler for a role-gated page
func (h *PageHandler) RolePage(heading, description string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, r, http.StatusOK, "page", rolePageData{
			pageData:    newPageData(heading, middleware.GetUserFromContext(r.Context())),
			Heading:     heading,
			Description: description,
		})
	}
}

// HandleForbidden renders the 403 page
func (h *PageHandler) HandleForbidden(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusForbidden, "forbidden", pageData{Title: "Access denied"})
}

// HandleTooManyAttempts re-renders the throttled form
func (h *PageHandler) HandleTooManyAttempts(w http.ResponseWriter, r *http.Request) {
	message := formMessage(services.ErrRateLimitExceeded, "")
	if r.URL.Path == "/register" {
		h.render(w, r, http.StatusTooManyRequests, "register", registerData{Title: "Register", Error: message})
		return
	}
	h.render(w, r, http.StatusTooManyRequests, "login", loginData{Title: "Sign in", Error: message})
}

func (h *PageHandler) logFormError(r *http.Request, form string, err error) {
	fields := []zap.Field{
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("form", form),
		zap.Error(err),
	}
	if services.IsInternalError(err) || !isDomainError(err) {
		h.logger.Error("form submission failed", fields...)
		return
	}
	h.logger.Debug("form submission rejected", fields...)
}

// formMessage is the text shown above a form. Internal failures never leak
// their cause.
func formMessage(err error, fallback string) string {
	if services.IsInternalError(err) {
		return fallback
	}
	msg := services.Message(err, fallback)
	if len(msg) > 0 && msg[0] >= 'a' && msg[0] <= 'z' {
		msg = string(msg[0]-'a'+'A') + msg[1:]
	}
	return msg
}

func isDomainError(err error) bool {
	return services.GetErrorType(err) != ""
}
