package routes

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/role-dashboard/app"
	"github.com/upb/role-dashboard/handlers"
	"github.com/upb/role-dashboard/internal/auth"
	"github.com/upb/role-dashboard/middleware"
	"github.com/upb/role-dashboard/utils"
)

// rolePage is a role-gated page mounted under the authenticated group
type rolePage struct {
	path        string
	heading     string
	description string
	requirement auth.Requirement
}

var rolePages = []rolePage{
	{"/admin/users", "User Management", "Create, edit and deactivate accounts.", auth.AnyOf(auth.RoleAdmin)},
	{"/admin/settings", "System Settings", "Configure system-wide options.", auth.AnyOf(auth.RoleAdmin)},
	{"/manager/reports", "Reports", "Team performance and activity reports.", auth.AnyOf(auth.RoleManager)},
	{"/manager/analytics", "Analytics", "Trends across the teams you manage.", auth.AnyOf(auth.RoleManager)},
	{"/profile", "Profile", "Your account details.", auth.AnyOf(auth.RoleUser)},
	{"/settings", "Settings", "Your personal preferences.", auth.AnyOf(auth.RoleUser)},
}

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) (http.Handler, error) {
	views, err := handlers.NewViews()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	logger := deps.Logger
	observe := deps.GateObserver()

	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}

	health := handlers.NewHealthHandler(db, deps.SessionBackend(), logger)
	sessions := deps.SessionMiddleware
	pages := handlers.NewPageHandler(deps.AuthService, sessions, views, observe, logger)
	api := handlers.NewAPIHandler(observe, logger)
	forbidden := http.HandlerFunc(pages.HandleForbidden)

	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	if deps.Metrics != nil {
		r.Use(middleware.Instrument(deps.Metrics, logger))
	}

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// Pages
	r.Group(func(r chi.Router) {
		r.Use(sessions.LoadSession)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/dashboard", http.StatusFound)
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.Limit(http.HandlerFunc(pages.HandleTooManyAttempts)))
			r.Get("/login", pages.HandleLoginPage)
			r.Post("/login", pages.HandleLogin)
			r.Get("/register", pages.HandleRegisterPage)
			r.Post("/register", pages.HandleRegister)
		})
		r.Post("/logout", pages.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken)
			r.Get("/dashboard", pages.HandleDashboard)
			r.Post("/session/refresh", pages.HandleRefresh)

			for _, p := range rolePages {
				r.With(middleware.RequireRoles(p.requirement, forbidden, logger)).
					Get(p.path, pages.RolePage(p.heading, p.description))
			}
		})
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.Config.Server.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Use(sessions.LoadSession)

		r.Get("/me", api.HandleMe)
		r.Post("/access", api.HandleAccess)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if utils.WantsJSON(r) {
			_ = utils.WriteError(w, http.StatusNotFound, "Resource not found", nil)
			return
		}
		http.NotFound(w, r)
	})

	return r, nil
}
