package routes

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/quill/internal/auth"
	"github.com/BradenHooton/quill/internal/handlers"
	"github.com/BradenHooton/quill/internal/metrics"
	"github.com/BradenHooton/quill/internal/middleware"
	"github.com/BradenHooton/quill/internal/models"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Auth   *handlers.AuthHandler
	Users  *handlers.UserHandler
	Audit  *handlers.AuditHandler
	Health http.Handler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	gate *auth.Gate,
	authRateLimit middleware.RateLimitConfig,
	logger *slog.Logger,
) {
	router.Handle("/health", h.Health)
	router.Handle("/metrics", metrics.Handler())

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(authRateLimit))
		r.Post("/auth/register", h.Auth.Register)
		r.Post("/auth/login", h.Auth.Login)
		r.Post("/auth/reset-password", h.Auth.RequestPasswordReset)
		r.Put("/auth/reset-password", h.Auth.ResetPassword)

		// Reads its own bearer token so repeat logouts stay successful
		r.Post("/auth/logout", h.Auth.Logout)
	})
	router.Get("/auth/validate-token", h.Auth.ValidateToken)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(gate, logger))

		// Any authenticated user
		r.Post("/auth/logout-all", h.Auth.LogoutAll)
		r.Get("/users/me", h.Users.Me)
		r.Put("/users/me", h.Users.UpdateMe)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(gate, models.RoleAdmin))
			r.Get("/users", h.Users.ListUsers)
			r.Get("/users/{id}", h.Users.GetUser)
			r.Post("/users/{id}/deactivate", h.Users.Deactivate)
			r.Post("/users/{id}/roles", h.Users.AssignRole)
			r.Get("/users/{id}/audit", h.Audit.GetUserAuditTrail)
		})
	})
}
