package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/users"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	SchedulingWebhook  *handlers.SchedulingWebhookHandler
	AdminUsers         *handlers.AdminUsersHandler
	AdminDashboard     *handlers.AdminDashboardHandler
	Appointments       *handlers.AppointmentsHandler
	WebhookLimiter     *httpmiddleware.RateLimiter
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Session tokens signed with a shared secret.
	AuthSecret string

	// Cognito auth config (optional, enables Cognito JWT validation)
	CognitoUserPoolID string
	CognitoClientID   string
	CognitoRegion     string

	// Readiness probe, typically a database ping.
	Ping func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.Ping))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.SchedulingWebhook != nil {
			webhook := public.With()
			if cfg.WebhookLimiter != nil {
				webhook = public.With(httpmiddleware.RateLimit(cfg.WebhookLimiter))
			}
			webhook.Post("/webhooks/scheduling", cfg.SchedulingWebhook.Handle)
		}
	})

	if cfg.AuthSecret == "" && cfg.CognitoUserPoolID == "" {
		return r
	}
	authenticate := httpmiddleware.Authenticate(httpmiddleware.CognitoConfig{
		Region:     cfg.CognitoRegion,
		UserPoolID: cfg.CognitoUserPoolID,
		ClientID:   cfg.CognitoClientID,
	}, cfg.AuthSecret)

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(authenticate)
		admin.Use(httpmiddleware.RequireRole(users.RoleAdmin))
		if cfg.AdminUsers != nil {
			admin.Delete("/users/{userID}", cfg.AdminUsers.DeleteUser)
		}
		if cfg.AdminDashboard != nil {
			admin.Get("/dashboard", cfg.AdminDashboard.GetOverview)
		}
	})

	if cfg.Appointments != nil {
		r.Route("/api/appointments", func(api chi.Router) {
			api.Use(authenticate)
			api.With(httpmiddleware.RequireRole(users.RolePatient)).Get("/", cfg.Appointments.List)
			api.With(httpmiddleware.RequireRole(users.RolePatient)).Post("/", cfg.Appointments.Book)
			api.With(httpmiddleware.RequireRole(users.RolePatient)).Post("/{id}/cancel", cfg.Appointments.Cancel)
			api.With(httpmiddleware.RequireRole(users.RoleProfessional, users.RoleAdmin)).Post("/{id}/complete", cfg.Appointments.Complete)
		})
	}

	return r
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
