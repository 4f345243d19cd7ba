package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/flashy-edu/flashy/internal/auth"
	"github.com/flashy-edu/flashy/internal/observability"
	"github.com/flashy-edu/flashy/internal/platform/httpx"
	"github.com/flashy-edu/flashy/internal/rbac"
	"github.com/flashy-edu/flashy/internal/roles"
	"github.com/flashy-edu/flashy/internal/users"
	"github.com/flashy-edu/flashy/jobs"
)

// ReadinessCheck pings one backing service for /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	RBACMiddleware     rbac.Middleware
	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	ProfileHandler     *users.ProfileHandler
	AssignmentsHandler *rbac.AssignmentsHandler
	RolesHandler       *roles.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
	Readiness          []ReadinessCheck
}

// NewRouter constructs the chi.Router with flashy defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
		RBAC:    params.RBACMiddleware,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.TestMode {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readinessHandler(logger, params.Readiness))

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.ProfileHandler != nil {
		r.Route("/profile", params.ProfileHandler.MountRoutes)
	}
	r.Route("/admin", func(r chi.Router) {
		if params.UsersHandler != nil || params.AssignmentsHandler != nil {
			r.Route("/users", func(r chi.Router) {
				if params.UsersHandler != nil {
					params.UsersHandler.MountRoutes(r)
				}
				if params.AssignmentsHandler != nil {
					params.AssignmentsHandler.MountRoutes(r)
				}
			})
		}
		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" not allowed on "+r.URL.Path)
	})
	return r
}

func readinessHandler(logger *slog.Logger, checks []ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		result := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				logger.Warn("readiness check failed", slog.String("check", c.Name), slog.Any("error", err))
				result[c.Name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			result[c.Name] = "ok"
		}
		httpx.JSON(w, status, result)
	}
}
