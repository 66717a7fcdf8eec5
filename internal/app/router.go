package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/odyssey-erp/custody-vault/internal/audit/http"
	"github.com/odyssey-erp/custody-vault/internal/auth"
	"github.com/odyssey-erp/custody-vault/internal/observability"
	"github.com/odyssey-erp/custody-vault/internal/platform/httpx"
	vaulthttp "github.com/odyssey-erp/custody-vault/internal/vault/http"
	"github.com/odyssey-erp/custody-vault/jobs"
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	Auth         *auth.Service
	VaultHandler *vaulthttp.Handler
	AuditHandler *audithttp.Handler
	JobHandler   *jobs.Handler
	Metrics      *observability.Metrics
	HealthChecks map[string]HealthCheck
}

// NewRouter constructs the chi.Router with vault defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthHandler(params.HealthChecks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.VaultHandler != nil {
		r.Group(func(r chi.Router) {
			if params.Auth != nil {
				r.Use(auth.Middleware(params.Auth))
			}
			params.VaultHandler.MountRoutes(r)
			params.AuditHandler.MountRoutes(r)
		})
	}
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
				continue
			}
			body[name] = "ok"
		}
		httpx.JSON(w, status, body)
	}
}
