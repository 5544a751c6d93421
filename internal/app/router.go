package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/odyssey-erp/invoicing/internal/invoice"
	"github.com/odyssey-erp/invoicing/internal/observability"
	"github.com/odyssey-erp/invoicing/internal/rbac"
	"github.com/odyssey-erp/invoicing/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         zerolog.Logger
	Config         *Config
	RBACMiddleware rbac.Middleware
	InvoiceHandler *invoice.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
	// Ready reports dependency health for /healthz.
	Ready func(r *http.Request) error
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Ready != nil {
			if err := params.Ready(r); err != nil {
				params.Logger.Warn().Err(err).Msg("health check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:  params.Logger,
			Config:  params.Config,
			RBAC:    params.RBACMiddleware,
			Metrics: params.Metrics,
		}) {
			r.Use(mw)
		}
		if params.InvoiceHandler != nil {
			r.Route("/api/invoices", params.InvoiceHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
