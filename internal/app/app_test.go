package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/invoicing/internal/invoice"
	"github.com/odyssey-erp/invoicing/internal/observability"
	"github.com/odyssey-erp/invoicing/internal/rbac"
	"github.com/odyssey-erp/invoicing/internal/shared"
	"github.com/odyssey-erp/invoicing/jobs"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PRICE_UPDATE_POLICY", "never")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "30")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, invoice.Settings{UpdatePriceOnLineEdit: invoice.PriceNever, DefaultSite: "WH1"}, cfg.InvoiceSettings())
}

func TestLoadConfigRejectsUnknownPolicy(t *testing.T) {
	t.Setenv("PRICE_UPDATE_POLICY", "sometimes")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("invoice", "60001").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"invoice":"60001"`)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger:     zerolog.Nop(),
		Config:     &Config{},
		JobHandler: jobs.NewHandler(nil, zerolog.Nop()),
		Metrics:    observability.NewMetrics(),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "invoicing_http_requests_total")
}

func TestRouterHealthReportsUnavailable(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger: zerolog.Nop(),
		Ready:  func(*http.Request) error { return context.DeadlineExceeded },
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMiddlewareLoadsPrivileges(t *testing.T) {
	var got shared.PrivilegeSet
	var actor string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.PrivilegesFromContext(r.Context())
		actor = shared.ActorFromContext(r.Context())
	})
	var handler http.Handler = h
	stack := MiddlewareStack(MiddlewareConfig{Logger: zerolog.Nop(), Config: &Config{}, RBAC: rbac.Middleware{Logger: zerolog.Nop()}})
	for i := len(stack) - 1; i >= 0; i-- {
		handler = stack[i](handler)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.Header.Set(rbac.HeaderPrivileges, "ViewMiscInvoices")
	req.Header.Set(rbac.HeaderActor, "admin")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, got.Has(shared.PermViewInvoices))
	require.Equal(t, "admin", actor)
}
