// Package api exposes a read-only HTTP view of the custody engines.
//
// Mutations stay with callers of the engine API, which carry the caller
// identity the engines authorize against.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/custody"
)

// Handler serves the read-only routes of a Custody instance.
type Handler struct {
	custody  *custody.Custody
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// Option configures the router.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(h *Handler) { h.gatherer = g }
}

// NewHandler constructs a handler bound to c.
func NewHandler(c *custody.Custody, opts ...Option) *Handler {
	h := &Handler{custody: c, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewRouter registers the custody routes and middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.healthz)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/vesting", func(r chi.Router) {
			r.Get("/totals", h.vestingTotals)
			r.Get("/schedules/{schedule_id}", h.schedule)
			r.Get("/beneficiaries/{address}/schedules", h.schedules)
		})
		r.Route("/staking", func(r chi.Router) {
			r.Get("/totals", h.stakingTotals)
			r.Get("/apy", h.apyTable)
			r.Get("/accounts/{address}/position", h.position)
			r.Get("/accounts/{address}/positions", h.positions)
		})
		r.Route("/distribution", func(r chi.Router) {
			r.Get("/totals", h.distributionTotals)
			r.Get("/categories", h.categories)
			r.Get("/categories/{name}", h.category)
			r.Get("/categories/{name}/recipients", h.recipients)
			r.Get("/recipients/{address}", h.recipient)
		})
	})

	return r
}
