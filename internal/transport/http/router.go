// Package httptransport assembles the public router from the feature handlers.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bondgateway/pkg/platform/middleware/device"
	"bondgateway/pkg/platform/middleware/request"
)

const (
	// RequestTimeout bounds a whole request, provider call included.
	RequestTimeout = 30 * time.Second
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes = 64 << 10
)

// RouteRegistrar is implemented by every feature handler.
type RouteRegistrar interface {
	Register(r chi.Router)
}

type Options struct {
	Logger  *slog.Logger
	Metrics *request.Metrics
	// MetricsHandler serves /metrics; nil uses the default Prometheus gatherer.
	MetricsHandler http.Handler
	// RateLimit, when set, is the last middleware before the handlers.
	RateLimit func(http.Handler) http.Handler
}

// NewRouter wires the middleware stack, /metrics and the given handlers.
func NewRouter(opts Options, handlers ...RouteRegistrar) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(device.Device)
	r.Use(request.Logger(logger, opts.Metrics))
	r.Use(request.Timeout(RequestTimeout))
	r.Use(request.ContentTypeJSON)
	r.Use(request.BodyLimit(MaxBodyBytes))
	if opts.RateLimit != nil {
		r.Use(opts.RateLimit)
	}

	r.Handle("/metrics", metricsHandler)
	for _, h := range handlers {
		if h != nil {
			h.Register(r)
		}
	}
	return r
}
