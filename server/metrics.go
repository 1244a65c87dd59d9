package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type redMetrics struct {
	duration *prom.HistogramVec
	requests *prom.CounterVec
}

func newREDMetrics(registerer prom.Registerer) *redMetrics {
	factory := promauto.With(registerer)
	return &redMetrics{
		duration: factory.NewHistogramVec(prom.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prom.DefBuckets,
		}, []string{"path", "method", "status"}),
		requests: factory.NewCounterVec(prom.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"path", "method", "status"}),
	}
}

// middleware labels by route pattern so path parameters do not explode the
// series count.
func (m *redMetrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil && routeCtx.RoutePattern() != "" {
			path = routeCtx.RoutePattern()
		}
		status := strconv.Itoa(ww.Status())
		m.duration.WithLabelValues(path, r.Method, status).Observe(time.Since(start).Seconds())
		m.requests.WithLabelValues(path, r.Method, status).Inc()
	})
}
