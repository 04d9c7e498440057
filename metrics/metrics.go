/*
Package metrics defines the Prometheus collectors of the bonus service.

COLLECTORS:
  bonus_evaluations_total{source}            Projections per KPI by result source
  bonus_fallback_total                       KPIs evaluated without a formula
  bonus_forecast_runs_total{trigger,status}  Forecast runs by outcome
  bonus_forecast_total_payout                Payout of the last successful forecast
  bonus_http_requests_total{method,route,status}
  bonus_http_request_duration_seconds{method,route}

All collectors register with the default registry; /metrics serves them.
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/warp/kpi-bonus/bonus"
)

var (
	Evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bonus_evaluations_total",
			Help: "Total number of KPI bonus evaluations by result source",
		},
		[]string{"source"},
	)

	Fallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bonus_fallback_total",
			Help: "Total number of KPI evaluations that used the fallback ratio",
		},
	)

	ForecastRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bonus_forecast_runs_total",
			Help: "Total number of forecast runs by trigger and status",
		},
		[]string{"trigger", "status"},
	)

	ForecastTotalPayout = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bonus_forecast_total_payout",
			Help: "Total payout of the most recent successful forecast",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bonus_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bonus_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ObserveResult counts one evaluation.
func ObserveResult(res bonus.Result) {
	Evaluations.WithLabelValues(string(res.Source)).Inc()
	if res.Source == bonus.SourceFallback {
		Fallbacks.Inc()
	}
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so /api/users/{id} is one series rather than one per user.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
