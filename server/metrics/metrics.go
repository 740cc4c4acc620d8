// Package metrics holds the Prometheus collectors of the arena server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "arena"

var (
	// votesTotal counts vote submissions.
	// Labels: outcome (model1_win, model2_win, draw, invalid), status (ok, rejected, error)
	votesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "votes",
		Name:      "total",
		Help:      "Vote submissions by outcome and status",
	}, []string{"outcome", "status"})

	// personalFailures counts votes whose personal leaderboard update failed.
	personalFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "votes",
		Name:      "personal_failures_total",
		Help:      "Votes recorded globally whose personal update failed",
	})

	battlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "battles",
		Name:      "total",
		Help:      "Battle submissions by status",
	}, []string{"status"})

	battleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "battles",
		Name:      "duration_seconds",
		Help:      "Time to collect both model responses and store the battle",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
	})

	// httpDuration measures request latency.
	// Labels: route (chi pattern), method, code
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "code"})
)

func ObserveVote(outcome, status string, personalUpdated bool) {
	votesTotal.WithLabelValues(outcome, status).Inc()
	if status == "ok" && !personalUpdated {
		personalFailures.Inc()
	}
}

func ObserveBattle(status string, elapsed time.Duration) {
	battlesTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		battleDuration.Observe(elapsed.Seconds())
	}
}

// Middleware records latency per route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		httpDuration.WithLabelValues(route, r.Method, strconv.Itoa(code)).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler { return promhttp.Handler() }
