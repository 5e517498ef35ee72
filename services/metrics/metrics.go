package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "darasa", Name: "http_requests_total", Help: "Handled HTTP requests",
	}, []string{"method", "path", "status"})
	HTTPDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "darasa", Name: "http_request_seconds", Help: "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	})
	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "darasa", Name: "login_attempts_total", Help: "Login attempts by outcome",
	}, []string{"outcome"})
	Lockouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "darasa", Name: "lockouts_total", Help: "Account lockouts triggered",
	})
	TermGradeComputations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "darasa", Name: "term_grade_computations_total", Help: "Term grade snapshots computed",
	})
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPDuration, LoginAttempts, Lockouts, TermGradeComputations)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveRequest(method, path, status string, d time.Duration) {
	HTTPRequests.WithLabelValues(method, path, status).Inc()
	HTTPDuration.Observe(d.Seconds())
}
