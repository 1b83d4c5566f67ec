package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the reconciliation sweep.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	sweepRuns       prometheus.Counter
	sweepErrors     prometheus.Counter
	broadcastsSent  prometheus.Counter
	sessionsOpened  prometheus.Counter
	sessionsClosed  prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	sweepRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "survey_sweep_runs_total",
		Help: "Total reconciliation sweep passes",
	})

	sweepErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "survey_sweep_errors_total",
		Help: "Total errors accumulated across sweep passes",
	})

	broadcastsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "survey_broadcasts_sent_total",
		Help: "Broadcasts delivered by the sweep backup path",
	})

	sessionsOpened := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "survey_sessions_opened_total",
		Help: "Survey sessions opened by the sweep",
	})

	sessionsClosed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "survey_sessions_closed_total",
		Help: "Survey sessions closed by the sweep",
	})

	registry.MustRegister(requestDuration, requestTotal, sweepRuns, sweepErrors, broadcastsSent, sessionsOpened, sessionsClosed)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		sweepRuns:       sweepRuns,
		sweepErrors:     sweepErrors,
		broadcastsSent:  broadcastsSent,
		sessionsOpened:  sessionsOpened,
		sessionsClosed:  sessionsClosed,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records latency and count for one request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// RecordSweepRun bumps sweep counters after a pass.
func (s *MetricsService) RecordSweepRun(broadcasts, opened, closed, errs int) {
	s.sweepRuns.Inc()
	s.sweepErrors.Add(float64(errs))
	s.broadcastsSent.Add(float64(broadcasts))
	s.sessionsOpened.Add(float64(opened))
	s.sessionsClosed.Add(float64(closed))
}
