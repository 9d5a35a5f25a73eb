// Package metrics exposes scan counters for Prometheus scraping.
//
// A nil *Recorder is valid and records nothing, so callers never need to
// check whether metrics are enabled.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Unit outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeNoMain  = "no_main"
	OutcomeSkipped = "skipped"
)

// Recorder owns a private registry and the scan metrics.
type Recorder struct {
	registry *prometheus.Registry

	unitsTotal        *prometheus.CounterVec
	httpRequestsTotal *prometheus.CounterVec
	findingsTotal     *prometheus.CounterVec
	rateLimitSleeps   prometheus.Counter
	scriptErrors      prometheus.Counter
	requestSeconds    *prometheus.HistogramVec
}

// New creates a Recorder with every metric registered.
func New() (*Recorder, error) {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.unitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotus_units_total",
			Help: "Scan units finished, by target kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	r.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotus_http_requests_total",
			Help: "HTTP requests sent by scripts, by outcome",
		},
		[]string{"outcome"},
	)
	r.findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotus_findings_total",
			Help: "Findings reported, by finding kind",
		},
		[]string{"kind"},
	)
	r.rateLimitSleeps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lotus_ratelimit_sleeps_total",
		Help: "Times the request governor tripped and slept",
	})
	r.scriptErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lotus_script_errors_total",
		Help: "Script load and runtime errors counted against the error budget",
	})
	r.requestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lotus_http_request_duration_seconds",
			Help:    "Response time distribution in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"outcome"},
	)

	collectors := []prometheus.Collector{
		r.unitsTotal,
		r.httpRequestsTotal,
		r.findingsTotal,
		r.rateLimitSleeps,
		r.scriptErrors,
		r.requestSeconds,
	}
	for _, c := range collectors {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}
	return r, nil
}

// Unit counts a finished scan unit.
func (r *Recorder) Unit(kind, outcome string) {
	if r == nil {
		return
	}
	r.unitsTotal.WithLabelValues(kind, outcome).Inc()
}

// HTTPRequest counts a send; outcome is "ok" or an error kind tag.
func (r *Recorder) HTTPRequest(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.httpRequestsTotal.WithLabelValues(outcome).Inc()
	r.requestSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// Finding counts one reported finding.
func (r *Recorder) Finding(kind string) {
	if r == nil {
		return
	}
	r.findingsTotal.WithLabelValues(kind).Inc()
}

// RateLimitSleep counts one governor trip.
func (r *Recorder) RateLimitSleep() {
	if r == nil {
		return
	}
	r.rateLimitSleeps.Inc()
}

// ScriptError counts one error against the budget.
func (r *Recorder) ScriptError() {
	if r == nil {
		return
	}
	r.scriptErrors.Inc()
}

// Registry returns the private registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Server serves /metrics until Close.
type Server struct {
	server *http.Server
	addr   string
}

// Serve starts the metrics endpoint on addr (host:port, port may be 0).
func (r *Recorder) Serve(addr string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	s := &Server{
		server: &http.Server{
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		addr: ln.Addr().String(),
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() string { return s.addr }

// Close shuts the server down.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
