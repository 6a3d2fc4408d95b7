package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jibbrjabbr/jj/pkg/continuation"
	"github.com/jibbrjabbr/jj/pkg/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "jj").
	Namespace string

	// Subsystem is the metrics subsystem (default: "handler").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for execution duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "jj",
		Subsystem: "handler",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors of one Prometheus middleware.
type Metrics struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	errors     *prometheus.CounterVec
}

func newMetrics(config MetricsConfig) *Metrics {
	factory := promauto.With(config.Registry)

	return &Metrics{
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "executions_total",
			Help:        "Total number of handler executions",
			ConstLabels: config.ConstLabels,
		}, []string{"host", "kind", "status"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "duration_seconds",
			Help:        "Handler execution time in seconds, including time parked on clients",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"host", "kind"}),

		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "errors_total",
			Help:        "Total number of failed handler executions",
			ConstLabels: config.ConstLabels,
		}, []string{"host", "kind", "error_type"}),
	}
}

// Prometheus creates middleware that counts and times every handler
// execution. Executions are labelled by host and kind: the event type, or
// "lifecycle" for connect and disconnect handlers, or "execute".
//
// Collectors are registered once per call; use a single Prometheus
// middleware per registry.
func Prometheus(opts ...MetricsOption) server.Middleware {
	mw, _ := NewPrometheus(opts...)
	return mw
}

// NewPrometheus is Prometheus returning the collectors as well.
func NewPrometheus(opts ...MetricsOption) (server.Middleware, *Metrics) {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	m := newMetrics(config)

	return server.MiddlewareFunc(func(ctx *server.Context, next func() error) error {
		host := ctx.Host().Name()
		kind := executionKind(ctx)

		start := time.Now()
		err := next()
		m.duration.WithLabelValues(host, kind).Observe(time.Since(start).Seconds())

		status := "success"
		if err != nil {
			status = "error"
			m.errors.WithLabelValues(host, kind, categorizeError(err)).Inc()
		}
		m.executions.WithLabelValues(host, kind, status).Inc()
		return err
	}), m
}

// categorizeError returns a low-cardinality category for err.
func categorizeError(err error) string {
	var ue *server.UsageError
	var be *server.BroadcastError
	switch {
	case errors.Is(err, continuation.ErrConnectionLost), errors.Is(err, server.ErrConnectionClosed):
		return "connection_lost"
	case errors.Is(err, continuation.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &ue):
		return "usage"
	case errors.As(err, &be):
		return "broadcast"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "not found"):
		return "not_found"
	case strings.Contains(msg, "validation"):
		return "validation"
	default:
		return "internal"
	}
}
