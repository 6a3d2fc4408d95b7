package server

import (
	"context"
	"errors"
	"time"

	"github.com/jibbrjabbr/jj/pkg/continuation"
	"github.com/jibbrjabbr/jj/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of a server. A nil *Metrics records
// nothing.
type Metrics struct {
	connections      *prometheus.GaugeVec
	connectionsTotal *prometheus.CounterVec
	eventsTotal      *prometheus.CounterVec
	messagesOut      *prometheus.CounterVec
	suspensions      *prometheus.CounterVec
	suspendDuration  *prometheus.HistogramVec
	discards         *prometheus.CounterVec
	unmatchedReplies prometheus.Counter
	protocolErrors   prometheus.Counter
	handlerPanics    prometheus.Counter
	broadcasts       prometheus.Counter
	idleClosed       prometheus.Counter
}

// NewMetrics registers the server metrics on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		connections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of live WebSocket connections",
		}, []string{"host"}),

		connectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted WebSocket connections",
		}, []string{"host"}),

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of client events dispatched",
		}, []string{"type"}),

		messagesOut: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of messages sent to clients",
		}, []string{"kind"}),

		suspensions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suspensions_total",
			Help:      "Total number of executions parked awaiting a client reply",
		}, []string{"kind"}),

		suspendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "suspend_duration_seconds",
			Help:      "Time from request to client reply",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		}, []string{"kind"}),

		discards: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suspensions_discarded_total",
			Help:      "Parked executions that ended without a reply",
		}, []string{"reason"}),

		unmatchedReplies: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmatched_replies_total",
			Help:      "Replies that matched no pending request",
		}),

		protocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Inbound frames that could not be decoded",
		}),

		handlerPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Handlers that panicked",
		}),

		broadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Total number of broadcasts started",
		}),

		idleClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_connections_closed_total",
			Help:      "Connections closed by the idle tracker",
		}),
	}
}

func (m *Metrics) connectionOpened(host string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(host).Inc()
	m.connectionsTotal.WithLabelValues(host).Inc()
}

func (m *Metrics) connectionClosed(host string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(host).Dec()
}

func (m *Metrics) eventReceived(typ string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(typ).Inc()
}

func (m *Metrics) messagesSent(batch []protocol.Message) {
	if m == nil {
		return
	}
	for _, msg := range batch {
		m.messagesOut.WithLabelValues(msg.Kind().String()).Inc()
	}
}

func (m *Metrics) protocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Inc()
}

func (m *Metrics) handlerPanic() {
	if m == nil {
		return
	}
	m.handlerPanics.Inc()
}

func (m *Metrics) broadcast() {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
}

func (m *Metrics) idleClose() {
	if m == nil {
		return
	}
	m.idleClosed.Inc()
}

// Suspended implements continuation.Observer.
func (m *Metrics) Suspended(kind protocol.Kind) {
	if m == nil {
		return
	}
	m.suspensions.WithLabelValues(kind.String()).Inc()
}

// Resumed implements continuation.Observer.
func (m *Metrics) Resumed(kind protocol.Kind, waited time.Duration) {
	if m == nil {
		return
	}
	m.suspendDuration.WithLabelValues(kind.String()).Observe(waited.Seconds())
}

// Discarded implements continuation.Observer.
func (m *Metrics) Discarded(kind protocol.Kind, reason error) {
	if m == nil {
		return
	}
	m.discards.WithLabelValues(discardReason(reason)).Inc()
}

// Unmatched implements continuation.Observer.
func (m *Metrics) Unmatched() {
	if m == nil {
		return
	}
	m.unmatchedReplies.Inc()
}

// discardReason maps an error to a low-cardinality label.
func discardReason(err error) string {
	switch {
	case errors.Is(err, continuation.ErrConnectionLost):
		return "connection_lost"
	case errors.Is(err, continuation.ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
