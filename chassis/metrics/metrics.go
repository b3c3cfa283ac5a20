package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "sqstransport"

	OpReceive = "receive"
	OpDelete  = "delete"
	OpSend    = "send"
)

// Metrics holds the transport collectors. A nil *Metrics records nothing.
type Metrics struct {
	received        prometheus.Counter
	acknowledged    prometheus.Counter
	malformed       prometheus.Counter
	noHandler       prometheus.Counter
	handlerErrors   prometheus.Counter
	published       prometheus.Counter
	backendErrors   *prometheus.CounterVec
	inFlight        prometheus.Gauge
	handlerDuration prometheus.Histogram
}

// New creates and registers the collectors.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "received_total",
			Help:      "Messages received from the queue.",
		}),
		acknowledged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "acknowledged_total",
			Help:      "Messages deleted after their handler completed.",
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "malformed_total",
			Help:      "Messages left unacknowledged because the envelope could not be decoded.",
		}),
		noHandler: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "no_handler_total",
			Help:      "Messages left unacknowledged because no handler matched the pattern.",
		}),
		handlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "handler_errors_total",
			Help:      "Handler executions that failed.",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "published_total",
			Help:      "Envelopes sent by the producer.",
		}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "backend_errors_total",
			Help:      "Failed queue backend calls by operation.",
		}, []string{"op"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "inflight",
			Help:      "Messages currently being handled.",
		}),
		handlerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "handler_duration_seconds",
			Help:      "Time from dispatch until the response stream terminated.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	collectors := []prometheus.Collector{
		m.received,
		m.acknowledged,
		m.malformed,
		m.noHandler,
		m.handlerErrors,
		m.published,
		m.backendErrors,
		m.inFlight,
		m.handlerDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Received(n int) {
	if m == nil {
		return
	}
	m.received.Add(float64(n))
}

func (m *Metrics) Acknowledged() {
	if m == nil {
		return
	}
	m.acknowledged.Inc()
}

func (m *Metrics) Malformed() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}

func (m *Metrics) NoHandler() {
	if m == nil {
		return
	}
	m.noHandler.Inc()
}

func (m *Metrics) HandlerError() {
	if m == nil {
		return
	}
	m.handlerErrors.Inc()
}

func (m *Metrics) Published() {
	if m == nil {
		return
	}
	m.published.Inc()
}

func (m *Metrics) BackendError(op string) {
	if m == nil {
		return
	}
	m.backendErrors.WithLabelValues(op).Inc()
}

// HandlerStarted bumps the in-flight gauge and returns the matching finisher.
func (m *Metrics) HandlerStarted() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.inFlight.Inc()
	return func() {
		m.inFlight.Dec()
		m.handlerDuration.Observe(time.Since(start).Seconds())
	}
}
