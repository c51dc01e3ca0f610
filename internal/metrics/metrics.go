package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tweetstream"

// Metrics holds all collectors for one process.
type Metrics struct {
	ConnectionState prometheus.Gauge
	ConnectAttempts prometheus.Counter
	Reconnects      *prometheus.CounterVec
	Failures        *prometheus.CounterVec
	DroppedFailures prometheus.Counter
	Frames          *prometheus.CounterVec
	ParseErrors     prometheus.Counter
	BackoffDelay    *prometheus.HistogramVec
	QueueDepth      *prometheus.GaugeVec

	WriterInserts *prometheus.CounterVec
	WriterUpdates *prometheus.CounterVec
	WriterErrors  *prometheus.CounterVec
	WriterFlushes *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "state",
			Help:      "Connection state (0=idle, 1=connecting, 2=open, 3=backoff, 4=destroyed)",
		}),
		ConnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connect_attempts_total",
			Help:      "Total number of connection attempts",
		}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of scheduled reconnects",
		}, []string{"reason"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "failures_total",
			Help:      "Total number of connection failures",
		}, []string{"kind", "code"}),
		DroppedFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "dropped_failures_total",
			Help:      "Failures ignored because a recovery episode was already running",
		}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Total number of decoded frames by channel",
		}, []string{"kind"}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "parse_errors_total",
			Help:      "Total number of frames that failed to decode",
		}),
		BackoffDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "backoff_delay_seconds",
			Help:      "Scheduled reconnect delays",
			Buckets:   []float64{0.25, 1, 4, 16, 60, 320, 1280},
		}, []string{"strategy"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "queue_depth",
			Help:      "Events waiting in each output buffer",
		}, []string{"buffer"}),
		WriterInserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "inserts_total",
			Help:      "Rows inserted by archive writers",
		}, []string{"table"}),
		WriterUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "updates_total",
			Help:      "Rows updated by compliance notices",
		}, []string{"table"}),
		WriterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "errors_total",
			Help:      "Failed batch flushes",
		}, []string{"table"}),
		WriterFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "flushes_total",
			Help:      "Batch flushes",
		}, []string{"table"}),
	}

	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ConnectionState,
		m.ConnectAttempts,
		m.Reconnects,
		m.Failures,
		m.DroppedFailures,
		m.Frames,
		m.ParseErrors,
		m.BackoffDelay,
		m.QueueDepth,
		m.WriterInserts,
		m.WriterUpdates,
		m.WriterErrors,
		m.WriterFlushes,
	}
}

// SetState records the connection state ordinal.
func (m *Metrics) SetState(state int) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(float64(state))
}

// ConnectAttempt counts one connection attempt.
func (m *Metrics) ConnectAttempt() {
	if m == nil {
		return
	}
	m.ConnectAttempts.Inc()
}

// Reconnect counts a reconnect for reason.
func (m *Metrics) Reconnect(reason string) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(reason).Inc()
}

// Failure counts a connection failure. code is 0 for network failures.
func (m *Metrics) Failure(kind string, code int) {
	if m == nil {
		return
	}
	label := ""
	if code != 0 {
		label = strconv.Itoa(code)
	}
	m.Failures.WithLabelValues(kind, label).Inc()
}

// DroppedFailure counts a failure ignored during an active recovery episode.
func (m *Metrics) DroppedFailure() {
	if m == nil {
		return
	}
	m.DroppedFailures.Inc()
}

// Frame counts a decoded frame delivered on channel kind.
func (m *Metrics) Frame(kind string) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(kind).Inc()
}

// ParseError counts a frame that failed to decode.
func (m *Metrics) ParseError() {
	if m == nil {
		return
	}
	m.ParseErrors.Inc()
}

// Backoff records a scheduled delay for strategy.
func (m *Metrics) Backoff(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.BackoffDelay.WithLabelValues(strategy).Observe(d.Seconds())
}

// SetQueueDepth records the length of a named buffer.
func (m *Metrics) SetQueueDepth(buffer string, n int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(buffer).Set(float64(n))
}

// WriterFlush records the outcome of one writer batch.
func (m *Metrics) WriterFlush(table string, inserts, updates int64, err error) {
	if m == nil {
		return
	}
	m.WriterFlushes.WithLabelValues(table).Inc()
	if err != nil {
		m.WriterErrors.WithLabelValues(table).Inc()
		return
	}
	m.WriterInserts.WithLabelValues(table).Add(float64(inserts))
	m.WriterUpdates.WithLabelValues(table).Add(float64(updates))
}
