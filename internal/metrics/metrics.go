package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Sink receives operational counters from the pipeline. It is injected rather
// than accessed as process-wide state so workers stay independently testable.
type Sink interface {
	TransactionProcessed(tier string)
	AlertEmitted()
	WindowClosed(metric string)
	DroppedMalformed()
	DroppedUnscored()
	DroppedLate(metric string)
	SinkWriteRetried(sink string)
}

// Noop is a Sink that discards all counters, for tests
type Noop struct{}

func (Noop) TransactionProcessed(string) {}
func (Noop) AlertEmitted()               {}
func (Noop) WindowClosed(string)         {}
func (Noop) DroppedMalformed()           {}
func (Noop) DroppedUnscored()            {}
func (Noop) DroppedLate(string)          {}
func (Noop) SinkWriteRetried(string)     {}

// Prometheus implements Sink with prometheus counters
type Prometheus struct {
	processed        *prometheus.CounterVec
	alerts           prometheus.Counter
	windowsClosed    *prometheus.CounterVec
	droppedMalformed prometheus.Counter
	droppedUnscored  prometheus.Counter
	droppedLate      *prometheus.CounterVec
	sinkRetries      *prometheus.CounterVec
}

// NewPrometheus creates a Sink backed by counters registered on reg
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transactions_processed_total",
			Help: "Total number of transactions processed, by risk tier.",
		}, []string{"tier"}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_emitted_total",
			Help: "Total number of high-value alerts emitted.",
		}),
		windowsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "windows_closed_total",
			Help: "Total number of closed tumbling windows, by metric.",
		}, []string{"metric"}),
		droppedMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dropped_malformed_total",
			Help: "Total number of malformed input messages dropped.",
		}),
		droppedUnscored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dropped_unscored_total",
			Help: "Total number of transactions dropped before branching because no risk score was assigned.",
		}),
		droppedLate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dropped_late_total",
			Help: "Total number of events dropped because their window had already closed, by metric.",
		}, []string{"metric"}),
		sinkRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sink_write_retries_total",
			Help: "Total number of retried sink writes, by sink.",
		}, []string{"sink"}),
	}

	reg.MustRegister(
		p.processed,
		p.alerts,
		p.windowsClosed,
		p.droppedMalformed,
		p.droppedUnscored,
		p.droppedLate,
		p.sinkRetries,
	)

	return p
}

func (p *Prometheus) TransactionProcessed(tier string) { p.processed.WithLabelValues(tier).Inc() }
func (p *Prometheus) AlertEmitted()                    { p.alerts.Inc() }
func (p *Prometheus) WindowClosed(metric string)       { p.windowsClosed.WithLabelValues(metric).Inc() }
func (p *Prometheus) DroppedMalformed()                { p.droppedMalformed.Inc() }
func (p *Prometheus) DroppedUnscored()                 { p.droppedUnscored.Inc() }
func (p *Prometheus) DroppedLate(metric string)        { p.droppedLate.WithLabelValues(metric).Inc() }
func (p *Prometheus) SinkWriteRetried(sink string)     { p.sinkRetries.WithLabelValues(sink).Inc() }
