package dgram

import (
	"github.com/bassosimone/errclass"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics shared by every channel created with it.
// A nil *Metrics records nothing.
type Metrics struct {
	datagramsRead    prometheus.Counter
	bytesRead        prometheus.Counter
	datagramsWritten prometheus.Counter
	bytesWritten     prometheus.Counter
	writeBlocked     prometheus.Counter
	ioErrors         *prometheus.CounterVec
	pipelineErrors   prometheus.Counter
	drainBatch       prometheus.Histogram
	recvBufferGuess  prometheus.Gauge
}

// NewMetrics creates and registers channel metrics. A nil registerer
// disables metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		datagramsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dgram",
			Subsystem: "channel",
			Name:      "datagrams_read_total",
			Help:      "Datagrams received and delivered to the pipeline",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dgram",
			Subsystem: "channel",
			Name:      "bytes_read_total",
			Help:      "Payload bytes received",
		}),
		datagramsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dgram",
			Subsystem: "channel",
			Name:      "datagrams_written_total",
			Help:      "Datagrams accepted by the kernel",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dgram",
			Subsystem: "channel",
			Name:      "bytes_written_total",
			Help:      "Payload bytes accepted by the kernel",
		}),
		writeBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dgram",
			Subsystem: "channel",
			Name:      "write_blocked_total",
			Help:      "Flushes that exhausted the spin count and armed write interest",
		}),
		ioErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dgram",
			Subsystem: "channel",
			Name:      "io_errors_total",
			Help:      "Socket errors by operation and class",
		}, []string{"op", "class"}),
		pipelineErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dgram",
			Subsystem: "channel",
			Name:      "pipeline_errors_total",
			Help:      "Delivery errors that ended a drain pass",
		}),
		drainBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dgram",
			Subsystem: "channel",
			Name:      "drain_pass_datagrams",
			Help:      "Datagrams delivered per drain pass",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64, 128, 256},
		}),
		recvBufferGuess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dgram",
			Subsystem: "channel",
			Name:      "recv_buffer_guess_bytes",
			Help:      "Capacity proposed for the next receive buffer",
		}),
	}
	reg.MustRegister(
		m.datagramsRead,
		m.bytesRead,
		m.datagramsWritten,
		m.bytesWritten,
		m.writeBlocked,
		m.ioErrors,
		m.pipelineErrors,
		m.drainBatch,
		m.recvBufferGuess,
	)
	return m
}

func (m *Metrics) read(n, guess int) {
	if m == nil {
		return
	}
	m.datagramsRead.Inc()
	m.bytesRead.Add(float64(n))
	m.recvBufferGuess.Set(float64(guess))
}

func (m *Metrics) written(n int) {
	if m == nil {
		return
	}
	m.datagramsWritten.Inc()
	m.bytesWritten.Add(float64(n))
}

func (m *Metrics) blocked() {
	if m == nil {
		return
	}
	m.writeBlocked.Inc()
}

func (m *Metrics) ioError(op string, err error) {
	if m == nil {
		return
	}
	m.ioErrors.WithLabelValues(op, errclass.New(err)).Inc()
}

func (m *Metrics) pipelineError() {
	if m == nil {
		return
	}
	m.pipelineErrors.Inc()
}

func (m *Metrics) drained(n int) {
	if m == nil {
		return
	}
	m.drainBatch.Observe(float64(n))
}
