package framesock

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts client activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	framesSent     prometheus.Counter
	framesReceived prometheus.Counter
	bytesSent      prometheus.Counter
	bytesReceived  prometheus.Counter
	sendsDropped   prometheus.Counter
	connects       *prometheus.CounterVec
	disconnects    prometheus.Counter
	sendContexts   prometheus.Gauge
}

// NewMetrics creates the client collectors under namespace and registers
// them with reg when reg is not nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_sent_total",
			Help: "Frames handed to the transport.",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_received_total",
			Help: "Complete frames delivered to observers.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_sent_total",
			Help: "Bytes written, including length prefixes.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_received_total",
			Help: "Bytes read from the transport.",
		}),
		sendsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sends_dropped_total",
			Help: "Sends dropped because no send context was available.",
		}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "connects_total",
			Help: "Connect attempts by result.",
		}, []string{"result"}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "disconnects_total",
			Help: "Transitions to the disconnected state.",
		}),
		sendContexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "send_contexts_allocated",
			Help: "Send contexts allocated by the current session.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.framesSent, m.framesReceived, m.bytesSent, m.bytesReceived,
			m.sendsDropped, m.connects, m.disconnects, m.sendContexts)
	}
	return m
}

func (m *Metrics) sent(n int) {
	if m == nil {
		return
	}
	m.framesSent.Inc()
	m.bytesSent.Add(float64(n))
}

func (m *Metrics) received(n, frames int) {
	if m == nil {
		return
	}
	m.bytesReceived.Add(float64(n))
	m.framesReceived.Add(float64(frames))
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.sendsDropped.Inc()
}

func (m *Metrics) connected(ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.connects.WithLabelValues(result).Inc()
}

func (m *Metrics) disconnected() {
	if m == nil {
		return
	}
	m.disconnects.Inc()
	m.sendContexts.Set(0)
}

// contexts records how many send contexts p has allocated.
func (m *Metrics) contexts(p *sendPool) {
	if m == nil {
		return
	}
	allocated, _ := p.Stats()
	m.sendContexts.Set(float64(allocated))
}
