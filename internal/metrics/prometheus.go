package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PromRegistry mirrors Recorder samples as live Prometheus series,
// wired the way nabbar-golib/prometheus/metrics registers its own
// collectors, for the authority's debug HTTP surface (SPEC_FULL.md
// §2.5).
type PromRegistry struct {
	registry *prometheus.Registry

	packetsTotal   *prometheus.CounterVec
	latencyMs      *prometheus.HistogramVec
	jitterMs       *prometheus.HistogramVec
	positionError  *prometheus.GaugeVec
	cpuPercent     prometheus.Gauge
	bandwidthKbps  *prometheus.GaugeVec
}

// NewPromRegistry builds a fresh registry with all Grid Clash series
// registered.
func NewPromRegistry() *PromRegistry {
	r := &PromRegistry{registry: prometheus.NewRegistry()}

	r.packetsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridclash",
		Name:      "packets_total",
		Help:      "Datagrams observed, labeled by client and message type.",
	}, []string{"client_id", "msg_type"})

	r.latencyMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gridclash",
		Name:      "latency_ms",
		Help:      "Observed one-way latency in milliseconds.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"client_id"})

	r.jitterMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gridclash",
		Name:      "jitter_ms",
		Help:      "Observed inter-arrival jitter in milliseconds.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"client_id"})

	r.positionError = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gridclash",
		Name:      "perceived_position_error",
		Help:      "Disagreement between authoritative and displayed grid, scaled 0-5.",
	}, []string{"client_id"})

	r.cpuPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gridclash",
		Name:      "cpu_percent",
		Help:      "Last-sampled system-wide CPU percent.",
	})

	r.bandwidthKbps = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gridclash",
		Name:      "bandwidth_kbps",
		Help:      "Rolling-window bandwidth per client in kbps.",
	}, []string{"client_id"})

	r.registry.MustRegister(r.packetsTotal, r.latencyMs, r.jitterMs, r.positionError, r.cpuPercent, r.bandwidthKbps)
	return r
}

// Registry exposes the underlying prometheus.Registry, e.g. for
// promhttp.HandlerFor.
func (r *PromRegistry) Registry() *prometheus.Registry {
	return r.registry
}

func (r *PromRegistry) observe(m PacketMetric) {
	id := strconv.Itoa(m.ClientID)
	r.packetsTotal.WithLabelValues(id, m.MsgType.Name()).Inc()
	r.latencyMs.WithLabelValues(id).Observe(float64(m.LatencyMs))
	r.jitterMs.WithLabelValues(id).Observe(float64(m.JitterMs))
	r.positionError.WithLabelValues(id).Set(m.PerceivedPositionError)
	r.cpuPercent.Set(m.CPUPercent)
	r.bandwidthKbps.WithLabelValues(id).Set(m.BandwidthKbps)
}
