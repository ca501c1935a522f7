// Package metrics implements the per-packet metrics pipeline: sampling,
// CSV persistence, and a live Prometheus surface. See SPEC_FULL.md §5.5.
package metrics

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/sirupsen/logrus"

	"gridclash/internal/wire"
)

// PacketMetric is one row of the game_metrics CSV (spec.md §6).
type PacketMetric struct {
	ClientID               int
	MsgType                wire.MsgType
	SnapshotID             uint32
	Seq                    uint32
	ServerTimestampMs      int64
	RecvTimeMs             int64
	LatencyMs              int64
	JitterMs               int64
	PerceivedPositionError float64
	CPUPercent             float64
	BandwidthKbps          float64
}

type bandwidthSample struct {
	atMs  int64
	bytes int
}

// Recorder accumulates PacketMetric rows behind a mutex, the way
// SPEC_FULL.md §5.5 describes an append-only metrics buffer. It is cheap
// enough to call on every packet: CPU is sampled only every
// cpuSampleEvery packets (default 20) and reused between samples
// (spec.md §4.4).
type Recorder struct {
	mu sync.Mutex

	rows []PacketMetric

	lastRecvMs map[int]int64
	lastDelta  map[int]int64

	bandwidthWindow map[int][]bandwidthSample
	bandwidthSpan   time.Duration

	runID string
	log   *logrus.Entry

	packetCount    int64
	cpuSampleEvery int64
	lastCPU        float64

	reg *PromRegistry
}

// Option configures a Recorder at construction time.
type Option func(*Recorder)

// WithCPUSampleEvery overrides the default CPU-sampling cadence.
func WithCPUSampleEvery(n int64) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.cpuSampleEvery = n
		}
	}
}

// WithPrometheus attaches a PromRegistry that mirrors every recorded
// sample as live gauges/counters.
func WithPrometheus(reg *PromRegistry) Option {
	return func(r *Recorder) { r.reg = reg }
}

// New creates a Recorder. log is the entry every log line of this
// package is written through; runID is kept on the Recorder and is not
// added to log lines or CSV rows.
func New(runID string, log *logrus.Entry, opts ...Option) *Recorder {
	r := &Recorder{
		lastRecvMs:      make(map[int]int64),
		lastDelta:       make(map[int]int64),
		bandwidthWindow: make(map[int][]bandwidthSample),
		bandwidthSpan:   time.Second,
		runID:           runID,
		log:             log,
		cpuSampleEvery:  20,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record computes latency/jitter/bandwidth/CPU for one observed packet
// and appends the resulting row. perceivedErr is supplied by the caller
// since only the observer has both the authoritative and displayed grid
// history needed to compute it (spec.md §4.4).
func (r *Recorder) Record(clientID int, msgType wire.MsgType, snapshotID, seq uint32, serverTsMs, recvTimeMs int64, payloadBytes int, perceivedErr float64) PacketMetric {
	r.mu.Lock()
	defer r.mu.Unlock()

	latency := recvTimeMs - serverTsMs

	var jitter int64
	if last, ok := r.lastRecvMs[clientID]; ok {
		delta := recvTimeMs - last
		if prevDelta, ok := r.lastDelta[clientID]; ok {
			jitter = absInt64(delta - prevDelta)
		}
		r.lastDelta[clientID] = delta
	}
	r.lastRecvMs[clientID] = recvTimeMs

	bw := r.bandwidth(clientID, recvTimeMs, payloadBytes)
	cpuPct := r.sampleCPU()

	m := PacketMetric{
		ClientID:               clientID,
		MsgType:                msgType,
		SnapshotID:             snapshotID,
		Seq:                    seq,
		ServerTimestampMs:      serverTsMs,
		RecvTimeMs:             recvTimeMs,
		LatencyMs:              latency,
		JitterMs:               jitter,
		PerceivedPositionError: perceivedErr,
		CPUPercent:             cpuPct,
		BandwidthKbps:          bw,
	}
	r.rows = append(r.rows, m)

	if r.reg != nil {
		r.reg.observe(m)
	}

	return m
}

func (r *Recorder) bandwidth(clientID int, nowMs int64, payloadBytes int) float64 {
	windowMs := r.bandwidthSpan.Milliseconds()
	samples := append(r.bandwidthWindow[clientID], bandwidthSample{atMs: nowMs, bytes: payloadBytes})

	cutoff := nowMs - windowMs
	kept := samples[:0]
	for _, s := range samples {
		if s.atMs >= cutoff {
			kept = append(kept, s)
		}
	}
	r.bandwidthWindow[clientID] = kept

	if len(kept) == 0 {
		return 0
	}
	totalBytes := 0
	for _, s := range kept {
		totalBytes += s.bytes
	}
	spanMs := kept[len(kept)-1].atMs - kept[0].atMs
	if spanMs <= 0 {
		spanMs = windowMs
	}
	return float64(totalBytes) * 8 / 1000 / (float64(spanMs) / 1000)
}

func (r *Recorder) sampleCPU() float64 {
	r.packetCount++
	if r.packetCount%r.cpuSampleEvery != 0 && r.lastCPU != 0 {
		return r.lastCPU
	}

	pcts, err := cpu.Percent(0, false)
	if err != nil || len(pcts) == 0 {
		if r.log != nil {
			r.log.WithError(err).Debug("cpu sample failed, reusing last value")
		}
		return r.lastCPU
	}
	r.lastCPU = pcts[0]
	return r.lastCPU
}

// Rows returns a snapshot of the accumulated metrics rows.
func (r *Recorder) Rows() []PacketMetric {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PacketMetric, len(r.rows))
	copy(out, r.rows)
	return out
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
