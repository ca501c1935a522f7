// Package authority implements the Grid Clash server: the authoritative
// grid, the per-client reliability state machine, and the fixed-rate
// tick loop that drives full/delta/heartbeat generation. See
// SPEC_FULL.md §5.3.
package authority

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gridclash/internal/grid"
	"gridclash/internal/metrics"
	"gridclash/internal/netem"
	"gridclash/internal/wire"
)

// Config is the tunable authority configuration (spec.md §3 "global
// config").
type Config struct {
	Rows, Cols         int
	TickRateHz         float64
	HeartbeatThreshold int
	RetransmitDepth    int
	PositionLogDepth   int
	MetricsDir         string
}

// DefaultConfig matches spec.md's defaults: 5x5 grid, 20 Hz (21 Hz
// overclocked per the original prototype to absorb scheduler jitter),
// heartbeat threshold 10, retransmit depth 3.
func DefaultConfig() Config {
	return Config{
		Rows:               5,
		Cols:               5,
		TickRateHz:         21,
		HeartbeatThreshold: 10,
		RetransmitDepth:    3,
		PositionLogDepth:   500,
		MetricsDir:         ".",
	}
}

type outboundDatagram struct {
	addr     net.Addr
	header   wire.Header
	payload  []byte
	clientID int
}

// Authority owns every piece of mutable session state (spec.md §9: bundle
// the grid, client table, and metrics buffer into one owned value).
type Authority struct {
	cfg Config
	log *logrus.Entry

	mu             sync.Mutex
	grid           *grid.Grid
	modified       bool
	gameOver       bool
	nextPlayerID   uint8
	clients        map[string]*ClientRecord
	order          []string
	malformedCount int64

	posLog   *metrics.PositionLog
	recorder *metrics.Recorder

	conn net.PacketConn

	gameOverOnce sync.Once
	doneCh       chan struct{}
}

// Option configures optional Authority behavior at construction time.
type Option func(*Authority)

// WithNetem wraps conn in a netem.Conn so the scenario harness can
// inject loss/delay/jitter without the authority knowing (SPEC_FULL.md
// §6 "scenario harness hook"). A zero-value cfg is a no-op passthrough.
func WithNetem(cfg netem.Config) Option {
	return func(a *Authority) {
		a.conn = netem.Wrap(a.conn, cfg)
	}
}

// New constructs an Authority. recorder drives metrics persistence;
// conn is the transport (wrap with WithNetem to emulate a
// lossy link).
func New(cfg Config, conn net.PacketConn, recorder *metrics.Recorder, log *logrus.Entry, opts ...Option) *Authority {
	a := &Authority{
		cfg:      cfg,
		log:      log,
		grid:     grid.New(cfg.Rows, cfg.Cols),
		clients:  make(map[string]*ClientRecord),
		posLog:   metrics.NewPositionLog(cfg.PositionLogDepth),
		recorder: recorder,
		conn:     conn,
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Done returns a channel closed when the session ends (GAME_OVER
// broadcast and metrics flushed).
func (a *Authority) Done() <-chan struct{} {
	return a.doneCh
}

// PositionLog exposes the authoritative position log for the CLI to
// flush on shutdown if the session ends without a natural GAME_OVER.
func (a *Authority) PositionLog() *metrics.PositionLog {
	return a.posLog
}

// Recorder exposes the metrics recorder.
func (a *Authority) Recorder() *metrics.Recorder {
	return a.recorder
}

// ClientCount returns the number of currently connected clients.
func (a *Authority) ClientCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.clients)
}

// ClickCount returns the authoritative click count.
func (a *Authority) ClickCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.grid.ClickCount()
}

// IsGameOver reports whether the session has terminated.
func (a *Authority) IsGameOver() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gameOver
}

// Run drives the receive loop and the tick loop until ctx is canceled or
// the game ends. It returns once both have stopped.
func (a *Authority) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		a.receiveLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		a.tickLoop(ctx)
	}()

	wg.Wait()
	return nil
}

func (a *Authority) receiveLoop(ctx context.Context) {
	buf := make([]byte, wire.MaxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.doneCh:
			return
		default:
		}

		if deadliner, ok := a.conn.(interface{ SetReadDeadline(time.Time) error }); ok {
			_ = deadliner.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		}

		n, addr, err := a.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			a.log.WithError(err).Debug("receive error")
			continue
		}

		a.handleInbound(addr, buf[:n], nowMs())
	}
}

func (a *Authority) handleInbound(addr net.Addr, data []byte, recvTimeMs int64) {
	defer func() {
		if r := recover(); r != nil {
			a.log.WithField("panic", r).Error("recovered from datagram handler panic")
		}
	}()

	header, payload, err := wire.Decode(data)
	if err != nil {
		a.mu.Lock()
		a.malformedCount++
		a.mu.Unlock()
		a.log.WithError(err).Debug("dropped malformed datagram")
		return
	}

	payloadCopy := append([]byte(nil), payload...)

	a.mu.Lock()
	var sends []outboundDatagram
	var clientID int = -1
	if rec := a.clients[addr.String()]; rec != nil {
		clientID = int(rec.PlayerID)
	}

	switch header.MsgType {
	case wire.MsgInit:
		sends = a.handleInitLocked(addr)
	case wire.MsgAck:
		a.handleAckLocked(addr, header)
	case wire.MsgEvent:
		sends = a.handleEventLocked(addr, header, payloadCopy)
	default:
		a.log.WithField("msg_type", header.MsgType.Name()).Debug("unexpected message type at authority")
	}
	a.mu.Unlock()

	if a.recorder != nil {
		a.recorder.Record(clientID, header.MsgType, header.SnapshotID, header.Seq, header.TimestampMs, recvTimeMs, len(payload), 0)
	}

	for _, s := range sends {
		a.send(s)
	}
}

func (a *Authority) send(s outboundDatagram) {
	data, err := wire.Encode(s.header, s.payload)
	if err != nil {
		a.log.WithError(err).Error("failed to encode outbound datagram")
		return
	}

	if _, err := a.conn.WriteTo(data, s.addr); err != nil {
		a.log.WithError(err).WithField("addr", s.addr).Warn("transport error on send, removing client")
		a.mu.Lock()
		a.removeClientLocked(s.addr.String())
		a.mu.Unlock()
		return
	}

	if a.recorder != nil {
		now := nowMs()
		a.recorder.Record(s.clientID, s.header.MsgType, s.header.SnapshotID, s.header.Seq, s.header.TimestampMs, now, len(s.payload), 0)
	}
}

func (a *Authority) removeClientLocked(key string) {
	if _, ok := a.clients[key]; !ok {
		return
	}
	delete(a.clients, key)
	for i, k := range a.order {
		if k == key {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func (a *Authority) flushMetrics() {
	suffix := metrics.TimestampSuffix(time.Now())
	if a.recorder != nil {
		if path, err := a.recorder.WriteGameMetrics(a.cfg.MetricsDir, suffix); err != nil {
			a.log.WithError(err).Error("failed to write game metrics csv")
		} else {
			a.log.WithField("path", path).Info("wrote game metrics csv")
		}
	}
	if path, err := metrics.WriteAuthoritativePositions(a.posLog, a.cfg.MetricsDir, suffix); err != nil {
		a.log.WithError(err).Error("failed to write authoritative positions csv")
	} else {
		a.log.WithField("path", path).Info("wrote authoritative positions csv")
	}
}

// Shutdown closes the transport, which unblocks the receive loop.
func (a *Authority) Shutdown() error {
	return a.conn.Close()
}
