// Package observer implements the Grid Clash client: handshake, the
// receive/apply/ack loop, recovery pacing, and the renderer-facing
// snapshot accessor. See SPEC_FULL.md §5.4.
package observer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gridclash/internal/grid"
	"gridclash/internal/metrics"
	"gridclash/internal/netem"
	"gridclash/internal/wire"
)

// Status is the observer's connection lifecycle state.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusDisconnected
	StatusGameOver
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusGameOver:
		return "game_over"
	default:
		return "unknown"
	}
}

// Config tunes observer behavior.
type Config struct {
	Rows, Cols         int
	ClientID           int
	HandshakeTimeout   time.Duration
	NominalIntervalMs  int64
	DisplayDelayMs     int64
	SnapshotHistoryCap int
}

// DefaultConfig matches spec.md's defaults.
func DefaultConfig() Config {
	return Config{
		Rows:               5,
		Cols:               5,
		HandshakeTimeout:   5 * time.Second,
		NominalIntervalMs:  50, // 20 Hz nominal tick
		DisplayDelayMs:     50,
		SnapshotHistoryCap: 64,
	}
}

type mirrorSample struct {
	atMs int64
	grid *grid.Grid
}

// Snapshot is the immutable view the renderer polls (spec.md §6).
type Snapshot struct {
	Grid            [][]uint8
	Changed         []wire.CellChange
	Status          Status
	RecoveryMode    bool
	GapMs           int64
	Leaderboard     []wire.LeaderboardEntry
	LastAppliedSnap uint32
}

// Observer is the client-side protocol endpoint.
type Observer struct {
	cfg Config
	log *logrus.Entry

	conn       net.PacketConn
	serverAddr net.Addr

	recorder *metrics.Recorder

	mu            sync.RWMutex
	mirror        *grid.Grid
	lastChanged   []wire.CellChange
	status        Status
	lastRecvAtMs  int64
	lastGapMs     int64
	leaderboard   []wire.LeaderboardEntry
	history       []mirrorSample
	lastAppliedID uint32

	sendMu sync.Mutex

	connectedCh chan struct{}
	connectOnce sync.Once
}

// Option configures optional Observer behavior at construction time.
type Option func(*Observer)

// WithNetem wraps conn in a netem.Conn, mirroring authority.WithNetem
// (SPEC_FULL.md §6 "scenario harness hook").
func WithNetem(cfg netem.Config) Option {
	return func(o *Observer) {
		o.conn = netem.Wrap(o.conn, cfg)
	}
}

// New constructs an Observer bound to a transport already pointed at the
// server address.
func New(cfg Config, conn net.PacketConn, serverAddr net.Addr, recorder *metrics.Recorder, log *logrus.Entry, opts ...Option) *Observer {
	o := &Observer{
		cfg:         cfg,
		log:         log,
		conn:        conn,
		serverAddr:  serverAddr,
		recorder:    recorder,
		mirror:      grid.New(cfg.Rows, cfg.Cols),
		status:      StatusConnecting,
		connectedCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ErrHandshakeTimeout is returned by Connect when no ACK arrives within
// cfg.HandshakeTimeout (spec.md §7).
var ErrHandshakeTimeout = errors.New("observer: connection timeout")

// Connect sends INIT and blocks until the handshake ACK arrives, the
// handshake times out, or ctx is canceled. The caller must already be
// running ReceiveLoop concurrently so the ACK is observed.
func (o *Observer) Connect(ctx context.Context) error {
	if err := o.sendRaw(wire.Header{MsgType: wire.MsgInit, TimestampMs: nowMs()}, nil); err != nil {
		return fmt.Errorf("observer: send INIT: %w", err)
	}

	select {
	case <-o.connectedCh:
		return nil
	case <-time.After(o.cfg.HandshakeTimeout):
		o.setStatus(StatusDisconnected)
		return ErrHandshakeTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReceiveLoop blocks reading datagrams from the server until ctx is
// canceled or the transport closes.
func (o *Observer) ReceiveLoop(ctx context.Context) {
	buf := make([]byte, wire.MaxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if deadliner, ok := o.conn.(interface{ SetReadDeadline(time.Time) error }); ok {
			_ = deadliner.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		}

		n, _, err := o.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			o.log.WithError(err).Debug("observer receive error")
			continue
		}

		o.handleDatagram(buf[:n], nowMs())
	}
}

func (o *Observer) handleDatagram(data []byte, recvMs int64) {
	defer func() {
		if r := recover(); r != nil {
			o.log.WithField("panic", r).Error("recovered from datagram handler panic")
		}
	}()

	header, payload, err := wire.Decode(data)
	if err != nil {
		o.log.WithError(err).Debug("dropped malformed datagram")
		return
	}

	o.trackGap(recvMs)

	if o.recorder != nil {
		o.mu.RLock()
		err := o.perceivedPositionError(recvMs)
		o.mu.RUnlock()
		o.recorder.Record(o.cfg.ClientID, header.MsgType, header.SnapshotID, header.Seq, header.TimestampMs, recvMs, len(payload), err)
	}

	switch header.MsgType {
	case wire.MsgAck:
		o.connectOnce.Do(func() {
			o.setStatus(StatusConnected)
			close(o.connectedCh)
		})
	case wire.MsgFull:
		o.applyFull(header, payload, recvMs)
		o.ack(header)
	case wire.MsgDelta:
		o.applyDelta(header, payload, recvMs)
		o.ack(header)
	case wire.MsgHeartbeat:
		o.ack(header)
	case wire.MsgGameOver:
		o.applyGameOver(payload)
	default:
		o.log.WithField("msg_type", header.MsgType.Name()).Debug("unexpected message type at observer")
	}
}

func (o *Observer) ack(h wire.Header) {
	o.mu.RLock()
	gameOver := o.status == StatusGameOver
	o.mu.RUnlock()
	if gameOver {
		return
	}
	if err := o.sendRaw(wire.Header{MsgType: wire.MsgAck, SnapshotID: h.SnapshotID, Seq: h.Seq, TimestampMs: nowMs()}, nil); err != nil {
		o.log.WithError(err).Debug("failed to send ACK")
	}
}

// AcquireCell sends an EVENT ACQUIRE_CELL datagram (spec.md §6 input
// interface).
func (o *Observer) AcquireCell(row, col int) error {
	return o.sendRaw(wire.Header{MsgType: wire.MsgEvent, TimestampMs: nowMs()}, wire.EncodeAcquireCell(row, col))
}

func (o *Observer) sendRaw(h wire.Header, payload []byte) error {
	data, err := wire.Encode(h, payload)
	if err != nil {
		return err
	}
	o.sendMu.Lock()
	defer o.sendMu.Unlock()
	_, err = o.conn.WriteTo(data, o.serverAddr)
	return err
}

func (o *Observer) setStatus(s Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = s
}

func (o *Observer) trackGap(nowMs int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastRecvAtMs != 0 {
		o.lastGapMs = nowMs - o.lastRecvAtMs
	}
	o.lastRecvAtMs = nowMs
}

// recoveryModeLocked reports whether the gap since the last reception
// exceeds 1.5x the nominal interval (spec.md §4.3). Caller holds o.mu.
func (o *Observer) recoveryModeLocked() bool {
	return o.lastGapMs > (o.cfg.NominalIntervalMs*3)/2
}

// SnapshotView returns the current renderer-facing view (spec.md §6).
func (o *Observer) SnapshotView() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Snapshot{
		Grid:            o.mirror.Clone().Raw(),
		Changed:         append([]wire.CellChange(nil), o.lastChanged...),
		Status:          o.status,
		RecoveryMode:    o.recoveryModeLocked(),
		GapMs:           o.lastGapMs,
		Leaderboard:     o.leaderboard,
		LastAppliedSnap: o.lastAppliedID,
	}
}

// Close closes the underlying transport.
func (o *Observer) Close() error {
	return o.conn.Close()
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
