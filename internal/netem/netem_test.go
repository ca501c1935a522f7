package netem

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAddr string

func (f fakeAddr) Network() string { return "fake" }
func (f fakeAddr) String() string  { return string(f) }

type recordingConn struct {
	mu    sync.Mutex
	sent  [][]byte
	times []time.Time
}

func (r *recordingConn) ReadFrom(p []byte) (int, net.Addr, error) { select {} }
func (r *recordingConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, append([]byte(nil), p...))
	r.times = append(r.times, time.Now())
	return len(p), nil
}
func (r *recordingConn) Close() error                       { return nil }
func (r *recordingConn) LocalAddr() net.Addr                 { return fakeAddr("x") }
func (r *recordingConn) SetDeadline(t time.Time) error       { return nil }
func (r *recordingConn) SetReadDeadline(t time.Time) error   { return nil }
func (r *recordingConn) SetWriteDeadline(t time.Time) error  { return nil }

func (r *recordingConn) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestZeroConfigIsTransparent(t *testing.T) {
	inner := &recordingConn{}
	c := Wrap(inner, Config{})
	_, err := c.WriteTo([]byte("hello"), fakeAddr("a"))
	require.NoError(t, err)
	assert.Equal(t, 1, inner.count())
}

func TestFullLossDropsEverything(t *testing.T) {
	inner := &recordingConn{}
	c := Wrap(inner, Config{LossRate: 1.0, Seed: 42})
	for i := 0; i < 20; i++ {
		n, err := c.WriteTo([]byte("x"), fakeAddr("a"))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	assert.Zero(t, inner.count())
}

func TestDelayDefersDelivery(t *testing.T) {
	inner := &recordingConn{}
	c := Wrap(inner, Config{DelayMin: 30 * time.Millisecond, DelayMax: 40 * time.Millisecond, Seed: 7})

	start := time.Now()
	_, err := c.WriteTo([]byte("x"), fakeAddr("a"))
	require.NoError(t, err)
	assert.Zero(t, inner.count(), "delayed write must not land synchronously")

	c.Drain()
	assert.Equal(t, 1, inner.count())
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestCloseCancelsPendingDelayedWrites(t *testing.T) {
	inner := &recordingConn{}
	c := Wrap(inner, Config{DelayMin: time.Hour, DelayMax: time.Hour})
	_, err := c.WriteTo([]byte("x"), fakeAddr("a"))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	c.Drain()
	assert.Zero(t, inner.count())
}
