package metrics

import (
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridclash/internal/wire"
)

func testLog() *logrus.Entry {
	return logrus.NewEntry(logrus.New())
}

func TestRecordComputesLatency(t *testing.T) {
	r := New("run-1", testLog())
	m := r.Record(1, wire.MsgDelta, 5, 5, 1000, 1080, 40, 0.5)
	assert.Equal(t, int64(80), m.LatencyMs)
}

func TestRecordComputesJitterAcrossThreeSamples(t *testing.T) {
	r := New("run-1", testLog())
	r.Record(1, wire.MsgDelta, 1, 1, 0, 0, 10, 0)
	r.Record(1, wire.MsgDelta, 2, 2, 0, 50, 10, 0)
	third := r.Record(1, wire.MsgDelta, 3, 3, 0, 120, 10, 0)

	// deltas: 50, 70 -> jitter = |70-50| = 20
	assert.Equal(t, int64(20), third.JitterMs)
}

func TestRecordAccumulatesRows(t *testing.T) {
	r := New("run-1", testLog())
	r.Record(1, wire.MsgAck, 1, 1, 0, 0, 0, 0)
	r.Record(2, wire.MsgHeartbeat, 2, 2, 0, 0, 0, 0)
	assert.Len(t, r.Rows(), 2)
}

func TestWriteGameMetricsProducesReadableCSV(t *testing.T) {
	dir := t.TempDir()
	r := New("run-1", testLog())
	r.Record(1, wire.MsgDelta, 5, 5, 1000, 1050, 40, 0.25)

	path, err := r.WriteGameMetrics(dir, TimestampSuffix(time.Unix(0, 0)))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "client_id,msg_type,msg_type_name")
	assert.Contains(t, string(data), "DELTA")
}

func TestPositionLogCapsEntries(t *testing.T) {
	log := NewPositionLog(2)
	log.Append(1, [][]uint8{{1}})
	log.Append(2, [][]uint8{{2}})
	log.Append(3, [][]uint8{{3}})

	entries := log.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].TimestampMs)
	assert.Equal(t, int64(3), entries[1].TimestampMs)
}

func TestWriteAuthoritativePositionsSkipsEmptyCells(t *testing.T) {
	dir := t.TempDir()
	log := NewPositionLog(10)
	log.Append(100, [][]uint8{{0, 1}, {2, 0}})

	path, err := WriteAuthoritativePositions(log, dir, TimestampSuffix(time.Unix(0, 0)))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Header + exactly 2 non-empty cells.
	lines := splitLines(string(data))
	assert.Len(t, lines, 3)
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
