package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		header  Header
		payload []byte
	}{
		{"empty payload", Header{MsgType: MsgAck, SnapshotID: 7, Seq: 3, TimestampMs: 1700000000000}, nil},
		{"full payload", Header{MsgType: MsgFull, SnapshotID: 1, Seq: 1, TimestampMs: 42}, []byte(`[[0,0],[0,1]]`)},
		{"max payload", Header{MsgType: MsgDelta, SnapshotID: 9, Seq: 9, TimestampMs: 9}, make([]byte, MaxPayloadSize)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := Encode(tc.header, tc.payload)
			require.NoError(t, err)

			gotHeader, gotPayload, err := Decode(encoded)
			require.NoError(t, err)

			assert.Equal(t, tc.header.MsgType, gotHeader.MsgType)
			assert.Equal(t, tc.header.SnapshotID, gotHeader.SnapshotID)
			assert.Equal(t, tc.header.Seq, gotHeader.Seq)
			assert.Equal(t, tc.header.TimestampMs, gotHeader.TimestampMs)
			assert.Equal(t, len(tc.payload), len(gotPayload))
			assert.Equal(t, tc.payload, gotPayload)
		})
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(Header{MsgType: MsgFull}, make([]byte, MaxPayloadSize+1))
	assert.ErrorIs(t, err, ErrPayloadTooBig)
}

func TestDecodeDropsOnBadMagic(t *testing.T) {
	encoded, err := Encode(Header{MsgType: MsgAck}, nil)
	require.NoError(t, err)
	encoded[0] = 'X'

	_, _, err = Decode(encoded)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeDropsOnShortHeader(t *testing.T) {
	_, _, err := Decode(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrShortHeader)
}

func TestDecodeDropsOnBadVersion(t *testing.T) {
	encoded, err := Encode(Header{MsgType: MsgAck}, nil)
	require.NoError(t, err)
	encoded[4] = 9

	_, _, err = Decode(encoded)
	assert.ErrorIs(t, err, ErrBadVersion)
}

func TestDecodeDropsOnTruncatedPayload(t *testing.T) {
	encoded, err := Encode(Header{MsgType: MsgDelta}, []byte("1 0 0"))
	require.NoError(t, err)
	truncated := encoded[:len(encoded)-2]

	_, _, err = Decode(truncated)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDeltaEncodeDecodeRoundTrip(t *testing.T) {
	changes := []CellChange{{Player: 1, Row: 0, Col: 0}, {Player: 2, Row: 4, Col: 4}}
	payload := EncodeDelta(changes)
	assert.NotEmpty(t, payload)

	got := DecodeDelta(payload)
	assert.Equal(t, changes, got)
}

func TestDeltaEncodeEmptyProducesNoPayload(t *testing.T) {
	assert.Nil(t, EncodeDelta(nil))
}

func TestDeltaDecodeIgnoresMalformedTriples(t *testing.T) {
	// DecodeDelta windows the payload into fixed, non-shifting triples
	// rather than realigning after a bad one: "1 0 0 garbage 9 9 2 1 1"
	// yields (1,0,0) [valid], (garbage,9,9) [skipped], (2,1,1) [valid].
	got := DecodeDelta([]byte("1 0 0 garbage 9 9 2 1 1"))
	require.Len(t, got, 2)
	assert.Equal(t, CellChange{Player: 1, Row: 0, Col: 0}, got[0])
	assert.Equal(t, CellChange{Player: 2, Row: 1, Col: 1}, got[1])
}

func TestAcquireCellEncodeDecode(t *testing.T) {
	payload := EncodeAcquireCell(3, 4)
	row, col, ok := DecodeAcquireCell(payload)
	require.True(t, ok)
	assert.Equal(t, 3, row)
	assert.Equal(t, 4, col)
}

func TestAcquireCellDecodeRejectsMalformed(t *testing.T) {
	_, _, ok := DecodeAcquireCell([]byte("NOT_A_COMMAND"))
	assert.False(t, ok)
}

func TestGameOverEncodeDecode(t *testing.T) {
	entries := []LeaderboardEntry{{Rank: 1, PlayerID: 1, Color: "Blue", Score: 25}}
	payload, err := EncodeGameOver(entries)
	require.NoError(t, err)

	got, err := DecodeGameOver(payload)
	require.NoError(t, err)
	assert.Equal(t, "GAME_OVER", got.Status)
	assert.Equal(t, entries, got.Leaderboard)
}

func TestFullEncodeDecode(t *testing.T) {
	grid := [][]uint8{{0, 1}, {2, 0}}
	payload, err := EncodeFull(grid)
	require.NoError(t, err)

	got, err := DecodeFull(payload)
	require.NoError(t, err)
	assert.Equal(t, grid, got)
}
