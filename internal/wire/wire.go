// Package wire implements the Grid Clash datagram codec: a fixed 24-byte
// big-endian header followed by a message-type-specific payload. See
// SPEC_FULL.md §5.1.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// MsgType identifies the payload shape that follows a Header.
type MsgType uint8

const (
	MsgInit      MsgType = 0
	MsgAck       MsgType = 1
	MsgEvent     MsgType = 2
	MsgFull      MsgType = 3
	MsgDelta     MsgType = 4
	MsgHeartbeat MsgType = 5
	MsgGameOver  MsgType = 6
)

// Name returns the human-readable message type name used in metrics rows.
func (t MsgType) Name() string {
	switch t {
	case MsgInit:
		return "INIT"
	case MsgAck:
		return "ACK"
	case MsgEvent:
		return "EVENT"
	case MsgFull:
		return "FULL"
	case MsgDelta:
		return "DELTA"
	case MsgHeartbeat:
		return "HEARTBEAT"
	case MsgGameOver:
		return "GAME_OVER"
	default:
		return "UNKNOWN"
	}
}

const (
	// ProtocolVersion is the only version this codec accepts.
	ProtocolVersion uint8 = 1

	// HeaderSize is the fixed wire size of Header, in bytes.
	HeaderSize = 24

	// MaxDatagramSize bounds the total encoded size (header + payload).
	MaxDatagramSize = 1200

	// MaxPayloadSize is the largest payload that fits under MaxDatagramSize.
	MaxPayloadSize = MaxDatagramSize - HeaderSize
)

var magic = [4]byte{'D', 'O', 'M', 'X'}

// Header is the fixed framing that precedes every datagram payload.
type Header struct {
	Version     uint8
	MsgType     MsgType
	SnapshotID  uint32
	Seq         uint32
	TimestampMs int64
	PayloadLen  uint16
}

// Errors returned by Decode. Callers drop the datagram on any of these
// per SPEC_FULL.md §7 — never disconnect on a single malformed packet.
var (
	ErrShortHeader    = errors.New("wire: datagram shorter than header")
	ErrBadMagic       = errors.New("wire: bad magic")
	ErrBadVersion     = errors.New("wire: unsupported protocol version")
	ErrTruncated      = errors.New("wire: payload_len exceeds received length")
	ErrPayloadTooBig  = errors.New("wire: payload exceeds MaxPayloadSize")
	ErrDatagramTooBig = errors.New("wire: encoded datagram exceeds MaxDatagramSize")
)

// Encode serializes h and payload into a single datagram. It returns
// ErrPayloadTooBig if payload would push the datagram past
// MaxDatagramSize.
func Encode(h Header, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooBig
	}

	buf := make([]byte, HeaderSize+len(payload))
	copy(buf[0:4], magic[:])
	buf[4] = ProtocolVersion
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[6:10], h.SnapshotID)
	binary.BigEndian.PutUint32(buf[10:14], h.Seq)
	binary.BigEndian.PutUint64(buf[14:22], uint64(h.TimestampMs))
	binary.BigEndian.PutUint16(buf[22:24], uint16(len(payload)))
	copy(buf[HeaderSize:], payload)

	if len(buf) > MaxDatagramSize {
		return nil, ErrDatagramTooBig
	}
	return buf, nil
}

// Decode parses a received datagram into its Header and payload slice.
// The returned payload aliases data; callers that retain it past the
// lifetime of the receive buffer must copy it.
func Decode(data []byte) (Header, []byte, error) {
	if len(data) < HeaderSize {
		return Header{}, nil, ErrShortHeader
	}
	if !bytes.Equal(data[0:4], magic[:]) {
		return Header{}, nil, ErrBadMagic
	}

	h := Header{
		Version:     data[4],
		MsgType:     MsgType(data[5]),
		SnapshotID:  binary.BigEndian.Uint32(data[6:10]),
		Seq:         binary.BigEndian.Uint32(data[10:14]),
		TimestampMs: int64(binary.BigEndian.Uint64(data[14:22])),
		PayloadLen:  binary.BigEndian.Uint16(data[22:24]),
	}

	if h.Version != ProtocolVersion {
		return Header{}, nil, ErrBadVersion
	}

	rest := data[HeaderSize:]
	if int(h.PayloadLen) > len(rest) {
		return Header{}, nil, ErrTruncated
	}

	return h, rest[:h.PayloadLen], nil
}

// String renders a Header for log lines.
func (h Header) String() string {
	return fmt.Sprintf("%s snap=%d seq=%d ts=%d len=%d", h.MsgType.Name(), h.SnapshotID, h.Seq, h.TimestampMs, h.PayloadLen)
}
