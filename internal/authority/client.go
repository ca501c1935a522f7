package authority

import (
	"net"

	"gridclash/internal/grid"
	"gridclash/internal/wire"
)

type retransmitEntry struct {
	SnapshotID uint32
	Seq        uint32
	Payload    []byte
	MsgType    wire.MsgType
}

// ClientRecord is the authority's per-peer reliability state (spec.md §3).
type ClientRecord struct {
	Addr     net.Addr
	PlayerID uint8

	NextSeq          uint32
	NextSnapshotID   uint32
	LastSentGrid     *grid.Grid
	RetransmitBuffer []retransmitEntry
	AwaitingAck      map[uint32]struct{}

	LastAckedSnapshotID  uint32
	UnackedHeartbeatCount int
}

func newClientRecord(addr net.Addr, playerID uint8, g *grid.Grid) *ClientRecord {
	return &ClientRecord{
		Addr:         addr,
		PlayerID:     playerID,
		LastSentGrid: g,
		AwaitingAck:  make(map[uint32]struct{}),
	}
}

// LowestAwaiting returns the smallest outstanding snapshot ID, if any.
func (c *ClientRecord) LowestAwaiting() (uint32, bool) {
	first := true
	var lowest uint32
	for id := range c.AwaitingAck {
		if first || id < lowest {
			lowest = id
			first = false
		}
	}
	return lowest, !first
}

// FindRetransmit looks up a buffered entry by snapshot ID.
func (c *ClientRecord) FindRetransmit(snapshotID uint32) (retransmitEntry, bool) {
	for _, e := range c.RetransmitBuffer {
		if e.SnapshotID == snapshotID {
			return e, true
		}
	}
	return retransmitEntry{}, false
}

// PushRetransmit appends a new entry, evicting the oldest if depth is
// exceeded (spec.md §3: "evicting the oldest if depth is exceeded").
func (c *ClientRecord) PushRetransmit(e retransmitEntry, depth int) {
	c.RetransmitBuffer = append(c.RetransmitBuffer, e)
	if len(c.RetransmitBuffer) > depth {
		c.RetransmitBuffer = c.RetransmitBuffer[len(c.RetransmitBuffer)-depth:]
	}
}

// UpdateRetransmitSeq records the seq used on the most recent resend of
// an entry, so a later re-resend still reports a monotonically
// increasing seq history even though snapshot_id is unchanged.
func (c *ClientRecord) UpdateRetransmitSeq(snapshotID, seq uint32) {
	for i := range c.RetransmitBuffer {
		if c.RetransmitBuffer[i].SnapshotID == snapshotID {
			c.RetransmitBuffer[i].Seq = seq
			return
		}
	}
}

// PurgeAcked discards the acked snapshot from AwaitingAck and drops every
// buffered entry with SnapshotID <= LastAckedSnapshotID (spec.md §4.2
// "ACK handling").
func (c *ClientRecord) PurgeAcked(snapshotID uint32) {
	c.LastAckedSnapshotID = snapshotID
	delete(c.AwaitingAck, snapshotID)

	kept := c.RetransmitBuffer[:0]
	for _, e := range c.RetransmitBuffer {
		if e.SnapshotID > c.LastAckedSnapshotID {
			kept = append(kept, e)
		}
	}
	c.RetransmitBuffer = kept
}
