package authority

import (
	"context"
	"time"

	"gridclash/internal/grid"
	"gridclash/internal/wire"
)

func (a *Authority) tickLoop(ctx context.Context) {
	interval := time.Duration(float64(time.Second) / a.cfg.TickRateHz)
	nextTick := time.Now().Add(interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.doneCh:
			return
		default:
		}

		if wait := time.Until(nextTick); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			case <-a.doneCh:
				timer.Stop()
				return
			}
		}
		// Absolute-deadline scheduling (spec.md §4.2) rather than a
		// relative sleep, so a slow tick doesn't compound drift.
		nextTick = nextTick.Add(interval)

		sends := a.tick()
		for _, s := range sends {
			a.send(s)
		}
	}
}

// tick implements one iteration of spec.md §4.2 over every connected
// client, in insertion order. State is snapshotted and mutated under
// a.mu; the actual socket writes happen after this function returns
// (spec.md §5: "acquire -> snapshot state -> release -> send").
func (a *Authority) tick() []outboundDatagram {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.gameOver {
		return nil
	}

	var sends []outboundDatagram
	var evict []string

	for _, key := range a.order {
		rec, ok := a.clients[key]
		if !ok {
			continue
		}

		// 1. Liveness gate.
		if rec.UnackedHeartbeatCount >= a.cfg.HeartbeatThreshold {
			evict = append(evict, key)
			a.log.WithField("player_id", rec.PlayerID).Info("liveness timeout, evicting client")
			continue
		}

		// 2. Retransmit gate.
		if lowest, ok := rec.LowestAwaiting(); ok {
			if entry, found := rec.FindRetransmit(lowest); found {
				rec.NextSeq++
				newSeq := rec.NextSeq
				rec.UpdateRetransmitSeq(entry.SnapshotID, newSeq)
				sends = append(sends, outboundDatagram{
					addr:     rec.Addr,
					header:   wire.Header{MsgType: entry.MsgType, SnapshotID: entry.SnapshotID, Seq: newSeq, TimestampMs: nowMs()},
					payload:  entry.Payload,
					clientID: int(rec.PlayerID),
				})
				continue
			}
		}

		// 3. Delta path.
		if a.modified {
			changes := grid.Diff(rec.LastSentGrid, a.grid)
			if len(changes) > 0 {
				payload := wire.EncodeDelta(changes)
				rec.NextSnapshotID++
				snapID := rec.NextSnapshotID
				rec.NextSeq++
				seq := rec.NextSeq

				sends = append(sends, outboundDatagram{
					addr:     rec.Addr,
					header:   wire.Header{MsgType: wire.MsgDelta, SnapshotID: snapID, Seq: seq, TimestampMs: nowMs()},
					payload:  payload,
					clientID: int(rec.PlayerID),
				})
				rec.PushRetransmit(retransmitEntry{SnapshotID: snapID, Seq: seq, Payload: payload, MsgType: wire.MsgDelta}, a.cfg.RetransmitDepth)
				rec.AwaitingAck[snapID] = struct{}{}
				rec.LastSentGrid = a.grid.Clone()
				continue
			}
		}

		// 4. Heartbeat path. Seq does not advance; snapshot_id does
		// (DESIGN.md Open Question decision 1, resolved in favor of an
		// unambiguous reception counter for the observer).
		rec.NextSnapshotID++
		sends = append(sends, outboundDatagram{
			addr:     rec.Addr,
			header:   wire.Header{MsgType: wire.MsgHeartbeat, SnapshotID: rec.NextSnapshotID, Seq: rec.NextSeq, TimestampMs: nowMs()},
			clientID: int(rec.PlayerID),
		})
		rec.UnackedHeartbeatCount++
	}

	for _, key := range evict {
		a.removeClientLocked(key)
	}

	a.modified = false
	return sends
}
