package authority

import (
	"net"
	"time"

	"gridclash/internal/wire"
)

// handleInitLocked implements spec.md §4.2 "INIT handling". Caller holds
// a.mu.
func (a *Authority) handleInitLocked(addr net.Addr) []outboundDatagram {
	key := addr.String()
	if existing, ok := a.clients[key]; ok {
		a.log.WithField("player_id", existing.PlayerID).Debug("re-INIT from known address, recreating session")
		a.removeClientLocked(key)
	}

	a.nextPlayerID++
	playerID := a.nextPlayerID

	rec := newClientRecord(addr, playerID, a.grid.Clone())
	a.clients[key] = rec
	a.order = append(a.order, key)

	a.log.WithFields(map[string]interface{}{"player_id": playerID, "addr": key}).Info("client connected")

	sends := []outboundDatagram{
		{addr: addr, header: wire.Header{MsgType: wire.MsgAck, TimestampMs: nowMs()}, clientID: int(playerID)},
	}

	rec.NextSnapshotID++
	snapID := rec.NextSnapshotID
	rec.NextSeq++
	seq := rec.NextSeq

	fullPayload, err := wire.EncodeFull(a.grid.Raw())
	if err != nil {
		a.log.WithError(err).Error("failed to encode FULL payload")
		return sends
	}
	sends = append(sends, outboundDatagram{
		addr:     addr,
		header:   wire.Header{MsgType: wire.MsgFull, SnapshotID: snapID, Seq: seq, TimestampMs: nowMs()},
		payload:  fullPayload,
		clientID: int(playerID),
	})
	rec.LastSentGrid = a.grid.Clone()

	return sends
}

// handleAckLocked implements spec.md §4.2 "ACK handling". Caller holds
// a.mu.
func (a *Authority) handleAckLocked(addr net.Addr, header wire.Header) {
	rec, ok := a.clients[addr.String()]
	if !ok {
		return
	}
	rec.UnackedHeartbeatCount = 0
	rec.PurgeAcked(header.SnapshotID)
}

// handleEventLocked implements the EVENT ACQUIRE_CELL path of spec.md
// §4.2. Caller holds a.mu. Bounds violations and conflicts are rejected
// silently per spec.md §7.
func (a *Authority) handleEventLocked(addr net.Addr, header wire.Header, payload []byte) []outboundDatagram {
	rec, ok := a.clients[addr.String()]
	if !ok {
		return nil
	}

	row, col, ok := wire.DecodeAcquireCell(payload)
	if !ok {
		return nil
	}

	if !a.grid.Claim(row, col, rec.PlayerID) {
		return nil
	}

	a.modified = true
	a.posLog.Append(nowMs(), a.grid.Raw())
	a.log.WithFields(map[string]interface{}{"player_id": rec.PlayerID, "row": row, "col": col}).Debug("cell claimed")

	if a.grid.Full() {
		a.gameOverOnce.Do(func() { go a.runGameOver() })
	}

	return nil
}

// runGameOver implements spec.md §4.2's termination sequence: sleep to
// let the last snapshot drain, broadcast GAME_OVER, persist metrics,
// terminate the session.
func (a *Authority) runGameOver() {
	tickInterval := time.Duration(float64(time.Second) / a.cfg.TickRateHz)
	time.Sleep(time.Duration(1.5 * float64(tickInterval)))

	a.mu.Lock()
	leaderboard := a.grid.Leaderboard()
	addrs := make([]net.Addr, 0, len(a.clients))
	for _, rec := range a.clients {
		addrs = append(addrs, rec.Addr)
	}
	a.gameOver = true
	a.mu.Unlock()

	a.log.WithField("leaderboard", leaderboard).Info("grid full, broadcasting GAME_OVER")

	payload, err := wire.EncodeGameOver(leaderboard)
	if err != nil {
		a.log.WithError(err).Error("failed to encode GAME_OVER payload")
	} else {
		for _, addr := range addrs {
			a.send(outboundDatagram{
				addr:    addr,
				header:  wire.Header{MsgType: wire.MsgGameOver, TimestampMs: nowMs()},
				payload: payload,
			})
		}
	}

	a.flushMetrics()
	close(a.doneCh)
}
