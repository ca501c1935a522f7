package observer

import (
	"gridclash/internal/grid"
	"gridclash/internal/wire"
)

// applyFull replaces the mirror wholesale (spec.md §4.3 FULL handling).
func (o *Observer) applyFull(h wire.Header, payload []byte, recvMs int64) {
	raw, err := wire.DecodeFull(payload)
	if err != nil {
		o.log.WithError(err).Warn("dropped malformed FULL payload")
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	// The authority's grid shape is authoritative; size the mirror from
	// the payload itself rather than assuming cfg.Rows/Cols, so an
	// observer started with default flags still tracks a differently
	// shaped server.
	rows := len(raw)
	cols := 0
	if rows > 0 {
		cols = len(raw[0])
	}
	prev := o.mirror
	next := grid.New(rows, cols)
	next.FromRaw(raw)
	o.mirror = next
	o.lastChanged = grid.Diff(prev, next)
	o.lastAppliedID = h.SnapshotID
	o.recordHistoryLocked(recvMs, next.Clone())
}

// applyDelta applies cell-level changes in place (spec.md §4.3 DELTA
// handling). Out-of-range cells are dropped, matching the authority's own
// bounds discipline.
func (o *Observer) applyDelta(h wire.Header, payload []byte, recvMs int64) {
	changes := wire.DecodeDelta(payload)

	o.mu.Lock()
	defer o.mu.Unlock()

	applied := make([]wire.CellChange, 0, len(changes))
	for _, c := range changes {
		if !o.mirror.InBounds(c.Row, c.Col) {
			continue
		}
		o.mirror.Set(c.Row, c.Col, c.Player)
		applied = append(applied, c)
	}
	o.lastChanged = applied
	o.lastAppliedID = h.SnapshotID
	o.recordHistoryLocked(recvMs, o.mirror.Clone())
}

// applyGameOver decodes the final leaderboard and freezes the connection
// (spec.md §4.2 termination).
func (o *Observer) applyGameOver(payload []byte) {
	lb, err := wire.DecodeGameOver(payload)
	if err != nil {
		o.log.WithError(err).Warn("dropped malformed GAME_OVER payload")
		return
	}

	o.mu.Lock()
	o.leaderboard = lb.Leaderboard
	o.status = StatusGameOver
	o.mu.Unlock()
}

func (o *Observer) recordHistoryLocked(atMs int64, g *grid.Grid) {
	o.history = append(o.history, mirrorSample{atMs: atMs, grid: g})
	if extra := len(o.history) - o.cfg.SnapshotHistoryCap; extra > 0 {
		o.history = o.history[extra:]
	}
}

// perceivedPositionError implements SPEC_FULL.md's client-side metric:
// the count of cells differing between the latest known mirror (the
// freshest authoritative truth the client has) and the mirror as it
// stood cfg.DisplayDelayMs ago (the state the renderer is presumed to
// still be showing, scaled 0-5 per spec.md §4.4). Caller holds o.mu (at
// least RLock).
func (o *Observer) perceivedPositionError(nowMs int64) float64 {
	if o.mirror == nil || len(o.history) == 0 {
		return 0
	}

	displayedInstant := nowMs - o.cfg.DisplayDelayMs
	displayed := o.history[0].grid
	for _, sample := range o.history {
		if sample.atMs > displayedInstant {
			break
		}
		displayed = sample.grid
	}

	diff := grid.Diff(displayed, o.mirror)
	total := o.mirror.Rows * o.mirror.Cols
	if total == 0 {
		return 0
	}
	return (float64(len(diff)) / float64(total)) * 5.0
}
