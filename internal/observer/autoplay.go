package observer

import (
	"context"
	"math/rand"
	"time"
)

// AutoPlayerConfig tunes the scripted input source the CLI harness uses
// in place of a human mouse (spec.md §6 "--no-auto-play" disables this).
type AutoPlayerConfig struct {
	Interval time.Duration
	Rows     int
	Cols     int
	Seed     int64
}

// DefaultAutoPlayerConfig fires roughly twice a tick interval, matching
// the pace the original prototype's scripted client used.
func DefaultAutoPlayerConfig(rows, cols int) AutoPlayerConfig {
	return AutoPlayerConfig{Interval: 120 * time.Millisecond, Rows: rows, Cols: cols, Seed: 1}
}

// AutoPlayer periodically claims a random unclaimed cell it can see in
// the observer's mirror. It exists so scenario harnesses (spec.md §8)
// can drive a session without a human operator.
type AutoPlayer struct {
	cfg AutoPlayerConfig
	obs *Observer
	rnd *rand.Rand
}

// NewAutoPlayer constructs a player driving obs.
func NewAutoPlayer(cfg AutoPlayerConfig, obs *Observer) *AutoPlayer {
	return &AutoPlayer{cfg: cfg, obs: obs, rnd: rand.New(rand.NewSource(cfg.Seed))}
}

// Run claims cells at cfg.Interval until ctx is canceled or the game
// ends.
func (p *AutoPlayer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap := p.obs.SnapshotView()
		if snap.Status == StatusGameOver || snap.Status == StatusDisconnected {
			return
		}

		row, col, ok := p.pickCell(snap.Grid)
		if !ok {
			continue
		}
		_ = p.obs.AcquireCell(row, col)
	}
}

func (p *AutoPlayer) pickCell(g [][]uint8) (int, int, bool) {
	var empty [][2]int
	for r, row := range g {
		for c, v := range row {
			if v == 0 {
				empty = append(empty, [2]int{r, c})
			}
		}
	}
	if len(empty) == 0 {
		return 0, 0, false
	}
	pick := empty[p.rnd.Intn(len(empty))]
	return pick[0], pick[1], true
}
