// Package grid implements the authoritative territory grid and the
// leaderboard derived from it. See SPEC_FULL.md §5.2.
package grid

import "gridclash/internal/wire"

// Empty is the sentinel value for an unclaimed cell.
const Empty uint8 = 0

// playerColors mirrors the display-color table from the original
// prototype (original_source/server_final.py PLAYER_COLORS), carried
// forward because GAME_OVER's leaderboard payload names a "color" field
// (spec.md §4.1) the distilled spec never itemizes.
var playerColors = map[uint8]string{
	1: "Blue", 2: "Green", 3: "Salmon", 4: "Plum",
	5: "Purple", 6: "Orange", 7: "Pink", 8: "Cyan",
}

// PlayerColor returns the display color for a player ID, or "Gray" for
// any ID beyond the original prototype's eight-color table.
func PlayerColor(playerID uint8) string {
	if c, ok := playerColors[playerID]; ok {
		return c
	}
	return "Gray"
}

// Grid is the fixed-shape RxC territory board. Cell values are 0
// (empty) or a positive player ID.
type Grid struct {
	Rows, Cols int
	cells      [][]uint8
}

// New allocates an empty grid of the given shape.
func New(rows, cols int) *Grid {
	cells := make([][]uint8, rows)
	for r := range cells {
		cells[r] = make([]uint8, cols)
	}
	return &Grid{Rows: rows, Cols: cols, cells: cells}
}

// InBounds reports whether (row, col) addresses a valid cell.
func (g *Grid) InBounds(row, col int) bool {
	return row >= 0 && row < g.Rows && col >= 0 && col < g.Cols
}

// At returns the owner of (row, col), or Empty if out of bounds.
func (g *Grid) At(row, col int) uint8 {
	if !g.InBounds(row, col) {
		return Empty
	}
	return g.cells[row][col]
}

// Set assigns a cell's owner. It is an idempotent "set", never a
// read-modify-write, so applying the same change twice is a no-op the
// second time (spec.md §8 property 8).
func (g *Grid) Set(row, col int, player uint8) {
	if g.InBounds(row, col) {
		g.cells[row][col] = player
	}
}

// Claim assigns (row, col) to player if it is in bounds and currently
// empty, enforcing the "transitions exactly once, 0 -> positive, never
// back" invariant (spec.md §3). It reports whether the claim succeeded.
func (g *Grid) Claim(row, col int, player uint8) bool {
	if !g.InBounds(row, col) || g.cells[row][col] != Empty {
		return false
	}
	g.cells[row][col] = player
	return true
}

// ClickCount returns the number of non-empty cells.
func (g *Grid) ClickCount() int {
	n := 0
	for _, row := range g.cells {
		for _, v := range row {
			if v != Empty {
				n++
			}
		}
	}
	return n
}

// Full reports whether every cell has been claimed.
func (g *Grid) Full() bool {
	return g.ClickCount() == g.Rows*g.Cols
}

// Clone deep-copies the grid.
func (g *Grid) Clone() *Grid {
	out := New(g.Rows, g.Cols)
	for r := range g.cells {
		copy(out.cells[r], g.cells[r])
	}
	return out
}

// Raw returns the underlying [][]uint8, aliasing the grid's storage.
// Callers that need an independent copy must Clone first.
func (g *Grid) Raw() [][]uint8 {
	return g.cells
}

// FromRaw replaces the grid contents from a decoded FULL payload,
// clamping to the grid's own shape.
func (g *Grid) FromRaw(raw [][]uint8) {
	for r := 0; r < g.Rows && r < len(raw); r++ {
		copy(g.cells[r], raw[r])
	}
}

// Diff returns the set of cells where base and current disagree, as the
// triples a DELTA payload carries. Order is row-major for determinism.
func Diff(base, current *Grid) []wire.CellChange {
	var changes []wire.CellChange
	for r := 0; r < current.Rows; r++ {
		for c := 0; c < current.Cols; c++ {
			if base.At(r, c) != current.At(r, c) {
				changes = append(changes, wire.CellChange{Player: current.At(r, c), Row: r, Col: c})
			}
		}
	}
	return changes
}

// LeaderboardEntry is one player's standing, pre-rank-assignment.
type LeaderboardEntry struct {
	PlayerID uint8
	Score    int
}

// Leaderboard returns every player with at least one claimed cell,
// sorted by descending score with ties broken by smaller player ID
// (spec.md §4.2).
func (g *Grid) Leaderboard() []wire.LeaderboardEntry {
	scores := make(map[uint8]int)
	for _, row := range g.cells {
		for _, v := range row {
			if v != Empty {
				scores[v]++
			}
		}
	}

	entries := make([]LeaderboardEntry, 0, len(scores))
	for id, score := range scores {
		entries = append(entries, LeaderboardEntry{PlayerID: id, Score: score})
	}

	// Insertion sort: the grid is small (R*C <= ~100) and the pack's
	// reference code favors explicit comparisons over sort.Slice for
	// tie-break clarity here.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && less(entries[j], entries[j-1]); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}

	out := make([]wire.LeaderboardEntry, len(entries))
	for i, e := range entries {
		out[i] = wire.LeaderboardEntry{
			Rank:     i + 1,
			PlayerID: int(e.PlayerID),
			Color:    PlayerColor(e.PlayerID),
			Score:    e.Score,
		}
	}
	return out
}

func less(a, b LeaderboardEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.PlayerID < b.PlayerID
}
