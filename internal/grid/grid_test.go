package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridclash/internal/wire"
)

func TestClaimTransitionsOnlyOnce(t *testing.T) {
	g := New(5, 5)
	require.True(t, g.Claim(1, 1, 3))
	assert.Equal(t, uint8(3), g.At(1, 1))

	// Second claim by a different player must not succeed.
	assert.False(t, g.Claim(1, 1, 7))
	assert.Equal(t, uint8(3), g.At(1, 1))
}

func TestClaimRejectsOutOfBounds(t *testing.T) {
	g := New(5, 5)
	assert.False(t, g.Claim(5, 0, 1))
	assert.False(t, g.Claim(-1, 0, 1))
}

func TestClickCountAndFull(t *testing.T) {
	g := New(2, 2)
	assert.Equal(t, 0, g.ClickCount())
	assert.False(t, g.Full())

	g.Claim(0, 0, 1)
	g.Claim(0, 1, 1)
	g.Claim(1, 0, 2)
	assert.Equal(t, 3, g.ClickCount())
	assert.False(t, g.Full())

	g.Claim(1, 1, 2)
	assert.True(t, g.Full())
}

func TestSetIsIdempotent(t *testing.T) {
	g := New(3, 3)
	g.Set(0, 0, 4)
	first := g.Clone()
	g.Set(0, 0, 4)
	assert.Equal(t, first.Raw(), g.Raw())
}

func TestDiffFindsOnlyChangedCells(t *testing.T) {
	base := New(3, 3)
	current := base.Clone()
	current.Set(1, 1, 2)
	current.Set(2, 0, 5)

	changes := Diff(base, current)
	assert.ElementsMatch(t, []wire.CellChange{
		{Player: 2, Row: 1, Col: 1},
		{Player: 5, Row: 2, Col: 0},
	}, changes)
}

func TestDiffEmptyWhenUnchanged(t *testing.T) {
	base := New(3, 3)
	current := base.Clone()
	assert.Empty(t, Diff(base, current))
}

func TestLeaderboardOrderingAndTieBreak(t *testing.T) {
	g := New(5, 5)
	// Player 2 claims 3 cells, player 1 claims 3 cells (tie), player 3 claims 1.
	g.Claim(0, 0, 2)
	g.Claim(0, 1, 2)
	g.Claim(0, 2, 2)
	g.Claim(1, 0, 1)
	g.Claim(1, 1, 1)
	g.Claim(1, 2, 1)
	g.Claim(2, 0, 3)

	lb := g.Leaderboard()
	require.Len(t, lb, 3)
	assert.Equal(t, 1, lb[0].Rank)
	assert.Equal(t, 1, lb[0].PlayerID) // tie broken by smaller player_id
	assert.Equal(t, 3, lb[0].Score)
	assert.Equal(t, 2, lb[1].PlayerID)
	assert.Equal(t, 3, lb[2].PlayerID)
	assert.Equal(t, 1, lb[2].Score)
}

func TestPlayerColorFallsBackBeyondTable(t *testing.T) {
	assert.Equal(t, "Blue", PlayerColor(1))
	assert.Equal(t, "Gray", PlayerColor(200))
}

func TestFromRawClampsToShape(t *testing.T) {
	g := New(2, 2)
	g.FromRaw([][]uint8{{1, 2}, {3, 4}, {5, 6}})
	assert.Equal(t, uint8(1), g.At(0, 0))
	assert.Equal(t, uint8(4), g.At(1, 1))
}
