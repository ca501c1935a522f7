package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CellChange is one (player, row, col) triple inside a DELTA payload.
type CellChange struct {
	Player uint8
	Row    int
	Col    int
}

// EncodeFull renders a grid as the JSON array-of-arrays payload spec.md
// §4.1 mandates for FULL.
func EncodeFull(grid [][]uint8) ([]byte, error) {
	// encoding/json renders a []uint8 row as a base64 string, so widen
	// each row to []int to get arrays of integers on the wire.
	rows := make([][]int, len(grid))
	for r, row := range grid {
		rows[r] = make([]int, len(row))
		for c, v := range row {
			rows[r][c] = int(v)
		}
	}
	return json.Marshal(rows)
}

// DecodeFull parses a FULL payload back into a grid.
func DecodeFull(payload []byte) ([][]uint8, error) {
	var grid [][]uint8
	if err := json.Unmarshal(payload, &grid); err != nil {
		return nil, fmt.Errorf("wire: decode FULL: %w", err)
	}
	return grid, nil
}

// EncodeDelta renders changes as the whitespace-separated "player row col"
// triples spec.md §4.1 mandates for DELTA. An empty slice encodes to an
// empty payload, which callers must not transmit (spec.md §8 property 10
// — a heartbeat is sent instead).
func EncodeDelta(changes []CellChange) []byte {
	if len(changes) == 0 {
		return nil
	}
	var b strings.Builder
	for i, c := range changes {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d %d %d", c.Player, c.Row, c.Col)
	}
	return []byte(b.String())
}

// DecodeDelta parses a DELTA payload into triples. Malformed triples are
// skipped rather than rejecting the whole payload, per spec.md §4.3
// ("ignore malformed triples").
func DecodeDelta(payload []byte) []CellChange {
	fields := strings.Fields(string(payload))
	changes := make([]CellChange, 0, len(fields)/3)
	for i := 0; i+3 <= len(fields); i += 3 {
		p, err1 := strconv.Atoi(fields[i])
		r, err2 := strconv.Atoi(fields[i+1])
		c, err3 := strconv.Atoi(fields[i+2])
		if err1 != nil || err2 != nil || err3 != nil || p < 0 || p > 255 {
			continue
		}
		changes = append(changes, CellChange{Player: uint8(p), Row: r, Col: c})
	}
	return changes
}

// EncodeAcquireCell renders the one EVENT verb the protocol defines.
func EncodeAcquireCell(row, col int) []byte {
	return []byte(fmt.Sprintf("ACQUIRE_CELL %d %d", row, col))
}

// DecodeAcquireCell parses an EVENT payload, returning ok=false for
// anything that isn't a well-formed "ACQUIRE_CELL <row> <col>".
func DecodeAcquireCell(payload []byte) (row, col int, ok bool) {
	fields := strings.Fields(string(payload))
	if len(fields) != 3 || fields[0] != "ACQUIRE_CELL" {
		return 0, 0, false
	}
	r, err1 := strconv.Atoi(fields[1])
	c, err2 := strconv.Atoi(fields[2])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return r, c, true
}

// LeaderboardEntry is one row of the GAME_OVER leaderboard.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	PlayerID int    `json:"player_id"`
	Color    string `json:"color"`
	Score    int    `json:"score"`
}

// GameOverPayload is the decoded form of a GAME_OVER payload.
type GameOverPayload struct {
	Status      string             `json:"status"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// EncodeGameOver renders the leaderboard as the JSON object spec.md
// §4.1 mandates for GAME_OVER.
func EncodeGameOver(leaderboard []LeaderboardEntry) ([]byte, error) {
	return json.Marshal(GameOverPayload{Status: "GAME_OVER", Leaderboard: leaderboard})
}

// DecodeGameOver parses a GAME_OVER payload.
func DecodeGameOver(payload []byte) (GameOverPayload, error) {
	var g GameOverPayload
	if err := json.Unmarshal(payload, &g); err != nil {
		return GameOverPayload{}, fmt.Errorf("wire: decode GAME_OVER: %w", err)
	}
	return g, nil
}
