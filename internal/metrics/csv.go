package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// TimestampSuffix renders the "YYYYMMDD_HHMMSS" suffix spec.md §6
// appends to both CSV filenames.
func TimestampSuffix(at time.Time) string {
	return at.Format("20060102_150405")
}

// WriteGameMetrics writes the rows accumulated so far to
// <dir>/game_metrics_<suffix>.csv per the column order in spec.md §6.
// No third-party CSV library appears anywhere in the retrieval pack, so
// this uses the standard library encoding/csv — see DESIGN.md.
func (r *Recorder) WriteGameMetrics(dir string, suffix string) (string, error) {
	rows := r.Rows()

	path := filepath.Join(dir, fmt.Sprintf("game_metrics_%s.csv", suffix))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("metrics: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"client_id", "msg_type", "msg_type_name", "snapshot_id", "seq_num",
		"server_timestamp_ms", "recv_time_ms", "latency_ms", "jitter_ms",
		"perceived_position_error", "cpu_percent", "bandwidth_per_client_kbps",
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for _, m := range rows {
		record := []string{
			strconv.Itoa(m.ClientID),
			strconv.Itoa(int(m.MsgType)),
			m.MsgType.Name(),
			strconv.FormatUint(uint64(m.SnapshotID), 10),
			strconv.FormatUint(uint64(m.Seq), 10),
			strconv.FormatInt(m.ServerTimestampMs, 10),
			strconv.FormatInt(m.RecvTimeMs, 10),
			strconv.FormatInt(m.LatencyMs, 10),
			strconv.FormatInt(m.JitterMs, 10),
			strconv.FormatFloat(m.PerceivedPositionError, 'f', 4, 64),
			strconv.FormatFloat(m.CPUPercent, 'f', 2, 64),
			strconv.FormatFloat(m.BandwidthKbps, 'f', 2, 64),
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	return path, w.Error()
}

// WriteAuthoritativePositions writes one row per non-empty cell per
// logged snapshot to <dir>/authoritative_positions_<suffix>.csv (spec.md
// §6).
func WriteAuthoritativePositions(log *PositionLog, dir string, suffix string) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("authoritative_positions_%s.csv", suffix))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("metrics: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp_ms", "row", "col", "player"}); err != nil {
		return "", err
	}

	for _, entry := range log.Entries() {
		for r, row := range entry.Grid {
			for c, v := range row {
				if v == 0 {
					continue
				}
				record := []string{
					strconv.FormatInt(entry.TimestampMs, 10),
					strconv.Itoa(r),
					strconv.Itoa(c),
					strconv.Itoa(int(v)),
				}
				if err := w.Write(record); err != nil {
					return "", err
				}
			}
		}
	}
	w.Flush()
	return path, w.Error()
}
