// Package store persists run results as an append-only CSV log and as
// compressed parquet batches for the viewer.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// RunRow is one completed run: the full parameter set, the outcome and the
// produced artifacts. One row is appended per run; VideoOK is false when the
// encoder failed and the run was degraded to score-only.
type RunRow struct {
	RunID     string `parquet:"run_id,dict"`
	StartedNs int64  `parquet:"started_ns"`

	ROM       string `parquet:"rom,dict"`
	Agent     string `parquet:"agent,dict"`
	FrameSkip int32  `parquet:"frame_skip"`
	TurnLimit int32  `parquet:"turn_limit"`
	Seed      int64  `parquet:"seed"`

	// Search parameters; zero for baseline agents.
	ExplorationWeight float64 `parquet:"exploration_weight"`
	RolloutDepth      int32   `parquet:"rollout_depth"`
	SearchTimeMs      int64   `parquet:"search_time_ms"`
	SearchIterations  int32   `parquet:"search_iterations"`
	TieBreak          string  `parquet:"tie_break,dict"`

	FinalScore int64  `parquet:"final_score"`
	Turns      int32  `parquet:"turns"`
	Frames     int32  `parquet:"frames"`
	VideoPath  string `parquet:"video_path,dict,optional"`
	VideoOK    bool   `parquet:"video_ok"`
}

var csvHeader = []string{
	"run_id", "started_ns", "rom", "agent", "frame_skip", "turn_limit", "seed",
	"exploration_weight", "rollout_depth", "search_time_ms", "search_iterations",
	"tie_break", "final_score", "turns", "frames", "video_path", "video_ok",
}

func (r RunRow) csvRecord() []string {
	return []string{
		r.RunID,
		strconv.FormatInt(r.StartedNs, 10),
		r.ROM,
		r.Agent,
		strconv.Itoa(int(r.FrameSkip)),
		strconv.Itoa(int(r.TurnLimit)),
		strconv.FormatInt(r.Seed, 10),
		strconv.FormatFloat(r.ExplorationWeight, 'g', -1, 64),
		strconv.Itoa(int(r.RolloutDepth)),
		strconv.FormatInt(r.SearchTimeMs, 10),
		strconv.Itoa(int(r.SearchIterations)),
		r.TieBreak,
		strconv.FormatInt(r.FinalScore, 10),
		strconv.Itoa(int(r.Turns)),
		strconv.Itoa(int(r.Frames)),
		r.VideoPath,
		strconv.FormatBool(r.VideoOK),
	}
}

// WriteBatchParquetAtomic writes a parquet batch into outDir/tmp and then
// atomically moves it into outDir, so readers (the viewer's duckdb globs)
// never observe partially-written files.
func WriteBatchParquetAtomic(outDir string, rows []RunRow) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("runs_%d.parquet", time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", "run_row_v1"),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}

	return finalPath, nil
}

// ReadParquet loads every row of one batch file, mainly for tests and
// ad-hoc tooling; the viewer queries batches through duckdb instead.
func ReadParquet(path string) ([]RunRow, error) {
	rows, err := parquet.ReadFile[RunRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	return rows, nil
}
