package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

// RunSummary is the viewer-facing projection of one result row.
type RunSummary struct {
	RunID             string  `json:"run_id"`
	StartedNs         int64   `json:"started_ns"`
	ROM               string  `json:"rom"`
	Agent             string  `json:"agent"`
	FrameSkip         int32   `json:"frame_skip"`
	TurnLimit         int32   `json:"turn_limit"`
	ExplorationWeight float64 `json:"exploration_weight"`
	RolloutDepth      int32   `json:"rollout_depth"`
	SearchTimeMs      int64   `json:"search_time_ms"`
	FinalScore        int64   `json:"final_score"`
	Turns             int32   `json:"turns"`
	Frames            int32   `json:"frames"`
	VideoPath         string  `json:"video_path"`
	VideoOK           bool    `json:"video_ok"`
}

// AgentStats aggregates scores per (rom, agent) pair.
type AgentStats struct {
	ROM       string  `json:"rom"`
	Agent     string  `json:"agent"`
	Runs      int64   `json:"runs"`
	MeanScore float64 `json:"mean_score"`
	MaxScore  int64   `json:"max_score"`
}

// DBCache maintains a cached in-memory duckdb connection over the parquet
// results dir, refreshed periodically so new sweep batches show up.
type DBCache struct {
	dir         string
	refreshRate time.Duration

	mu          sync.Mutex
	db          *sql.DB
	lastRefresh time.Time
}

func NewDBCache(dir string, refreshRate time.Duration) *DBCache {
	return &DBCache{dir: dir, refreshRate: refreshRate}
}

func (c *DBCache) Get() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		return c.db, nil
	}

	start := time.Now()
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}
	if c.db != nil {
		_ = c.db.Close()
	}
	c.db = db
	c.lastRefresh = time.Now()
	slog.Debug("db cache refreshed", "elapsed", time.Since(start))
	return c.db, nil
}

func (c *DBCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// glob matches every finished batch; the tmp/ staging dir is excluded by
// construction because batches only land in the root via rename.
func (c *DBCache) glob() string {
	return filepath.Join(c.dir, "*.parquet")
}

func (c *DBCache) queryRuns(ctx context.Context, agent, rom string, limit int) ([]RunSummary, error) {
	db, err := c.Get()
	if err != nil {
		return nil, err
	}

	where := []string{"1=1"}
	args := []any{c.glob()}
	if agent != "" {
		where = append(where, "agent = ?")
		args = append(args, agent)
	}
	if rom != "" {
		where = append(where, "rom = ?")
		args = append(args, rom)
	}
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT run_id, started_ns, rom, agent, frame_skip, turn_limit,
		       exploration_weight, rollout_depth, search_time_ms,
		       final_score, turns, frames,
		       coalesce(video_path, ''), video_ok
		FROM read_parquet(?)
		WHERE %s
		ORDER BY started_ns DESC
		LIMIT ?`, strings.Join(where, " AND "))

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(
			&r.RunID, &r.StartedNs, &r.ROM, &r.Agent, &r.FrameSkip, &r.TurnLimit,
			&r.ExplorationWeight, &r.RolloutDepth, &r.SearchTimeMs,
			&r.FinalScore, &r.Turns, &r.Frames,
			&r.VideoPath, &r.VideoOK,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *DBCache) queryStats(ctx context.Context) ([]AgentStats, error) {
	db, err := c.Get()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT rom, agent, count(*), avg(final_score), max(final_score)
		FROM read_parquet(?)
		GROUP BY rom, agent
		ORDER BY rom, agent`, c.glob())
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var out []AgentStats
	for rows.Next() {
		var s AgentStats
		if err := rows.Scan(&s.ROM, &s.Agent, &s.Runs, &s.MeanScore, &s.MaxScore); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
