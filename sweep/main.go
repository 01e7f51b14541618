// Command sweep runs a grid of experiments over search and emulator
// parameters, appending one result row per run and batching rows into
// parquet for the viewer.
//
// Runs execute sequentially: there is a single emulator instance, and
// snapshots are not safely shareable for concurrent restore/advance against
// it. Parallel sweeps would need one emulator per worker.
package main

import (
	"archive/zip"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rajabi-j/ALEMCTS/emu"
	"github.com/rajabi-j/ALEMCTS/emu/ale"
	"github.com/rajabi-j/ALEMCTS/logging"
	"github.com/rajabi-j/ALEMCTS/mcts"
	"github.com/rajabi-j/ALEMCTS/romloader"
	"github.com/rajabi-j/ALEMCTS/runner"
	"github.com/rajabi-j/ALEMCTS/store"
	"github.com/rajabi-j/ALEMCTS/video"
)

func main() {
	roms := flag.String("roms", "", "Comma-separated ROM paths (.bin or .zip)")
	agents := flag.String("agents", "mcts", "Comma-separated agents: noop, random, mcts")
	weights := flag.String("exploration-weights", "50", "Comma-separated UCB1 coefficients")
	cpuTimes := flag.String("cpu-times", "500ms", "Comma-separated per-turn search budgets")
	rolloutDepths := flag.String("rollout-depths", "20", "Comma-separated rollout depths")
	frameSkips := flag.String("frame-skips", "4", "Comma-separated frame-skip factors")
	tieBreakName := flag.String("tie-break", "first", "Tie-break policy: first or random")
	turnLimit := flag.Int("turn-limit", 500, "Max real moves per run")
	seed := flag.Int64("seed", 1, "Base RNG seed; each run adds its index")
	outDir := flag.String("out-dir", "results", "Output root (videos/, frames/, runs.csv, parquet batches)")
	runsPerFlush := flag.Int("runs-per-flush", 10, "Runs to buffer per parquet flush")
	keepFrames := flag.Bool("keep-frames", false, "Zip frame dirs instead of deleting them")
	ffmpegPath := flag.String("ffmpeg", "ffmpeg", "ffmpeg binary")
	fps := flag.Int("fps", 30, "Video frame rate")
	flag.Parse()

	logger := slog.New(logging.NewHandler(os.Stderr, slog.LevelInfo))
	slog.SetDefault(logger)

	if *roms == "" {
		flag.Usage()
		os.Exit(2)
	}

	tieBreak, err := mcts.ParseTieBreak(*tieBreakName)
	if err != nil {
		logger.Error("bad tie-break", "err", err)
		os.Exit(1)
	}

	grid, err := buildGrid(gridFlags{
		roms:          splitList(*roms),
		agents:        splitList(*agents),
		weights:       splitList(*weights),
		cpuTimes:      splitList(*cpuTimes),
		rolloutDepths: splitList(*rolloutDepths),
		frameSkips:    splitList(*frameSkips),
	})
	if err != nil {
		logger.Error("bad sweep grid", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := ale.New()
	defer e.Close()

	renderer := &video.Renderer{FPS: *fps, FFmpegPath: *ffmpegPath}
	csvPath := filepath.Join(*outDir, "runs.csv")
	parquetDir := filepath.Join(*outDir, "parquet")

	pending := make([]store.RunRow, 0, *runsPerFlush)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		path, err := store.WriteBatchParquetAtomic(parquetDir, pending)
		if err != nil {
			logger.Error("parquet flush failed", "rows", len(pending), "err", err)
		} else {
			logger.Info("parquet flush", "path", path, "rows", len(pending))
		}
		pending = pending[:0]
	}
	defer flush()

	logger.Info("sweep starting", "runs", len(grid))

	for i, cell := range grid {
		select {
		case <-ctx.Done():
			logger.Info("sweep interrupted", "completed", i)
			return
		default:
		}

		romName := strings.TrimSuffix(filepath.Base(cell.rom), filepath.Ext(cell.rom))
		romPath, cleanup, err := romloader.Resolve(cell.rom)
		if err != nil {
			logger.Error("rom unavailable", "rom", cell.rom, "err", err)
			os.Exit(1)
		}

		runName := fmt.Sprintf("%s_%s_%03d", romName, cell.agent, i)
		frameDir := filepath.Join(*outDir, "frames", runName)
		videoPath := filepath.Join(*outDir, "videos", runName+".mp4")

		exp := runner.Experiment{
			ROMPath: romPath,
			ROMName: romName,
			Agent:   runner.Agent(cell.agent),
			EmuConfig: emu.Config{
				FrameSkip:               cell.frameSkip,
				RepeatActionProbability: 0,
				Seed:                    *seed + int64(i),
			},
			TurnLimit:         *turnLimit,
			Seed:              *seed + int64(i),
			ExplorationWeight: cell.weight,
			RolloutDepth:      cell.rolloutDepth,
			SearchTime:        cell.cpuTime,
			TieBreak:          tieBreak,
			FrameDir:          frameDir,
			VideoPath:         videoPath,
			Renderer:          renderer,
		}

		started := time.Now()
		row, err := runner.Run(ctx, e, exp)
		cleanup()
		if err != nil {
			logger.Error("run failed", "run", runName, "err", err)
			os.Exit(1)
		}

		logger.Info("run finished",
			"run", runName,
			"agent", cell.agent,
			"score", row.FinalScore,
			"turns", row.Turns,
			"video_ok", row.VideoOK,
			"elapsed", time.Since(started).Round(time.Millisecond),
		)

		if err := store.AppendCSV(csvPath, row); err != nil {
			logger.Error("append csv failed", "run", runName, "err", err)
		}
		pending = append(pending, row)
		if len(pending) >= *runsPerFlush {
			flush()
		}

		if err := packFrames(frameDir, *keepFrames); err != nil {
			logger.Warn("frame cleanup failed", "run", runName, "err", err)
		}
	}

	logger.Info("sweep complete", "runs", len(grid))
}

type gridFlags struct {
	roms, agents, weights, cpuTimes, rolloutDepths, frameSkips []string
}

type gridCell struct {
	rom, agent   string
	weight       float64
	cpuTime      time.Duration
	rolloutDepth int
	frameSkip    int
}

// buildGrid expands the cartesian product of the swept parameters.
// Baseline agents ignore the search dimensions, so they get a single cell
// per (rom, frame skip) instead of a full product.
func buildGrid(f gridFlags) ([]gridCell, error) {
	var grid []gridCell
	for _, rom := range f.roms {
		for _, agent := range f.agents {
			for _, fsStr := range f.frameSkips {
				frameSkip, err := strconv.Atoi(fsStr)
				if err != nil {
					return nil, fmt.Errorf("frame skip %q: %w", fsStr, err)
				}
				if agent != string(runner.AgentMCTS) {
					grid = append(grid, gridCell{rom: rom, agent: agent, frameSkip: frameSkip})
					continue
				}
				for _, wStr := range f.weights {
					weight, err := strconv.ParseFloat(wStr, 64)
					if err != nil {
						return nil, fmt.Errorf("exploration weight %q: %w", wStr, err)
					}
					for _, ctStr := range f.cpuTimes {
						cpuTime, err := time.ParseDuration(ctStr)
						if err != nil {
							return nil, fmt.Errorf("cpu time %q: %w", ctStr, err)
						}
						for _, rdStr := range f.rolloutDepths {
							rolloutDepth, err := strconv.Atoi(rdStr)
							if err != nil {
								return nil, fmt.Errorf("rollout depth %q: %w", rdStr, err)
							}
							grid = append(grid, gridCell{
								rom:          rom,
								agent:        agent,
								weight:       weight,
								cpuTime:      cpuTime,
								rolloutDepth: rolloutDepth,
								frameSkip:    frameSkip,
							})
						}
					}
				}
			}
		}
	}
	return grid, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// packFrames either zips the run's frame dir next to it or removes it.
func packFrames(frameDir string, keep bool) error {
	if !keep {
		return os.RemoveAll(frameDir)
	}
	if err := zipDir(frameDir, frameDir+".zip"); err != nil {
		return err
	}
	return os.RemoveAll(frameDir)
}

func zipDir(dir, outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w, err := zw.Create(e.Name())
		if err != nil {
			return err
		}
		src, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		_, err = io.Copy(w, src)
		src.Close()
		if err != nil {
			return err
		}
	}
	return zw.Close()
}
