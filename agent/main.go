// Command agent runs a single NOOP, random or MCTS episode against an
// Atari ROM and records the score and gameplay video.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rajabi-j/ALEMCTS/emu"
	"github.com/rajabi-j/ALEMCTS/emu/ale"
	"github.com/rajabi-j/ALEMCTS/game"
	"github.com/rajabi-j/ALEMCTS/mcts"
	"github.com/rajabi-j/ALEMCTS/romloader"
	"github.com/rajabi-j/ALEMCTS/runner"
	"github.com/rajabi-j/ALEMCTS/store"
	"github.com/rajabi-j/ALEMCTS/video"
)

var totalIterations atomic.Int64

type TurnUpdate struct {
	Turn  int
	Score int64
	Depth int
}

type RunDone struct {
	Row store.RunRow
	Err error
}

type model struct {
	agent     string
	rom       string
	turnLimit int

	turn      int
	score     int64
	startTime time.Time
	done      bool
	err       error

	updates chan tea.Msg
}

func initialModel(agent, rom string, turnLimit int, updates chan tea.Msg) model {
	return model{
		agent:     agent,
		rom:       rom,
		turnLimit: turnLimit,
		startTime: time.Now(),
		updates:   updates,
	}
}

type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func waitForUpdate(updates chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	case TurnUpdate:
		m.turn = msg.Turn + 1
		m.score = msg.Score
		return m, waitForUpdate(m.updates)
	case RunDone:
		m.done = true
		m.err = msg.Err
		if msg.Err == nil {
			m.score = msg.Row.FinalScore
			m.turn = int(msg.Row.Turns)
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	iters := totalIterations.Load()
	itersPerSec := float64(iters) / duration.Seconds()
	if duration.Seconds() < 1 {
		itersPerSec = 0
	}

	s := fmt.Sprintf("ROM:        %s\n", m.rom)
	s += fmt.Sprintf("Agent:      %s\n", m.agent)
	s += fmt.Sprintf("Turn:       %d/%d\n", m.turn, m.turnLimit)
	s += fmt.Sprintf("Score:      %d\n", m.score)
	s += fmt.Sprintf("Duration:   %s\n", duration.Round(time.Second))
	s += fmt.Sprintf("Search its: %d (%.0f/sec)\n", iters, itersPerSec)
	if m.done {
		if m.err != nil {
			s += fmt.Sprintf("\nFailed: %v\n", m.err)
		} else {
			s += "\nDone.\n"
		}
	}
	s += "\nPress q to quit.\n"
	return s
}

func main() {
	romPath := flag.String("rom", "", "Path to the ROM (.bin or .zip)")
	agentName := flag.String("agent", "mcts", "Agent: noop, random or mcts")
	explorationWeight := flag.Float64("exploration-weight", 50, "UCB1 exploration coefficient")
	cpuTime := flag.Duration("cpu-time", 0, "Wall-clock search budget per turn (e.g. 500ms)")
	iterations := flag.Int("iterations", 0, "Fixed search iteration count per turn (alternative to -cpu-time)")
	rolloutDepth := flag.Int("rollout-depth", 20, "Max random playout steps per simulation")
	frameSkip := flag.Int("frame-skip", 4, "Emulated frames per action")
	turnLimit := flag.Int("turn-limit", 500, "Max real moves (0 = play to game over)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	tieBreakName := flag.String("tie-break", "first", "Tie-break among equal actions: first or random")
	pngDir := flag.String("png-dir", "", "Frame directory (default: temp dir)")
	videoPath := flag.String("video", "", "Output video path (empty = no video)")
	resultsCSV := flag.String("results-csv", "results/runs.csv", "Results CSV to append to")
	resultsDir := flag.String("results-dir", "", "Parquet results dir (empty = CSV only)")
	ffmpegPath := flag.String("ffmpeg", "ffmpeg", "ffmpeg binary")
	fps := flag.Int("fps", 30, "Video frame rate")
	plain := flag.Bool("plain", false, "Plain log output instead of the TUI")
	flag.Parse()

	if *romPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	tieBreak, err := mcts.ParseTieBreak(*tieBreakName)
	if err != nil {
		log.Fatal(err)
	}
	if *agentName == string(runner.AgentMCTS) && *cpuTime <= 0 && *iterations <= 0 {
		log.Fatal("mcts agent needs -cpu-time or -iterations")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rom, cleanup, err := romloader.Resolve(*romPath)
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	frameDir := *pngDir
	if frameDir == "" {
		tmp, err := os.MkdirTemp("", "frames_*")
		if err != nil {
			log.Fatal(err)
		}
		defer os.RemoveAll(tmp)
		frameDir = tmp
	}

	runSeed := *seed
	if runSeed == 0 {
		runSeed = time.Now().UnixNano()
	}

	exp := runner.Experiment{
		ROMPath: rom,
		ROMName: filepath.Base(*romPath),
		Agent:   runner.Agent(*agentName),
		EmuConfig: emu.Config{
			FrameSkip:               *frameSkip,
			RepeatActionProbability: 0,
			Seed:                    runSeed,
		},
		TurnLimit:         *turnLimit,
		Seed:              runSeed,
		ExplorationWeight: *explorationWeight,
		RolloutDepth:      *rolloutDepth,
		SearchTime:        *cpuTime,
		SearchIterations:  *iterations,
		TieBreak:          tieBreak,
		FrameDir:          frameDir,
		VideoPath:         *videoPath,
		Renderer:          &video.Renderer{FPS: *fps, FFmpegPath: *ffmpegPath},
	}

	e := ale.New()
	defer e.Close()

	if *plain {
		exp.OnTurn = func(turn int, node *game.Node, stats mcts.Stats) {
			totalIterations.Add(int64(stats.Iterations))
			log.Printf("turn %d: score=%d iterations=%d depth=%d",
				turn+1, node.Evaluation(), stats.Iterations, stats.MaxDepth)
		}
		row, err := runner.Run(ctx, e, exp)
		if err != nil {
			log.Fatal(err)
		}
		finish(row, *resultsCSV, *resultsDir)
		log.Printf("final score %d after %d turns", row.FinalScore, row.Turns)
		return
	}

	// Divert logs away from the TUI.
	logFile, err := os.OpenFile("agent.log", os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		log.Fatal(err)
	}
	defer logFile.Close()
	log.SetOutput(logFile)

	updates := make(chan tea.Msg, 64)
	exp.OnTurn = func(turn int, node *game.Node, stats mcts.Stats) {
		totalIterations.Add(int64(stats.Iterations))
		select {
		case updates <- TurnUpdate{Turn: turn, Score: node.Evaluation(), Depth: stats.MaxDepth}:
		default:
		}
	}

	go func() {
		row, err := runner.Run(ctx, e, exp)
		if err == nil {
			finish(row, *resultsCSV, *resultsDir)
		}
		updates <- RunDone{Row: row, Err: err}
	}()

	p := tea.NewProgram(initialModel(*agentName, filepath.Base(*romPath), *turnLimit, updates))
	final, err := p.Run()
	if err != nil {
		log.Fatal(err)
	}
	if m, ok := final.(model); ok && m.err != nil {
		fmt.Fprintln(os.Stderr, m.err)
		os.Exit(1)
	}
}

func finish(row store.RunRow, resultsCSV, resultsDir string) {
	if resultsCSV != "" {
		if err := store.AppendCSV(resultsCSV, row); err != nil {
			// Results I/O is reported, never fatal to a finished run.
			log.Printf("append results csv: %v", err)
		}
	}
	if resultsDir != "" {
		if _, err := store.WriteBatchParquetAtomic(resultsDir, []store.RunRow{row}); err != nil {
			log.Printf("write results parquet: %v", err)
		}
	}
}
