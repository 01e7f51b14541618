package runner

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/rajabi-j/ALEMCTS/emu"
	"github.com/rajabi-j/ALEMCTS/emu/emutest"
	"github.com/rajabi-j/ALEMCTS/game"
	"github.com/rajabi-j/ALEMCTS/mcts"
	"github.com/rajabi-j/ALEMCTS/video"
)

func newTestEnv(t *testing.T, opts emutest.Options) *game.Env {
	t.Helper()
	m := emutest.New(opts)
	if err := m.Configure(emu.Config{FrameSkip: 1}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := m.LoadROM("seaquest.bin"); err != nil {
		t.Fatalf("load rom: %v", err)
	}
	env, err := game.NewEnv(m)
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	return env
}

func TestPlayRespectsTurnLimit(t *testing.T) {
	env := newTestEnv(t, emutest.Options{})
	res, err := Play(context.Background(), env, Options{
		Agent:     AgentNoop,
		TurnLimit: 5,
	})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if res.Turns != 5 {
		t.Errorf("turns = %d, want 5", res.Turns)
	}
	if res.Final.Depth() != 5 {
		t.Errorf("final depth = %d, want 5", res.Final.Depth())
	}
}

func TestPlayStopsAtTerminal(t *testing.T) {
	env := newTestEnv(t, emutest.Options{TerminalAt: 3})
	res, err := Play(context.Background(), env, Options{
		Agent:     AgentRandom,
		TurnLimit: 50,
		Rng:       rand.New(rand.NewSource(3)),
	})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if res.Turns != 3 {
		t.Errorf("turns = %d, want 3 (terminal tick)", res.Turns)
	}
	if !res.Final.Terminal() {
		t.Error("final node not terminal")
	}
}

func TestPlayUnknownAgent(t *testing.T) {
	env := newTestEnv(t, emutest.Options{})
	if _, err := Play(context.Background(), env, Options{Agent: Agent("alphazero"), TurnLimit: 1}); err == nil {
		t.Fatal("expected an error for an unknown agent")
	}
}

func TestPlayCapturesFrames(t *testing.T) {
	env := newTestEnv(t, emutest.Options{})
	sink, err := video.NewFrameSink(t.TempDir())
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	res, err := Play(context.Background(), env, Options{
		Agent:     AgentNoop,
		TurnLimit: 4,
		Frames:    sink,
	})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if sink.Count() != res.Turns {
		t.Errorf("captured %d frames for %d turns", sink.Count(), res.Turns)
	}
}

// payUp rewards native code 4 (table index 3).
func payUp(_ int64, a emu.Action) int64 {
	if a == 4 {
		return 1
	}
	return 0
}

func TestRunExperimentMCTS(t *testing.T) {
	m := emutest.New(emutest.Options{Reward: payUp, TerminalAt: 100})
	row, err := Run(context.Background(), m, Experiment{
		ROMPath:           "seaquest.bin",
		ROMName:           "seaquest",
		Agent:             AgentMCTS,
		EmuConfig:         emu.Config{FrameSkip: 1},
		TurnLimit:         6,
		Seed:              11,
		ExplorationWeight: 0.5,
		RolloutDepth:      2,
		SearchIterations:  60,
		FrameDir:          t.TempDir(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if row.Agent != "mcts" || row.ROM != "seaquest" {
		t.Errorf("row identity wrong: %+v", row)
	}
	if row.Turns != 6 {
		t.Errorf("turns = %d, want 6", row.Turns)
	}
	// One re-rendered frame per transition in the final node's history.
	if row.Frames != row.Turns {
		t.Errorf("frames = %d, want %d (one per transition)", row.Frames, row.Turns)
	}
	if row.FinalScore <= 0 {
		t.Errorf("score = %d; search never found the rewarding action", row.FinalScore)
	}
	if row.VideoOK {
		t.Error("video reported ok with no encode requested")
	}
}

func TestRunExperimentEncoderFailureDegrades(t *testing.T) {
	m := emutest.New(emutest.Options{})
	dir := t.TempDir()
	row, err := Run(context.Background(), m, Experiment{
		ROMPath:   "pong.bin",
		ROMName:   "pong",
		Agent:     AgentNoop,
		EmuConfig: emu.Config{FrameSkip: 1},
		TurnLimit: 3,
		Seed:      1,
		FrameDir:  filepath.Join(dir, "frames"),
		VideoPath: filepath.Join(dir, "out.mp4"),
		// "false" exits non-zero: the encoder fails, the run must not.
		Renderer: &video.Renderer{FFmpegPath: "false"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if row.VideoOK {
		t.Error("video reported ok despite encoder failure")
	}
	if row.VideoPath != "" {
		t.Errorf("degraded run kept video path %q", row.VideoPath)
	}
	if row.Turns != 3 {
		t.Errorf("turns = %d, want 3; score must survive encoder failure", row.Turns)
	}
}

func TestRunExperimentBaselineSeedStable(t *testing.T) {
	run := func() int64 {
		m := emutest.New(emutest.Options{Reward: payUp})
		row, err := Run(context.Background(), m, Experiment{
			ROMPath:   "pong.bin",
			Agent:     AgentRandom,
			EmuConfig: emu.Config{FrameSkip: 1},
			TurnLimit: 10,
			Seed:      99,
			FrameDir:  t.TempDir(),
		})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return row.FinalScore
	}
	if a, b := run(), run(); a != b {
		t.Errorf("same seed produced different scores: %d vs %d", a, b)
	}
}

func TestPlayMCTSTotalIterations(t *testing.T) {
	env := newTestEnv(t, emutest.Options{})
	search := &mcts.Search{
		Config: mcts.Config{ExplorationWeight: 1, RolloutDepth: 1, Rng: rand.New(rand.NewSource(5))},
		Limits: mcts.Limits{MaxIterations: 20},
	}
	turns := 0
	res, err := Play(context.Background(), env, Options{
		Agent:     AgentMCTS,
		TurnLimit: 3,
		Search:    search,
		OnTurn: func(int, *game.Node, mcts.Stats) {
			turns++
		},
	})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if turns != 3 {
		t.Errorf("OnTurn fired %d times, want 3", turns)
	}
	if res.Iterations != 60 {
		t.Errorf("total iterations = %d, want 3*20", res.Iterations)
	}
}
