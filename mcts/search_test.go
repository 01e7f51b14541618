package mcts

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/rajabi-j/ALEMCTS/emu"
	"github.com/rajabi-j/ALEMCTS/emu/emutest"
	"github.com/rajabi-j/ALEMCTS/game"
)

func newTestEnv(t *testing.T, opts emutest.Options) *game.Env {
	t.Helper()
	m := emutest.New(opts)
	if err := m.Configure(emu.Config{FrameSkip: 1}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := m.LoadROM("breakout.bin"); err != nil {
		t.Fatalf("load rom: %v", err)
	}
	env, err := game.NewEnv(m)
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	return env
}

// payUp rewards native code 4 ("UP", table index 3) on every step.
func payUp(_ int64, a emu.Action) int64 {
	if a == 4 {
		return 1
	}
	return 0
}

func TestMoveFindsRewardingAction(t *testing.T) {
	env := newTestEnv(t, emutest.Options{Reward: payUp})
	root, err := env.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}

	s := &Search{
		Config: Config{
			ExplorationWeight: 0.5,
			RolloutDepth:      3,
			Rng:               rand.New(rand.NewSource(7)),
		},
		Limits: Limits{MaxIterations: 400},
	}

	move, stats, err := s.Move(context.Background(), env, root)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if move.ActionID() != 3 {
		t.Errorf("chose action %d, want the rewarding action 3", move.ActionID())
	}
	if move.Evaluation() != 1 {
		t.Errorf("committed child score = %d, want 1", move.Evaluation())
	}
	if stats.Iterations != 400 {
		t.Errorf("iterations = %d, want the full budget of 400", stats.Iterations)
	}
	if stats.MaxDepth < 1 {
		t.Errorf("max depth = %d, want >= 1", stats.MaxDepth)
	}
}

func TestIterationBudget(t *testing.T) {
	env := newTestEnv(t, emutest.Options{})
	root, err := env.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}

	s := &Search{
		Config: Config{ExplorationWeight: 1, RolloutDepth: 1, Rng: rand.New(rand.NewSource(1))},
		Limits: Limits{MaxIterations: 25},
	}
	_, stats, err := s.Move(context.Background(), env, root)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if stats.Iterations != 25 {
		t.Errorf("iterations = %d, want exactly 25", stats.Iterations)
	}
}

func TestTimeBudget(t *testing.T) {
	env := newTestEnv(t, emutest.Options{})
	root, err := env.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}

	s := &Search{
		Config: Config{ExplorationWeight: 1, RolloutDepth: 1, Rng: rand.New(rand.NewSource(1))},
		Limits: Limits{MaxTime: 30 * time.Millisecond},
	}
	start := time.Now()
	_, stats, err := s.Move(context.Background(), env, root)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if stats.Iterations == 0 {
		t.Error("no iterations completed inside the time budget")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("search ran %v, far past a 30ms budget", elapsed)
	}
}

func TestTerminalRootRejected(t *testing.T) {
	m := emutest.New(emutest.Options{TerminalAt: 1})
	m.Configure(emu.Config{FrameSkip: 1})
	if err := m.LoadROM("over.bin"); err != nil {
		t.Fatalf("load rom: %v", err)
	}
	m.Act(emu.NOOP) // game over after one step
	env, err := game.NewEnv(m)
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	root, err := env.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if !root.Terminal() {
		t.Fatal("root not terminal; test setup broken")
	}

	s := &Search{Limits: Limits{MaxIterations: 10}}
	if _, _, err := s.Move(context.Background(), env, root); !errors.Is(err, ErrTerminalRoot) {
		t.Fatalf("expected ErrTerminalRoot, got %v", err)
	}
}

func TestNoLimits(t *testing.T) {
	env := newTestEnv(t, emutest.Options{})
	root, err := env.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	s := &Search{Config: Config{ExplorationWeight: 1}}
	if _, _, err := s.Move(context.Background(), env, root); !errors.Is(err, ErrNoLimits) {
		t.Fatalf("expected ErrNoLimits, got %v", err)
	}
}

func TestFirstTieBreakDeterministic(t *testing.T) {
	// All rewards zero: every root child ties. With TieBreakFirst and a
	// fixed seed, repeated searches from identical positions must agree.
	run := func() int {
		env := newTestEnv(t, emutest.Options{})
		root, err := env.Root()
		if err != nil {
			t.Fatalf("root: %v", err)
		}
		s := &Search{
			Config: Config{
				ExplorationWeight: 1,
				RolloutDepth:      2,
				TieBreak:          TieBreakFirst,
				Rng:               rand.New(rand.NewSource(42)),
			},
			Limits: Limits{MaxIterations: 80},
		}
		move, _, err := s.Move(context.Background(), env, root)
		if err != nil {
			t.Fatalf("move: %v", err)
		}
		return move.ActionID()
	}

	if first, second := run(), run(); first != second {
		t.Errorf("deterministic search diverged: %d vs %d", first, second)
	}
}

func TestCancelledContext(t *testing.T) {
	env := newTestEnv(t, emutest.Options{})
	root, err := env.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &Search{
		Config: Config{ExplorationWeight: 1, RolloutDepth: 1},
		Limits: Limits{MaxIterations: 1000},
	}
	if _, _, err := s.Move(ctx, env, root); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseTieBreak(t *testing.T) {
	if tb, err := ParseTieBreak("first"); err != nil || tb != TieBreakFirst {
		t.Errorf("ParseTieBreak(first) = %v, %v", tb, err)
	}
	if tb, err := ParseTieBreak("random"); err != nil || tb != TieBreakRandom {
		t.Errorf("ParseTieBreak(random) = %v, %v", tb, err)
	}
	if _, err := ParseTieBreak("best"); err == nil {
		t.Error("ParseTieBreak accepted an unknown policy")
	}
}
