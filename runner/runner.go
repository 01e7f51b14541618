// Package runner plays one episode of an agent against a loaded game and
// assembles the run's result.
//
// Search and rendering are sequenced phases: the runner only ever advances
// real moves; video replay happens after Play returns, against the same
// env, once no more decisions are pending.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rajabi-j/ALEMCTS/game"
	"github.com/rajabi-j/ALEMCTS/mcts"
	"github.com/rajabi-j/ALEMCTS/video"
)

// Agent names a decision policy.
type Agent string

const (
	AgentNoop   Agent = "noop"
	AgentRandom Agent = "random"
	AgentMCTS   Agent = "mcts"
)

// ErrUnknownAgent is returned for agent names outside the known set.
var ErrUnknownAgent = errors.New("runner: unknown agent")

// Options configure one episode.
type Options struct {
	Agent Agent

	// TurnLimit caps the number of real moves; 0 means play to terminal.
	TurnLimit int

	// Search drives the mcts agent; ignored for baselines.
	Search *mcts.Search

	// Rng drives the random agent. Nil gets a time-seeded source.
	Rng *rand.Rand

	// Frames, when set, captures the screen after every committed move.
	// Used by baselines; the search agent re-renders from history instead.
	Frames *video.FrameSink

	// OnTurn is called after each committed move with the turn index, the
	// committed node and that turn's search stats (zero for baselines).
	OnTurn func(turn int, node *game.Node, stats mcts.Stats)
}

// Result is one completed episode.
type Result struct {
	Final      *game.Node
	Score      int64
	Turns      int
	Iterations int // total search iterations across all turns
}

// Play runs the episode: at most TurnLimit real moves, stopping early when
// a terminal node is reached. Terminal nodes are never advanced.
func Play(ctx context.Context, env *game.Env, opts Options) (Result, error) {
	if opts.Agent == AgentMCTS && opts.Search == nil {
		return Result{}, fmt.Errorf("runner: mcts agent needs a search")
	}

	rng := opts.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	node, err := env.Root()
	if err != nil {
		return Result{}, err
	}

	res := Result{Final: node}
	for turn := 0; opts.TurnLimit <= 0 || turn < opts.TurnLimit; turn++ {
		if node.Terminal() {
			break
		}
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		var stats mcts.Stats
		var next *game.Node
		switch opts.Agent {
		case AgentNoop:
			next, err = env.Advance(node, 0)
		case AgentRandom:
			legal := env.LegalActions()
			next, err = env.Advance(node, legal[rng.Intn(len(legal))])
		case AgentMCTS:
			next, stats, err = opts.Search.Move(ctx, env, node)
		default:
			return res, fmt.Errorf("%w: %q", ErrUnknownAgent, opts.Agent)
		}
		if err != nil {
			return res, err
		}

		node = next
		res.Final = node
		res.Score = node.Evaluation()
		res.Turns = turn + 1
		res.Iterations += stats.Iterations

		if opts.Frames != nil {
			if err := env.Sync(node); err != nil {
				return res, err
			}
			if err := opts.Frames.Write(env.Emulator().Screen()); err != nil {
				return res, err
			}
		}
		if opts.OnTurn != nil {
			opts.OnTurn(turn, node, stats)
		}
	}

	return res, nil
}
