// Package mcts runs UCT tree search over game-state nodes.
//
// Each iteration selects a leaf by UCB1, expands one untried action,
// simulates up to RolloutDepth random actions and backpropagates the
// rollout leaf's cumulative score. All emulation goes through game.Env,
// which restores the right snapshot before every transition, so expanding
// many children of one parent in any order is safe.
package mcts

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/rajabi-j/ALEMCTS/game"
)

var (
	// ErrTerminalRoot is returned when Move is asked to search from a
	// game-over state. The driver must stop advancing instead.
	ErrTerminalRoot = errors.New("mcts: root is terminal")

	// ErrNoLimits is returned when neither a time nor an iteration budget
	// is set.
	ErrNoLimits = errors.New("mcts: no search limits set")
)

// Search runs moves for one game. The zero value is not usable; set Config
// and Limits.
type Search struct {
	Config Config
	Limits Limits
}

// Move searches from root and returns the child of root to commit as the
// real move, chosen by visit count with ties broken per the configured
// policy. The emulator behind env is left in an arbitrary state afterwards;
// callers restore whatever they need next.
func (s *Search) Move(ctx context.Context, env *game.Env, root *game.Node) (*game.Node, Stats, error) {
	if root.Terminal() {
		return nil, Stats{}, ErrTerminalRoot
	}
	if s.Limits.MaxTime <= 0 && s.Limits.MaxIterations <= 0 {
		return nil, Stats{}, ErrNoLimits
	}

	rng := s.Config.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	legal := env.LegalActions()
	rootNode := newNode(root, nil, legal)
	start := time.Now()
	stats := Stats{}

	for {
		if s.Limits.MaxIterations > 0 && stats.Iterations >= s.Limits.MaxIterations {
			break
		}
		if s.Limits.MaxTime > 0 && time.Since(start) >= s.Limits.MaxTime {
			break
		}
		select {
		case <-ctx.Done():
			return nil, stats, ctx.Err()
		default:
		}

		// Selection: descend through fully expanded nodes by UCB1.
		n := rootNode
		depth := 0
		for n.fullyExpanded() && len(n.children) > 0 && !n.state.Terminal() {
			n = s.selectChild(n)
			depth++
		}

		// Expansion: realize one untried action.
		if !n.state.Terminal() && len(n.untried) > 0 {
			child, err := s.expand(env, n, legal, rng)
			if err != nil {
				return nil, stats, err
			}
			n = child
			depth++
		}

		if depth > stats.MaxDepth {
			stats.MaxDepth = depth
		}

		// Simulation: random playout from the leaf, bounded by rollout depth.
		value, err := s.rollout(env, n.state, legal, rng)
		if err != nil {
			return nil, stats, err
		}

		// Backpropagation.
		for ; n != nil; n = n.parent {
			n.visits++
			n.total += value
		}

		stats.Iterations++
	}

	stats.Elapsed = time.Since(start)

	best := s.bestChild(rootNode, rng)
	if best == nil {
		// Budget too small to expand anything; fall back to one real
		// expansion so the driver always gets a move.
		child, err := s.expand(env, rootNode, legal, rng)
		if err != nil {
			return nil, stats, err
		}
		best = child
	}
	return best.state, stats, nil
}

func (s *Search) selectChild(parent *node) *node {
	logN := math.Log(float64(parent.visits))
	var best *node
	bestScore := math.Inf(-1)
	for _, child := range parent.children {
		u := child.mean() + s.Config.ExplorationWeight*math.Sqrt(logN/float64(child.visits))
		if u > bestScore {
			bestScore = u
			best = child
		}
	}
	return best
}

func (s *Search) expand(env *game.Env, parent *node, legal []int, rng *rand.Rand) (*node, error) {
	i := rng.Intn(len(parent.untried))
	action := parent.untried[i]
	parent.untried[i] = parent.untried[len(parent.untried)-1]
	parent.untried = parent.untried[:len(parent.untried)-1]

	state, err := env.Advance(parent.state, action)
	if err != nil {
		return nil, err
	}
	child := newNode(state, parent, legal)
	parent.children = append(parent.children, child)
	return child, nil
}

func (s *Search) rollout(env *game.Env, leaf *game.Node, legal []int, rng *rand.Rand) (float64, error) {
	cur := leaf
	for i := 0; i < s.Config.RolloutDepth && !cur.Terminal(); i++ {
		next, err := env.Advance(cur, legal[rng.Intn(len(legal))])
		if err != nil {
			return 0, err
		}
		cur = next
	}
	return float64(cur.Evaluation()), nil
}

func (s *Search) bestChild(root *node, rng *rand.Rand) *node {
	var best *node
	maxVisits := -1
	ties := 0
	for _, child := range root.children {
		switch {
		case child.visits > maxVisits:
			maxVisits = child.visits
			best = child
			ties = 1
		case child.visits == maxVisits && s.Config.TieBreak == TieBreakRandom:
			// Reservoir sample so every tied child is equally likely.
			ties++
			if rng.Intn(ties) == 0 {
				best = child
			}
		}
	}
	return best
}
