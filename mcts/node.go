package mcts

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rajabi-j/ALEMCTS/game"
)

// TieBreak selects among equally-visited root children.
type TieBreak int

const (
	// TieBreakFirst deterministically keeps the first best child found.
	TieBreakFirst TieBreak = iota
	// TieBreakRandom samples uniformly among the tied children.
	TieBreakRandom
)

func (t TieBreak) String() string {
	if t == TieBreakRandom {
		return "random"
	}
	return "first"
}

// ParseTieBreak maps the CLI spelling to a policy.
func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case "first":
		return TieBreakFirst, nil
	case "random":
		return TieBreakRandom, nil
	}
	return 0, fmt.Errorf("mcts: unknown tie-break policy %q", s)
}

// Config holds the search parameters.
type Config struct {
	// ExplorationWeight is the UCB1 coefficient. Evaluations are raw
	// cumulative game scores, so this is scaled to the game, not to [0,1].
	ExplorationWeight float64

	// RolloutDepth caps how many random actions a simulation plays from a
	// leaf before its cumulative score is taken as the value.
	RolloutDepth int

	// TieBreak picks among equally-visited best children.
	TieBreak TieBreak

	// Rng drives expansion order, rollouts and random tie-breaks. A nil Rng
	// gets a time-seeded one.
	Rng *rand.Rand
}

// Limits bound one Move call. At least one of the two must be set; both set
// means whichever trips first. Checks are cooperative, between iterations.
type Limits struct {
	MaxTime       time.Duration
	MaxIterations int
}

// Stats describe one completed Move call.
type Stats struct {
	Iterations int
	MaxDepth   int
	Elapsed    time.Duration
}

// node is the in-tree bookkeeping wrapped around a game state. Evaluations
// and visit counts live here; the game state itself stays immutable.
type node struct {
	state    *game.Node
	parent   *node
	children []*node
	untried  []int
	visits   int
	total    float64
}

func newNode(state *game.Node, parent *node, legal []int) *node {
	n := &node{state: state, parent: parent}
	if !state.Terminal() {
		n.untried = append([]int(nil), legal...)
	}
	return n
}

func (n *node) fullyExpanded() bool { return len(n.untried) == 0 }

func (n *node) mean() float64 { return n.total / float64(n.visits) }
