// Package game adapts a stateful arcade emulator to the immutable,
// replayable tree-node contract the search expects.
//
// The emulator is process-wide mutable state with exactly one legal user at
// a time. There is no locking because there is no concurrency; instead every
// operation that reads or advances emulation first restores the emulator to
// the snapshot it needs. Env owns that protocol: nodes never touch the
// emulator directly, and a node's own stored snapshot is never mutated.
package game

import (
	"fmt"

	"github.com/rajabi-j/ALEMCTS/emu"
)

// Env is the explicit resource handle threaded through every node
// operation: one configured emulator with a loaded ROM, plus the action
// table captured at construction. Not safe for concurrent use.
type Env struct {
	emulator emu.Emulator
	actions  ActionTable
}

// NewEnv captures the emulator's minimal action set as the run's fixed
// action table. The emulator must already be configured and have a ROM
// loaded; anything else is a configuration error.
func NewEnv(e emu.Emulator) (*Env, error) {
	set := e.MinimalActionSet()
	if len(set) == 0 {
		return nil, fmt.Errorf("game: emulator not ready: %w", emu.ErrNotLoaded)
	}
	table := make(ActionTable, len(set))
	copy(table, set)
	return &Env{emulator: e, actions: table}, nil
}

// Actions returns the run's action table. Callers must treat it as
// read-only.
func (env *Env) Actions() ActionTable { return env.actions }

// LegalActions returns the valid action ids, identical for every node of
// the run.
func (env *Env) LegalActions() []int { return env.actions.Indices() }

// Root wraps the emulator's current state as the root node. The root's
// action id is NOOP by convention: the start of the game is attributed to
// doing nothing.
func (env *Env) Root() (*Node, error) {
	snap := env.emulator.CloneState()
	if len(snap) == 0 {
		return nil, fmt.Errorf("game: cannot snapshot root: %w", emu.ErrNotLoaded)
	}
	return &Node{
		snapshot: snap,
		terminal: env.emulator.GameOver(),
	}, nil
}

// Advance produces parent's child for the given action id. The emulator is
// restored to parent's exact snapshot before the action is applied, so the
// transition is computed from parent regardless of what state a sibling
// expansion or another branch left the emulator in. With emulator
// stochasticity disabled the call is deterministic: same parent and action
// id give a bit-identical child.
func (env *Env) Advance(parent *Node, actionID int) (*Node, error) {
	code, err := env.actions.Code(actionID)
	if err != nil {
		return nil, err
	}
	if err := env.emulator.RestoreState(parent.snapshot); err != nil {
		return nil, fmt.Errorf("game: restore parent state: %w", err)
	}
	reward := env.emulator.Act(code)
	return &Node{
		snapshot: env.emulator.CloneState(),
		parent:   parent,
		score:    parent.score + reward,
		actionID: actionID,
		terminal: env.emulator.GameOver(),
	}, nil
}

// Sync restores the emulator to n's snapshot. Used by replay, which reads
// frames out of band of any node construction.
func (env *Env) Sync(n *Node) error {
	if err := env.emulator.RestoreState(n.snapshot); err != nil {
		return fmt.Errorf("game: restore node state: %w", err)
	}
	return nil
}

// Emulator exposes the underlying handle for frame capture. The caller must
// Sync the node it wants to observe first.
func (env *Env) Emulator() emu.Emulator { return env.emulator }
