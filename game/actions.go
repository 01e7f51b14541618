package game

import (
	"errors"
	"fmt"

	"github.com/rajabi-j/ALEMCTS/emu"
)

// ErrInvalidAction is returned when an action index falls outside the run's
// action table.
var ErrInvalidAction = errors.New("game: invalid action index")

// ActionTable is the fixed, ordered legal-action table for one run. Node
// action ids are positions in this table; index 0 is NOOP by ALE convention
// (the minimal action set always lists NOOP first). The table is the single
// translation point between search-facing indices and emulator-native codes,
// and must not change size or order while a run is live: the search is told
// the action space is constant, and a mutated table silently corrupts its
// statistics.
type ActionTable []emu.Action

// Code translates a table index to the emulator-native action code.
func (t ActionTable) Code(idx int) (emu.Action, error) {
	if idx < 0 || idx >= len(t) {
		return 0, fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidAction, idx, len(t))
	}
	return t[idx], nil
}

// Indices returns every valid action id, in table order.
func (t ActionTable) Indices() []int {
	out := make([]int, len(t))
	for i := range t {
		out[i] = i
	}
	return out
}
