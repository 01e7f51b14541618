package game

import (
	"bytes"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Node is one point in the game's decision tree: an emulator snapshot plus
// the score and action that reached it. Nodes are immutable after
// construction; re-entering emulation from a node goes through Env, which
// restores from the stored snapshot and never writes it back.
type Node struct {
	snapshot []byte
	parent   *Node
	score    int64
	actionID int
	terminal bool
}

// Evaluation is the cumulative score from the root to this node, used by
// the search as the node's accumulated utility.
func (n *Node) Evaluation() int64 { return n.score }

// Terminal reports whether the emulator was game-over immediately after the
// transition that produced this node. Fixed at construction.
func (n *Node) Terminal() bool { return n.terminal }

// ActionID is the action-table index that produced this node from its
// parent; 0 (NOOP) for the root.
func (n *Node) ActionID() int { return n.actionID }

// Parent returns the node this one was advanced from, nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Reward is the immediate reward of the transition that produced this node.
func (n *Node) Reward() int64 {
	if n.parent == nil {
		return 0
	}
	return n.score - n.parent.score
}

// Equal reports whether two nodes wrap bit-identical snapshots. Score and
// action id are deliberately not compared: distinct paths can reach the
// same emulator state.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	return bytes.Equal(n.snapshot, other.snapshot)
}

// Hash digests the snapshot for deduplication keyed on emulator state.
func (n *Node) Hash() uint64 {
	return xxh3.Hash(n.snapshot)
}

// History walks parent links back to the root and returns the chain in
// root-to-node order, n included. Recomputed on every call; it is needed at
// most once per run, for video rendering.
func (n *Node) History() []*Node {
	var chain []*Node
	for node := n; node != nil; node = node.parent {
		chain = append(chain, node)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Depth is the number of transitions between the root and this node.
func (n *Node) Depth() int {
	d := 0
	for node := n; node.parent != nil; node = node.parent {
		d++
	}
	return d
}

func (n *Node) String() string {
	return fmt.Sprintf("Node{score=%d action=%d terminal=%v depth=%d}",
		n.score, n.actionID, n.terminal, n.Depth())
}
