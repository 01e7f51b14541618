// Package emu defines the arcade-emulation adapter contract.
//
// Everything above this package deals with action indices and opaque
// snapshots; native action codes and emulator internals stay behind the
// Emulator interface. Implementations live in subpackages (emu/ale for the
// real Arcade Learning Environment, emu/emutest for a scripted test double).
package emu

import (
	"errors"
	"image"
)

// Action is an emulator-native action code. Codes are meaningful only to the
// emulator that produced them; callers should treat them as opaque and work
// with positions in the run's action table instead.
type Action int

// NOOP is the universal "do nothing" action code shared by every ALE ROM.
const NOOP Action = 0

// Config is the run-wide emulator configuration. It must be applied before
// LoadROM and never changed afterwards: the action table, frame timing and
// determinism contract of a run all derive from it.
type Config struct {
	// FrameSkip is the number of emulated frames each Act call advances.
	FrameSkip int

	// RepeatActionProbability is ALE's sticky-action knob. It must be 0 for
	// search: repeated Act calls from the same restored state are only
	// bit-identical with stochasticity disabled.
	RepeatActionProbability float64

	// Seed, when non-zero, seeds the emulator RNG.
	Seed int64

	// DisplayScreen and Sound toggle ALE's SDL output. Off for headless runs.
	DisplayScreen bool
	Sound         bool
}

var (
	// ErrNotLoaded is returned by operations that need a loaded ROM.
	ErrNotLoaded = errors.New("emu: no ROM loaded")

	// ErrBadSnapshot is returned by RestoreState when the blob cannot be
	// decoded back into an emulator state.
	ErrBadSnapshot = errors.New("emu: snapshot does not decode")
)

// Emulator is a stateful arcade machine. There is exactly one legal user at a
// time and no internal locking: callers sequence access themselves and must
// restore the state they need before reading or advancing (the game package
// enforces this protocol).
type Emulator interface {
	// Configure applies run-wide settings. Call once, before LoadROM.
	Configure(cfg Config) error

	// LoadROM loads and resets the given ROM. Missing or unreadable ROMs are
	// configuration errors, surfaced here and never retried.
	LoadROM(path string) error

	// MinimalActionSet returns the ROM's legal action codes in a fixed order.
	// The slice is stable for the lifetime of the loaded ROM.
	MinimalActionSet() []Action

	// Act applies one action for FrameSkip frames and returns the immediate
	// reward. Behaviour is undefined if no ROM is loaded.
	Act(a Action) int64

	// GameOver reports whether the current state is terminal.
	GameOver() bool

	// CloneState serializes the complete current state into an opaque blob
	// sufficient to restore this exact point later. The returned slice is
	// owned by the caller.
	CloneState() []byte

	// RestoreState rewinds the emulator to a previously cloned state.
	RestoreState(snapshot []byte) error

	// Screen renders the current frame buffer as RGBA.
	Screen() *image.RGBA

	// FrameNumber returns the number of frames emulated since the ROM was
	// loaded or the game last reset.
	FrameNumber() int64

	// ResetGame restarts the episode without reloading the ROM.
	ResetGame()

	// Close releases native resources. The emulator is unusable afterwards.
	Close() error
}
