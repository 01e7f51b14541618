// Package emutest provides a deterministic, scriptable emulator for tests.
//
// The machine is a tiny arcade core: state is (tick, score, action trace),
// rewards come from a test-supplied function of (tick, action), and the
// episode ends at a fixed tick. Snapshots are a binary encoding of that
// state, so clone/restore semantics mirror the real adapter, including the
// property that two different action paths usually produce different
// snapshots.
package emutest

import (
	"bytes"
	"encoding/binary"
	"image"

	"github.com/rajabi-j/ALEMCTS/emu"
)

var snapshotMagic = []byte("EMUT")

// RewardFunc decides the immediate reward for applying action a at tick.
type RewardFunc func(tick int64, a emu.Action) int64

// Options script the machine. Zero values get usable defaults.
type Options struct {
	// Actions is the minimal action set. Defaults to {NOOP, 1, 3, 4}, which
	// puts native code 4 at table index 3.
	Actions []emu.Action

	// Reward is the reward schedule. Defaults to always zero.
	Reward RewardFunc

	// TerminalAt ends the episode once tick reaches it. Zero means never.
	TerminalAt int64

	// Width and Height size the synthetic screen. Default 8x8.
	Width, Height int
}

// Machine implements emu.Emulator over scripted state.
type Machine struct {
	opts   Options
	cfg    emu.Config
	loaded bool

	tick   int64
	score  int64
	trace  uint64
	frames int64
}

var _ emu.Emulator = (*Machine)(nil)

func New(opts Options) *Machine {
	if opts.Actions == nil {
		opts.Actions = []emu.Action{emu.NOOP, 1, 3, 4}
	}
	if opts.Reward == nil {
		opts.Reward = func(int64, emu.Action) int64 { return 0 }
	}
	if opts.Width == 0 {
		opts.Width = 8
	}
	if opts.Height == 0 {
		opts.Height = 8
	}
	return &Machine{opts: opts, cfg: emu.Config{FrameSkip: 1}}
}

func (m *Machine) Configure(cfg emu.Config) error {
	if cfg.FrameSkip < 1 {
		cfg.FrameSkip = 1
	}
	m.cfg = cfg
	return nil
}

// LoadROM accepts any path; the script plays the role of the ROM.
func (m *Machine) LoadROM(string) error {
	m.loaded = true
	m.tick, m.score, m.trace, m.frames = 0, 0, 0, 0
	return nil
}

func (m *Machine) MinimalActionSet() []emu.Action {
	if !m.loaded {
		return nil
	}
	out := make([]emu.Action, len(m.opts.Actions))
	copy(out, m.opts.Actions)
	return out
}

func (m *Machine) Act(a emu.Action) int64 {
	r := m.opts.Reward(m.tick, a)
	m.score += r
	// FNV-style fold of the action sequence keeps snapshots path-sensitive.
	m.trace = m.trace*1099511628211 + uint64(a) + 1
	m.tick++
	m.frames += int64(m.cfg.FrameSkip)
	return r
}

func (m *Machine) GameOver() bool {
	return m.opts.TerminalAt > 0 && m.tick >= m.opts.TerminalAt
}

func (m *Machine) CloneState() []byte {
	var buf bytes.Buffer
	buf.Write(snapshotMagic)
	for _, v := range []uint64{uint64(m.tick), uint64(m.score), m.trace, uint64(m.frames)} {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

func (m *Machine) RestoreState(snapshot []byte) error {
	if len(snapshot) != len(snapshotMagic)+4*8 || !bytes.HasPrefix(snapshot, snapshotMagic) {
		return emu.ErrBadSnapshot
	}
	fields := snapshot[len(snapshotMagic):]
	m.tick = int64(binary.LittleEndian.Uint64(fields[0:]))
	m.score = int64(binary.LittleEndian.Uint64(fields[8:]))
	m.trace = binary.LittleEndian.Uint64(fields[16:])
	m.frames = int64(binary.LittleEndian.Uint64(fields[24:]))
	return nil
}

// Screen renders a frame whose pixels are a pure function of the state, so
// distinct states produce distinct frames.
func (m *Machine) Screen() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, m.opts.Width, m.opts.Height))
	seed := m.trace ^ uint64(m.tick)<<32 ^ uint64(m.score)
	for i := 0; i < len(img.Pix); i += 4 {
		seed = seed*6364136223846793005 + 1442695040888963407
		img.Pix[i+0] = byte(seed >> 56)
		img.Pix[i+1] = byte(seed >> 48)
		img.Pix[i+2] = byte(seed >> 40)
		img.Pix[i+3] = 0xff
	}
	return img
}

func (m *Machine) FrameNumber() int64 { return m.frames }

func (m *Machine) ResetGame() {
	m.tick, m.score, m.trace, m.frames = 0, 0, 0, 0
}

func (m *Machine) Close() error { return nil }

// Tick exposes the internal step counter for test assertions.
func (m *Machine) Tick() int64 { return m.tick }

// Score exposes the accumulated score for test assertions.
func (m *Machine) Score() int64 { return m.score }
