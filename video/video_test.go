package video

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rajabi-j/ALEMCTS/emu"
	"github.com/rajabi-j/ALEMCTS/emu/emutest"
	"github.com/rajabi-j/ALEMCTS/game"
)

func TestFrameSinkNumbering(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFrameSink(dir)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < 3; i++ {
		if err := sink.Write(img); err != nil {
			t.Fatalf("write frame %d: %v", i, err)
		}
	}
	if sink.Count() != 3 {
		t.Errorf("count = %d, want 3", sink.Count())
	}
	for i := 0; i < 3; i++ {
		name := filepath.Join(dir, fmt.Sprintf(framePattern, i))
		if _, err := os.Stat(name); err != nil {
			t.Errorf("frame %d missing: %v", i, err)
		}
	}
}

func TestFrameSinkPadsOddDimensions(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFrameSink(dir)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	if err := sink.Write(image.NewRGBA(image.Rect(0, 0, 7, 5))); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "frame_0.png"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := decoded.Bounds()
	if b.Dx() != 8 || b.Dy() != 6 {
		t.Errorf("padded frame is %dx%d, want 8x6", b.Dx(), b.Dy())
	}
}

func TestEncodeArgs(t *testing.T) {
	r := &Renderer{}
	args := strings.Join(r.encodeArgs("frames", "out.mp4"), " ")
	for _, want := range []string{
		"-y", "-framerate 30", "-start_number 0",
		filepath.Join("frames", "frame_%d.png"), "-pix_fmt yuv420p", "out.mp4",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}

	r = &Renderer{FPS: 60, PixelFormat: "rgb24"}
	args = strings.Join(r.encodeArgs("frames", "out.mp4"), " ")
	if !strings.Contains(args, "-framerate 60") || !strings.Contains(args, "-pix_fmt rgb24") {
		t.Errorf("overrides not applied: %q", args)
	}
}

func TestEncodeFailureReported(t *testing.T) {
	r := &Renderer{FFmpegPath: "false"}
	out := filepath.Join(t.TempDir(), "out.mp4")
	if err := r.Encode(context.Background(), t.TempDir(), out); err == nil {
		t.Fatal("expected an error from a failing encoder")
	}
}

func TestRenderHistoryFrameCount(t *testing.T) {
	m := emutest.New(emutest.Options{})
	if err := m.Configure(emu.Config{FrameSkip: 1}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := m.LoadROM("pong.bin"); err != nil {
		t.Fatalf("load rom: %v", err)
	}
	env, err := game.NewEnv(m)
	if err != nil {
		t.Fatalf("new env: %v", err)
	}

	node, err := env.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	for _, action := range []int{1, 3, 0, 2} {
		node, err = env.Advance(node, action)
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
	}

	sink, err := NewFrameSink(t.TempDir())
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	if err := RenderHistory(env, node, sink); err != nil {
		t.Fatalf("render: %v", err)
	}
	if sink.Count() != node.Depth() {
		t.Errorf("rendered %d frames, want one per transition (%d)", sink.Count(), node.Depth())
	}
}

func TestClearFrames(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFrameSink(dir)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < 2; i++ {
		if err := sink.Write(img); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	if err := ClearFrames(dir); err != nil {
		t.Fatalf("clear: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%d files left after clear", len(entries))
	}
}
