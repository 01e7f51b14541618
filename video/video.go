// Package video turns gameplay into numbered PNG frames and hands them to
// ffmpeg for encoding.
//
// Two capture paths share the same frame naming: baselines write frames as
// they play, while the search agent re-renders its final node's ancestor
// chain after the run. Rendering side-effects the emulator, so replay runs
// strictly after all decision-making is done.
package video

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"

	xdraw "golang.org/x/image/draw"

	"github.com/rajabi-j/ALEMCTS/game"
)

const framePattern = "frame_%d.png"

// Renderer captures frames and invokes the external encoder with fixed
// parameters. The zero value encodes at 30 fps with yuv420p via "ffmpeg"
// on PATH.
type Renderer struct {
	FPS         int
	PixelFormat string
	FFmpegPath  string
}

func (r *Renderer) fps() int {
	if r.FPS <= 0 {
		return 30
	}
	return r.FPS
}

func (r *Renderer) pixelFormat() string {
	if r.PixelFormat == "" {
		return "yuv420p"
	}
	return r.PixelFormat
}

func (r *Renderer) ffmpeg() string {
	if r.FFmpegPath == "" {
		return "ffmpeg"
	}
	return r.FFmpegPath
}

// FrameSink writes sequentially numbered frames into one directory.
type FrameSink struct {
	dir  string
	next int
}

func NewFrameSink(dir string) (*FrameSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("video: create frame dir: %w", err)
	}
	return &FrameSink{dir: dir}, nil
}

// Write stores img as the next frame. Odd dimensions are padded to even so
// the later yuv420p encode cannot reject the sequence.
func (s *FrameSink) Write(img image.Image) error {
	path := filepath.Join(s.dir, fmt.Sprintf(framePattern, s.next))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("video: create frame %d: %w", s.next, err)
	}
	defer f.Close()

	if err := png.Encode(f, padEven(img)); err != nil {
		return fmt.Errorf("video: encode frame %d: %w", s.next, err)
	}
	s.next++
	return nil
}

// Count returns the number of frames written so far.
func (s *FrameSink) Count() int { return s.next }

// Dir returns the sink's directory.
func (s *FrameSink) Dir() string { return s.dir }

func padEven(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w%2 == 0 && h%2 == 0 {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w+w%2, h+h%2))
	xdraw.Copy(dst, image.Point{}, img, b, xdraw.Src, nil)
	return dst
}

// RenderHistory replays final's root-to-node ancestor chain through the
// emulator and writes one frame per transition: for each consecutive pair
// the earlier node's snapshot is restored, the later node's recorded action
// is re-applied through the action table, and the resulting screen is
// captured. The frame count therefore equals final.Depth().
func RenderHistory(env *game.Env, final *game.Node, sink *FrameSink) error {
	history := final.History()
	for i := 0; i+1 < len(history); i++ {
		if err := env.Sync(history[i]); err != nil {
			return err
		}
		code, err := env.Actions().Code(history[i+1].ActionID())
		if err != nil {
			return err
		}
		env.Emulator().Act(code)
		if err := sink.Write(env.Emulator().Screen()); err != nil {
			return err
		}
	}
	return nil
}

// Encode runs ffmpeg over the sink's frame sequence and writes one video
// file at outPath. A failure here loses only the video artifact; scores
// remain valid and callers keep going.
func (r *Renderer) Encode(ctx context.Context, frameDir, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("video: create output dir: %w", err)
	}
	cmd := exec.CommandContext(ctx, r.ffmpeg(), r.encodeArgs(frameDir, outPath)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("video: ffmpeg: %w: %s", err, lastLine(out))
	}
	return nil
}

func (r *Renderer) encodeArgs(frameDir, outPath string) []string {
	return []string{
		"-y",
		"-framerate", fmt.Sprint(r.fps()),
		"-start_number", "0",
		"-i", filepath.Join(frameDir, framePattern),
		"-pix_fmt", r.pixelFormat(),
		outPath,
	}
}

func lastLine(out []byte) string {
	start := 0
	for i, b := range out {
		if b == '\n' && i+1 < len(out) {
			start = i + 1
		}
	}
	line := out[start:]
	if len(line) > 200 {
		line = line[:200]
	}
	return string(line)
}

// ClearFrames removes every written frame, keeping the directory. Called
// after a successful encode and before zipping in sweeps that keep frames.
func ClearFrames(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
