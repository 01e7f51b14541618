// Package ale binds the Arcade Learning Environment's C wrapper
// (libale_c) to the emu.Emulator contract.
//
// Building this package requires the ALE shared library and headers; see
// https://github.com/Farama-Foundation/Arcade-Learning-Environment.
package ale

/*
#cgo LDFLAGS: -lale_c -lstdc++
#include <stdlib.h>

typedef struct ALEInterface ALEInterface;
typedef struct ALEState ALEState;

ALEInterface *ALE_new();
void ALE_del(ALEInterface *ale);
void setInt(ALEInterface *ale, const char *key, int value);
void setBool(ALEInterface *ale, const char *key, int value);
void setFloat(ALEInterface *ale, const char *key, float value);
void loadROM(ALEInterface *ale, const char *rom_file);
int act(ALEInterface *ale, int action);
int game_over(ALEInterface *ale);
void reset_game(ALEInterface *ale);
int getMinimalActionSize(ALEInterface *ale);
void getMinimalActionSet(ALEInterface *ale, int *actions);
int getFrameNumber(ALEInterface *ale);
int getScreenWidth(ALEInterface *ale);
int getScreenHeight(ALEInterface *ale);
void getScreenRGB(ALEInterface *ale, unsigned char *output_buffer);
ALEState *cloneState(ALEInterface *ale);
void restoreState(ALEInterface *ale, ALEState *state);
void deleteState(ALEState *state);
int encodeStateLen(ALEState *state);
void encodeState(ALEState *state, char *buf, int buf_len);
ALEState *decodeState(const char *serialized, int len);
*/
import "C"

import (
	"fmt"
	"image"
	"os"
	"unsafe"

	"github.com/rajabi-j/ALEMCTS/emu"
)

// ALE is a handle on one native ALE instance. Not safe for concurrent use;
// the game package serializes access by construction.
type ALE struct {
	ptr    *C.ALEInterface
	loaded bool
}

var _ emu.Emulator = (*ALE)(nil)

func New() *ALE {
	return &ALE{ptr: C.ALE_new()}
}

func (a *ALE) Configure(cfg emu.Config) error {
	if cfg.FrameSkip < 1 {
		return fmt.Errorf("ale: frame skip must be >= 1, got %d", cfg.FrameSkip)
	}
	a.setInt("frame_skip", cfg.FrameSkip)
	a.setFloat("repeat_action_probability", cfg.RepeatActionProbability)
	if cfg.Seed != 0 {
		a.setInt("random_seed", int(cfg.Seed))
	}
	a.setBool("display_screen", cfg.DisplayScreen)
	a.setBool("sound", cfg.Sound)
	return nil
}

func (a *ALE) LoadROM(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("ale: rom %q: %w", path, err)
	}
	cs := C.CString(path)
	defer C.free(unsafe.Pointer(cs))
	C.loadROM(a.ptr, cs)
	a.loaded = true
	return nil
}

func (a *ALE) MinimalActionSet() []emu.Action {
	n := int(C.getMinimalActionSize(a.ptr))
	if n <= 0 {
		return nil
	}
	buf := make([]C.int, n)
	C.getMinimalActionSet(a.ptr, &buf[0])
	actions := make([]emu.Action, n)
	for i, c := range buf {
		actions[i] = emu.Action(c)
	}
	return actions
}

func (a *ALE) Act(action emu.Action) int64 {
	return int64(C.act(a.ptr, C.int(action)))
}

func (a *ALE) GameOver() bool {
	return C.game_over(a.ptr) != 0
}

// CloneState serializes the full system state, including the pseudo-random
// number generator, so restores are bit-exact.
func (a *ALE) CloneState() []byte {
	st := C.cloneState(a.ptr)
	defer C.deleteState(st)
	n := C.encodeStateLen(st)
	buf := make([]byte, int(n))
	C.encodeState(st, (*C.char)(unsafe.Pointer(&buf[0])), n)
	return buf
}

func (a *ALE) RestoreState(snapshot []byte) error {
	if len(snapshot) == 0 {
		return emu.ErrBadSnapshot
	}
	st := C.decodeState((*C.char)(unsafe.Pointer(&snapshot[0])), C.int(len(snapshot)))
	if st == nil {
		return emu.ErrBadSnapshot
	}
	C.restoreState(a.ptr, st)
	C.deleteState(st)
	return nil
}

func (a *ALE) Screen() *image.RGBA {
	w := int(C.getScreenWidth(a.ptr))
	h := int(C.getScreenHeight(a.ptr))
	rgb := make([]byte, w*h*3)
	C.getScreenRGB(a.ptr, (*C.uchar)(unsafe.Pointer(&rgb[0])))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		img.Pix[i*4+0] = rgb[i*3+0]
		img.Pix[i*4+1] = rgb[i*3+1]
		img.Pix[i*4+2] = rgb[i*3+2]
		img.Pix[i*4+3] = 0xff
	}
	return img
}

func (a *ALE) FrameNumber() int64 {
	return int64(C.getFrameNumber(a.ptr))
}

func (a *ALE) ResetGame() {
	C.reset_game(a.ptr)
}

func (a *ALE) Close() error {
	if a.ptr != nil {
		C.ALE_del(a.ptr)
		a.ptr = nil
	}
	return nil
}

func (a *ALE) setInt(key string, v int) {
	ck := C.CString(key)
	defer C.free(unsafe.Pointer(ck))
	C.setInt(a.ptr, ck, C.int(v))
}

func (a *ALE) setFloat(key string, v float64) {
	ck := C.CString(key)
	defer C.free(unsafe.Pointer(ck))
	C.setFloat(a.ptr, ck, C.float(v))
}

func (a *ALE) setBool(key string, v bool) {
	ck := C.CString(key)
	defer C.free(unsafe.Pointer(ck))
	b := C.int(0)
	if v {
		b = 1
	}
	C.setBool(a.ptr, ck, b)
}
