package romloader

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := f.Write(data); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write zip: %v", err)
	}
}

func TestResolvePassthrough(t *testing.T) {
	rom := filepath.Join(t.TempDir(), "pong.bin")
	if err := os.WriteFile(rom, []byte{0xde, 0xad}, 0o644); err != nil {
		t.Fatalf("write rom: %v", err)
	}

	got, cleanup, err := Resolve(rom)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer cleanup()
	if got != rom {
		t.Errorf("resolved %q, want the input path back", got)
	}
}

func TestResolveMissingFile(t *testing.T) {
	if _, _, err := Resolve(filepath.Join(t.TempDir(), "nope.bin")); err == nil {
		t.Fatal("expected an error for a missing ROM")
	}
}

func TestResolveSingleEntryZip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "pong.zip")
	payload := []byte{0x4c, 0xa2, 0xf9}
	writeZip(t, zipPath, map[string][]byte{"pong.bin": payload})

	got, cleanup, err := Resolve(zipPath)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer cleanup()

	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("read extracted rom: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("extracted %x, want %x", data, payload)
	}

	cleanup()
	if _, err := os.Stat(got); !os.IsNotExist(err) {
		t.Errorf("cleanup left temp rom behind: %v", err)
	}
}

func TestResolveAmbiguousZip(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "two.zip")
	writeZip(t, zipPath, map[string][]byte{
		"pong.bin":     {1},
		"breakout.bin": {2},
	})
	if _, _, err := Resolve(zipPath); !errors.Is(err, ErrAmbiguousArchive) {
		t.Fatalf("expected ErrAmbiguousArchive, got %v", err)
	}
}

func TestResolveEmptyZip(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "empty.zip")
	writeZip(t, zipPath, nil)
	if _, _, err := Resolve(zipPath); !errors.Is(err, ErrNoROMFile) {
		t.Fatalf("expected ErrNoROMFile, got %v", err)
	}
}

func TestResolveOversizedEntry(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "big.zip")
	writeZip(t, zipPath, map[string][]byte{"big.bin": make([]byte, maxROMSize+1)})
	if _, _, err := Resolve(zipPath); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
}
