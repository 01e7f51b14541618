// Package romloader resolves ROM arguments for the CLIs.
//
// ALE wants a ROM file on disk, but Atari ROM sets usually ship zipped.
// Resolve accepts either a bare ROM file or a .zip holding exactly one ROM
// entry; zipped ROMs are extracted into a temp file the caller cleans up.
package romloader

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Atari 2600 images are tiny; anything bigger than this is not a ROM.
const maxROMSize = 1 << 20

var (
	// ErrNoROMFile is returned when a zip contains no ROM entry.
	ErrNoROMFile = errors.New("romloader: no ROM file found in archive")

	// ErrAmbiguousArchive is returned when a zip holds more than one ROM
	// entry: picking one silently would change the experiment's ROM
	// identity.
	ErrAmbiguousArchive = errors.New("romloader: archive contains multiple ROM files")

	// ErrFileTooLarge is returned when an entry exceeds maxROMSize.
	ErrFileTooLarge = errors.New("romloader: file exceeds maximum ROM size")
)

// Resolve returns a path to a ROM file on disk for the given argument.
// cleanup removes any temp file created; it is non-nil even when nothing
// was extracted.
func Resolve(path string) (romPath string, cleanup func(), err error) {
	cleanup = func() {}
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		if _, err := os.Stat(path); err != nil {
			return "", cleanup, fmt.Errorf("romloader: %w", err)
		}
		return path, cleanup, nil
	}

	data, name, err := extractFromZIP(path)
	if err != nil {
		return "", cleanup, err
	}

	tmp, err := os.CreateTemp("", "rom_*_"+name)
	if err != nil {
		return "", cleanup, fmt.Errorf("romloader: create temp rom: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", cleanup, fmt.Errorf("romloader: write temp rom: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", cleanup, fmt.Errorf("romloader: close temp rom: %w", err)
	}
	name = tmp.Name()
	return name, func() { os.Remove(name) }, nil
}

func extractFromZIP(path string) ([]byte, string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, "", fmt.Errorf("romloader: open zip: %w", err)
	}
	defer r.Close()

	var rom *zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if rom != nil {
			return nil, "", ErrAmbiguousArchive
		}
		rom = f
	}
	if rom == nil {
		return nil, "", ErrNoROMFile
	}

	rc, err := rom.Open()
	if err != nil {
		return nil, "", fmt.Errorf("romloader: open %s in archive: %w", rom.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxROMSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("romloader: read %s: %w", rom.Name, err)
	}
	if len(data) > maxROMSize {
		return nil, "", ErrFileTooLarge
	}
	return data, filepath.Base(rom.Name), nil
}
