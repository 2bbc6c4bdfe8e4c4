// Package tileio reads and writes tile layers on disk. 8-bit layers are stored
// as PNG through libvips, everything else in a raw binary container. Paths and
// extensions are fixed by the cache layout and must not change: existing caches
// on disk depend on them.
package tileio

import (
	"errors"
	"fmt"
	"os"

	"orthotile/tile"
)

// ErrUnknownPixelType is returned when a layer's pixel type maps to no known
// on-disk representation.
var ErrUnknownPixelType = errors.New("unknown pixel type")

// ExtFor returns the file extension used to persist the given pixel type.
func ExtFor(p tile.PixelType) (string, error) {
	switch p {
	case tile.PixelU8:
		return ".png", nil
	case tile.PixelU16, tile.PixelF32, tile.PixelF64:
		return ".bin", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownPixelType, p)
	}
}

// SaveLayer persists one layer to path, choosing the codec by pixel type.
func SaveLayer(l *tile.Layer, path string) error {
	switch l.Pixels {
	case tile.PixelU8:
		return savePNG(l, path)
	case tile.PixelU16, tile.PixelF32, tile.PixelF64:
		return saveBinary(l, path)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownPixelType, l.Pixels)
	}
}

// LoadLayer reads one layer back from path. The metadata restores name,
// pixel type and interpolation mode; geometry comes from the file itself.
func LoadLayer(meta tile.LayerMeta, path string) (*tile.Layer, error) {
	switch meta.Pixels {
	case tile.PixelU8:
		return loadPNG(meta, path)
	case tile.PixelU16, tile.PixelF32, tile.PixelF64:
		return loadBinary(meta, path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPixelType, meta.Pixels)
	}
}

// FileExists reports whether path exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// CreateDir creates the directory and any missing parents. Safe to repeat.
func CreateDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// writeFileAtomic writes data next to path and renames it into place so a
// concurrent reader never observes a half-written file.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
