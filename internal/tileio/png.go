package tileio

import (
	"fmt"

	"github.com/cshum/vipsgen/vips"

	"orthotile/tile"
)

// 8-bit layers go through libvips as lossless PNG so existing tile pyramids
// stay readable by standard imagery tooling. vips.Startup is owned by the
// embedding application.

func savePNG(l *tile.Layer, path string) error {
	if err := l.Validate(); err != nil {
		return err
	}

	image, err := vips.NewImageFromMemory(l.Data, l.Width, l.Height, l.Channels)
	if err != nil {
		return fmt.Errorf("failed to wrap layer %q as image: %w", l.Name, err)
	}
	defer image.Close()

	opts := vips.DefaultPngsaveBufferOptions()
	buf, err := image.PngsaveBuffer(opts)
	if err != nil {
		return fmt.Errorf("failed to encode layer %q: %w", l.Name, err)
	}

	if err := writeFileAtomic(path, buf); err != nil {
		return fmt.Errorf("failed to write layer %s: %w", path, err)
	}
	return nil
}

func loadPNG(meta tile.LayerMeta, path string) (*tile.Layer, error) {
	opts := vips.DefaultPngloadOptions()
	opts.Access = vips.AccessSequential

	image, err := vips.NewPngload(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read layer %s: %w", path, err)
	}
	defer image.Close()

	data, err := image.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to decode layer %s: %w", path, err)
	}

	l := &tile.Layer{
		Name:     meta.Name,
		Pixels:   meta.Pixels,
		Interp:   meta.Interp,
		Width:    image.Width(),
		Height:   image.Height(),
		Channels: image.Bands(),
		Data:     data,
	}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("corrupt layer file %s: %w", path, err)
	}
	return l, nil
}
