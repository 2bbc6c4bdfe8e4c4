package tile

import "fmt"

// PixelType identifies the sample format of a raster layer.
type PixelType uint8

const (
	PixelUnknown PixelType = iota
	PixelU8                // 8-bit unsigned
	PixelU16               // 16-bit unsigned
	PixelF32               // 32-bit float
	PixelF64               // 64-bit float
)

// ByteDepth returns the size of a single sample in bytes, or 0 for unknown types.
func (p PixelType) ByteDepth() int {
	switch p {
	case PixelU8:
		return 1
	case PixelU16:
		return 2
	case PixelF32:
		return 4
	case PixelF64:
		return 8
	default:
		return 0
	}
}

func (p PixelType) String() string {
	switch p {
	case PixelU8:
		return "u8"
	case PixelU16:
		return "u16"
	case PixelF32:
		return "f32"
	case PixelF64:
		return "f64"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// Interpolation is the resampling mode a layer should be rendered with.
// It is carried as metadata only; the cache never resamples.
type Interpolation uint8

const (
	InterpolationNearest Interpolation = iota
	InterpolationLinear
	InterpolationCubic
)

// LayerMeta describes one layer of a tile without its pixel data.
type LayerMeta struct {
	Name   string
	Pixels PixelType
	Interp Interpolation
}

// Layer is one named raster plane of a tile. Data holds samples row-major,
// channel-interleaved, little-endian for multi-byte pixel types.
type Layer struct {
	Name     string
	Pixels   PixelType
	Interp   Interpolation
	Width    int
	Height   int
	Channels int
	Data     []byte
}

// Meta returns the metadata portion of the layer.
func (l *Layer) Meta() LayerMeta {
	return LayerMeta{Name: l.Name, Pixels: l.Pixels, Interp: l.Interp}
}

// ByteSize returns the in-memory size of the pixel data.
func (l *Layer) ByteSize() int {
	return len(l.Data)
}

// Validate checks that the buffer size matches the declared geometry.
func (l *Layer) Validate() error {
	depth := l.Pixels.ByteDepth()
	if depth == 0 {
		return fmt.Errorf("layer %q: unknown pixel type", l.Name)
	}
	if l.Width <= 0 || l.Height <= 0 || l.Channels <= 0 {
		return fmt.Errorf("layer %q: invalid geometry %dx%dx%d", l.Name, l.Width, l.Height, l.Channels)
	}
	want := l.Width * l.Height * l.Channels * depth
	if len(l.Data) != want {
		return fmt.Errorf("layer %q: data size %d does not match geometry (want %d)", l.Name, len(l.Data), want)
	}
	return nil
}
