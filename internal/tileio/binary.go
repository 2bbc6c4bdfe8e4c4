package tileio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"orthotile/tile"
)

// Raw binary layer container. Little-endian header followed by the pixel
// buffer exactly as held in memory:
//
//	magic    [4]byte "OTLB"
//	version  uint16
//	pixels   uint8
//	channels uint8
//	width    uint32
//	height   uint32
//	data     width*height*channels*depth bytes
var binMagic = [4]byte{'O', 'T', 'L', 'B'}

const binVersion uint16 = 1

type binHeader struct {
	Magic    [4]byte
	Version  uint16
	Pixels   uint8
	Channels uint8
	Width    uint32
	Height   uint32
}

func saveBinary(l *tile.Layer, path string) error {
	if err := l.Validate(); err != nil {
		return err
	}

	hdr := binHeader{
		Magic:    binMagic,
		Version:  binVersion,
		Pixels:   uint8(l.Pixels),
		Channels: uint8(l.Channels),
		Width:    uint32(l.Width),
		Height:   uint32(l.Height),
	}

	var buf bytes.Buffer
	buf.Grow(binary.Size(hdr) + len(l.Data))
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("failed to encode layer header: %w", err)
	}
	buf.Write(l.Data)

	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write layer %s: %w", path, err)
	}
	return nil
}

func loadBinary(meta tile.LayerMeta, path string) (*tile.Layer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layer %s: %w", path, err)
	}

	var hdr binHeader
	reader := bytes.NewReader(raw)
	if err := binary.Read(reader, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("failed to decode layer header %s: %w", path, err)
	}

	if hdr.Magic != binMagic {
		return nil, fmt.Errorf("not a layer file: %s", path)
	}
	if hdr.Version != binVersion {
		return nil, fmt.Errorf("unsupported layer file version %d: %s", hdr.Version, path)
	}
	if tile.PixelType(hdr.Pixels) != meta.Pixels {
		return nil, fmt.Errorf("pixel type mismatch in %s: file has %s, cache expects %s",
			path, tile.PixelType(hdr.Pixels), meta.Pixels)
	}

	l := &tile.Layer{
		Name:     meta.Name,
		Pixels:   meta.Pixels,
		Interp:   meta.Interp,
		Width:    int(hdr.Width),
		Height:   int(hdr.Height),
		Channels: int(hdr.Channels),
		Data:     raw[len(raw)-reader.Len():],
	}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("corrupt layer file %s: %w", path, err)
	}
	return l, nil
}
