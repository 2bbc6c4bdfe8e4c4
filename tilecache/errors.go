package tilecache

import (
	"errors"

	"orthotile/internal/tileio"
)

// ErrUnknownPixelType is returned from write or load when a layer's pixel
// type maps to no on-disk representation.
var ErrUnknownPixelType = tileio.ErrUnknownPixelType

// ErrMissingTileFile is returned from Get when an evicted tile's backing file
// is absent on disk. It indicates the cache and the disk state have diverged;
// a plain cache miss is signalled by a nil result instead.
var ErrMissingTileFile = errors.New("tile file missing on disk")
