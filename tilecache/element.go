package tilecache

import (
	"sync"

	"orthotile/tile"
)

// cacheElement wraps one tile with its cache metadata. The element lock
// guards the metadata and the map slot; the tile's own lock guards the raster
// payload. Acquisition order is always element first, tile second.
type cacheElement struct {
	mu sync.Mutex

	timestamp int64 // unix milliseconds of the insert
	layerMeta []tile.LayerMeta
	tile      *tile.Tile

	// written flips to true once all layers have been persisted at least
	// once. It is never reset: an evicted element's data is on disk.
	written bool
}
