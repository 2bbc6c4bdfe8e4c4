// Package tilecache is a disk-backed write-back cache for orthomosaic tile
// pyramids. The mapping stage pushes batches of georeferenced tiles into the
// cache together with the region of interest of the request; a background
// worker persists dirty tiles to disk and evicts from memory whatever falls
// outside a linearly extrapolated prediction of the next region of interest.
// Evicted tiles are reloaded from disk transparently on access.
//
// Get returns a LockedTile: the tile's payload lock is still held when the
// handle is returned and the caller releases it. This lock transfer across
// the API boundary is the contract, not an accident; it gives the caller
// exclusive access to the raster payload until Release is called.
package tilecache
