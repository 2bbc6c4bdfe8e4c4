// Package tile holds the raster data model of the tile pyramid: coordinates,
// layers, the named-layer grid container and the lockable Tile that the cache
// stores and the mapping stage produces.
package tile

import "sync"

// Coordinate identifies one raster cell in the quad-tree tile pyramid.
type Coordinate struct {
	Zoom int
	X    int
	Y    int
}

// Tile is one raster cell with its layer payload. The payload lock guards the
// grid and is the unit of exclusive access handed to external callers; the
// coordinate is immutable and needs no locking.
type Tile struct {
	coord Coordinate

	mu   sync.Mutex
	grid *Grid
}

// New creates a tile at the given pyramid coordinate with an empty grid.
func New(zoom, x, y int) *Tile {
	return &Tile{coord: Coordinate{Zoom: zoom, X: x, Y: y}, grid: NewGrid()}
}

// NewWithGrid creates a tile owning the given grid.
func NewWithGrid(zoom, x, y int, grid *Grid) *Tile {
	if grid == nil {
		grid = NewGrid()
	}
	return &Tile{coord: Coordinate{Zoom: zoom, X: x, Y: y}, grid: grid}
}

func (t *Tile) Coordinate() Coordinate { return t.coord }
func (t *Tile) Zoom() int              { return t.coord.Zoom }
func (t *Tile) X() int                 { return t.coord.X }
func (t *Tile) Y() int                 { return t.coord.Y }

// Lock acquires exclusive access to the tile payload.
func (t *Tile) Lock() { t.mu.Lock() }

// Unlock releases the payload lock.
func (t *Tile) Unlock() { t.mu.Unlock() }

// Data returns the layer grid. The caller must hold the tile lock.
func (t *Tile) Data() *Grid { return t.grid }
