package tile

import "sort"

// Grid is a container of named raster layers sharing one tile footprint.
// It is not safe for concurrent use; callers synchronize through the owning
// Tile's lock.
type Grid struct {
	layers map[string]*Layer
}

func NewGrid() *Grid {
	return &Grid{layers: make(map[string]*Layer)}
}

// Add inserts or replaces a layer under its name.
func (g *Grid) Add(l *Layer) {
	g.layers[l.Name] = l
}

func (g *Grid) Get(name string) (*Layer, bool) {
	l, ok := g.layers[name]
	return l, ok
}

func (g *Grid) Remove(name string) {
	delete(g.layers, name)
}

// Empty reports whether the grid holds no layers. An evicted tile's grid is
// empty while its metadata stays resident in the cache.
func (g *Grid) Empty() bool {
	return len(g.layers) == 0
}

func (g *Grid) Len() int {
	return len(g.layers)
}

// LayerNames returns the layer names in sorted order so that directory
// creation and persistence iterate deterministically.
func (g *Grid) LayerNames() []string {
	names := make([]string, 0, len(g.layers))
	for name := range g.layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Meta returns the metadata of all layers, ordered by layer name.
func (g *Grid) Meta() []LayerMeta {
	names := g.LayerNames()
	meta := make([]LayerMeta, 0, len(names))
	for _, name := range names {
		meta = append(meta, g.layers[name].Meta())
	}
	return meta
}

// ByteSize returns the summed in-memory size of all layer pixel data.
func (g *Grid) ByteSize() int {
	total := 0
	for _, l := range g.layers {
		total += l.ByteSize()
	}
	return total
}
