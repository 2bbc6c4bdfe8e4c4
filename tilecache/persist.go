package tilecache

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"orthotile/internal/tileio"
	"orthotile/tile"
)

// layerPath computes the on-disk location of one layer of one tile:
// <toplevel>/<layer>/<zoom>/<x>/<y>.<ext>, extension chosen by pixel type.
func (c *Cache) layerPath(meta tile.LayerMeta, coord tile.Coordinate) (string, error) {
	ext, err := tileio.ExtFor(meta.Pixels)
	if err != nil {
		return "", err
	}
	return filepath.Join(
		c.outputDir(),
		meta.Name,
		strconv.Itoa(coord.Zoom),
		strconv.Itoa(coord.X),
		strconv.Itoa(coord.Y),
	) + ext, nil
}

// write persists every layer of the element. The written flag flips only
// after all layers are on disk. Caller holds the element and tile locks.
func (c *Cache) write(el *cacheElement) error {
	coord := el.tile.Coordinate()
	grid := el.tile.Data()

	for _, meta := range el.layerMeta {
		layer, ok := grid.Get(meta.Name)
		if !ok {
			return fmt.Errorf("layer %q missing from tile (%d, %d, %d)", meta.Name, coord.Zoom, coord.X, coord.Y)
		}
		path, err := c.layerPath(meta, coord)
		if err != nil {
			return fmt.Errorf("failed to write tile (%d, %d, %d): %w", coord.Zoom, coord.X, coord.Y, err)
		}
		if err := tileio.SaveLayer(layer, path); err != nil {
			return err
		}
	}

	el.written = true
	c.metrics.TilesWritten.Inc()
	return nil
}

// load reads every layer of the element back from disk into the tile's grid.
// A missing backing file means the cache and disk state have diverged and is
// a hard error. Caller holds the element and tile locks.
func (c *Cache) load(el *cacheElement) error {
	coord := el.tile.Coordinate()
	grid := el.tile.Data()

	loaded := make([]string, 0, len(el.layerMeta))
	// A half-loaded tile must not look cached, so failures roll back the
	// layers already added.
	rollback := func() {
		for _, name := range loaded {
			grid.Remove(name)
		}
	}

	for _, meta := range el.layerMeta {
		path, err := c.layerPath(meta, coord)
		if err != nil {
			rollback()
			return fmt.Errorf("failed to load tile (%d, %d, %d): %w", coord.Zoom, coord.X, coord.Y, err)
		}
		if !tileio.FileExists(path) {
			rollback()
			return fmt.Errorf("%w: %s", ErrMissingTileFile, path)
		}
		layer, err := tileio.LoadLayer(meta, path)
		if err != nil {
			rollback()
			return err
		}
		grid.Add(layer)
		loaded = append(loaded, meta.Name)

		c.log.Debug("read tile layer from disk", zap.String("path", path))
	}

	c.metrics.TilesLoaded.Inc()
	return nil
}

// evict makes sure the element is durable, then drops its raster payload from
// memory. Metadata and the written flag stay resident so the tile can be
// reloaded on access. Caller holds the element and tile locks.
func (c *Cache) evict(el *cacheElement) error {
	if !el.written {
		if err := c.write(el); err != nil {
			return err
		}
	}

	grid := el.tile.Data()
	for _, meta := range el.layerMeta {
		grid.Remove(meta.Name)
	}

	coord := el.tile.Coordinate()
	c.metrics.TilesEvicted.Inc()
	c.log.Debug("evicted tile",
		zap.Int("zoom", coord.Zoom),
		zap.Int("x", coord.X),
		zap.Int("y", coord.Y),
		zap.Int64("age_ms", time.Now().UnixMilli()-el.timestamp),
	)
	return nil
}

// isCached reports whether the element's raster payload is resident in
// memory. Caller holds the tile lock.
func isCached(el *cacheElement) bool {
	return !el.tile.Data().Empty()
}

// FlushAll synchronously persists every unwritten element and unconditionally
// drops all raster payloads from memory. Used at shutdown to guarantee
// durability; failures are collected and returned in aggregate instead of
// stopping the sweep.
func (c *Cache) FlushAll() error {
	start := time.Now()

	var errs error
	written, failed := 0, 0

	for _, el := range c.snapshot() {
		el.mu.Lock()
		el.tile.Lock()

		if !el.written {
			if err := c.write(el); err != nil {
				failed++
				errs = multierr.Append(errs, err)
			} else {
				written++
			}
		}

		// Payload is dropped even when the write failed; FlushAll is a
		// teardown sweep, not a retry loop.
		grid := el.tile.Data()
		for _, name := range grid.LayerNames() {
			grid.Remove(name)
		}

		el.tile.Unlock()
		el.mu.Unlock()
	}

	c.log.Info("flushed all tiles",
		zap.Int("tiles_written", written),
		zap.Int("tiles_failed", failed),
		zap.Duration("elapsed", time.Since(start)),
	)

	return errs
}

// LoadAll reloads every evicted element's raster payload from disk, e.g. to
// materialize the full mosaic for export. Failures are collected and returned
// in aggregate.
func (c *Cache) LoadAll() error {
	var errs error

	for _, el := range c.snapshot() {
		el.mu.Lock()
		el.tile.Lock()

		if !isCached(el) {
			if err := c.load(el); err != nil {
				errs = multierr.Append(errs, err)
			}
		}

		el.tile.Unlock()
		el.mu.Unlock()
	}

	return errs
}
