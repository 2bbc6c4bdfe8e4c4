package tilecache

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"orthotile/internal/tileio"
	"orthotile/logger"
	"orthotile/tile"
)

// Cache is the concurrent disk-backed tile store. One producer calls Add/Get
// while the background worker flushes and evicts on its own cadence; the two
// are synchronized through per-element locks and never block each other for
// longer than a map operation.
type Cache struct {
	id      string
	log     *zap.Logger
	metrics *Metrics

	// mu is the structural lock: it guards the elements map itself, never
	// any disk I/O.
	mu       sync.Mutex
	elements map[tile.Coordinate]*cacheElement

	// dirMu guards the output directory setting and the memo of lazily
	// created directories.
	dirMu    sync.Mutex
	dir      string
	seenDirs map[string]struct{}

	// dirty signals unflushed changes since the last worker cycle; flushing
	// is the single-flight guard keeping cycles from overlapping.
	dirty    atomic.Bool
	flushing atomic.Bool

	pred *predictor

	flushInterval time.Duration
	wake          chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New constructs a cache and starts its background flush worker. Call Close
// to stop the worker and persist everything still in memory. A nil logger
// disables logging; a nil registerer keeps the metrics unexported.
func New(cfg Config, log *zap.Logger, reg prometheus.Registerer) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	id := cfg.ID
	if id == "" {
		id = uuid.New().String()
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Cache{
		id:            id,
		log:           log.With(zap.String("cache_id", id)),
		metrics:       NewMetrics(reg),
		elements:      make(map[tile.Coordinate]*cacheElement),
		dir:           cfg.OutputDir,
		seenDirs:      make(map[string]struct{}),
		pred:          newPredictor(),
		flushInterval: cfg.FlushInterval,
		wake:          make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
	}

	c.wg.Add(1)
	go c.run()

	c.log.Info("tile cache started",
		zap.String("output_dir", cfg.OutputDir),
		zap.Duration("flush_interval", cfg.FlushInterval),
	)

	return c, nil
}

// NewFromEnv builds a cache from TILE_CACHE_* environment variables with its
// own logger, for embedders that configure the whole stage via environment.
func NewFromEnv() (*Cache, error) {
	cfg := ConfigFromEnv()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(cfg, log, nil)
}

// Close stops the background worker and flushes every cached tile to disk.
// Safe to call multiple times; only the first call does the work.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
		c.closeErr = c.FlushAll()
	})
	return c.closeErr
}

// SetOutputDir changes the toplevel directory of the tile pyramid. Directories
// under the new toplevel are created lazily as tiles are added.
func (c *Cache) SetOutputDir(dir string) {
	c.dirMu.Lock()
	defer c.dirMu.Unlock()
	c.dir = dir
	c.seenDirs = make(map[string]struct{})
}

func (c *Cache) outputDir() string {
	c.dirMu.Lock()
	defer c.dirMu.Unlock()
	return c.dir
}

// Add upserts a batch of tiles for one zoom level. All tiles in the batch
// must share the same layer schema; the metadata is derived from the first
// tile. Existing tiles at the same coordinate are replaced, last writer wins.
// The roi describes the tile-index region of this request and feeds the
// eviction prediction. Add never blocks on tile serialization; it only
// creates directories not seen before and wakes the background worker.
func (c *Cache) Add(zoom int, tiles []*tile.Tile, roi tile.Rect) error {
	if len(tiles) == 0 {
		return fmt.Errorf("no tiles to add")
	}

	start := time.Now()

	tiles[0].Lock()
	layerMeta := tiles[0].Data().Meta()
	tiles[0].Unlock()

	if err := c.ensureDirs(layerMeta, zoom, tiles); err != nil {
		return err
	}

	timestamp := time.Now().UnixMilli()

	c.mu.Lock()
	for _, t := range tiles {
		t.Lock()
		coord := t.Coordinate()
		if old, ok := c.elements[coord]; ok {
			// Wait out anyone still holding the element being replaced.
			old.mu.Lock()
			c.elements[coord] = &cacheElement{timestamp: timestamp, layerMeta: layerMeta, tile: t}
			old.mu.Unlock()
		} else {
			c.elements[coord] = &cacheElement{timestamp: timestamp, layerMeta: layerMeta, tile: t}
		}
		t.Unlock()
	}
	c.mu.Unlock()

	c.pred.observe(zoom, roi)

	c.dirty.Store(true)
	select {
	case c.wake <- struct{}{}:
	default:
	}

	c.log.Debug("cache push",
		zap.Int("zoom", zoom),
		zap.Int("tiles", len(tiles)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return nil
}

// Get returns the tile at (x, y, zoom) with its payload lock held, reloading
// the raster data from disk if it was evicted. The caller must call Release
// on the returned handle. A nil handle with a nil error means the coordinate
// was never added; that is a normal miss, not an error.
func (c *Cache) Get(x, y, zoom int) (*LockedTile, error) {
	c.mu.Lock()
	el, ok := c.elements[tile.Coordinate{Zoom: zoom, X: x, Y: y}]
	c.mu.Unlock()
	if !ok {
		return nil, nil
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	el.tile.Lock()
	if !isCached(el) {
		if err := c.load(el); err != nil {
			el.tile.Unlock()
			return nil, err
		}
	}

	return &LockedTile{t: el.tile}, nil
}

// Reset drops the entire cache structure without persisting anything. Callers
// wanting durability must FlushAll first.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.elements = make(map[tile.Coordinate]*cacheElement)
	c.mu.Unlock()

	c.dirty.Store(false)
	c.pred.reset()
}

// Len returns the number of cached elements, resident or evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.elements)
}

// snapshot copies the current element set so iteration happens without the
// structural lock. Elements added concurrently may be missed; they will be
// picked up by a later cycle.
func (c *Cache) snapshot() []*cacheElement {
	c.mu.Lock()
	defer c.mu.Unlock()

	els := make([]*cacheElement, 0, len(c.elements))
	for _, el := range c.elements {
		els = append(els, el)
	}
	return els
}

// ensureDirs lazily creates the on-disk directories for every (layer),
// (layer, zoom) and (layer, zoom, x) combination seen for the first time.
// Creation is idempotent, so a repeat after SetOutputDir cleared the memo is
// harmless.
func (c *Cache) ensureDirs(layerMeta []tile.LayerMeta, zoom int, tiles []*tile.Tile) error {
	c.dirMu.Lock()
	defer c.dirMu.Unlock()

	ensure := func(path string) error {
		if _, ok := c.seenDirs[path]; ok {
			return nil
		}
		if err := tileio.CreateDir(path); err != nil {
			return err
		}
		c.seenDirs[path] = struct{}{}
		return nil
	}

	for _, meta := range layerMeta {
		layerDir := filepath.Join(c.dir, meta.Name)
		zoomDir := filepath.Join(layerDir, strconv.Itoa(zoom))
		if err := ensure(layerDir); err != nil {
			return err
		}
		if err := ensure(zoomDir); err != nil {
			return err
		}
		for _, t := range tiles {
			if err := ensure(filepath.Join(zoomDir, strconv.Itoa(t.X()))); err != nil {
				return err
			}
		}
	}
	return nil
}

// LockedTile is the handle returned by Get: the underlying tile's payload
// lock is held until Release is called.
type LockedTile struct {
	t       *tile.Tile
	release sync.Once
}

// Tile returns the locked tile. The raster payload is non-empty.
func (lt *LockedTile) Tile() *tile.Tile {
	return lt.t
}

// Release gives up exclusive access to the tile payload. Safe to call more
// than once.
func (lt *LockedTile) Release() {
	lt.release.Do(lt.t.Unlock)
}
