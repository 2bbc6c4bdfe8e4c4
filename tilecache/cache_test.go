package tilecache

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"orthotile/tile"
)

// newTestCache builds a cache on a temp directory and stops its background
// worker, so flush cycles run only when a test calls runCycle itself.
func newTestCache(t *testing.T) *Cache {
	t.Helper()

	cfg := DefaultConfig()
	cfg.ID = "test"
	cfg.OutputDir = t.TempDir()
	cfg.FlushInterval = time.Hour

	c, err := New(cfg, zaptest.NewLogger(t), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	c.cancel()
	c.wg.Wait()

	return c
}

// elevation + heightmap tile, both on the raw binary path.
func newTestTile(t *testing.T, zoom, x, y int) *tile.Tile {
	t.Helper()

	const w, h = 8, 8

	elev := make([]byte, w*h*2)
	for i := 0; i < w*h; i++ {
		binary.LittleEndian.PutUint16(elev[i*2:], uint16(zoom*1000+x*100+y*10+i))
	}

	height := make([]byte, w*h*4)
	for i := range height {
		height[i] = byte(x + y + i)
	}

	g := tile.NewGrid()
	g.Add(&tile.Layer{
		Name: "elevation", Pixels: tile.PixelU16, Interp: tile.InterpolationNearest,
		Width: w, Height: h, Channels: 1, Data: elev,
	})
	g.Add(&tile.Layer{
		Name: "heightmap", Pixels: tile.PixelF32, Interp: tile.InterpolationLinear,
		Width: w, Height: h, Channels: 1, Data: height,
	})
	return tile.NewWithGrid(zoom, x, y, g)
}

func layerBytes(t *testing.T, lt *LockedTile, name string) []byte {
	t.Helper()
	l, ok := lt.Tile().Data().Get(name)
	require.True(t, ok)
	return l.Data
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{}, nil, nil)
	require.Error(t, err)

	_, err = New(Config{OutputDir: t.TempDir()}, nil, nil)
	require.Error(t, err) // flush interval missing
}

func TestAddRequiresTiles(t *testing.T) {
	c := newTestCache(t)
	require.Error(t, c.Add(5, nil, tile.Rect{}))
}

func TestAddThenGetWithoutWorker(t *testing.T) {
	c := newTestCache(t)

	tl := newTestTile(t, 5, 0, 0)
	require.NoError(t, c.Add(5, []*tile.Tile{tl}, tile.Rect{X: 0, Y: 0, Width: 1, Height: 1}))

	got, err := c.Get(0, 0, 5)
	require.NoError(t, err)
	require.NotNil(t, got)
	defer got.Release()

	require.Same(t, tl, got.Tile())
	require.False(t, got.Tile().Data().Empty())
}

func TestGetOnEmptyCacheIsNotAnError(t *testing.T) {
	c := newTestCache(t)

	got, err := c.Get(99, 99, 7)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestGetMissesAbsentColumnAndRow(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Add(5, []*tile.Tile{newTestTile(t, 5, 2, 3)}, tile.Rect{X: 2, Y: 3, Width: 1, Height: 1}))

	for _, coord := range [][3]int{{2, 3, 6}, {9, 3, 5}, {2, 9, 5}} {
		got, err := c.Get(coord[0], coord[1], coord[2])
		require.NoError(t, err)
		require.Nil(t, got)
	}
}

func TestGetReturnsTileLocked(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Add(5, []*tile.Tile{newTestTile(t, 5, 0, 0)}, tile.Rect{Width: 1, Height: 1}))

	got, err := c.Get(0, 0, 5)
	require.NoError(t, err)
	require.NotNil(t, got)

	locked := make(chan struct{})
	go func() {
		got.Tile().Lock()
		got.Tile().Unlock()
		close(locked)
	}()

	select {
	case <-locked:
		t.Fatal("tile lock was not held by the returned handle")
	case <-time.After(50 * time.Millisecond):
	}

	got.Release()
	select {
	case <-locked:
	case <-time.After(time.Second):
		t.Fatal("tile lock not released by Release")
	}

	// Release is idempotent.
	got.Release()
}

func TestAddStampsElements(t *testing.T) {
	c := newTestCache(t)

	before := time.Now().UnixMilli()
	require.NoError(t, c.Add(5, []*tile.Tile{newTestTile(t, 5, 0, 0)}, tile.Rect{Width: 1, Height: 1}))

	c.mu.Lock()
	el := c.elements[tile.Coordinate{Zoom: 5, X: 0, Y: 0}]
	c.mu.Unlock()

	require.GreaterOrEqual(t, el.timestamp, before)
	require.LessOrEqual(t, el.timestamp, time.Now().UnixMilli())
}

func TestAddReplacesExistingTile(t *testing.T) {
	c := newTestCache(t)

	first := newTestTile(t, 5, 0, 0)
	require.NoError(t, c.Add(5, []*tile.Tile{first}, tile.Rect{Width: 1, Height: 1}))

	second := newTestTile(t, 5, 0, 0)
	require.NoError(t, c.Add(5, []*tile.Tile{second}, tile.Rect{Width: 1, Height: 1}))

	require.Equal(t, 1, c.Len())

	got, err := c.Get(0, 0, 5)
	require.NoError(t, err)
	require.NotNil(t, got)
	defer got.Release()
	require.Same(t, second, got.Tile())
}

func TestAddCreatesLayerDirectories(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Add(5, []*tile.Tile{newTestTile(t, 5, 3, 9)}, tile.Rect{X: 3, Y: 9, Width: 1, Height: 1}))

	for _, name := range []string{"elevation", "heightmap"} {
		info, err := os.Stat(filepath.Join(c.outputDir(), name, "5", "3"))
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}

func TestFlushAllThenGetReloadsFromDisk(t *testing.T) {
	c := newTestCache(t)

	tl := newTestTile(t, 5, 0, 0)
	tl.Lock()
	wantElev, _ := tl.Data().Get("elevation")
	wantHeight, _ := tl.Data().Get("heightmap")
	elevData := append([]byte(nil), wantElev.Data...)
	heightData := append([]byte(nil), wantHeight.Data...)
	tl.Unlock()

	require.NoError(t, c.Add(5, []*tile.Tile{tl}, tile.Rect{Width: 1, Height: 1}))
	require.NoError(t, c.FlushAll())

	// Payload is gone from memory, files are on disk.
	tl.Lock()
	require.True(t, tl.Data().Empty())
	tl.Unlock()
	require.FileExists(t, filepath.Join(c.outputDir(), "elevation", "5", "0", "0.bin"))
	require.FileExists(t, filepath.Join(c.outputDir(), "heightmap", "5", "0", "0.bin"))

	got, err := c.Get(0, 0, 5)
	require.NoError(t, err)
	require.NotNil(t, got)
	defer got.Release()

	require.Equal(t, elevData, layerBytes(t, got, "elevation"))
	require.Equal(t, heightData, layerBytes(t, got, "heightmap"))
}

func TestGetMissingBackingFile(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Add(5, []*tile.Tile{newTestTile(t, 5, 0, 0)}, tile.Rect{Width: 1, Height: 1}))
	require.NoError(t, c.FlushAll())

	// Remove the second layer's file so the first loads before the failure.
	require.NoError(t, os.Remove(filepath.Join(c.outputDir(), "heightmap", "5", "0", "0.bin")))

	got, err := c.Get(0, 0, 5)
	require.ErrorIs(t, err, ErrMissingTileFile)
	require.Nil(t, got)

	// The failed load rolled back, nothing half-loaded stays resident.
	c.mu.Lock()
	el := c.elements[tile.Coordinate{Zoom: 5, X: 0, Y: 0}]
	c.mu.Unlock()
	el.tile.Lock()
	require.True(t, el.tile.Data().Empty())
	el.tile.Unlock()
}

func TestWriteIsIdempotent(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Add(5, []*tile.Tile{newTestTile(t, 5, 0, 0)}, tile.Rect{Width: 1, Height: 1}))

	c.mu.Lock()
	el := c.elements[tile.Coordinate{Zoom: 5, X: 0, Y: 0}]
	c.mu.Unlock()

	path := filepath.Join(c.outputDir(), "elevation", "5", "0", "0.bin")

	el.mu.Lock()
	el.tile.Lock()
	require.NoError(t, c.write(el))
	require.True(t, el.written)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	el.written = false
	require.NoError(t, c.write(el))
	require.True(t, el.written)
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	el.tile.Unlock()
	el.mu.Unlock()

	require.Equal(t, first, second)
}

func TestLoadAll(t *testing.T) {
	c := newTestCache(t)

	tiles := []*tile.Tile{newTestTile(t, 5, 0, 0), newTestTile(t, 5, 1, 0)}
	require.NoError(t, c.Add(5, tiles, tile.Rect{Width: 2, Height: 1}))
	require.NoError(t, c.FlushAll())

	require.NoError(t, c.LoadAll())

	for _, tl := range tiles {
		tl.Lock()
		require.False(t, tl.Data().Empty())
		tl.Unlock()
	}
}

func TestFlushAllAggregatesErrors(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Add(5, []*tile.Tile{newTestTile(t, 5, 0, 0)}, tile.Rect{Width: 1, Height: 1}))

	// A desynced element whose metadata names a layer the tile no longer has.
	broken := tile.New(5, 9, 9)
	c.mu.Lock()
	c.elements[tile.Coordinate{Zoom: 5, X: 9, Y: 9}] = &cacheElement{
		layerMeta: []tile.LayerMeta{{Name: "elevation", Pixels: tile.PixelU16}},
		tile:      broken,
	}
	c.mu.Unlock()

	err := c.FlushAll()
	require.Error(t, err)

	// The healthy tile was still written.
	require.FileExists(t, filepath.Join(c.outputDir(), "elevation", "5", "0", "0.bin"))
}

func TestReset(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Add(5, []*tile.Tile{newTestTile(t, 5, 0, 0)}, tile.Rect{Width: 1, Height: 1}))
	require.Equal(t, 1, c.Len())

	c.Reset()

	require.Equal(t, 0, c.Len())
	got, err := c.Get(0, 0, 5)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCloseIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDir = t.TempDir()

	c, err := New(cfg, zaptest.NewLogger(t), prometheus.NewRegistry())
	require.NoError(t, err)

	require.NoError(t, c.Add(5, []*tile.Tile{newTestTile(t, 5, 0, 0)}, tile.Rect{Width: 1, Height: 1}))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	require.FileExists(t, filepath.Join(cfg.OutputDir, "elevation", "5", "0", "0.bin"))
}

func TestConcurrentAddAndGet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDir = t.TempDir()
	cfg.FlushInterval = 5 * time.Millisecond

	c, err := New(cfg, zaptest.NewLogger(t), prometheus.NewRegistry())
	require.NoError(t, err)
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			roi := tile.Rect{X: i, Y: 0, Width: 2, Height: 2}
			if err := c.Add(5, []*tile.Tile{newTestTile(t, 5, i, 0)}, roi); err != nil {
				t.Error(err)
				return
			}
			if got, err := c.Get(i, 0, 5); err != nil {
				t.Error(err)
				return
			} else if got != nil {
				got.Release()
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("timed out, likely deadlock between producer and worker")
	}
}
