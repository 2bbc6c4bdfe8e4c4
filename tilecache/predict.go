package tilecache

import (
	"sync"

	"orthotile/tile"
)

// predictor tracks, per zoom level, the previously requested region of
// interest and a first-order extrapolation of the next one. Tile requests in
// this pipeline follow the platform's flight path, so the last observed drift
// is a usable estimate of the next one.
type predictor struct {
	mu   sync.Mutex
	prev map[int]tile.Rect
	next map[int]tile.Rect
}

func newPredictor() *predictor {
	return &predictor{
		prev: make(map[int]tile.Rect),
		next: make(map[int]tile.Rect),
	}
}

// observe records the latest requested region for a zoom level and updates
// the prediction. Without a prior request there is no basis to extrapolate,
// so the current region becomes the prediction.
func (p *predictor) observe(zoom int, cur tile.Rect) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.prev[zoom]; ok {
		p.next[zoom] = cur.Extrapolate(prev)
	} else {
		p.next[zoom] = cur
	}
	p.prev[zoom] = cur
}

// predicted returns the predicted region for a zoom level, if any request has
// been observed for it.
func (p *predictor) predicted(zoom int) (tile.Rect, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.next[zoom]
	return r, ok
}

func (p *predictor) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prev = make(map[int]tile.Rect)
	p.next = make(map[int]tile.Rect)
}
