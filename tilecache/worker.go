package tilecache

import (
	"time"

	"go.uber.org/zap"
)

// run is the background worker loop. It wakes on a fixed cadence and on the
// capacity-1 wake signal from Add, whichever fires first.
func (c *Cache) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		case <-c.wake:
		}
		c.runCycle()
	}
}

// runCycle performs one flush/evict pass. At most one pass runs at a time: if
// another is still in flight the cycle is skipped entirely rather than queued,
// the ticker will fire again. Returns whether a pass actually ran.
func (c *Cache) runCycle() bool {
	if !c.flushing.CompareAndSwap(false, true) {
		return false
	}
	defer c.flushing.Store(false)

	if !c.dirty.Swap(false) {
		return false
	}

	start := time.Now()
	written, evicted, failed := 0, 0, 0

	for _, el := range c.snapshot() {
		el.mu.Lock()
		el.tile.Lock()

		// Write before evict: an element leaves memory only once durable.
		if !el.written {
			if err := c.write(el); err != nil {
				failed++
				c.logElementError("failed to write tile", el, err)
			} else {
				written++
			}
		}

		if isCached(el) {
			coord := el.tile.Coordinate()
			if pred, ok := c.pred.predicted(coord.Zoom); ok && !pred.Contains(coord.X, coord.Y) {
				if err := c.evict(el); err != nil {
					failed++
					c.logElementError("failed to evict tile", el, err)
				} else {
					evicted++
				}
			}
		}

		el.tile.Unlock()
		el.mu.Unlock()
	}

	elapsed := time.Since(start)
	c.metrics.FlushDuration.Observe(elapsed.Seconds())

	c.log.Info("cache flush cycle",
		zap.Int("tiles_written", written),
		zap.Int("tiles_evicted", evicted),
		zap.Int("tiles_failed", failed),
		zap.Duration("elapsed", elapsed),
	)

	return true
}

// logElementError logs a per-element worker failure. One unwritable tile must
// not stop the rest of the cycle, so these are logged and counted only.
func (c *Cache) logElementError(msg string, el *cacheElement, err error) {
	coord := el.tile.Coordinate()
	c.log.Error(msg,
		zap.Int("zoom", coord.Zoom),
		zap.Int("x", coord.X),
		zap.Int("y", coord.Y),
		zap.Error(err),
	)
}
