package tilecache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the tile cache.
type Metrics struct {
	TilesWritten  prometheus.Counter
	TilesEvicted  prometheus.Counter
	TilesLoaded   prometheus.Counter
	FlushDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	tilesWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_tiles_written_total",
		Help: "Total tiles persisted to disk",
	})

	tilesEvicted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_tiles_evicted_total",
		Help: "Total tiles evicted from memory after leaving the predicted region of interest",
	})

	tilesLoaded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_tiles_loaded_total",
		Help: "Total tiles reloaded from disk on access",
	})

	flushDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tile_cache_flush_duration_seconds",
		Help:    "Duration of background flush cycles",
		Buckets: prometheus.DefBuckets,
	})

	reg.MustRegister(tilesWritten, tilesEvicted, tilesLoaded, flushDuration)

	return &Metrics{
		TilesWritten:  tilesWritten,
		TilesEvicted:  tilesEvicted,
		TilesLoaded:   tilesLoaded,
		FlushDuration: flushDuration,
	}
}
