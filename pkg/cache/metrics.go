package cache

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks resolution outcomes per tier. Counters are plain atomics
// on the hot path; the type doubles as a prometheus.Collector so the router
// can expose them on /metrics without a second bookkeeping layer.
type Metrics struct {
	lookups    atomic.Int64
	memoryHits atomic.Int64
	storeHits  atomic.Int64
	assetHits  atomic.Int64
	fetches    atomic.Int64
	misses     atomic.Int64
	writes     atomic.Int64
	coalesced  atomic.Int64
}

// NewMetrics creates an empty metrics set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// HitRate returns the fraction of lookups answered by any cache tier.
func (m *Metrics) HitRate() float64 {
	total := m.lookups.Load()
	if total == 0 {
		return 0
	}
	hits := m.memoryHits.Load() + m.storeHits.Load() + m.assetHits.Load()
	return float64(hits) / float64(total)
}

// Snapshot returns the current counter values keyed by name.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"lookups":     m.lookups.Load(),
		"memory_hits": m.memoryHits.Load(),
		"store_hits":  m.storeHits.Load(),
		"asset_hits":  m.assetHits.Load(),
		"fetches":     m.fetches.Load(),
		"misses":      m.misses.Load(),
		"writes":      m.writes.Load(),
		"coalesced":   m.coalesced.Load(),
	}
}

var (
	descLookups = prometheus.NewDesc(
		"matrixcache_audio_lookups_total",
		"Audio resolutions requested.", nil, nil)
	descTierHits = prometheus.NewDesc(
		"matrixcache_audio_tier_hits_total",
		"Audio resolutions answered per cache tier.",
		[]string{"tier"}, nil)
	descFetches = prometheus.NewDesc(
		"matrixcache_audio_origin_fetches_total",
		"Origin fetch attempts issued by the resolver.", nil, nil)
	descMisses = prometheus.NewDesc(
		"matrixcache_audio_misses_total",
		"Audio resolutions that exhausted every tier.", nil, nil)
	descWrites = prometheus.NewDesc(
		"matrixcache_audio_writes_total",
		"Back-fill writes into the durable tiers.", nil, nil)
	descCoalesced = prometheus.NewDesc(
		"matrixcache_audio_coalesced_total",
		"Lookups that joined an in-flight resolution for the same key.", nil, nil)
)

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- descLookups
	ch <- descTierHits
	ch <- descFetches
	ch <- descMisses
	ch <- descWrites
	ch <- descCoalesced
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	counter := func(d *prometheus.Desc, v int64, labels ...string) prometheus.Metric {
		metric, _ := prometheus.NewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
		return metric
	}
	ch <- counter(descLookups, m.lookups.Load())
	ch <- counter(descTierHits, m.memoryHits.Load(), "memory")
	ch <- counter(descTierHits, m.storeHits.Load(), "store")
	ch <- counter(descTierHits, m.assetHits.Load(), "assets")
	ch <- counter(descFetches, m.fetches.Load())
	ch <- counter(descMisses, m.misses.Load())
	ch <- counter(descWrites, m.writes.Load())
	ch <- counter(descCoalesced, m.coalesced.Load())
}
