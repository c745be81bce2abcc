package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// Defaults for the resolver. The fetch timeout bounds each candidate
// attempt individually, not the whole cascade.
const (
	DefaultMemorySizeLimit = 100 * 1024 * 1024
	DefaultMemoryTTL       = time.Hour
	DefaultFetchTimeout    = 30 * time.Second
	DefaultCleanupInterval = 15 * time.Minute
)

// Config configures an AudioCache.
type Config struct {
	// Origin is the asset origin base URL. Empty means offline: the
	// network tier is skipped entirely.
	Origin string
	// AudioBucket is the asset-cache bucket audio responses live in.
	AudioBucket string

	MemorySizeLimit int64
	MemoryTTL       time.Duration
	FetchTimeout    time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns a Config with the default limits filled in.
func DefaultConfig() Config {
	return Config{
		MemorySizeLimit: DefaultMemorySizeLimit,
		MemoryTTL:       DefaultMemoryTTL,
		FetchTimeout:    DefaultFetchTimeout,
		CleanupInterval: DefaultCleanupInterval,
	}
}

// CacheStats is the caller-facing stats summary.
type CacheStats struct {
	FileCount      int     `json:"file_count"`
	TotalSizeBytes int64   `json:"total_size_bytes"`
	TotalSizeMB    float64 `json:"total_size_mb"`
}

// AudioResolver is the contract the UI layer consumes. Every method is
// mandatory; earlier cache generations probed for optional methods at
// call time, which this interface deliberately rules out.
type AudioResolver interface {
	GetAudio(ctx context.Context, path string, rc ResolutionContext, strict bool) []byte
	SetLevel(level Level)
	SetLanguage(language string)
	Stats(ctx context.Context) CacheStats
	ClearAudio(ctx context.Context) error
}

// AudioCache orchestrates the four lookup tiers: in-memory map, durable
// structured store, HTTP asset cache, origin network. Every successful
// resolution writes through to the durable tiers, so repeat lookups settle
// into tier 1/2 hits.
type AudioCache struct {
	mem    *MemoryCache
	store  BlobStore   // may be nil: tier degrades to permanently missing
	assets *AssetCache // may be nil likewise
	bucket string

	origin       *url.URL // nil when offline
	client       *http.Client
	fetchTimeout time.Duration

	group   singleflight.Group
	metrics *Metrics
	logger  *log.Logger

	mu       sync.RWMutex
	defaults ResolutionContext

	cleanupStop chan struct{}
	cleanupWg   sync.WaitGroup
}

var _ AudioResolver = (*AudioCache)(nil)

// NewAudioCache wires the tiers together. store and assets may be nil; the
// corresponding tier is then skipped (the cache fails open rather than
// failing lookups).
func NewAudioCache(cfg Config, store BlobStore, assets *AssetCache, logger *log.Logger) (*AudioCache, error) {
	def := DefaultConfig()
	if cfg.MemorySizeLimit <= 0 {
		cfg.MemorySizeLimit = def.MemorySizeLimit
	}
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = def.MemoryTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if logger == nil {
		logger = log.Default()
	}

	var origin *url.URL
	if cfg.Origin != "" {
		u, err := url.Parse(cfg.Origin)
		if err != nil {
			return nil, fmt.Errorf("invalid origin %q: %w", cfg.Origin, err)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("invalid origin %q: missing host", cfg.Origin)
		}
		origin = u
	}

	ac := &AudioCache{
		mem:          NewMemoryCache(cfg.MemorySizeLimit, cfg.MemoryTTL),
		store:        store,
		assets:       assets,
		bucket:       cfg.AudioBucket,
		origin:       origin,
		client:       &http.Client{},
		fetchTimeout: cfg.FetchTimeout,
		metrics:      NewMetrics(),
		defaults:     ResolutionContext{Level: LevelBasic},
		cleanupStop:  make(chan struct{}),
	}
	ac.startCleanup(cfg.CleanupInterval)
	return ac, nil
}

// SetLevel updates the default resolution level used when callers pass a
// zero or "all" level.
func (ac *AudioCache) SetLevel(level Level) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.defaults.Level = level
}

// SetLanguage updates the default language folder name.
func (ac *AudioCache) SetLanguage(language string) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.defaults.Language = language
}

// Context returns the current default resolution context.
func (ac *AudioCache) Context() ResolutionContext {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.defaults
}

// Metrics exposes the resolution counters, e.g. for prometheus
// registration.
func (ac *AudioCache) Metrics() *Metrics {
	return ac.metrics
}

// GetAudio resolves an audio payload through the tier cascade. rc fields
// left zero fall back to the cache defaults; strict restricts resolution to
// the top-ranked candidate. A nil return means "no audio available" — the
// cascade never surfaces an error, every failure mode degrades to the next
// tier and finally to nil.
func (ac *AudioCache) GetAudio(ctx context.Context, path string, rc ResolutionContext, strict bool) []byte {
	ac.metrics.lookups.Add(1)

	norm := NormalizeKey(path)
	if norm == "" {
		ac.metrics.misses.Add(1)
		return nil
	}
	rc = rc.withDefaults(ac.Context())

	if data := ac.mem.Get(norm); data != nil {
		ac.metrics.memoryHits.Add(1)
		return data
	}

	// Concurrent misses for the same key share one resolution.
	key := norm
	if strict {
		key = "strict\x00" + norm
	}
	v, _, shared := ac.group.Do(key, func() (any, error) {
		return ac.resolve(ctx, norm, rc, strict), nil
	})
	if shared {
		ac.metrics.coalesced.Add(1)
	}
	data, _ := v.([]byte)
	if data == nil {
		ac.metrics.misses.Add(1)
	}
	return data
}

// resolve runs tiers 2-4. Returns nil when every tier misses.
func (ac *AudioCache) resolve(ctx context.Context, norm string, rc ResolutionContext, strict bool) []byte {
	// Tier 2: durable structured store. Already durable, no back-fill
	// below it needed.
	if ac.store != nil {
		if data, err := ac.store.Get(ctx, norm); err == nil && len(data) > 0 {
			ac.metrics.storeHits.Add(1)
			ac.mem.Put(norm, data)
			return data
		}
	}

	candidates := Candidates(norm, rc.Level, rc)
	if strict && len(candidates) > 1 {
		candidates = candidates[:1]
	}

	// Tier 3: HTTP asset cache.
	if ac.assets != nil {
		for _, cand := range candidates {
			resp, err := ac.assets.Match(ac.bucket, cand)
			if err != nil {
				continue
			}
			ac.metrics.assetHits.Add(1)
			ac.backfill(ctx, norm, cand, resp.Body, rc.Level)
			return resp.Body
		}
	}

	// Tier 4: origin network, one bounded attempt per candidate.
	if ac.origin != nil {
		for _, cand := range candidates {
			data, resp := ac.fetchCandidate(ctx, cand)
			if data == nil {
				continue
			}
			if ac.assets != nil {
				if err := ac.assets.Put(ac.bucket, cand, resp); err != nil {
					ac.logger.Warn("asset cache write failed", "key", cand, "err", err)
				}
			}
			ac.backfill(ctx, norm, cand, data, rc.Level)
			return data
		}
	}

	return nil
}

// backfill writes a resolved payload into the faster tiers, under the
// normalized key, the hit candidate and its sanitized alias, so every
// encoding a caller might use finds the entry next time.
func (ac *AudioCache) backfill(ctx context.Context, norm, cand string, data []byte, level Level) {
	ac.mem.Put(norm, data)
	if ac.store == nil {
		return
	}
	keys := dedupe([]string{norm, NormalizeKey(cand), SanitizedAlias(NormalizeKey(cand))})
	for _, key := range keys {
		if err := ac.store.Put(ctx, key, data, level); err != nil {
			ac.logger.Warn("store write failed", "key", key, "err", err)
			return
		}
		ac.metrics.writes.Add(1)
	}
}

// fetchCandidate fetches one candidate from the origin with the per-attempt
// timeout. Returns (nil, nil) on any failure: timeout, malformed URL,
// non-200, transport error.
func (ac *AudioCache) fetchCandidate(ctx context.Context, cand string) ([]byte, *StoredResponse) {
	target, err := JoinOrigin(ac.origin, cand)
	if err != nil {
		ac.logger.Debug("skipping malformed candidate", "candidate", cand, "err", err)
		return nil, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, ac.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, nil
	}
	ac.metrics.fetches.Add(1)
	resp, err := ac.client.Do(req)
	if err != nil {
		ac.logger.Debug("candidate fetch failed", "candidate", cand, "err", err)
		return nil, nil
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil || len(body) == 0 {
		return nil, nil
	}
	return body, &StoredResponse{
		Status: resp.StatusCode,
		Header: FlattenHeader(resp.Header),
		Body:   body,
	}
}

// Stats sums the durable audio tiers.
func (ac *AudioCache) Stats(ctx context.Context) CacheStats {
	var total StoreStats
	if ac.store != nil {
		if s, err := ac.store.Stats(ctx); err == nil {
			total.FileCount += s.FileCount
			total.TotalSizeBytes += s.TotalSizeBytes
		}
	}
	if ac.assets != nil {
		if s, err := ac.assets.BucketStats(ac.bucket); err == nil {
			total.FileCount += s.FileCount
			total.TotalSizeBytes += s.TotalSizeBytes
		}
	}
	return CacheStats{
		FileCount:      total.FileCount,
		TotalSizeBytes: total.TotalSizeBytes,
		TotalSizeMB:    float64(total.TotalSizeBytes) / (1024 * 1024),
	}
}

// ClearAudio empties every audio tier.
func (ac *AudioCache) ClearAudio(ctx context.Context) error {
	ac.mem.Clear()
	if ac.store != nil {
		if err := ac.store.Clear(ctx); err != nil {
			return fmt.Errorf("unable to clear structured store: %w", err)
		}
	}
	if ac.assets != nil {
		if err := ac.assets.DeleteBucket(ac.bucket); err != nil {
			return fmt.Errorf("unable to clear asset bucket: %w", err)
		}
	}
	return nil
}

// Close stops the cleanup loop and flushes the store.
func (ac *AudioCache) Close() error {
	close(ac.cleanupStop)
	ac.cleanupWg.Wait()
	if ac.store != nil {
		return ac.store.Close()
	}
	return nil
}

func (ac *AudioCache) startCleanup(interval time.Duration) {
	ac.cleanupWg.Add(1)
	go func() {
		defer ac.cleanupWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ac.mem.cleanup()
				if ac.store != nil {
					ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
					if n, err := ac.store.EvictExpired(ctx); err == nil && n > 0 {
						ac.logger.Debug("evicted expired store entries", "count", n)
					}
					cancel()
				}
			case <-ac.cleanupStop:
				return
			}
		}
	}()
}

// JoinOrigin builds the absolute URL for a candidate path. Joining origin
// and path by plain concatenation is a classic bug: without a separating
// slash the first path segment fuses into the host. The join here always
// inserts the slash and then verifies the parsed host still matches the
// origin, skipping the candidate otherwise.
func JoinOrigin(origin *url.URL, candidate string) (*url.URL, error) {
	trimmed := NormalizeKey(candidate)
	if trimmed == "" {
		return nil, fmt.Errorf("empty candidate path")
	}
	u, err := url.Parse(origin.Scheme + "://" + origin.Host + "/" + trimmed)
	if err != nil {
		return nil, fmt.Errorf("unable to build candidate URL: %w", err)
	}
	if u.Host != origin.Host {
		return nil, fmt.Errorf("candidate %q escapes origin host", candidate)
	}
	return u, nil
}
