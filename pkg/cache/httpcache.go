package cache

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// StoredResponse is a cached HTTP response: status, flattened headers and
// the full body. Bodies are kept as bytes, so unlike a live *http.Response
// a stored one can be served any number of times.
type StoredResponse struct {
	Key      string            `json:"key"`
	Status   int               `json:"status"`
	Header   map[string]string `json:"headers"`
	StoredAt time.Time         `json:"stored_at"`
	Size     int64             `json:"size"`

	Body []byte `json:"-"`
}

// FlattenHeader converts an http.Header to the stored single-value form.
func FlattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// AssetCache is the third lookup tier: a persistent HTTP response cache
// organized into generation-named buckets (one directory per bucket, one
// metadata JSON + body file pair per entry). Bucket lifecycle belongs to
// the request router; entry writes are idempotent, so the router and the
// audio resolver may both write into the audio bucket.
type AssetCache struct {
	mu  sync.RWMutex
	dir string
}

// NewAssetCache opens (or creates) an asset cache rooted at dir.
func NewAssetCache(dir string) (*AssetCache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("unable to create asset cache directory: %w", err)
	}
	return &AssetCache{dir: dir}, nil
}

// Match looks key up in bucket, trying the exact key, the key with a forced
// leading slash, and the key with the leading slash removed, in that order.
// The variants compensate for callers that normalize paths inconsistently.
// Only a stored status-200 response is a hit; anything else is ErrNotFound.
func (ac *AssetCache) Match(bucket, key string) (*StoredResponse, error) {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	for _, variant := range keyVariants(key) {
		resp, err := ac.load(bucket, variant)
		if err != nil {
			continue
		}
		if resp.Status != http.StatusOK {
			continue
		}
		return resp, nil
	}
	return nil, ErrNotFound
}

// Put stores resp under key in bucket, creating the bucket as needed.
func (ac *AssetCache) Put(bucket, key string, resp *StoredResponse) error {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	dir := filepath.Join(ac.dir, bucket)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("unable to create bucket: %w", err)
	}

	stored := *resp
	stored.Key = key
	stored.Size = int64(len(resp.Body))
	if stored.StoredAt.IsZero() {
		stored.StoredAt = time.Now()
	}

	name := entryFilename(key)
	meta, err := json.MarshalIndent(&stored, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode response metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".json"), meta, 0o600); err != nil {
		return fmt.Errorf("unable to write response metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".body"), resp.Body, 0o600); err != nil {
		return fmt.Errorf("unable to write response body: %w", err)
	}
	return nil
}

// DeleteBucket removes an entire bucket.
func (ac *AssetCache) DeleteBucket(bucket string) error {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return os.RemoveAll(filepath.Join(ac.dir, bucket))
}

// DeleteKey removes one entry (all slash variants) from bucket.
func (ac *AssetCache) DeleteKey(bucket, key string) error {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	dir := filepath.Join(ac.dir, bucket)
	for _, variant := range keyVariants(key) {
		name := entryFilename(variant)
		_ = os.Remove(filepath.Join(dir, name+".json"))
		_ = os.Remove(filepath.Join(dir, name+".body"))
	}
	return nil
}

// Buckets lists every bucket name.
func (ac *AssetCache) Buckets() ([]string, error) {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	entries, err := os.ReadDir(ac.dir)
	if err != nil {
		return nil, fmt.Errorf("unable to list buckets: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Keys lists the stored keys in bucket.
func (ac *AssetCache) Keys(bucket string) ([]string, error) {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	var out []string
	err := ac.eachMeta(bucket, func(resp *StoredResponse) {
		out = append(out, resp.Key)
	})
	return out, err
}

// BucketStats sums entry count and body sizes across bucket.
func (ac *AssetCache) BucketStats(bucket string) (StoreStats, error) {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	var s StoreStats
	err := ac.eachMeta(bucket, func(resp *StoredResponse) {
		s.FileCount++
		s.TotalSizeBytes += resp.Size
	})
	return s, err
}

// load reads one entry. Metadata without a body counts as a miss, matching
// the "torn write" behavior of the recording proxy this layout comes from.
func (ac *AssetCache) load(bucket, key string) (*StoredResponse, error) {
	name := entryFilename(key)
	dir := filepath.Join(ac.dir, bucket)

	meta, err := os.ReadFile(filepath.Join(dir, name+".json"))
	if err != nil {
		return nil, ErrNotFound
	}
	var resp StoredResponse
	if err := json.Unmarshal(meta, &resp); err != nil {
		return nil, ErrNotFound
	}
	body, err := os.ReadFile(filepath.Join(dir, name+".body"))
	if err != nil {
		return nil, ErrNotFound
	}
	resp.Body = body
	return &resp, nil
}

// eachMeta calls fn for every entry in bucket. Lock must be held.
func (ac *AssetCache) eachMeta(bucket string, fn func(*StoredResponse)) error {
	dir := filepath.Join(ac.dir, bucket)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("unable to list bucket: %w", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		meta, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var resp StoredResponse
		if err := json.Unmarshal(meta, &resp); err != nil {
			continue
		}
		fn(&resp)
	}
	return nil
}

// keyVariants returns the lookup order for a key: exact, forced leading
// slash, forced absent leading slash. "./" prefixes are folded away first
// so the three variants cover every normalization a caller might use.
func keyVariants(key string) []string {
	trimmed := strings.TrimPrefix(NormalizeKey(key), "/")
	return dedupe([]string{key, "/" + trimmed, trimmed})
}
