package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// blobMeta is the on-disk index record for one stored payload.
type blobMeta struct {
	Key        string    `json:"key"`
	Level      Level     `json:"level,omitempty"`
	File       string    `json:"file"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	Compressed bool      `json:"compressed"`
}

// DiskStore is the default BlobStore backend: payload files plus a JSON
// metadata index, all under a single directory. Payloads are optionally
// zstd-compressed on the way in.
type DiskStore struct {
	mu        sync.RWMutex
	dir       string
	indexFile string
	index     map[string]*blobMeta
	ttl       time.Duration
	compress  bool

	enc *zstd.Encoder
	dec *zstd.Decoder
}

var _ BlobStore = (*DiskStore)(nil)

// NewDiskStore opens (or creates) a disk store rooted at dir. A ttl of zero
// falls back to StoreTTL.
func NewDiskStore(dir string, ttl time.Duration, compress bool) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("unable to create store directory: %w", err)
	}
	if ttl <= 0 {
		ttl = StoreTTL
	}

	ds := &DiskStore{
		dir:       dir,
		indexFile: filepath.Join(dir, "store_index.json"),
		index:     make(map[string]*blobMeta),
		ttl:       ttl,
		compress:  compress,
	}

	var err error
	if ds.enc, err = zstd.NewWriter(nil); err != nil {
		return nil, fmt.Errorf("unable to create zstd encoder: %w", err)
	}
	if ds.dec, err = zstd.NewReader(nil); err != nil {
		return nil, fmt.Errorf("unable to create zstd decoder: %w", err)
	}

	// A missing or corrupt index means a fresh start, not a failure.
	if err := ds.loadIndex(); err != nil {
		ds.index = make(map[string]*blobMeta)
	}
	return ds, nil
}

// Get returns the payload stored under key. Expired entries are deleted on
// the spot and reported as ErrExpired.
func (ds *DiskStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ds.mu.Lock()
	meta, ok := ds.index[key]
	if !ok {
		ds.mu.Unlock()
		return nil, ErrNotFound
	}
	if time.Since(meta.CreatedAt) > ds.ttl {
		ds.removeLocked(key, meta)
		_ = ds.saveIndexLocked()
		ds.mu.Unlock()
		return nil, ErrExpired
	}
	file := filepath.Join(ds.dir, meta.File)
	compressed := meta.Compressed
	ds.mu.Unlock()

	raw, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("unable to read payload file: %w", err)
	}
	if compressed {
		return ds.dec.DecodeAll(raw, nil)
	}
	return raw, nil
}

// Put stores payload under key. Empty payloads are skipped silently: a
// malformed synthesis result must not poison the store.
func (ds *DiskStore) Put(ctx context.Context, key string, payload []byte, level Level) error {
	if len(payload) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	file := entryFilename(key)
	raw := payload
	if ds.compress {
		raw = ds.enc.EncodeAll(payload, nil)
	}
	if err := os.WriteFile(filepath.Join(ds.dir, file), raw, 0o600); err != nil {
		return fmt.Errorf("unable to write payload file: %w", err)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.index[key] = &blobMeta{
		Key:        key,
		Level:      level,
		File:       file,
		Size:       int64(len(payload)),
		CreatedAt:  time.Now(),
		Compressed: ds.compress,
	}
	return ds.saveIndexLocked()
}

// EvictExpired deletes every entry past the TTL and returns the count.
func (ds *DiskStore) EvictExpired(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	now := time.Now()
	evicted := 0
	for key, meta := range ds.index {
		if now.Sub(meta.CreatedAt) > ds.ttl {
			ds.removeLocked(key, meta)
			evicted++
		}
	}
	if evicted > 0 {
		return evicted, ds.saveIndexLocked()
	}
	return 0, nil
}

// Clear empties the store entirely.
func (ds *DiskStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	for key, meta := range ds.index {
		ds.removeLocked(key, meta)
	}
	return ds.saveIndexLocked()
}

// Stats reports entry count and total uncompressed payload size.
func (ds *DiskStore) Stats(ctx context.Context) (StoreStats, error) {
	if err := ctx.Err(); err != nil {
		return StoreStats{}, err
	}

	ds.mu.RLock()
	defer ds.mu.RUnlock()
	var s StoreStats
	for _, meta := range ds.index {
		s.FileCount++
		s.TotalSizeBytes += meta.Size
	}
	return s, nil
}

// Close flushes the index.
func (ds *DiskStore) Close() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.saveIndexLocked()
}

// removeLocked deletes the payload file and index record. Lock must be held.
func (ds *DiskStore) removeLocked(key string, meta *blobMeta) {
	_ = os.Remove(filepath.Join(ds.dir, meta.File))
	delete(ds.index, key)
}

func (ds *DiskStore) loadIndex() error {
	data, err := os.ReadFile(ds.indexFile)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &ds.index)
}

// saveIndexLocked persists the index. Lock must be held.
func (ds *DiskStore) saveIndexLocked() error {
	data, err := json.MarshalIndent(ds.index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ds.indexFile, data, 0o600)
}

// entryFilename derives a stable filename for a key. Keys are paths with
// arbitrary Unicode, so they are hashed rather than used directly.
func entryFilename(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8]) + ".bin"
}
