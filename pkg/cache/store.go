package cache

import (
	"context"
	"errors"
	"time"
)

// Store errors. The resolver treats every store error as a tier miss and
// moves on; the sentinels exist so tests and logs can tell the cases apart.
var (
	// ErrNotFound means the key has no entry in the store.
	ErrNotFound = errors.New("cache: entry not found")
	// ErrExpired means the entry exists but exceeded its TTL.
	ErrExpired = errors.New("cache: entry expired")
)

// StoreTTL is how long structured-store entries stay valid. Audio clips are
// immutable once generated, so a week-long window only exists to reclaim
// space from vocabulary that fell out of use.
const StoreTTL = 7 * 24 * time.Hour

// StoreStats describes the contents of a blob store.
type StoreStats struct {
	FileCount      int   `json:"file_count"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

// BlobStore is the durable structured store: the second lookup tier.
// Implementations must be capability-complete; there are no optional
// methods. Contract notes, honored by both backends:
//
//   - Get returns ErrNotFound for absent keys and ErrExpired for entries
//     past the TTL (expired entries are proactively deleted).
//   - Put is a silent no-op for empty payloads; same key, same bytes by
//     construction, so last-write-wins is safe.
//   - EvictExpired removes every expired entry and reports how many.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, payload []byte, level Level) error
	EvictExpired(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (StoreStats, error)
	Close() error
}
