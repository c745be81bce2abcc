package cache

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func newTestDiskStore(t *testing.T, ttl time.Duration, compress bool) *DiskStore {
	t.Helper()
	ds, err := NewDiskStore(t.TempDir(), ttl, compress)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func TestDiskStorePutGet(t *testing.T) {
	for _, compress := range []bool{false, true} {
		ds := newTestDiskStore(t, time.Hour, compress)
		ctx := context.Background()

		payload := []byte("fake mp3 bytes")
		if err := ds.Put(ctx, "assets/audio/chinese/basic/我.mp3", payload, LevelBasic); err != nil {
			t.Fatalf("Put (compress=%v): %v", compress, err)
		}

		got, err := ds.Get(ctx, "assets/audio/chinese/basic/我.mp3")
		if err != nil {
			t.Fatalf("Get (compress=%v): %v", compress, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("round-trip mismatch (compress=%v): %q", compress, got)
		}
	}
}

func TestDiskStoreMiss(t *testing.T) {
	ds := newTestDiskStore(t, time.Hour, false)
	_, err := ds.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(miss) err = %v, want ErrNotFound", err)
	}
}

func TestDiskStoreEmptyPayloadSkipped(t *testing.T) {
	ds := newTestDiskStore(t, time.Hour, false)
	ctx := context.Background()

	if err := ds.Put(ctx, "empty", nil, LevelBasic); err != nil {
		t.Fatalf("Put(empty): %v", err)
	}
	if _, err := ds.Get(ctx, "empty"); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty payload was stored, err = %v", err)
	}
}

func TestDiskStoreExpiry(t *testing.T) {
	ds := newTestDiskStore(t, 10*time.Millisecond, false)
	ctx := context.Background()

	if err := ds.Put(ctx, "a", []byte("x"), LevelBasic); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, err := ds.Get(ctx, "a"); !errors.Is(err, ErrExpired) {
		t.Errorf("Get(expired) err = %v, want ErrExpired", err)
	}
	// Expired entries are deleted on read, so the second lookup misses.
	if _, err := ds.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Get err = %v, want ErrNotFound", err)
	}
}

func TestDiskStoreEvictExpired(t *testing.T) {
	ds := newTestDiskStore(t, 10*time.Millisecond, false)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if err := ds.Put(ctx, key, []byte("x"), LevelBasic); err != nil {
			t.Fatalf("Put(%s): %v", key, err)
		}
	}
	time.Sleep(30 * time.Millisecond)

	evicted, err := ds.EvictExpired(ctx)
	if err != nil {
		t.Fatalf("EvictExpired: %v", err)
	}
	if evicted != 3 {
		t.Errorf("evicted = %d, want 3", evicted)
	}
	stats, err := ds.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.FileCount != 0 {
		t.Errorf("FileCount = %d after eviction, want 0", stats.FileCount)
	}
}

func TestDiskStoreStats(t *testing.T) {
	ds := newTestDiskStore(t, time.Hour, false)
	ctx := context.Background()

	if err := ds.Put(ctx, "a", make([]byte, 100), LevelBasic); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := ds.Put(ctx, "b", make([]byte, 50), LevelAdvanced); err != nil {
		t.Fatalf("Put: %v", err)
	}

	stats, err := ds.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2", stats.FileCount)
	}
	if stats.TotalSizeBytes != 150 {
		t.Errorf("TotalSizeBytes = %d, want 150", stats.TotalSizeBytes)
	}
}

func TestDiskStoreClear(t *testing.T) {
	ds := newTestDiskStore(t, time.Hour, false)
	ctx := context.Background()

	if err := ds.Put(ctx, "a", []byte("x"), LevelBasic); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := ds.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := ds.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Clear err = %v, want ErrNotFound", err)
	}
}

func TestDiskStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	ds, err := NewDiskStore(dir, time.Hour, true)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	payload := []byte("durable audio")
	if err := ds.Put(ctx, "persist.mp3", payload, LevelBasic); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewDiskStore(dir, time.Hour, true)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "persist.mp3")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload after reopen = %q, want %q", got, payload)
	}
}

func TestDiskStoreCancelledContext(t *testing.T) {
	ds := newTestDiskStore(t, time.Hour, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := ds.Put(ctx, "a", []byte("x"), LevelBasic); err == nil {
		t.Error("Put with cancelled context should fail")
	}
	if _, err := ds.Get(ctx, "a"); err == nil {
		t.Error("Get with cancelled context should fail")
	}
}
