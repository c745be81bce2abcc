package cache

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

// testOrigin serves a fixed path->payload map and counts requests.
type testOrigin struct {
	srv      *httptest.Server
	files    map[string][]byte
	requests atomic.Int64
	delay    time.Duration
}

func newTestOrigin(t *testing.T, files map[string][]byte) *testOrigin {
	t.Helper()
	to := &testOrigin{files: files}
	to.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		to.requests.Add(1)
		if to.delay > 0 {
			time.Sleep(to.delay)
		}
		payload, ok := to.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(payload)
	}))
	t.Cleanup(to.srv.Close)
	return to
}

func newTestAudioCache(t *testing.T, origin string, store BlobStore, assets *AssetCache) *AudioCache {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Origin = origin
	cfg.AudioBucket = "matrixcache-audio-v1"
	ac, err := NewAudioCache(cfg, store, assets, log.New(io.Discard))
	if err != nil {
		t.Fatalf("NewAudioCache: %v", err)
	}
	ac.SetLanguage("chinese")
	ac.SetLevel(LevelBasic)
	t.Cleanup(func() { _ = ac.Close() })
	return ac
}

func TestGetAudioColdFetchThenMemoryHit(t *testing.T) {
	payload := []byte("0123456789") // ten bytes, stands in for a real clip
	to := newTestOrigin(t, map[string][]byte{
		"/assets/audio/chinese/basic/我.mp3": payload,
	})
	store := newTestDiskStore(t, time.Hour, false)
	ac := newTestAudioCache(t, to.srv.URL, store, newTestAssetCache(t))
	ctx := context.Background()

	got := ac.GetAudio(ctx, "我", ResolutionContext{}, false)
	if !bytes.Equal(got, payload) {
		t.Fatalf("cold fetch = %q, want %q", got, payload)
	}
	if n := to.requests.Load(); n != 1 {
		t.Errorf("origin requests = %d, want 1", n)
	}

	// Second lookup lands in the memory tier.
	got = ac.GetAudio(ctx, "我", ResolutionContext{}, false)
	if !bytes.Equal(got, payload) {
		t.Fatalf("warm lookup = %q, want %q", got, payload)
	}
	if n := to.requests.Load(); n != 1 {
		t.Errorf("origin requests after warm lookup = %d, want 1", n)
	}

	snap := ac.Metrics().Snapshot()
	if snap["memory_hits"] != 1 {
		t.Errorf("memory_hits = %d, want 1", snap["memory_hits"])
	}
}

func TestGetAudioSurvivesOffline(t *testing.T) {
	payload := []byte("clip bytes")
	to := newTestOrigin(t, map[string][]byte{
		"/assets/audio/chinese/basic/我.mp3": payload,
	})
	dir := t.TempDir()

	store, err := NewDiskStore(dir, time.Hour, false)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	online := newTestAudioCache(t, to.srv.URL, store, newTestAssetCache(t))
	if got := online.GetAudio(context.Background(), "我", ResolutionContext{}, false); got == nil {
		t.Fatal("online fetch failed")
	}

	// A fresh process with no origin resolves from the durable store: the
	// index is persisted on every write, so no shutdown is required first.
	reopened, err := NewDiskStore(dir, time.Hour, false)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	offline := newTestAudioCache(t, "", reopened, nil)

	got := offline.GetAudio(context.Background(), "我", ResolutionContext{}, false)
	if !bytes.Equal(got, payload) {
		t.Errorf("offline lookup = %q, want %q", got, payload)
	}
}

func TestGetAudioBackfillAliases(t *testing.T) {
	// Only the sanitized filename exists on the origin.
	payload := []byte("aliased clip")
	to := newTestOrigin(t, map[string][]byte{
		"/assets/audio/chinese/basic/我们_你.mp3": payload,
	})
	store := newTestDiskStore(t, time.Hour, false)
	ac := newTestAudioCache(t, to.srv.URL, store, nil)
	ctx := context.Background()

	if got := ac.GetAudio(ctx, "我们/你", ResolutionContext{}, false); !bytes.Equal(got, payload) {
		t.Fatalf("GetAudio = %q, want %q", got, payload)
	}

	// Both the caller's key and the resolved candidate are in the store.
	for _, key := range []string{"我们/你", "assets/audio/chinese/basic/我们_你.mp3"} {
		if _, err := store.Get(ctx, key); err != nil {
			t.Errorf("store.Get(%q) err = %v, want hit", key, err)
		}
	}
}

func TestGetAudioGracefulMiss(t *testing.T) {
	to := newTestOrigin(t, nil) // 404 for everything
	ac := newTestAudioCache(t, to.srv.URL, newTestDiskStore(t, time.Hour, false), newTestAssetCache(t))

	got := ac.GetAudio(context.Background(), "不存在", ResolutionContext{}, false)
	if got != nil {
		t.Errorf("GetAudio(miss) = %q, want nil", got)
	}
	if snap := ac.Metrics().Snapshot(); snap["misses"] != 1 {
		t.Errorf("misses = %d, want 1", snap["misses"])
	}
}

func TestGetAudioFullyOfflineAndTierless(t *testing.T) {
	ac := newTestAudioCache(t, "", nil, nil)
	if got := ac.GetAudio(context.Background(), "word", ResolutionContext{}, false); got != nil {
		t.Errorf("GetAudio without tiers = %q, want nil", got)
	}
}

func TestGetAudioEmptyPath(t *testing.T) {
	ac := newTestAudioCache(t, "", nil, nil)
	if got := ac.GetAudio(context.Background(), "  / ", ResolutionContext{}, false); got != nil {
		t.Errorf("GetAudio(blank) = %q, want nil", got)
	}
}

func TestGetAudioStrictMode(t *testing.T) {
	// The clip exists only under the legacy no-language layout.
	payload := []byte("legacy clip")
	to := newTestOrigin(t, map[string][]byte{
		"/assets/audio/basic/跑.mp3": payload,
	})
	ac := newTestAudioCache(t, to.srv.URL, nil, nil)
	ctx := context.Background()

	// Strict resolution stops at the top-ranked candidate and misses.
	if got := ac.GetAudio(ctx, "跑", ResolutionContext{}, true); got != nil {
		t.Errorf("strict GetAudio = %q, want nil", got)
	}

	// The full cascade reaches the legacy path.
	if got := ac.GetAudio(ctx, "跑", ResolutionContext{}, false); !bytes.Equal(got, payload) {
		t.Errorf("relaxed GetAudio = %q, want %q", got, payload)
	}
}

func TestGetAudioAssetCacheTier(t *testing.T) {
	assets := newTestAssetCache(t)
	key := "assets/audio/chinese/basic/好.mp3"
	if err := assets.Put("matrixcache-audio-v1", key, storedOK("asset tier clip")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// No origin: a hit can only come from the asset cache.
	ac := newTestAudioCache(t, "", newTestDiskStore(t, time.Hour, false), assets)

	got := ac.GetAudio(context.Background(), "好", ResolutionContext{}, false)
	if !bytes.Equal(got, []byte("asset tier clip")) {
		t.Fatalf("GetAudio = %q, want asset tier hit", got)
	}
	if snap := ac.Metrics().Snapshot(); snap["asset_hits"] != 1 {
		t.Errorf("asset_hits = %d, want 1", snap["asset_hits"])
	}
}

func TestGetAudioResolutionContextOverride(t *testing.T) {
	payload := []byte("advanced clip")
	to := newTestOrigin(t, map[string][]byte{
		"/assets/audio/chinese/advanced/词.mp3": payload,
	})
	ac := newTestAudioCache(t, to.srv.URL, nil, nil)

	// Defaults say basic; the explicit context wins without mutating them.
	rc := ResolutionContext{Level: LevelAdvanced}
	if got := ac.GetAudio(context.Background(), "词", rc, true); !bytes.Equal(got, payload) {
		t.Errorf("GetAudio with override = %q, want %q", got, payload)
	}
	if ac.Context().Level != LevelBasic {
		t.Errorf("defaults mutated: level = %q", ac.Context().Level)
	}
}

func TestGetAudioCoalescesConcurrentLookups(t *testing.T) {
	payload := []byte("shared clip")
	to := newTestOrigin(t, map[string][]byte{
		"/assets/audio/chinese/basic/同.mp3": payload,
	})
	to.delay = 50 * time.Millisecond
	ac := newTestAudioCache(t, to.srv.URL, newTestDiskStore(t, time.Hour, false), nil)

	const n = 8
	var wg sync.WaitGroup
	results := make([][]byte, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = ac.GetAudio(context.Background(), "同", ResolutionContext{}, false)
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		if !bytes.Equal(got, payload) {
			t.Errorf("goroutine %d got %q", i, got)
		}
	}
	if n := to.requests.Load(); n != 1 {
		t.Errorf("origin requests = %d, want 1 (same-key lookups should share one fetch)", n)
	}
}

func TestClearAudioEmptiesEveryTier(t *testing.T) {
	payload := []byte("clip")
	to := newTestOrigin(t, map[string][]byte{
		"/assets/audio/chinese/basic/空.mp3": payload,
	})
	store := newTestDiskStore(t, time.Hour, false)
	assets := newTestAssetCache(t)
	ac := newTestAudioCache(t, to.srv.URL, store, assets)
	ctx := context.Background()

	if got := ac.GetAudio(ctx, "空", ResolutionContext{}, false); got == nil {
		t.Fatal("setup fetch failed")
	}
	if stats := ac.Stats(ctx); stats.FileCount == 0 {
		t.Fatal("expected entries before clear")
	}

	if err := ac.ClearAudio(ctx); err != nil {
		t.Fatalf("ClearAudio: %v", err)
	}
	if stats := ac.Stats(ctx); stats.FileCount != 0 {
		t.Errorf("FileCount after clear = %d, want 0", stats.FileCount)
	}
	if ac.mem.Len() != 0 {
		t.Errorf("memory tier not cleared, Len = %d", ac.mem.Len())
	}
}

func TestJoinOrigin(t *testing.T) {
	origin, err := url.Parse("http://localhost:8000")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		candidate string
		want      string
		wantErr   bool
	}{
		{candidate: "assets/audio/a.mp3", want: "http://localhost:8000/assets/audio/a.mp3"},
		// The leading slash must not fuse the path into the host.
		{candidate: "/assets/audio/a.mp3", want: "http://localhost:8000/assets/audio/a.mp3"},
		{candidate: "./assets/audio/a.mp3", want: "http://localhost:8000/assets/audio/a.mp3"},
		{candidate: "", wantErr: true},
		{candidate: "   ", wantErr: true},
	}
	for _, tt := range tests {
		u, err := JoinOrigin(origin, tt.candidate)
		if tt.wantErr {
			if err == nil {
				t.Errorf("JoinOrigin(%q) expected error", tt.candidate)
			}
			continue
		}
		if err != nil {
			t.Errorf("JoinOrigin(%q): %v", tt.candidate, err)
			continue
		}
		if u.String() != tt.want {
			t.Errorf("JoinOrigin(%q) = %q, want %q", tt.candidate, u.String(), tt.want)
		}
		if u.Host != origin.Host {
			t.Errorf("JoinOrigin(%q) host = %q, escaped origin", tt.candidate, u.Host)
		}
	}
}

func TestNewAudioCacheRejectsBadOrigin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Origin = "not a url"
	if _, err := NewAudioCache(cfg, nil, nil, log.New(io.Discard)); err == nil {
		t.Error("expected error for malformed origin")
	}
}
