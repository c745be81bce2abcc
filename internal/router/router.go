// Package router is the network-interception layer: a gin server that
// fronts the asset origin, classifies every request by resource class and
// dispatches it to one of four caching strategies. It also owns the
// versioned cache-bucket lifecycle and the control API the app uses to
// manage the caches.
package router

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/janulus/matrixcache/pkg/cache"
)

// BucketPrefix namespaces every bucket this app owns. Activation deletes
// stale prefixed buckets and never touches foreign ones.
const BucketPrefix = "matrixcache-"

// ConfigIndexPath is the configuration index file, always served
// network-first so the app sees the latest deployed matrix definitions.
const ConfigIndexPath = "data/matrix_index.json"

// StaticBucket returns the static bucket name for a generation.
func StaticBucket(generation int) string {
	return fmt.Sprintf("%sstatic-v%d", BucketPrefix, generation)
}

// AudioBucket returns the audio bucket name for a generation.
func AudioBucket(generation int) string {
	return fmt.Sprintf("%saudio-v%d", BucketPrefix, generation)
}

// Class is a request resource class.
type Class int

// Resource classes, in classification order.
const (
	ClassAudio Class = iota
	ClassStatic
	ClassConfigIndex
	ClassData
	ClassHTML
)

func (c Class) String() string {
	switch c {
	case ClassAudio:
		return "audio"
	case ClassStatic:
		return "static"
	case ClassConfigIndex:
		return "config-index"
	case ClassData:
		return "data"
	default:
		return "html"
	}
}

var staticExts = map[string]bool{
	".html": true, ".css": true, ".js": true, ".mjs": true,
	".png": true, ".jpg": true, ".jpeg": true, ".svg": true,
	".ico": true, ".webmanifest": true, ".woff": true, ".woff2": true,
}

// Config configures the router server.
type Config struct {
	// Origin is the asset origin base URL.
	Origin string
	// Version is the deploy version reported on the control API.
	Version string
	// Generation selects the active static and audio buckets.
	Generation int
	// StaticManifest lists the shell assets warmed at install.
	StaticManifest []string
	// DataDir, when set, is watched for changes that invalidate cached
	// data-class responses.
	DataDir string
	// FetchTimeout bounds each origin fetch.
	FetchTimeout time.Duration
}

// Server routes intercepted requests through the caching strategies.
type Server struct {
	cfg    Config
	origin *url.URL
	assets *cache.AssetCache
	audio  *cache.AudioCache
	client *http.Client
	logger *log.Logger
	engine *gin.Engine
}

// New creates a router server over the given caches.
func New(cfg Config, assets *cache.AssetCache, audio *cache.AudioCache, logger *log.Logger) (*Server, error) {
	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", cfg.Origin, err)
	}
	if origin.Host == "" {
		return nil, fmt.Errorf("invalid origin %q: missing host", cfg.Origin)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = cache.DefaultFetchTimeout
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		cfg:    cfg,
		origin: origin,
		assets: assets,
		audio:  audio,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		logger: logger,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), requestLogger(logger))

	registry := prometheus.NewRegistry()
	registry.MustRegister(audio.Metrics())
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	s.registerControl(engine.Group("/control"))
	engine.NoRoute(s.dispatch)

	s.engine = engine
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// StaticBucket returns the active static bucket name.
func (s *Server) StaticBucket() string { return StaticBucket(s.cfg.Generation) }

// AudioBucket returns the active audio bucket name.
func (s *Server) AudioBucket() string { return AudioBucket(s.cfg.Generation) }

// Classify maps a request path to its resource class.
func (s *Server) Classify(p string) Class {
	key := cache.NormalizeKey(p)
	ext := strings.ToLower(path.Ext(key))

	switch {
	case strings.Contains(key, cache.AudioBasePath+"/") && ext == cache.AudioExt:
		return ClassAudio
	case s.inManifest(key) || staticExts[ext]:
		return ClassStatic
	case key == ConfigIndexPath:
		return ClassConfigIndex
	case strings.HasPrefix(key, "data/") || ext == ".csv" || ext == ".json":
		return ClassData
	default:
		return ClassHTML
	}
}

func (s *Server) inManifest(key string) bool {
	for _, entry := range s.cfg.StaticManifest {
		if cache.NormalizeKey(entry) == key {
			return true
		}
	}
	return false
}

// dispatch routes one intercepted request. Non-GET requests and the
// favicon are passed through to the origin untouched.
func (s *Server) dispatch(c *gin.Context) {
	p := c.Request.URL.Path
	if c.Request.Method != http.MethodGet || cache.NormalizeKey(p) == "favicon.ico" {
		s.passThrough(c)
		return
	}

	switch s.Classify(p) {
	case ClassAudio:
		s.handleAudio(c)
	case ClassStatic:
		s.cacheFirst(c)
	case ClassConfigIndex:
		s.networkOnly(c)
	case ClassData:
		s.staleWhileRevalidate(c)
	default:
		s.networkFirst(c)
	}
}
