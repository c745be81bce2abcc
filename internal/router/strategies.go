package router

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/janulus/matrixcache/pkg/cache"
)

// sourceHeader tells the app which layer answered: cache, network or none.
const sourceHeader = "X-Matrixcache-Source"

// handleAudio serves audio requests with the resolver-compatible logic at
// the network layer: cache match (with slash variants), then origin fetch,
// caching the fetched bytes before responding. Total failure yields a
// synthetic 503 so the request never dangles.
func (s *Server) handleAudio(c *gin.Context) {
	key := c.Request.URL.Path

	if resp, err := s.assets.Match(s.AudioBucket(), key); err == nil {
		s.serveStored(c, resp, "cache")
		return
	}

	resp, err := s.fetchOrigin(c.Request.Context(), key)
	if err != nil {
		s.logger.Warn("audio fetch failed", "path", key, "err", err)
		s.synthetic503(c, "audio unavailable")
		return
	}
	if resp.Status == http.StatusOK {
		if err := s.assets.Put(s.AudioBucket(), cache.NormalizeKey(key), resp); err != nil {
			s.logger.Warn("audio cache write failed", "path", key, "err", err)
		}
	}
	s.serveStored(c, resp, "network")
}

// cacheFirst serves static assets: cached copy if present, otherwise fetch,
// cache on success, return. Static assets only change across deploys, which
// rotate the generation anyway.
func (s *Server) cacheFirst(c *gin.Context) {
	key := c.Request.URL.Path

	if resp, err := s.assets.Match(s.StaticBucket(), key); err == nil {
		s.serveStored(c, resp, "cache")
		return
	}

	resp, err := s.fetchOrigin(c.Request.Context(), key)
	if err != nil {
		s.synthetic503(c, "asset unavailable")
		return
	}
	if resp.Status == http.StatusOK {
		if err := s.assets.Put(s.StaticBucket(), cache.NormalizeKey(key), resp); err != nil {
			s.logger.Warn("static cache write failed", "path", key, "err", err)
		}
	}
	s.serveStored(c, resp, "network")
}

// networkOnly serves the configuration index: always from the origin, never
// stale. The index names the deployed matrices, so a cached copy could
// point the app at data files that no longer exist.
func (s *Server) networkOnly(c *gin.Context) {
	resp, err := s.fetchOrigin(c.Request.Context(), c.Request.URL.Path)
	if err != nil {
		s.synthetic503(c, "configuration unavailable")
		return
	}
	s.serveStored(c, resp, "network")
}

// networkFirst serves HTML and unclassified requests: origin when
// reachable, cached copy as the offline fallback, synthetic 503 otherwise.
func (s *Server) networkFirst(c *gin.Context) {
	key := c.Request.URL.Path

	resp, err := s.fetchOrigin(c.Request.Context(), key)
	if err == nil {
		if resp.Status == http.StatusOK {
			if err := s.assets.Put(s.StaticBucket(), cache.NormalizeKey(key), resp); err != nil {
				s.logger.Warn("cache write failed", "path", key, "err", err)
			}
		}
		s.serveStored(c, resp, "network")
		return
	}

	if cached, err := s.assets.Match(s.StaticBucket(), key); err == nil {
		s.serveStored(c, cached, "cache")
		return
	}
	s.synthetic503(c, "offline")
}

// staleWhileRevalidate serves data files: the cached copy is returned
// immediately while a background fetch refreshes the cache; with no cached
// copy the fetch is awaited. The next request sees the refreshed bytes.
func (s *Server) staleWhileRevalidate(c *gin.Context) {
	key := c.Request.URL.Path

	if cached, err := s.assets.Match(s.StaticBucket(), key); err == nil {
		go s.revalidate(key)
		s.serveStored(c, cached, "cache")
		return
	}

	resp, err := s.fetchOrigin(c.Request.Context(), key)
	if err != nil {
		s.synthetic503(c, "data unavailable")
		return
	}
	if resp.Status == http.StatusOK {
		if err := s.assets.Put(s.StaticBucket(), cache.NormalizeKey(key), resp); err != nil {
			s.logger.Warn("data cache write failed", "path", key, "err", err)
		}
	}
	s.serveStored(c, resp, "network")
}

// revalidate refreshes one data entry in the background. It runs detached
// from the request, so it carries its own timeout.
func (s *Server) revalidate(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FetchTimeout)
	defer cancel()

	resp, err := s.fetchOrigin(ctx, key)
	if err != nil || resp.Status != http.StatusOK {
		return
	}
	if err := s.assets.Put(s.StaticBucket(), cache.NormalizeKey(key), resp); err != nil {
		s.logger.Warn("revalidation write failed", "path", key, "err", err)
	}
}

// originURL builds the origin URL for a request path. The site root is not
// a resolvable candidate, so it maps to the origin root directly.
func (s *Server) originURL(p string) (*url.URL, error) {
	if cache.NormalizeKey(p) == "" {
		u := *s.origin
		u.Path = "/"
		return &u, nil
	}
	return cache.JoinOrigin(s.origin, p)
}

// passThrough proxies a request to the origin without caching.
func (s *Server) passThrough(c *gin.Context) {
	target, err := s.originURL(c.Request.URL.Path)
	if err != nil {
		s.synthetic503(c, "bad request path")
		return
	}
	if c.Request.URL.RawQuery != "" {
		target.RawQuery = c.Request.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target.String(), c.Request.Body)
	if err != nil {
		s.synthetic503(c, "bad request")
		return
	}
	req.Header = c.Request.Header.Clone()

	resp, err := s.client.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "origin unreachable"})
		return
	}
	defer resp.Body.Close() //nolint:errcheck

	for k, vals := range resp.Header {
		for _, v := range vals {
			c.Writer.Header().Add(k, v)
		}
	}
	c.Status(resp.StatusCode)
	_, _ = io.Copy(c.Writer, resp.Body)
}

// fetchOrigin fetches one path from the origin, with the slash-guarded URL
// join. Any status comes back as a StoredResponse; only transport-level
// failures return an error.
func (s *Server) fetchOrigin(ctx context.Context, p string) (*cache.StoredResponse, error) {
	target, err := s.originURL(p)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &cache.StoredResponse{
		Status:   resp.StatusCode,
		Header:   cache.FlattenHeader(resp.Header),
		Body:     body,
		StoredAt: time.Now(),
	}, nil
}

// serveStored writes a cached or freshly fetched response to the client.
func (s *Server) serveStored(c *gin.Context, resp *cache.StoredResponse, source string) {
	for k, v := range resp.Header {
		c.Writer.Header().Set(k, v)
	}
	c.Writer.Header().Set(sourceHeader, source)
	c.Status(resp.Status)
	_, _ = c.Writer.Write(resp.Body)
}

// synthetic503 fabricates a service-unavailable response so the client
// always receives something well-formed, even on total failure.
func (s *Server) synthetic503(c *gin.Context, reason string) {
	c.Writer.Header().Set(sourceHeader, "none")
	c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": reason})
}
