package router

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/janulus/matrixcache/pkg/cache"
)

// Install warms the static bucket with every entry in the static manifest.
// Partial failures are logged per-asset and tolerated: some manifest files
// legitimately do not exist yet on a fresh deploy, and install must not
// block activation.
func (s *Server) Install(ctx context.Context) {
	for _, entry := range s.cfg.StaticManifest {
		key := cache.NormalizeKey(entry)
		resp, err := s.fetchOrigin(ctx, key)
		if err != nil {
			s.logger.Warn("install: asset fetch failed", "path", key, "err", err)
			continue
		}
		if resp.Status != http.StatusOK {
			s.logger.Warn("install: asset not available", "path", key, "status", resp.Status)
			continue
		}
		if err := s.assets.Put(s.StaticBucket(), key, resp); err != nil {
			s.logger.Warn("install: cache write failed", "path", key, "err", err)
			continue
		}
		s.logger.Debug("install: cached", "path", key, "bytes", len(resp.Body))
	}
}

// Activate garbage-collects superseded cache generations: every bucket
// carrying this app's prefix that is not the active static or audio bucket
// is deleted. Buckets without the prefix belong to someone else and are
// left untouched.
func (s *Server) Activate() error {
	buckets, err := s.assets.Buckets()
	if err != nil {
		return err
	}

	active := map[string]bool{
		s.StaticBucket(): true,
		s.AudioBucket():  true,
	}

	var errs []error
	for _, bucket := range buckets {
		if !strings.HasPrefix(bucket, BucketPrefix) || active[bucket] {
			continue
		}
		if err := s.assets.DeleteBucket(bucket); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Info("activate: deleted stale cache", "bucket", bucket)
	}
	return errors.Join(errs...)
}

// Run installs, activates, starts the data watcher when configured, and
// serves until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.Install(ctx)
	if err := s.Activate(); err != nil {
		s.logger.Warn("activation cleanup incomplete", "err", err)
	}
	if s.cfg.DataDir != "" {
		go func() {
			if err := s.watchData(ctx); err != nil {
				s.logger.Warn("data watcher stopped", "err", err)
			}
		}()
	}

	srv := &http.Server{Addr: addr, Handler: s.engine}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	s.logger.Info("listening", "addr", addr, "origin", s.origin.String(), "generation", s.cfg.Generation)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
