package router

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchData invalidates cached data-class responses when their source files
// change on disk. Stale-while-revalidate already refreshes entries lazily;
// the watcher just makes sure an entry known to be stale is never served
// again before its revalidation lands.
func (s *Server) watchData(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	if err := watcher.Add(s.cfg.DataDir); err != nil {
		return fmt.Errorf("unable to watch %s: %w", s.cfg.DataDir, err)
	}
	s.logger.Debug("watching data directory", "dir", s.cfg.DataDir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			key := "data/" + filepath.Base(event.Name)
			if err := s.assets.DeleteKey(s.StaticBucket(), key); err != nil {
				s.logger.Warn("data invalidation failed", "key", key, "err", err)
				continue
			}
			s.logger.Info("invalidated stale data entry", "key", key)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "err", err)
		}
	}
}
