package cache

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// PreloadConcurrency bounds simultaneous in-flight resolutions during a
// warm-up so the origin is not overwhelmed.
const PreloadConcurrency = 5

// PreloadResult summarizes a warm-up run.
type PreloadResult struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

// PreloadVocabulary resolves every word's audio ahead of time so later
// lookups stay within the cache tiers. At most PreloadConcurrency
// resolutions run at once, optionally further capped by limit (nil means
// unlimited rate). Individual failures are counted, never fatal: this is a
// best-effort warm-up, not a transactional bulk load.
func (ac *AudioCache) PreloadVocabulary(ctx context.Context, words []string, rc ResolutionContext, limit *rate.Limiter) PreloadResult {
	result := PreloadResult{Total: len(words)}
	if len(words) == 0 {
		return result
	}

	var (
		g, gctx = errgroup.WithContext(ctx)
		success = make(chan struct{}, len(words))
	)
	g.SetLimit(PreloadConcurrency)

	for _, word := range words {
		g.Go(func() error {
			if limit != nil {
				if err := limit.Wait(gctx); err != nil {
					return nil //nolint:nilerr // cancellation counts as a failed word
				}
			}
			if data := ac.GetAudio(gctx, word, rc, false); data != nil {
				success <- struct{}{}
			}
			return nil
		})
	}
	_ = g.Wait()
	close(success)

	for range success {
		result.Success++
	}
	result.Failed = result.Total - result.Success
	return result
}
