package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/janulus/matrixcache/pkg/cache"
	"github.com/janulus/matrixcache/pkg/vocab"
)

var preloadRate float64

var preloadCmd = &cobra.Command{
	Use:     "preload [LANGUAGE] [LEVEL]",
	Short:   "Warm the audio cache from a vocabulary file",
	Long:    paragraph(fmt.Sprintf("\n%s every word's audio into the cache tiers so later lookups stay local. Best effort: individual failures are counted, not fatal.", keyword("Preload"))),
	Example: paragraph("matrixcache preload\nmatrixcache preload chinese intermediate"),
	Args:    cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		language := viper.GetString("language")
		level := cache.Level(viper.GetString("level"))
		if len(args) > 0 {
			language = args[0]
		}
		if len(args) > 1 {
			level = cache.Level(args[1])
		}

		dataDir := viper.GetString("data.dir")
		if dataDir == "" {
			return fmt.Errorf("data.dir must be set to locate vocabulary files")
		}
		records, err := vocab.Load(dataDir, language, level)
		if err != nil {
			return err
		}
		words := vocab.Words(records, level)

		store, _, audio, err := buildCaches(ctx)
		if err != nil {
			return err
		}
		defer func() {
			_ = audio.Close()
			_ = store.Close()
		}()

		var limiter *rate.Limiter
		if preloadRate > 0 {
			limiter = rate.NewLimiter(rate.Limit(preloadRate), 1)
		}

		rc := cache.ResolutionContext{Level: level, Language: language}
		result := audio.PreloadVocabulary(ctx, words, rc, limiter)

		fmt.Printf("Preloaded %d/%d audio clips (%d failed)\n", result.Success, result.Total, result.Failed)
		return nil
	},
}

func init() {
	preloadCmd.Flags().Float64Var(&preloadRate, "rate", 0, "max fetches per second (0 = unlimited)")
}
