package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/janulus/matrixcache/internal/router"
	"github.com/janulus/matrixcache/pkg/cache"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the caching server in front of the asset origin",
	Example: paragraph("matrixcache serve\nmatrixcache serve --listen :9000"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, assets, audio, err := buildCaches(ctx)
		if err != nil {
			return err
		}
		defer func() {
			_ = audio.Close()
			_ = store.Close()
		}()

		srv, err := router.New(router.Config{
			Origin:         viper.GetString("origin"),
			Version:        Version,
			Generation:     viper.GetInt("generation"),
			StaticManifest: viper.GetStringSlice("static_manifest"),
			DataDir:        viper.GetString("data.dir"),
		}, assets, audio, log.Default())
		if err != nil {
			return err
		}

		return srv.Run(ctx, viper.GetString("listen"))
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (overrides config)")
	_ = viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
}

// buildCaches wires the durable tiers and the resolver from the active
// configuration.
func buildCaches(ctx context.Context) (cache.BlobStore, *cache.AssetCache, *cache.AudioCache, error) {
	ttl := time.Duration(viper.GetInt("cache.ttl_days")) * 24 * time.Hour

	var (
		store cache.BlobStore
		err   error
	)
	if addr := viper.GetString("redis.addr"); addr != "" {
		store, err = cache.NewRedisStore(ctx, addr, ttl)
	} else {
		store, err = cache.NewDiskStore(
			filepath.Join(defaultCacheDir(), "store"),
			ttl,
			viper.GetBool("cache.compress"),
		)
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("unable to open structured store: %w", err)
	}

	assets, err := cache.NewAssetCache(filepath.Join(defaultCacheDir(), "assets"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("unable to open asset cache: %w", err)
	}

	cfg := cache.DefaultConfig()
	cfg.Origin = viper.GetString("origin")
	cfg.AudioBucket = router.AudioBucket(viper.GetInt("generation"))
	cfg.MemorySizeLimit = int64(viper.GetInt("cache.memory_mb")) * 1024 * 1024

	audio, err := cache.NewAudioCache(cfg, store, assets, log.Default())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("unable to build audio cache: %w", err)
	}
	audio.SetLanguage(viper.GetString("language"))
	audio.SetLevel(cache.Level(viper.GetString("level")))

	return store, assets, audio, nil
}
