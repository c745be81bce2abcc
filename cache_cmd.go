package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the audio cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cached file count and total size",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, _, audio, err := buildCaches(ctx)
		if err != nil {
			return err
		}
		defer func() {
			_ = audio.Close()
			_ = store.Close()
		}()

		stats := audio.Stats(ctx)
		fmt.Printf("Cached files: %d\n", stats.FileCount)
		fmt.Printf("Total size:   %s (%d bytes)\n",
			humanize.Bytes(uint64(stats.TotalSizeBytes)), stats.TotalSizeBytes) //nolint:gosec
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty every audio cache tier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, _, audio, err := buildCaches(ctx)
		if err != nil {
			return err
		}
		defer func() {
			_ = audio.Close()
			_ = store.Close()
		}()

		if err := audio.ClearAudio(ctx); err != nil {
			return err
		}
		fmt.Println("Audio cache cleared.")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
}
