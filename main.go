// Package main provides the entry point for the matrixcache CLI: the
// offline-first audio asset cache for the matrix vocabulary app.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "matrixcache",
		Short: "Offline-first audio cache for the matrix vocabulary app",
		Long: paragraph(fmt.Sprintf(
			"\nServe, warm and inspect the %s for vocabulary audio: in-memory, durable store, HTTP asset cache, origin network.",
			keyword("tiered cache"),
		)),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
	}
)

// logEnv carries the logging knobs read straight from the environment.
type logEnv struct {
	Debug   bool   `env:"MATRIXCACHE_DEBUG"`
	LogFile string `env:"MATRIXCACHE_LOGFILE"`
}

// setupLog configures the global logger and returns a closer for the log
// file, if one is in use.
func setupLog() (func() error, error) {
	cfg, err := env.ParseAs[logEnv]()
	if err != nil {
		return nil, fmt.Errorf("error parsing log environment: %w", err)
	}

	if debug || cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("unable to open log file: %w", err)
		}
		log.SetOutput(f)
		return f.Close, nil
	}

	log.SetOutput(os.Stderr)
	return func() error { return nil }, nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, preloadCmd, cacheCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "matrixcache")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "matrixcache")}, dirs...)
	}
	if c := os.Getenv("MATRIXCACHE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("matrixcache")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("matrixcache")
	viper.AutomaticEnv()

	setConfigDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	configFile = filepath.Join(dirs[0], "matrixcache.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

func setConfigDefaults() {
	viper.SetDefault("listen", ":8787")
	viper.SetDefault("origin", "http://localhost:8000")
	viper.SetDefault("generation", 1)
	viper.SetDefault("language", "chinese")
	viper.SetDefault("level", "basic")
	viper.SetDefault("cache.dir", "")
	viper.SetDefault("cache.compress", true)
	viper.SetDefault("cache.ttl_days", 7)
	viper.SetDefault("cache.memory_mb", 100)
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("data.dir", "")
	viper.SetDefault("static_manifest", []string{
		"index.html",
		"styles.css",
		"app.js",
		"manifest.webmanifest",
	})
}

// defaultCacheDir resolves the durable cache location when the config
// leaves it empty.
func defaultCacheDir() string {
	if dir := viper.GetString("cache.dir"); dir != "" {
		return dir
	}
	scope := gap.NewScope(gap.User, "matrixcache")
	dir, err := scope.CacheDir()
	if err != nil || dir == "" {
		return filepath.Join(os.TempDir(), "matrixcache")
	}
	return dir
}

var keyword = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}).Render

// paragraph word-wraps help text to the terminal, matching the width
// handling of the interactive output.
func paragraph(s string) string {
	width := 80
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && w < width {
			width = w
		}
	}
	return lipgloss.NewStyle().Width(width - 2).Padding(0, 1).Render(s)
}
