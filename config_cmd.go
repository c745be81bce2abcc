package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# address the caching server listens on
listen: ":8787"
# asset origin the cache fronts
origin: "http://localhost:8000"
# active cache generation; bump on deploy to retire old cache buckets
generation: 1
# active language folder and default level
language: "chinese"
level: "basic"

cache:
  # durable cache location (empty = user cache dir)
  dir: ""
  # zstd-compress stored audio payloads
  compress: true
  # structured-store entry lifetime
  ttl_days: 7
  # in-memory tier budget
  memory_mb: 100

redis:
  # set to e.g. "localhost:6379" to use Redis as the structured store
  # instead of the local disk store
  addr: ""

data:
  # local copy of the data directory; watched for changes when set
  dir: ""

# shell assets warmed into the static cache at startup
static_manifest:
  - index.html
  - styles.css
  - app.js
  - manifest.webmanifest
`

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Edit the matrixcache config file",
	Long:    paragraph(fmt.Sprintf("\n%s the matrixcache config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("matrixcache config\nmatrixcache config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}
		parts := strings.Fields(editor)
		parts = append(parts, configFile)
		c := exec.Command(parts[0], parts[1:]...) //nolint:gosec
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
