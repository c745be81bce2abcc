// Package vocab reads the vocabulary data files that supply the word/level
// tuples used to derive audio cache keys. No validation happens here; the
// cache layer tolerates whatever the data files contain.
package vocab

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/janulus/matrixcache/pkg/cache"
)

// Record is one vocabulary row. Columns beyond these are ignored.
type Record struct {
	Word     string
	Level    cache.Level
	Category string
}

// Read parses vocabulary records from r. The first row is the header;
// matching is by column name (Word, Level, Category), case-insensitive.
// Rows with an empty word are skipped.
func Read(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // historical files are ragged

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("unable to read vocabulary header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unable to read vocabulary row: %w", err)
		}
		word := field(row, "word")
		if word == "" {
			continue
		}
		records = append(records, Record{
			Word:     word,
			Level:    cache.Level(strings.ToLower(field(row, "level"))),
			Category: field(row, "category"),
		})
	}
	return records, nil
}

// Load reads the vocabulary file for a language and level from dataDir.
// Files follow the historical naming scheme <language>_<level>.csv.
func Load(dataDir, language string, level cache.Level) ([]Record, error) {
	path := filepath.Join(dataDir, fmt.Sprintf("%s_%s.csv", language, level))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open vocabulary file: %w", err)
	}
	defer f.Close() //nolint:errcheck
	return Read(f)
}

// Words extracts the word column, filtered to level when level is not
// "all" or empty.
func Words(records []Record, level cache.Level) []string {
	var out []string
	for _, rec := range records {
		if level != "" && level != cache.LevelAll && rec.Level != "" && rec.Level != level {
			continue
		}
		out = append(out, rec.Word)
	}
	return out
}
