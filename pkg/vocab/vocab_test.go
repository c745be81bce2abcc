package vocab

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/janulus/matrixcache/pkg/cache"
)

func TestRead(t *testing.T) {
	input := strings.Join([]string{
		"Word,Level,Category",
		"我们,basic,pronouns",
		"跑,Intermediate,verbs",
		",basic,empty-word-skipped",
		"好",
	}, "\n")

	records, err := Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	want := []Record{
		{Word: "我们", Level: cache.LevelBasic, Category: "pronouns"},
		{Word: "跑", Level: cache.LevelIntermediate, Category: "verbs"},
		{Word: "好"},
	}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("Read = %+v, want %+v", records, want)
	}
}

func TestReadHeaderCaseInsensitive(t *testing.T) {
	records, err := Read(strings.NewReader("WORD, level \n你好,basic"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 1 || records[0].Word != "你好" || records[0].Level != cache.LevelBasic {
		t.Errorf("Read = %+v", records)
	}
}

func TestReadReorderedColumns(t *testing.T) {
	records, err := Read(strings.NewReader("Level,Word\nadvanced,难"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 1 || records[0].Word != "难" || records[0].Level != cache.LevelAdvanced {
		t.Errorf("Read = %+v", records)
	}
}

func TestReadEmptyInput(t *testing.T) {
	if _, err := Read(strings.NewReader("")); err == nil {
		t.Error("expected error for input without a header")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	content := "Word,Level\n我,basic\n你,basic\n"
	if err := os.WriteFile(filepath.Join(dir, "chinese_basic.csv"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	records, err := Load(dir, "chinese", cache.LevelBasic)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("len = %d, want 2", len(records))
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(t.TempDir(), "chinese", cache.LevelBasic); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWords(t *testing.T) {
	records := []Record{
		{Word: "一", Level: cache.LevelBasic},
		{Word: "二", Level: cache.LevelIntermediate},
		{Word: "三"}, // no level: always included
	}

	tests := []struct {
		level cache.Level
		want  []string
	}{
		{cache.LevelBasic, []string{"一", "三"}},
		{cache.LevelIntermediate, []string{"二", "三"}},
		{cache.LevelAll, []string{"一", "二", "三"}},
		{"", []string{"一", "二", "三"}},
	}
	for _, tt := range tests {
		if got := Words(records, tt.level); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Words(level=%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
