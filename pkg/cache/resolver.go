package cache

import (
	"net/url"
	"path"
	"strings"
)

// Level identifies a vocabulary difficulty tier.
type Level string

// Vocabulary levels as they appear in the data files and in the audio
// directory layout. LevelAll is a caller-side sentinel meaning "whatever
// level is currently active".
const (
	LevelBasic        Level = "basic"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
	LevelAll          Level = "all"
)

const (
	// AudioBasePath is the origin path prefix under which all audio clips live.
	AudioBasePath = "assets/audio"
	// AudioExt is the audio clip file extension.
	AudioExt = ".mp3"
)

// ResolutionContext carries the active level and language used to bias
// candidate ordering. It replaces the hidden global "current level/language"
// state of earlier cache generations: callers pass it explicitly, and the
// zero value means "use the resolver's defaults".
type ResolutionContext struct {
	Level    Level
	Language string
}

// withDefaults fills the zero fields from d.
func (rc ResolutionContext) withDefaults(d ResolutionContext) ResolutionContext {
	if rc.Level == "" || rc.Level == LevelAll {
		rc.Level = d.Level
	}
	if rc.Language == "" {
		rc.Language = d.Language
	}
	return rc
}

// NormalizeKey strips the scheme-irrelevant prefixes from a cache key so
// that "p", "/p" and "./p" all address the same entry.
func NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	for {
		switch {
		case strings.HasPrefix(key, "./"):
			key = key[2:]
		case strings.HasPrefix(key, "/"):
			key = key[1:]
		default:
			return key
		}
	}
}

// Candidates returns the ordered list of origin paths to try for the given
// word or path. Historical assets were produced with three inconsistent
// filename encodings (raw Unicode, percent-encoded, sanitized with
// underscores) and two directory layouts (language-qualified and the legacy
// single-language layout without a language segment), so the resolver fans
// out across all of them rather than requiring a data migration.
//
// The order is deterministic for a given input and context, and callers
// apply first-match-wins semantics. In strict mode callers try only the
// first candidate.
func Candidates(input string, level Level, rc ResolutionContext) []string {
	input = NormalizeKey(input)
	if input == "" {
		return nil
	}

	// A fully-qualified path that already embeds the active language
	// segment is preserved as the top candidate, followed by its
	// sanitized sibling.
	if rc.Language != "" && strings.Contains(input, AudioBasePath+"/"+rc.Language+"/") {
		return dedupe([]string{input, SanitizedAlias(input)})
	}

	// The whole token is the word here, not its basename: vocabulary
	// entries may legitimately contain slashes and rely on sanitization.
	word := strings.TrimSuffix(input, AudioExt)
	ext := AudioExt

	// Best-effort percent decode; on failure the raw string stands.
	decoded := word
	if d, err := url.PathUnescape(word); err == nil {
		decoded = d
	}
	sanitized := Sanitize(decoded)
	encoded := url.PathEscape(sanitized)

	if level == "" || level == LevelAll {
		level = rc.Level
	}

	var out []string
	if rc.Language != "" && level != "" {
		out = append(out,
			AudioBasePath+"/"+rc.Language+"/"+string(level)+"/"+sanitized+ext,
			AudioBasePath+"/"+rc.Language+"/"+string(level)+"/"+encoded+ext,
		)
	}
	if level != "" {
		// Legacy layout from before multi-language support: no language
		// segment at all.
		out = append(out,
			AudioBasePath+"/"+string(level)+"/"+sanitized+ext,
			AudioBasePath+"/"+string(level)+"/"+encoded+ext,
		)
	}
	// Raw-basename fallbacks: the very first data drops were flat.
	out = append(out,
		AudioBasePath+"/"+sanitized+ext,
		AudioBasePath+"/"+decoded+ext,
	)
	// The caller's original path, verbatim, always closes the list.
	out = append(out, input)

	return dedupe(out)
}

// SanitizedAlias returns key with its basename sanitized, keeping the
// directory and extension intact. Resolved audio is stored under both the
// hit key and this alias so later lookups succeed regardless of which
// encoding the caller uses.
func SanitizedAlias(key string) string {
	dir, base := path.Split(key)
	word, ext := splitToken(base)
	return dir + Sanitize(word) + ext
}

// splitToken splits a path or filename into its stem and audio extension.
// Only the audio extension is recognized; anything else stays part of the
// stem so data filenames like "vocab.csv" round-trip untouched.
func splitToken(s string) (stem, ext string) {
	base := path.Base(s)
	if strings.HasSuffix(base, AudioExt) {
		return strings.TrimSuffix(base, AudioExt), AudioExt
	}
	return base, ""
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
