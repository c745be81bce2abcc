// Package cache implements the tiered audio asset cache for the matrix
// vocabulary app: an in-memory tier, a durable structured blob store, a
// generation-named HTTP asset cache, and an origin-fetching resolver that
// cascades across all of them.
package cache

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// sanitizeReplacer maps every character that is unsafe in filenames or URL
// path segments to an underscore. The set matches the one used when the
// audio assets were generated, so sanitized lookups line up with what is on
// disk at the origin.
var sanitizeReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// Sanitize maps arbitrary text, including non-ASCII script characters, to a
// filesystem- and URL-safe token. Characters outside the unsafe set pass
// through unchanged; Han characters in particular survive intact. The result
// is NFC-normalized so visually identical input always sanitizes to the same
// token. Sanitize is idempotent and never fails; empty input yields an empty
// string.
func Sanitize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	return sanitizeReplacer.Replace(s)
}
