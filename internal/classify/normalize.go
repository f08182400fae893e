package classify

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalize returns s in Unicode NFC so that names typed on macOS (NFD)
// compare equal to names created elsewhere.
func normalize(s string) string {
	return norm.NFC.String(s)
}

// dirSegments returns the normalised directory components of a walker
// path, excluding the entry's own name.
func dirSegments(path string) []string {
	parts := strings.Split(normalize(path), "/")
	if len(parts) <= 1 {
		return nil
	}
	dirs := parts[:len(parts)-1]
	out := dirs[:0]
	for _, p := range dirs {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
