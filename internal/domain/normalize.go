package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD, drops combining marks (diacritics) and
// recomposes, so "café" and "cafe" compare equal.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// zeroWidth lists invisible code points that paste in from web clients.
var zeroWidth = runes.Remove(runes.In(unicode.Cf))

// NormalizeComparison canonicalizes text for guess-versus-target and
// theme-guess comparison: trim, lowercase, strip zero-width characters
// and diacritics, collapse internal whitespace. Every comparison site
// must go through this function, on both sides.
func NormalizeComparison(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if out, _, err := transform.String(transform.Chain(zeroWidth, stripMarks), s); err == nil {
		s = out
	}
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeIdentity canonicalizes text for dictionary and cache keys.
// Same pipeline as comparison, but whitespace becomes a single hyphen
// so the result is safe inside composite keys.
func NormalizeIdentity(s string) string {
	return strings.ReplaceAll(NormalizeComparison(s), " ", "-")
}
