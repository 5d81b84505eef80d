package fields

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var ligatures = strings.NewReplacer(
	"Œ", "OE", "œ", "oe",
	"Æ", "AE", "æ", "ae",
	"ß", "ss",
)

var (
	reSpaces  = regexp.MustCompile(`\s+`)
	reHyphens = regexp.MustCompile(`-{2,}`)
)

// StripAccents removes combining marks after canonical decomposition.
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, ligatures.Replace(s))
	if err != nil {
		return s
	}
	return out
}

// Fold returns the accent-free upper-case form used for matching.
func Fold(s string) string {
	return strings.ToUpper(StripAccents(s))
}

// NormalizeName folds a surname or given name and joins its parts with '-'.
func NormalizeName(s string) string {
	s = Fold(strings.TrimSpace(s))
	s = reSpaces.ReplaceAllString(s, "-")
	s = reHyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-'")
}

// NormalizeIdentifier zero-pads digits to width. Extra leading zeros beyond
// width are dropped so the result is stable.
func NormalizeIdentifier(digits string, width int) string {
	digits = strings.TrimSpace(digits)
	for len(digits) > width && strings.HasPrefix(digits, "0") {
		digits = digits[1:]
	}
	if len(digits) < width {
		digits = strings.Repeat("0", width-len(digits)) + digits
	}
	return digits
}

// NormalizePeriod renders a month and a 2 or 4 digit year as MMYY.
func NormalizePeriod(month, year int) string {
	return fmt.Sprintf("%02d%02d", month, year%100)
}
