// Package transcript normalizes recognized utterance text before it is typed.
package transcript

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Options controls utterance formatting.
type Options struct {
	TrailingSpace    bool
	Capitalize       bool
	StripAnnotations bool
}

var (
	// Engines mark non-speech as [BLANK_AUDIO], (music), *coughs* and similar.
	annotationPattern = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\*[^*]*\*`)
	pronounIPattern   = regexp.MustCompile(`(^|[\s"'(])i(['’](?:m|d|ll|ve|re|s))?\b`)
)

// Format collapses whitespace and applies opts. It returns "" when nothing
// typeable remains.
func Format(text string, opts Options) string {
	if opts.StripAnnotations {
		text = annotationPattern.ReplaceAllString(text, " ")
	}
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" || !hasTypeable(normalized) {
		return ""
	}

	if opts.Capitalize {
		normalized = capitalizeFirst(normalized)
		normalized = pronounIPattern.ReplaceAllStringFunc(normalized, func(match string) string {
			return strings.Replace(match, "i", "I", 1)
		})
	}

	if opts.TrailingSpace && !strings.HasSuffix(normalized, " ") {
		return normalized + " "
	}
	return normalized
}

func capitalizeFirst(text string) string {
	for i, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		upper := unicode.ToUpper(r)
		if upper == r {
			return text
		}
		return text[:i] + string(upper) + text[i+utf8.RuneLen(r):]
	}
	return text
}

func hasTypeable(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
