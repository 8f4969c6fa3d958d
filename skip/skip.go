// Package skip decides whether an extracted span is prose worth translating
// or a code, identifier or padding artifact to pass through untouched.
package skip

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/minios-linux/binloc/tokens"
)

// Patterns that mark a span as non-prose.
var skipPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d+$`),                    // bare integers
	regexp.MustCompile(`^[A-Z0-9_]{4,}$`),          // long uppercase codes
	regexp.MustCompile(`^[^\p{L}\p{N}]+$`),         // pure symbols
	regexp.MustCompile(`[\x00-\x08\x0B-\x1F\x7F]`), // control characters
}

// maxSymbolRatio bounds the share of non-alphanumeric characters in a
// sentence.
const maxSymbolRatio = 0.3

// Policy holds the skip rules. The zero value applies the base rules only.
type Policy struct {
	// Whitelist names are always translated.
	Whitelist []string
	// SentenceCheck skips spans that do not look like a sentence.
	SentenceCheck bool
	// NeighborCheck skips spans identical to an adjacent span.
	NeighborCheck bool
}

// ShouldSkip applies the base rules with the given whitelist.
func ShouldSkip(text string, whitelist []string, previous, next string) bool {
	return Policy{Whitelist: whitelist}.ShouldSkip(text, previous, next)
}

// ShouldSkip reports whether text should be passed through untranslated.
// previous and next are the neighboring spans, empty when absent.
func (p Policy) ShouldSkip(text, previous, next string) bool {
	_, clean := tokens.Extract(text)
	if clean == "" {
		return true
	}

	for _, w := range p.Whitelist {
		if clean == w {
			return false
		}
	}

	for _, re := range skipPatterns {
		if re.MatchString(clean) {
			return true
		}
	}
	if tokens.HasCommandPrefix(clean) {
		return true
	}

	if utf8.RuneCountInString(clean) < 3 && !hasVowel(clean) {
		return true
	}

	if p.SentenceCheck && !IsSentence(clean) {
		return true
	}

	if p.NeighborCheck && (sameText(clean, previous) || sameText(clean, next)) {
		return true
	}

	return false
}

// Filter returns, for each text, whether it should be skipped. Neighbors are
// the adjacent entries of texts.
func (p Policy) Filter(texts []string) []bool {
	out := make([]bool, len(texts))
	for i, t := range texts {
		var prev, next string
		if i > 0 {
			prev = texts[i-1]
		}
		if i+1 < len(texts) {
			next = texts[i+1]
		}
		out[i] = p.ShouldSkip(t, prev, next)
	}
	return out
}

// IsSentence is the stricter sentence heuristic: at least three characters
// and two words, no doubled or edge spaces, at most 30% symbols, and either
// punctuation or mixed case.
func IsSentence(text string) bool {
	n := utf8.RuneCountInString(text)
	if n < 3 {
		return false
	}
	if len(strings.Fields(text)) < 2 {
		return false
	}
	if strings.Contains(text, "  ") || strings.TrimSpace(text) != text {
		return false
	}

	symbols := 0
	hasUpper, hasLower := false, false
	for _, r := range text {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r), unicode.IsSpace(r):
		case strings.ContainsRune(".,!?;:'\"-", r):
		default:
			if !unicode.IsLetter(r) {
				symbols++
			}
		}
	}
	if float64(symbols) > float64(n)*maxSymbolRatio {
		return false
	}

	hasPunct := strings.ContainsAny(text, ".!?,;:")
	return hasPunct || (hasUpper && hasLower)
}

func sameText(a, b string) bool {
	if b == "" {
		return false
	}
	_, cb := tokens.Extract(b)
	return strings.EqualFold(a, cb)
}

func hasVowel(s string) bool {
	return strings.ContainsAny(strings.ToLower(s), "aeiouyàâäéèêëîïôöùûüÿæœ")
}
