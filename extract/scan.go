package extract

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Minimum run lengths for the two scanning passes.
const (
	NarrowMinRun = 4
	WideMinRun   = 8
)

// MinTextLength is the plausibility threshold in runes after trimming.
const MinTextLength = 4

// executableSuffixes mark strings that name files rather than carry prose.
var executableSuffixes = []string{".exe", ".dll", ".elf", ".irx", ".so", ".bat", ".com", ".bin"}

// TextSpan is one extracted string.
type TextSpan struct {
	// Offset is the byte position in the original, untouched file.
	Offset int64
	// Raw is the exact original byte sequence.
	Raw []byte
	// Encoding names the codec that decoded Raw.
	Encoding string
	// Text is the decoded form used for translation.
	Text string
	// Repeats lists later offsets holding the same bytes verbatim.
	Repeats []int64
}

// End returns the offset just past the span.
func (s TextSpan) End() int64 {
	return s.Offset + int64(len(s.Raw))
}

type run struct {
	start, end int
}

func isNarrow(b byte) bool { return b >= 0x20 && b <= 0x7E }

func isWide(b byte) bool { return isNarrow(b) || b >= 0x80 }

// scanRuns finds the maximal runs of accepted bytes at least min long.
func scanRuns(data []byte, accept func(byte) bool, min int) []run {
	var runs []run
	start := -1
	for i, b := range data {
		if accept(b) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= min {
			runs = append(runs, run{start, i})
		}
		start = -1
	}
	if start >= 0 && len(data)-start >= min {
		runs = append(runs, run{start, len(data)})
	}
	return runs
}

// Scan locates text spans in data. The result is ordered by offset and is
// deterministic for a given input.
func Scan(data []byte) []TextSpan {
	var candidates []TextSpan
	seen := make(map[run]bool)

	passes := []struct {
		accept func(byte) bool
		min    int
	}{
		{isNarrow, NarrowMinRun},
		{isWide, WideMinRun},
	}
	for _, p := range passes {
		for _, r := range scanRuns(data, p.accept, p.min) {
			if seen[r] {
				continue
			}
			seen[r] = true
			raw := data[r.start:r.end]
			codec, text, ok := decodeRun(raw)
			if !ok {
				continue
			}
			candidates = append(candidates, TextSpan{
				Offset:   int64(r.start),
				Raw:      append([]byte(nil), raw...),
				Encoding: codec.Name,
				Text:     text,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Offset != candidates[j].Offset {
			return candidates[i].Offset < candidates[j].Offset
		}
		return len(candidates[i].Raw) > len(candidates[j].Raw)
	})

	var spans []TextSpan
	byContent := make(map[string]int)
	var coveredUntil int64
	for _, c := range candidates {
		if c.Offset < coveredUntil {
			continue
		}
		coveredUntil = c.End()
		if idx, ok := byContent[string(c.Raw)]; ok {
			spans[idx].Repeats = append(spans[idx].Repeats, c.Offset)
			continue
		}
		byContent[string(c.Raw)] = len(spans)
		spans = append(spans, c)
	}
	return spans
}

// decodeRun tries every codec in order and returns the first whose text is
// lossless and plausible.
func decodeRun(raw []byte) (Codec, string, bool) {
	for _, codec := range Codecs() {
		text, ok := codec.Lossless(raw)
		if !ok {
			continue
		}
		if !Plausible(text) {
			continue
		}
		return codec, text, true
	}
	return Codec{}, "", false
}

// Plausible reports whether decoded text looks like prose rather than
// padding, numbers or file names.
func Plausible(text string) bool {
	trimmed := strings.TrimSpace(text)
	n := utf8.RuneCountInString(trimmed)
	if n < MinTextLength {
		return false
	}

	hasLetter := false
	distinct := make(map[rune]struct{})
	for _, r := range trimmed {
		if unicode.IsLetter(r) {
			hasLetter = true
		}
		distinct[r] = struct{}{}
	}
	if !hasLetter {
		return false
	}
	if len(distinct)*3 < n {
		return false
	}
	return !looksLikePath(trimmed)
}

func looksLikePath(s string) bool {
	lower := strings.ToLower(s)
	for _, suffix := range executableSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	if len(s) >= 3 && unicode.IsLetter(rune(s[0])) && s[1] == ':' && (s[2] == '\\' || s[2] == '/') {
		return true
	}
	if strings.ContainsAny(s, "/\\") && !strings.Contains(s, " ") {
		return true
	}
	return false
}

// Texts returns the decoded text of every span, in order.
func Texts(spans []TextSpan) []string {
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Text
	}
	return out
}

// Occurrences returns the number of byte positions a span list covers,
// counting repeats.
func Occurrences(spans []TextSpan) int {
	n := 0
	for _, s := range spans {
		n += 1 + len(s.Repeats)
	}
	return n
}
