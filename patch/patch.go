// Package patch writes translated strings back into binary files.
//
// Every replacement site is keyed by its offset in the untouched original.
// Sites are applied in ascending order into a fresh buffer while the
// cumulative size change is tracked, so growth never shifts a later site
// onto the wrong bytes and no site is ever searched for.
package patch

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/minios-linux/binloc/extract"
)

var (
	// ErrCountMismatch is returned when the translation list is not
	// parallel to the manifest's spans.
	ErrCountMismatch = errors.New("translation count does not match span count")
	// ErrNoManifest is returned when no manifest was saved for a file.
	ErrNoManifest = errors.New("no extraction manifest")
	// ErrStaleManifest is returned when the file changed after extraction.
	ErrStaleManifest = errors.New("manifest does not match file content")
)

// Site records where one replacement landed.
type Site struct {
	// Span is the index of the span in the manifest.
	Span int
	// Original is the offset in the untouched input.
	Original int64
	// Applied is the offset in the patched output.
	Applied int64
	// OldLength and NewLength are the byte lengths before and after.
	OldLength int
	NewLength int
}

// Result summarizes one patch run. A run with skipped sites is still a
// success; the caller decides what to do with the warnings.
type Result struct {
	Applied   int
	Skipped   int
	Fallbacks int
	Delta     int64
	Sites     []Site
	Warnings  []string
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

type site struct {
	span   int
	offset int64
}

// Patch applies translations to buf, which must be the content the manifest
// was built from. translations[i] replaces m.Spans[i] and all its repeats.
// buf is never modified.
func Patch(buf []byte, m *extract.Manifest, translations []string) ([]byte, Result, error) {
	var res Result
	if len(translations) != len(m.Spans) {
		return nil, res, fmt.Errorf("%w: %d translations for %d spans", ErrCountMismatch, len(translations), len(m.Spans))
	}

	replacements := make([][]byte, len(m.Spans))
	var sites []site
	for i, span := range m.Spans {
		replacements[i] = encodeReplacement(span, translations[i], &res)
		sites = append(sites, site{i, span.Offset})
		for _, off := range span.Repeats {
			sites = append(sites, site{i, off})
		}
	}
	sort.SliceStable(sites, func(a, b int) bool {
		return sites[a].offset < sites[b].offset
	})

	out := make([]byte, 0, len(buf))
	var cursor, delta int64
	for _, s := range sites {
		span := m.Spans[s.span]
		end := s.offset + int64(len(span.Raw))

		if s.offset < cursor {
			res.Skipped++
			res.warn("span %d at 0x%X overlaps previous replacement, skipped", s.span, s.offset)
			continue
		}
		if s.offset < 0 || end > int64(len(buf)) || !bytes.Equal(buf[s.offset:end], span.Raw) {
			res.Skipped++
			res.warn("span %d at 0x%X: bytes differ from manifest, skipped", s.span, s.offset)
			continue
		}

		repl := replacements[s.span]
		out = append(out, buf[cursor:s.offset]...)
		res.Sites = append(res.Sites, Site{
			Span:      s.span,
			Original:  s.offset,
			Applied:   s.offset + delta,
			OldLength: len(span.Raw),
			NewLength: len(repl),
		})
		out = append(out, repl...)
		cursor = end
		delta += int64(len(repl) - len(span.Raw))
		res.Applied++
	}
	out = append(out, buf[cursor:]...)
	res.Delta = delta
	return out, res, nil
}

// encodeReplacement returns the bytes written for a span. Unchanged text
// keeps the original bytes exactly; a shorter encoding is padded with the
// codec's fill byte; a longer one is kept whole.
func encodeReplacement(span extract.TextSpan, text string, res *Result) []byte {
	if text == span.Text {
		return span.Raw
	}

	codec, ok := extract.CodecByName(span.Encoding)
	if !ok {
		codec = extract.UTF8()
	}
	enc, err := codec.Encode(text)
	if err != nil {
		codec = extract.UTF8()
		enc, err = codec.Encode(text)
		if err != nil {
			res.Fallbacks++
			res.warn("span at 0x%X: %v, original kept", span.Offset, err)
			return span.Raw
		}
		res.Fallbacks++
		res.warn("span at 0x%X: not representable in %s, written as utf-8", span.Offset, span.Encoding)
	}

	if len(enc) < len(span.Raw) {
		padded := make([]byte, len(span.Raw))
		copy(padded, enc)
		for i := len(enc); i < len(padded); i++ {
			padded[i] = codec.Fill
		}
		return padded
	}
	return enc
}
