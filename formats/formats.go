// Package formats classifies game asset files: format tag, how much of the
// file is text, and whether the text already looks translated.
package formats

import (
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"

	"github.com/minios-linux/binloc/extract"
	"github.com/minios-linux/binloc/langmeta"
)

// Status is an estimate of how much of a file is in the target language.
type Status string

const (
	Untranslated Status = "untranslated"
	Partial      Status = "partial"
	Translated   Status = "translated"
	Unknown      Status = "unknown"
)

// TranslatedRatio is the fraction of marked spans above which a file counts
// as translated.
const TranslatedRatio = 0.5

// Info describes one file.
type Info struct {
	// Tag is the lowercase extension without the dot.
	Tag string
	// TextScore is the fraction of bytes covered by extracted spans.
	TextScore float64
	// Binary is true when the content is not plain text.
	Binary bool
	// Language is the text language name for non-binary content, if known.
	Language string
	Status   Status
	// Spans is the number of spans found.
	Spans int
}

// Detect classifies data read from path. The status estimate counts spans
// carrying characters typical of targetLang.
func Detect(path string, data []byte, targetLang string) Info {
	spans := extract.Scan(data)
	info := Info{
		Tag:    extract.ExtensionTag(path),
		Binary: enry.IsBinary(data),
		Spans:  len(spans),
		Status: EstimateStatus(extract.Texts(spans), targetLang),
	}
	if len(data) > 0 {
		covered := 0
		for _, s := range spans {
			covered += len(s.Raw) * (1 + len(s.Repeats))
		}
		info.TextScore = float64(covered) / float64(len(data))
	}
	if !info.Binary {
		info.Language = enry.GetLanguage(filepath.Base(path), data)
	}
	return info
}

// EstimateStatus guesses the translation status of texts. Languages
// without marker characters, and empty input, give Unknown.
func EstimateStatus(texts []string, targetLang string) Status {
	markers := langmeta.Resolve(targetLang).Markers
	if markers == "" || len(texts) == 0 {
		return Unknown
	}
	marked := 0
	for _, t := range texts {
		if strings.ContainsAny(t, markers) {
			marked++
		}
	}
	switch ratio := float64(marked) / float64(len(texts)); {
	case marked == 0:
		return Untranslated
	case ratio >= TranslatedRatio:
		return Translated
	default:
		return Partial
	}
}
