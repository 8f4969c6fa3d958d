package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/binloc/extract"
)

// TranslatedDir is the subdirectory of the output dir holding translated
// string lists.
const TranslatedDir = "translated"

// TranslatedEntry is one span of a translated list.
type TranslatedEntry struct {
	Offset      int64  `yaml:"offset"`
	Text        string `yaml:"text"`
	Translation string `yaml:"translation"`
}

// TranslatedList is the reviewable record of what was written into a file.
// Editing Translation and running "binloc patch --yaml" applies the edit.
type TranslatedList struct {
	Source  string            `yaml:"source"`
	SHA256  string            `yaml:"sha256"`
	Lang    string            `yaml:"lang"`
	Entries []TranslatedEntry `yaml:"entries"`
}

// TranslatedListPath returns <outputDir>/translated/<stem>-<pathkey>_<lang>.yaml.
func TranslatedListPath(outputDir, source, lang string) string {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, TranslatedDir, fmt.Sprintf("%s-%s_%s.yaml", stem, extract.PathKey(source), lang))
}

// NewTranslatedList pairs the manifest's spans with their translations.
func NewTranslatedList(m *extract.Manifest, lang string, translations []string) (*TranslatedList, error) {
	if len(translations) != len(m.Spans) {
		return nil, fmt.Errorf("%d translations for %d spans", len(translations), len(m.Spans))
	}
	l := &TranslatedList{Source: filepath.Base(m.Source), SHA256: m.SHA256, Lang: lang}
	for i, span := range m.Spans {
		l.Entries = append(l.Entries, TranslatedEntry{Offset: span.Offset, Text: span.Text, Translation: translations[i]})
	}
	return l, nil
}

// Translations returns the translation column in manifest order. The list
// must describe m: same content hash and one entry per span at the same
// offsets.
func (l *TranslatedList) Translations(m *extract.Manifest) ([]string, error) {
	if l.SHA256 != "" && l.SHA256 != m.SHA256 {
		return nil, fmt.Errorf("translated list is for different content of %s", l.Source)
	}
	if len(l.Entries) != len(m.Spans) {
		return nil, fmt.Errorf("translated list has %d entries for %d spans", len(l.Entries), len(m.Spans))
	}
	out := make([]string, len(l.Entries))
	for i, e := range l.Entries {
		if e.Offset != m.Spans[i].Offset {
			return nil, fmt.Errorf("entry %d: offset %d, manifest has %d", i, e.Offset, m.Spans[i].Offset)
		}
		out[i] = e.Translation
	}
	return out, nil
}

// Save writes the list to path.
func (l *TranslatedList) Save(path string) error {
	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshaling translated list: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// LoadTranslatedList reads a list written by Save.
func LoadTranslatedList(path string) (*TranslatedList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var l TranslatedList
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &l, nil
}
