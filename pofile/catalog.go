package pofile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/leonelquinteros/gotext"

	"github.com/minios-linux/binloc/extract"
)

// ErrUntranslated is returned by Provider.Translate for a string the catalog
// has no translation for.
var ErrUntranslated = errors.New("no translation in catalog")

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

// Export builds a catalog from a manifest. Identical texts share one entry
// carrying every reference. When translations is non-nil it must be
// parallel to m.Spans; entries whose translation differs from the source
// are prefilled.
func Export(m *extract.Manifest, language string, translations []string) (*File, error) {
	if translations != nil && len(translations) != len(m.Spans) {
		return nil, fmt.Errorf("%d translations for %d spans", len(translations), len(m.Spans))
	}

	name := filepath.Base(m.Source)
	f := NewCatalog(name, language)

	byID := make(map[string]*Entry)
	for i, span := range m.Spans {
		refs := []string{name + ":" + strconv.FormatInt(span.Offset, 10)}
		for _, off := range span.Repeats {
			refs = append(refs, name+":"+strconv.FormatInt(off, 10))
		}

		e, ok := byID[span.Text]
		if !ok {
			e = &Entry{
				MsgID: span.Text,
				Notes: []string{fmt.Sprintf("encoding: %s, %d bytes", span.Encoding, len(span.Raw))},
			}
			byID[span.Text] = e
			f.Entries = append(f.Entries, e)
		}
		e.References = append(e.References, refs...)
		if translations != nil && translations[i] != span.Text && e.MsgStr == "" {
			e.MsgStr = translations[i]
		}
	}
	return f, nil
}

// ExportFile writes the catalog for m to path.
func ExportFile(m *extract.Manifest, language string, translations []string, path string) error {
	f, err := Export(m, language, translations)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	return f.WriteFile(path)
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// Provider serves translations from a parsed .po file.
type Provider struct {
	po *gotext.Po
}

// ParseProvider parses PO content.
func ParseProvider(data []byte) *Provider {
	po := gotext.NewPo()
	po.Parse(data)
	return &Provider{po: po}
}

// LoadProvider reads and parses a .po file.
func LoadProvider(path string) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseProvider(data), nil
}

// Lookup returns the translation of text. A missing entry, an empty msgstr
// or a msgstr equal to the source count as untranslated.
func (p *Provider) Lookup(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	got := p.po.Get(text)
	if got == "" || got == text {
		return "", false
	}
	return got, true
}

// Translate implements the translation provider contract.
func (p *Provider) Translate(_ context.Context, text, _, _ string) (string, error) {
	if got, ok := p.Lookup(text); ok {
		return got, nil
	}
	return "", ErrUntranslated
}

// Translations maps texts through the catalog, keeping untranslated texts
// unchanged. It returns the number of texts that had a translation.
func (p *Provider) Translations(texts []string) ([]string, int) {
	out := make([]string, len(texts))
	found := 0
	for i, t := range texts {
		if got, ok := p.Lookup(t); ok {
			out[i] = got
			found++
			continue
		}
		out[i] = t
	}
	return out, found
}
