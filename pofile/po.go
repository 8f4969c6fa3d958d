// Package pofile bridges extraction manifests and GNU gettext catalogs.
//
// Export writes a manifest's spans as a .po catalog for human translators,
// with a "#: file:offset" reference per occurrence. Catalogs are read back
// with github.com/leonelquinteros/gotext and served as a translation
// provider, so a hand-translated .po can be patched into a binary.
package pofile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry is one message of a catalog.
type Entry struct {
	// Comments are translator comments ("# ").
	Comments []string
	// Notes are extractor notes ("#. "), such as the span codec.
	Notes []string
	// References are "file:offset" locations ("#: ").
	References []string
	// Flags are written as one "#, " line.
	Flags []string

	MsgID  string
	MsgStr string
}

// IsTranslated reports whether the entry carries a translation.
func (e *Entry) IsTranslated() bool {
	return e.MsgID != "" && e.MsgStr != ""
}

// Field is one "Name: value" line of the catalog header.
type Field struct {
	Name  string
	Value string
}

// File is a catalog ready to be written. Header fields keep their order.
type File struct {
	Comments []string
	Header   []Field
	Entries  []*Entry
}

// NewFile returns an empty catalog.
func NewFile() *File {
	return &File{}
}

// HeaderField returns the value of the named header field, matched without
// regard to case.
func (f *File) HeaderField(name string) string {
	for _, fl := range f.Header {
		if strings.EqualFold(fl.Name, name) {
			return fl.Value
		}
	}
	return ""
}

// SetHeaderField replaces the named field or appends it.
func (f *File) SetHeaderField(name, value string) {
	for i, fl := range f.Header {
		if strings.EqualFold(fl.Name, name) {
			f.Header[i].Value = value
			return
		}
	}
	f.Header = append(f.Header, Field{Name: name, Value: value})
}

// Stats counts entries and translated entries.
func (f *File) Stats() (total, translated int) {
	for _, e := range f.Entries {
		total++
		if e.IsTranslated() {
			translated++
		}
	}
	return total, translated
}

// NewCatalog returns a catalog with the standard header for the texts of
// one source file.
func NewCatalog(source, language string) *File {
	now := time.Now().UTC().Format("2006-01-02 15:04+0000")
	return &File{
		Comments: []string{
			"Text extracted from " + source + ".",
			"Keep every {CODE} sequence unchanged.",
		},
		Header: []Field{
			{"Project-Id-Version", source},
			{"POT-Creation-Date", now},
			{"PO-Revision-Date", now},
			{"Last-Translator", ""},
			{"Language-Team", ""},
			{"Language", language},
			{"MIME-Version", "1.0"},
			{"Content-Type", "text/plain; charset=UTF-8"},
			{"Content-Transfer-Encoding", "8bit"},
			{"X-Generator", "binloc"},
		},
	}
}

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\t", `\t`,
	"\r", `\r`,
)

// quote returns s as a PO string literal.
func quote(s string) string {
	return `"` + escaper.Replace(s) + `"`
}

// encoder writes catalog syntax and keeps the first write error.
type encoder struct {
	w   io.Writer
	err error
}

func (e *encoder) printf(format string, args ...any) {
	if e.err == nil {
		_, e.err = fmt.Fprintf(e.w, format, args...)
	}
}

func (e *encoder) comments(prefix string, lines []string) {
	for _, l := range lines {
		e.printf("%s %s\n", prefix, l)
	}
}

// field writes a keyword and its string. Values containing newlines are
// split after each newline, with an empty first line as msgcat does.
func (e *encoder) field(keyword, value string) {
	if !strings.Contains(value, "\n") {
		e.printf("%s %s\n", keyword, quote(value))
		return
	}
	e.printf("%s \"\"\n", keyword)
	for _, part := range strings.SplitAfter(value, "\n") {
		if part != "" {
			e.printf("%s\n", quote(part))
		}
	}
}

func (e *encoder) entry(en *Entry) {
	e.comments("#", en.Comments)
	e.comments("#.", en.Notes)
	e.comments("#:", en.References)
	if len(en.Flags) > 0 {
		e.printf("#, %s\n", strings.Join(en.Flags, ", "))
	}
	e.field("msgid", en.MsgID)
	e.field("msgstr", en.MsgStr)
}

// Write encodes the catalog to w. Entries are separated by blank lines; the
// header entry is omitted when the file has neither comments nor fields.
func (f *File) Write(w io.Writer) error {
	enc := &encoder{w: w}
	first := true
	if len(f.Header) > 0 || len(f.Comments) > 0 {
		var b strings.Builder
		for _, fl := range f.Header {
			b.WriteString(fl.Name + ": " + fl.Value + "\n")
		}
		enc.entry(&Entry{Comments: f.Comments, MsgStr: b.String()})
		first = false
	}
	for _, en := range f.Entries {
		if !first {
			enc.printf("\n")
		}
		first = false
		enc.entry(en)
	}
	return enc.err
}

// WriteFile writes the catalog to path through a temporary file in the same
// directory.
func (f *File) WriteFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}
