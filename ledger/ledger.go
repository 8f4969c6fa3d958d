// Package ledger implements processed_files.yaml, the record of binaries
// already patched. Each entry holds the sha256 of the file as it was left
// after processing, so an unchanged file is skipped on the next run and a
// file replaced by a fresh copy is processed again.
//
// The ledger is stored in the output directory.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the ledger file name.
const FileName = "processed_files.yaml"

// Version is the ledger format version.
const Version = 1

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Record describes one processed file.
type Record struct {
	SHA256      string    `yaml:"sha256"`
	Lang        string    `yaml:"lang"`
	Strategy    string    `yaml:"strategy,omitempty"`
	Spans       int       `yaml:"spans"`
	Applied     int       `yaml:"applied"`
	NoText      bool      `yaml:"no_text,omitempty"`
	ProcessedAt time.Time `yaml:"processed_at"`
}

// Ledger represents the processed_files.yaml structure.
type Ledger struct {
	Version int               `yaml:"version"`
	Files   map[string]Record `yaml:"files"` // file key -> record

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads the ledger from the given directory.
// Returns an empty ledger if the file doesn't exist.
func Load(dir string) (*Ledger, error) {
	path := filepath.Join(dir, FileName)
	l := &Ledger{
		Version: Version,
		Files:   make(map[string]Record),
		path:    path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	l.path = path

	if l.Files == nil {
		l.Files = make(map[string]Record)
	}

	return l, nil
}

// Save writes the ledger to disk.
func (l *Ledger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.path == "" {
		return fmt.Errorf("ledger path not set")
	}

	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshaling ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(l.path), err)
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", l.path, err)
	}

	return nil
}

// Path returns the ledger path.
func (l *Ledger) Path() string {
	return l.path
}

// ---------------------------------------------------------------------------
// Hash operations
// ---------------------------------------------------------------------------

// HashFile computes the sha256 hex digest of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Key builds the ledger key for a file path.
func Key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.ToSlash(path)
}

// IsModified reports whether path needs processing for lang: it has no
// record, was recorded for another language, or its content changed since.
func (l *Ledger) IsModified(path, lang string) (bool, error) {
	sum, err := HashFile(path)
	if err != nil {
		return true, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.Files[Key(path)]
	if !ok || rec.Lang != lang {
		return true, nil
	}
	return rec.SHA256 != sum, nil
}

// Record stores rec for path. An empty SHA256 is filled from the file's
// current content.
func (l *Ledger) Record(path string, rec Record) error {
	if rec.SHA256 == "" {
		sum, err := HashFile(path)
		if err != nil {
			return err
		}
		rec.SHA256 = sum
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.Files[Key(path)] = rec
	return nil
}

// Lookup returns the record for path.
func (l *Ledger) Lookup(path string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.Files[Key(path)]
	return rec, ok
}

// Remove forgets path.
func (l *Ledger) Remove(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.Files, Key(path))
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats returns the number of recorded files and how many had no text.
func (l *Ledger) Stats() (files, noText int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files = len(l.Files)
	for _, r := range l.Files {
		if r.NoText {
			noText++
		}
	}
	return
}

// Keys returns sorted list of file keys.
func (l *Ledger) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]string, 0, len(l.Files))
	for k := range l.Files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Summary returns a human-readable summary string.
func (l *Ledger) Summary() string {
	files, noText := l.Stats()
	if files == 0 {
		return "empty"
	}

	langs := make(map[string]int)
	l.mu.Lock()
	for _, r := range l.Files {
		langs[r.Lang]++
	}
	l.mu.Unlock()

	var parts []string
	for lang, n := range langs {
		parts = append(parts, fmt.Sprintf("%s: %d", lang, n))
	}
	sort.Strings(parts)
	return fmt.Sprintf("%d files, %d without text (%s)", files, noText, strings.Join(parts, ", "))
}
