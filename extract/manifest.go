package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestVersion is the manifest file format version.
const ManifestVersion = 1

// ManifestDir is the subdirectory of the output dir holding manifests.
const ManifestDir = "extracted"

// ErrUnreadable is returned when a source file cannot be read.
var ErrUnreadable = errors.New("unreadable file")

// Manifest is the durable list of spans recorded for one file.
type Manifest struct {
	Version   int        `yaml:"version"`
	Source    string     `yaml:"source"`
	SHA256    string     `yaml:"sha256"`
	Size      int64      `yaml:"size"`
	CreatedAt time.Time  `yaml:"created_at"`
	Spans     []TextSpan `yaml:"-"`
}

// spanRecord is the on-disk form of a TextSpan. Raw bytes are stored as hex
// so the manifest round-trips arbitrary binary content.
type spanRecord struct {
	Offset   int64   `yaml:"offset"`
	Raw      string  `yaml:"raw"`
	Encoding string  `yaml:"encoding"`
	Text     string  `yaml:"text"`
	Repeats  []int64 `yaml:"repeats,omitempty"`
}

type manifestFile struct {
	Manifest `yaml:",inline"`
	Spans    []spanRecord `yaml:"spans"`
}

// HashBytes returns the sha256 hex digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PathKey is a short digest of the absolute form of path. It tells apart
// files that share a base name in different directories.
func PathKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	return hex.EncodeToString(sum[:4])
}

// NewManifest scans data and builds the manifest for source.
func NewManifest(source string, data []byte) *Manifest {
	return &Manifest{
		Version:   ManifestVersion,
		Source:    source,
		SHA256:    HashBytes(data),
		Size:      int64(len(data)),
		CreatedAt: time.Now().UTC(),
		Spans:     Scan(data),
	}
}

// ExtractFile reads path and builds its manifest. An empty span list is a
// valid result.
func ExtractFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	return NewManifest(path, data), nil
}

// Matches reports whether data is the content the manifest was built from.
func (m *Manifest) Matches(data []byte) bool {
	return int64(len(data)) == m.Size && HashBytes(data) == m.SHA256
}

// Texts returns the decoded text of every span, in manifest order.
func (m *Manifest) Texts() []string {
	return Texts(m.Spans)
}

// ManifestPath returns where the manifest for source is stored under dir.
// The name carries a short content hash so a changed file gets a new
// manifest instead of reusing a stale one.
func ManifestPath(dir, source, sha string) string {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	short := sha
	if len(short) > 12 {
		short = short[:12]
	}
	name := stem
	if ext != "" {
		name += "." + ext
	}
	return filepath.Join(dir, ManifestDir, fmt.Sprintf("%s-%s.yaml", name, short))
}

// Save writes the manifest under dir and returns the file path.
func (m *Manifest) Save(dir string) (string, error) {
	path := ManifestPath(dir, m.Source, m.SHA256)
	if err := m.WriteFile(path); err != nil {
		return "", err
	}
	return path, nil
}

// WriteFile writes the manifest to path.
func (m *Manifest) WriteFile(path string) error {
	mf := manifestFile{Manifest: *m}
	mf.Spans = make([]spanRecord, len(m.Spans))
	for i, s := range m.Spans {
		mf.Spans[i] = spanRecord{
			Offset:   s.Offset,
			Raw:      hex.EncodeToString(s.Raw),
			Encoding: s.Encoding,
			Text:     s.Text,
			Repeats:  s.Repeats,
		}
	}

	data, err := yaml.Marshal(&mf)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// LoadManifest reads a manifest written by WriteFile.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	m := mf.Manifest
	m.Spans = make([]TextSpan, len(mf.Spans))
	for i, r := range mf.Spans {
		raw, err := hex.DecodeString(r.Raw)
		if err != nil {
			return nil, fmt.Errorf("%s: span %d: bad raw bytes: %w", path, i, err)
		}
		m.Spans[i] = TextSpan{
			Offset:   r.Offset,
			Raw:      raw,
			Encoding: r.Encoding,
			Text:     r.Text,
			Repeats:  r.Repeats,
		}
	}
	return &m, nil
}

// FindManifest loads the manifest stored under dir for the current content
// of source. It returns os.ErrNotExist (wrapped) when none was saved.
func FindManifest(dir, source string, data []byte) (*Manifest, string, error) {
	path := ManifestPath(dir, source, HashBytes(data))
	m, err := LoadManifest(path)
	if err != nil {
		return nil, path, err
	}
	return m, path, nil
}
