// Package config implements .binloc.yaml, the project configuration file.
//
// When the file is missing every setting takes its default; command-line
// flags override whatever the file sets.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/binloc/extract"
	"github.com/minios-linux/binloc/strategy"
	"github.com/minios-linux/binloc/translate"
)

// FileName is the config file name.
const FileName = ".binloc.yaml"

// Defaults for directories and files relative to the project root.
const (
	DefaultGameDir   = "GameFiles"
	DefaultOutputDir = "TranslatedFiles"
	CacheFileName    = "translation_cache.db"
	LogFileName      = "translation.log"
)

// DefaultFileWorkers is the number of files processed in parallel.
const DefaultFileWorkers = 2

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .binloc.yaml structure.
type File struct {
	// GameDir holds the asset files to translate.
	GameDir string `yaml:"game_dir,omitempty"`
	// OutputDir receives manifests, staged copies, the ledger and the log.
	OutputDir string `yaml:"output_dir,omitempty"`
	// Extensions selects files by extension (default .pm1 .pac .pak .bf .tbl).
	Extensions []string `yaml:"extensions,omitempty"`
	SourceLang string   `yaml:"source_lang,omitempty"`
	TargetLang string   `yaml:"target_lang,omitempty"`

	Provider ProviderSettings `yaml:"provider,omitempty"`
	// Whitelist holds terms that are always translated.
	Whitelist []string       `yaml:"whitelist,omitempty"`
	Policy    PolicySettings `yaml:"policy,omitempty"`
	Cache     CacheSettings  `yaml:"cache,omitempty"`
	Workers   WorkerSettings `yaml:"workers,omitempty"`

	MaxRetries   int           `yaml:"max_retries,omitempty"`
	BackoffCap   time.Duration `yaml:"backoff_cap,omitempty"`
	RequestDelay time.Duration `yaml:"request_delay,omitempty"`
	// TestMode runs a test pass before patching each file.
	TestMode bool `yaml:"test_mode,omitempty"`
	// Strategies overrides the default strategy per format tag.
	Strategies map[string]string `yaml:"strategies,omitempty"`
}

// ProviderSettings selects and tunes the translation provider.
type ProviderSettings struct {
	ID      string        `yaml:"id,omitempty"`
	Model   string        `yaml:"model,omitempty"`
	BaseURL string        `yaml:"base_url,omitempty"`
	Proxy   string        `yaml:"proxy,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// Prompt overrides the system prompt.
	Prompt string `yaml:"prompt,omitempty"`
}

// PolicySettings enables the optional skip rules.
type PolicySettings struct {
	SentenceCheck bool `yaml:"sentence_check,omitempty"`
	NeighborCheck bool `yaml:"neighbor_check,omitempty"`
}

// CacheSettings locates the translation cache.
type CacheSettings struct {
	// Path is the bbolt file. Empty means <output_dir>/translation_cache.db.
	Path string        `yaml:"path,omitempty"`
	TTL  time.Duration `yaml:"ttl,omitempty"`
}

// WorkerSettings sizes the two worker pools.
type WorkerSettings struct {
	Files     int `yaml:"files,omitempty"`
	Translate int `yaml:"translate,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *File {
	f := &File{}
	f.applyDefaults()
	return f
}

func (f *File) applyDefaults() {
	if f.GameDir == "" {
		f.GameDir = DefaultGameDir
	}
	if f.OutputDir == "" {
		f.OutputDir = DefaultOutputDir
	}
	if len(f.Extensions) == 0 {
		f.Extensions = append([]string(nil), extract.DefaultExtensions...)
	}
	if f.SourceLang == "" {
		f.SourceLang = "en"
	}
	if f.TargetLang == "" {
		f.TargetLang = "fr"
	}
	if f.Provider.ID == "" {
		f.Provider.ID = translate.ProviderGoogle
	}
	if f.Cache.TTL == 0 {
		f.Cache.TTL = 720 * time.Hour
	}
	if f.Workers.Files == 0 {
		f.Workers.Files = DefaultFileWorkers
	}
	if f.Workers.Translate == 0 {
		f.Workers.Translate = translate.DefaultMaxWorkers
	}
	if f.MaxRetries == 0 {
		f.MaxRetries = translate.DefaultMaxRetries
	}
	if f.BackoffCap == 0 {
		f.BackoffCap = translate.DefaultBackoffCap
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load loads and validates .binloc.yaml from the given directory.
// Returns nil if no .binloc.yaml exists.
func Load(rootDir string) (*File, error) {
	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

// Validate checks values the defaults cannot repair.
func (f *File) Validate() error {
	for _, lang := range []string{f.SourceLang, f.TargetLang} {
		if !isLangCode(lang) {
			return fmt.Errorf("invalid language code %q", lang)
		}
	}
	if f.SourceLang == f.TargetLang {
		return fmt.Errorf("source_lang and target_lang are both %q", f.SourceLang)
	}
	if _, ok := translate.DefaultProviders()[f.Provider.ID]; !ok {
		return fmt.Errorf("unknown provider %q (valid: %s)", f.Provider.ID, strings.Join(translate.ProviderIDs(), ", "))
	}
	if f.Provider.ID == translate.ProviderCustomOpenAI && f.Provider.BaseURL == "" {
		return fmt.Errorf("provider %q requires \"base_url\"", f.Provider.ID)
	}
	if f.Workers.Files < 0 || f.Workers.Translate < 0 || f.MaxRetries < 0 {
		return fmt.Errorf("workers and max_retries must not be negative")
	}
	for _, ext := range f.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}
	if _, err := f.StrategyOverrides(); err != nil {
		return err
	}
	return nil
}

// StrategyOverrides parses the strategies table.
func (f *File) StrategyOverrides() (map[string]strategy.Strategy, error) {
	out := make(map[string]strategy.Strategy, len(f.Strategies))
	for format, name := range f.Strategies {
		s, err := strategy.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("strategies.%s: %w", format, err)
		}
		out[format] = s
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Resolving paths
// ---------------------------------------------------------------------------

// Paths holds absolute locations derived from a File.
type Paths struct {
	Root      string
	GameDir   string
	OutputDir string
	Cache     string
	Log       string
}

// Resolve converts relative directories into absolute paths under root.
func (f *File) Resolve(root string) (Paths, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Paths{}, err
	}
	abs := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(absRoot, p)
	}
	p := Paths{
		Root:      absRoot,
		GameDir:   abs(f.GameDir),
		OutputDir: abs(f.OutputDir),
	}
	p.Cache = filepath.Join(p.OutputDir, CacheFileName)
	if f.Cache.Path != "" {
		p.Cache = abs(f.Cache.Path)
	}
	p.Log = filepath.Join(p.OutputDir, LogFileName)
	return p, nil
}
