// Package extract locates printable text spans inside binary asset files.
//
// Files are treated as undifferentiated byte streams. Two passes find runs
// of printable bytes, each run is decoded with an ordered list of codecs,
// and only runs that decode losslessly into plausible prose are kept. The
// resulting spans are recorded in a Manifest keyed by the file's content
// hash so a later process can patch translations back by offset.
package extract

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// DefaultExtensions lists the asset file extensions scanned by default.
var DefaultExtensions = []string{".pm1", ".pac", ".pak", ".bf", ".tbl"}

// ignoredDirs are never descended into: VCS metadata and binloc's own
// output directories.
var ignoredDirs = []string{".git", ".hg", ".svn", "node_modules", "__pycache__", "extracted", "translated", "reinjected"}

// extSet normalizes extensions to lowercase with a leading dot.
func extSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = true
	}
	return set
}

// FindSources walks dirs and returns the regular files whose extension is in
// exts, compared without case, sorted and without duplicates. An empty exts
// means DefaultExtensions. Backup copies never match since their extension
// is .backup or .bak.
func FindSources(dirs []string, exts []string) ([]string, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	want := extSet(exts)
	found := make(map[string]struct{})

	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
		walk := func(path string, d fs.DirEntry, err error) error {
			switch {
			case err != nil:
				// Unreadable entries are left out.
				return nil
			case d.IsDir():
				if path != dir && slices.Contains(ignoredDirs, d.Name()) {
					return filepath.SkipDir
				}
			case d.Type().IsRegular() && want[strings.ToLower(filepath.Ext(path))]:
				found[path] = struct{}{}
			}
			return nil
		}
		if err := filepath.WalkDir(dir, walk); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
	}

	files := make([]string, 0, len(found))
	for path := range found {
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// ExtensionTag returns the lowercase extension of path without the dot.
func ExtensionTag(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
