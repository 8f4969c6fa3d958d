package config

import (
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/minios-linux/binloc/extract"
)

// Project holds settings detected from the directory layout when no
// .binloc.yaml exists.
type Project struct {
	// Root is the absolute project root.
	Root string
	// GameDir is the directory holding asset files.
	GameDir string
	// Extensions found among the asset files, sorted.
	Extensions []string
	// Files is the number of asset files found.
	Files int
}

// Detect inspects rootDir. The game directory is DefaultGameDir when it
// exists, otherwise rootDir itself. Errors while scanning leave Files at 0.
func Detect(rootDir string) *Project {
	root := rootDir
	if abs, err := filepath.Abs(rootDir); err == nil {
		root = abs
	}
	p := &Project{Root: root, GameDir: root}
	if dir := filepath.Join(root, DefaultGameDir); isDir(dir) {
		p.GameDir = dir
	}

	files, err := extract.FindSources([]string{p.GameDir}, extract.DefaultExtensions)
	if err != nil {
		return p
	}
	p.Files = len(files)
	for _, f := range files {
		p.Extensions = append(p.Extensions, strings.ToLower(filepath.Ext(f)))
	}
	slices.Sort(p.Extensions)
	p.Extensions = slices.Compact(p.Extensions)
	return p
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// langCode matches "fr", "pt-BR" and "zh_CN".
var langCode = regexp.MustCompile(`^[a-z]{2}(?:[-_][A-Z]{2})?$`)

func isLangCode(s string) bool {
	return langCode.MatchString(s)
}
