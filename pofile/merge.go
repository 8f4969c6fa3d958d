package pofile

import (
	"os"
)

// Merge updates a freshly exported catalog with the work saved in a
// previous one, the way msgmerge updates a PO from a new template.
//   - References and comments come from fresh.
//   - A translation present in previous replaces the fresh msgstr.
//   - Entries only in previous are dropped; their text is gone from the file.
//
// It returns how many entries took their translation from previous.
func Merge(fresh *File, previous *Provider) int {
	kept := 0
	for _, e := range fresh.Entries {
		if tr, ok := previous.Lookup(e.MsgID); ok {
			e.MsgStr = tr
			kept++
		}
	}
	return kept
}

// MergeFile merges the catalog at path into fresh when it exists. A missing
// file merges nothing.
func MergeFile(fresh *File, path string) (int, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 0, nil
	}
	previous, err := LoadProvider(path)
	if err != nil {
		return 0, err
	}
	return Merge(fresh, previous), nil
}
