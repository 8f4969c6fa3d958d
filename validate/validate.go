// Package validate checks that translated text survives a patch by
// re-extracting the patched file and comparing against what was written.
package validate

import (
	"fmt"
	"strconv"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"github.com/minios-linux/binloc/extract"
)

// Report compares the texts written into a file with the texts recovered
// from it.
type Report struct {
	Expected  int
	Recovered int
	// Matched counts expected texts found verbatim (ignoring padding) among
	// the recovered ones.
	Matched int
	// Ratio is Recovered / Expected, 1 when nothing was expected.
	Ratio float64
	// Diff is a unified diff of expected vs recovered texts, one quoted text
	// per line. Empty when they agree.
	Diff string
}

// Passed reports whether at least threshold of the expected texts were
// recovered.
func (r Report) Passed(threshold float64) bool {
	return r.Ratio >= threshold
}

// Mismatched is the number of expected texts not recovered verbatim.
func (r Report) Mismatched() int {
	return r.Expected - r.Matched
}

// Compare builds a report from two text lists.
func Compare(expected, recovered []string) Report {
	r := Report{Expected: len(expected), Recovered: len(recovered), Ratio: 1}
	if r.Expected > 0 {
		r.Ratio = float64(r.Recovered) / float64(r.Expected)
	}

	pool := make(map[string]int, len(recovered))
	for _, t := range recovered {
		pool[strings.TrimSpace(t)]++
	}
	for _, t := range expected {
		key := strings.TrimSpace(t)
		if pool[key] > 0 {
			pool[key]--
			r.Matched++
		}
	}

	if r.Matched != r.Expected || r.Recovered != r.Expected {
		r.Diff = unified(expected, recovered)
	}
	return r
}

// File re-extracts path and compares its texts with expected.
func File(path string, expected []string) (Report, error) {
	m, err := extract.ExtractFile(path)
	if err != nil {
		return Report{}, err
	}
	return Compare(expected, m.Texts()), nil
}

// String renders a one-line summary.
func (r Report) String() string {
	return fmt.Sprintf("%d/%d recovered (%.0f%%), %d matched", r.Recovered, r.Expected, r.Ratio*100, r.Matched)
}

func unified(expected, recovered []string) string {
	u := difflib.UnifiedDiff{
		A:        quotedLines(expected),
		B:        quotedLines(recovered),
		FromFile: "expected",
		ToFile:   "recovered",
		Context:  1,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return ""
	}
	return s
}

// quotedLines renders each text on its own line. Quoting keeps embedded
// newlines and padding visible.
func quotedLines(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = strconv.Quote(strings.TrimRight(t, " ")) + "\n"
	}
	return out
}
