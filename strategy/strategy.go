// Package strategy picks and applies a patch strategy per file.
//
// A Manager keeps a default strategy per format tag and remembers the
// outcome of empirical test passes. A test pass patches scratch copies of a
// file with shortened synthetic translations, re-extracts each copy and
// scores how well every candidate strategy preserved the text.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minios-linux/binloc/extract"
	"github.com/minios-linux/binloc/patch"
	"github.com/minios-linux/binloc/validate"
)

// Strategy names a way of writing translations into a file.
type Strategy string

const (
	Direct       Strategy = "direct"
	Conservative Strategy = "conservative"
	Aggressive   Strategy = "aggressive"
	Safe         Strategy = "safe"
	TestFirst    Strategy = "test-first"
)

var (
	// ErrNoViableStrategy is returned when no candidate passed a test pass.
	ErrNoViableStrategy = errors.New("no strategy passed the test")
	// ErrValidationFailed is returned when a safe patch lost too many spans
	// and the original was restored.
	ErrValidationFailed = errors.New("post-patch validation failed")
)

const (
	// MinTestScore is the lowest best score a test pass accepts.
	MinTestScore = 0.5
	// SafeThreshold is the fraction of spans a safe patch must keep.
	SafeThreshold = 0.8
)

// Candidates are the strategies a test pass compares, in tie-break order.
var Candidates = []Strategy{Conservative, Safe, Aggressive}

// DefaultStrategies maps format tags to their default strategy. Unknown
// formats use Safe.
var DefaultStrategies = map[string]Strategy{
	"pm1": Safe,
	"bf":  Conservative,
	"tbl": Conservative,
	"pac": Aggressive,
	"pak": Aggressive,
}

// Parse validates a strategy name.
func Parse(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case Direct, Conservative, Aggressive, Safe, TestFirst:
		return st, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// Outcome is the memoized result of a test pass.
type Outcome struct {
	OK     bool
	Best   Strategy
	Scores map[Strategy]float64
}

// Manager chooses and applies strategies. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	defaults map[string]Strategy
	memo     map[string]Outcome

	logger     *zap.Logger
	now        func() time.Time
	stagingDir string
}

// Options configures a Manager.
type Options struct {
	// Overrides replace entries of DefaultStrategies.
	Overrides map[string]Strategy
	// StagingDir receives patched copies before they replace originals.
	StagingDir string
	Logger     *zap.Logger
	// Now is the clock for backup names. Defaults to time.Now.
	Now func() time.Time
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	defaults := make(map[string]Strategy, len(DefaultStrategies)+len(opts.Overrides))
	for k, v := range DefaultStrategies {
		defaults[k] = v
	}
	for k, v := range opts.Overrides {
		defaults[strings.ToLower(strings.TrimPrefix(k, "."))] = v
	}
	m := &Manager{
		defaults:   defaults,
		memo:       make(map[string]Outcome),
		logger:     opts.Logger,
		now:        opts.Now,
		stagingDir: opts.StagingDir,
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Default returns the default strategy for a format tag.
func (m *Manager) Default(format string) Strategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.defaults[strings.ToLower(format)]; ok {
		return s
	}
	return Safe
}

// ChooseStrategy picks the strategy for file. A remembered test outcome
// wins over test mode and the format default.
func (m *Manager) ChooseStrategy(format, file string, testMode bool) Strategy {
	if o, ok := m.Outcome(file); ok {
		if o.OK {
			return o.Best
		}
		return Safe
	}
	if testMode {
		return TestFirst
	}
	return m.Default(format)
}

// Outcome returns the remembered test outcome for file.
func (m *Manager) Outcome(file string) (Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.memo[memoKey(file)]
	return o, ok
}

func (m *Manager) remember(file string, o Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memo[memoKey(file)] = o
}

func memoKey(file string) string {
	if abs, err := filepath.Abs(file); err == nil {
		return abs
	}
	return filepath.Clean(file)
}

// ---------------------------------------------------------------------------
// Test pass
// ---------------------------------------------------------------------------

// Shorten builds the synthetic translation used by test passes. Short
// strings stay, medium strings are cut to two thirds, long ones halved.
func Shorten(text string) string {
	runes := []rune(text)
	n := len(runes)
	switch {
	case n <= 10:
		return text
	case n <= 30:
		return string(runes[:n*2/3]) + "..."
	default:
		return string(runes[:n/2]) + " [T]"
	}
}

// Score rates one candidate run.
func Score(expected, extracted, changed int) float64 {
	if expected == 0 {
		return 0
	}
	ratio := float64(changed) / float64(expected)
	if ratio > 1 {
		ratio = 1
	}
	return 0.7*float64(extracted)/float64(expected) + 0.3*ratio
}

// TestReinsertionMethods runs every candidate on scratch copies of file and
// remembers the winner. A file without spans or a best score below
// MinTestScore fails with ErrNoViableStrategy, which is remembered too.
func (m *Manager) TestReinsertionMethods(ctx context.Context, file string) (Outcome, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %s: %v", extract.ErrUnreadable, file, err)
	}

	scratch, err := os.MkdirTemp("", "binloc-test-*")
	if err != nil {
		return Outcome{}, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	manifest := extract.NewManifest(file, data)
	expected := len(manifest.Spans)
	outcome := Outcome{Scores: make(map[Strategy]float64)}
	if expected == 0 {
		m.remember(file, outcome)
		return outcome, fmt.Errorf("%w: %s has no text", ErrNoViableStrategy, file)
	}

	synthetic := make([]string, expected)
	original := make(map[string]bool, expected)
	for i, span := range manifest.Spans {
		synthetic[i] = Shorten(span.Text)
		original[span.Text] = true
	}

	best := -1.0
	for _, cand := range Candidates {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		score, err := m.trial(ctx, scratch, file, data, manifest, synthetic, original, cand)
		if err != nil {
			m.logger.Debug("test candidate failed",
				zap.String("file", file), zap.String("strategy", string(cand)), zap.Error(err))
		}
		outcome.Scores[cand] = score
		if score > best {
			best = score
			outcome.Best = cand
		}
	}

	outcome.OK = best >= MinTestScore
	m.remember(file, outcome)
	m.logger.Info("test pass",
		zap.String("file", file),
		zap.String("best", string(outcome.Best)),
		zap.Float64("score", best),
		zap.Bool("ok", outcome.OK),
	)
	if !outcome.OK {
		return outcome, fmt.Errorf("%w: best score %.2f for %s", ErrNoViableStrategy, best, file)
	}
	return outcome, nil
}

// trial patches a fresh copy with one candidate and scores the re-extracted
// result.
func (m *Manager) trial(ctx context.Context, scratch, file string, data []byte, manifest *extract.Manifest, synthetic []string, original map[string]bool, cand Strategy) (float64, error) {
	dir := filepath.Join(scratch, string(cand))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, err
	}
	copyPath := filepath.Join(dir, filepath.Base(file))
	if err := os.WriteFile(copyPath, data, 0644); err != nil {
		return 0, err
	}

	opts := patch.Options{StagingDir: filepath.Join(dir, patch.StagingDir), Logger: m.logger}
	if _, err := m.apply(ctx, cand, copyPath, manifest, synthetic, opts); err != nil {
		return 0, err
	}

	after, err := extract.ExtractFile(copyPath)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, t := range after.Texts() {
		if !original[t] {
			changed++
		}
	}
	return Score(len(manifest.Spans), len(after.Spans), changed), nil
}

// ---------------------------------------------------------------------------
// Apply
// ---------------------------------------------------------------------------

// ApplyStrategy patches file with translations using s.
func (m *Manager) ApplyStrategy(ctx context.Context, s Strategy, file string, manifest *extract.Manifest, translations []string) (patch.FileResult, error) {
	opts := patch.Options{StagingDir: m.stagingDir, Logger: m.logger}

	if s == TestFirst {
		s = Safe
		if o, err := m.TestReinsertionMethods(ctx, file); err == nil {
			s = o.Best
		} else if !errors.Is(err, ErrNoViableStrategy) {
			return patch.FileResult{}, err
		} else {
			m.logger.Warn("no viable strategy, using safe", zap.String("file", file), zap.Error(err))
		}
	}
	m.logger.Debug("applying strategy", zap.String("file", file), zap.String("strategy", string(s)))
	return m.apply(ctx, s, file, manifest, translations, opts)
}

func (m *Manager) apply(ctx context.Context, s Strategy, file string, manifest *extract.Manifest, translations []string, opts patch.Options) (patch.FileResult, error) {
	if err := ctx.Err(); err != nil {
		return patch.FileResult{}, err
	}
	switch s {
	case Direct:
		return patch.File(file, manifest, translations, opts)
	case Conservative:
		return applyConservative(file, manifest, translations, opts)
	case Aggressive:
		return applyAggressive(file, manifest, translations, opts)
	case Safe:
		return m.applySafe(file, manifest, translations, opts)
	}
	return patch.FileResult{}, fmt.Errorf("strategy %q cannot be applied directly", s)
}

// applyConservative and applyAggressive are separate entry points for
// format-specific tuning. Both currently patch without restrictions.
func applyConservative(file string, manifest *extract.Manifest, translations []string, opts patch.Options) (patch.FileResult, error) {
	return patch.File(file, manifest, translations, opts)
}

func applyAggressive(file string, manifest *extract.Manifest, translations []string, opts patch.Options) (patch.FileResult, error) {
	return patch.File(file, manifest, translations, opts)
}

// applySafe patches behind a timestamped backup and rolls back when fewer
// than SafeThreshold of the spans can be re-extracted.
func (m *Manager) applySafe(file string, manifest *extract.Manifest, translations []string, opts patch.Options) (patch.FileResult, error) {
	backup := fmt.Sprintf("%s.safe-%s", file, m.now().UTC().Format("20060102-150405.000000000"))
	if err := patch.CopyFile(file, backup); err != nil {
		return patch.FileResult{}, fmt.Errorf("safe backup of %s: %w", file, err)
	}
	defer os.Remove(backup)

	fr, err := patch.File(file, manifest, translations, opts)
	if err != nil {
		return fr, err
	}

	report, err := validate.File(file, translations)
	if err == nil && report.Passed(SafeThreshold) {
		if n := report.Mismatched(); n > 0 {
			m.logger.Warn("validation passed with altered texts",
				zap.String("file", file),
				zap.Int("mismatched", n),
				zap.String("report", report.String()))
		}
		return fr, nil
	}
	if rerr := patch.CopyFile(backup, file); rerr != nil {
		return fr, fmt.Errorf("restoring %s after failed validation: %w", file, rerr)
	}
	if err != nil {
		return fr, fmt.Errorf("%w: %s: %v", ErrValidationFailed, file, err)
	}
	m.logger.Warn("validation failed, original restored",
		zap.String("file", file), zap.String("report", report.String()))
	return fr, fmt.Errorf("%w: %s: %s", ErrValidationFailed, file, report)
}

// Defaults returns the format to strategy table in tag order.
func (m *Manager) Defaults() [][2]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][2]string, 0, len(m.defaults))
	for k, v := range m.defaults {
		out = append(out, [2]string{k, string(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
