// Package pipeline runs the per-file extract, translate, patch and validate
// sequence over a set of game files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/minios-linux/binloc/extract"
	"github.com/minios-linux/binloc/formats"
	"github.com/minios-linux/binloc/ledger"
	"github.com/minios-linux/binloc/patch"
	"github.com/minios-linux/binloc/skip"
	"github.com/minios-linux/binloc/strategy"
	"github.com/minios-linux/binloc/tokens"
	"github.com/minios-linux/binloc/translate"
	"github.com/minios-linux/binloc/validate"
)

// Status is the outcome of one file.
type Status string

const (
	StatusPatched Status = "patched"
	StatusSkipped Status = "skipped"
	StatusNoText  Status = "no-text"
	StatusFailed  Status = "failed"
)

// Options configures a Pipeline.
type Options struct {
	OutputDir  string
	SourceLang string
	TargetLang string
	Policy     skip.Policy
	// TranslateWorkers bounds concurrent provider calls within a file.
	TranslateWorkers int
	// FileWorkers bounds files processed at once.
	FileWorkers int
	// TestMode runs a strategy test pass before patching.
	TestMode bool
	// Force reprocesses files the ledger marks as done.
	Force  bool
	Logger *zap.Logger
}

// FileResult reports what happened to one file.
type FileResult struct {
	Path   string
	Status Status
	Info   formats.Info
	// Spans is the number of extracted spans; Translated how many of them
	// changed.
	Spans      int
	Translated int
	Strategy   strategy.Strategy
	Patch      patch.Result
	Report     validate.Report
	Err        error
}

// Tally summarizes a run.
type Tally struct {
	Patched int
	Skipped int
	NoText  int
	Failed  int
	Results []FileResult
}

// Pipeline is safe for concurrent use by its own file pool.
type Pipeline struct {
	svc        *translate.Service
	strategies *strategy.Manager
	ledger     *ledger.Ledger
	opts       Options
	logger     *zap.Logger

	// ledgerMu serializes record-and-save so the file on disk always holds
	// a complete ledger.
	ledgerMu sync.Mutex
}

// New builds a Pipeline.
func New(svc *translate.Service, strategies *strategy.Manager, led *ledger.Ledger, opts Options) *Pipeline {
	if opts.FileWorkers <= 0 {
		opts.FileWorkers = 2
	}
	if opts.TranslateWorkers <= 0 {
		opts.TranslateWorkers = translate.DefaultMaxWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{svc: svc, strategies: strategies, ledger: led, opts: opts, logger: logger}
}

// ProcessAll processes every path on the file pool. Results keep the order
// of paths; files not started before cancellation are reported failed with
// the context error.
func (p *Pipeline) ProcessAll(ctx context.Context, paths []string) Tally {
	results := make([]FileResult, len(paths))
	indices := make([]int, len(paths))
	for i := range indices {
		indices[i] = i
		results[i] = FileResult{Path: paths[i], Status: StatusFailed, Err: context.Canceled}
	}

	translate.RunParallel(ctx, indices, p.opts.FileWorkers, func(ctx context.Context, i int) error {
		results[i] = p.ProcessFile(ctx, paths[i])
		return nil
	})
	if err := ctx.Err(); err != nil {
		for i := range results {
			if errors.Is(results[i].Err, context.Canceled) {
				results[i].Err = err
			}
		}
	}

	t := Tally{Results: results}
	for _, r := range results {
		switch r.Status {
		case StatusPatched:
			t.Patched++
		case StatusSkipped:
			t.Skipped++
		case StatusNoText:
			t.NoText++
		default:
			t.Failed++
		}
	}
	return t
}

// ProcessFile runs the full sequence for one file. Errors abort this file
// only and are returned in the result.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (res FileResult) {
	res = FileResult{Path: path}
	log := p.logger.With(zap.String("file", path))
	fail := func(err error) FileResult {
		res.Status = StatusFailed
		res.Err = err
		log.Error("file failed", zap.Error(err))
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	if !p.opts.Force && p.ledger != nil {
		modified, err := p.ledger.IsModified(path, p.opts.TargetLang)
		if err != nil {
			return fail(fmt.Errorf("%w: %s: %v", extract.ErrUnreadable, path, err))
		}
		if !modified {
			res.Status = StatusSkipped
			log.Debug("already processed")
			return res
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(fmt.Errorf("%w: %s: %v", extract.ErrUnreadable, path, err))
	}
	m := extract.NewManifest(path, data)
	if _, err := m.Save(p.opts.OutputDir); err != nil {
		return fail(err)
	}
	res.Spans = len(m.Spans)
	res.Info = formats.Detect(path, data, p.opts.TargetLang)
	log.Info("extracted",
		zap.Int("spans", len(m.Spans)),
		zap.String("sha256", m.SHA256[:12]),
		zap.String("status", string(res.Info.Status)),
		zap.Float64("text_score", res.Info.TextScore),
	)

	if len(m.Spans) == 0 {
		res.Status = StatusNoText
		if err := p.record(path, ledger.Record{Lang: p.opts.TargetLang, NoText: true}); err != nil {
			return fail(err)
		}
		return res
	}

	translations := p.TranslateTexts(ctx, m.Texts())
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	for i, t := range translations {
		if t != m.Spans[i].Text {
			res.Translated++
		}
	}

	list, err := NewTranslatedList(m, p.opts.TargetLang, translations)
	if err != nil {
		return fail(err)
	}
	if err := list.Save(TranslatedListPath(p.opts.OutputDir, path, p.opts.TargetLang)); err != nil {
		return fail(err)
	}

	res.Strategy = p.strategies.ChooseStrategy(res.Info.Tag, path, p.opts.TestMode)
	fr, err := p.strategies.ApplyStrategy(ctx, res.Strategy, path, m, translations)
	res.Patch = fr.Result
	if err != nil {
		if errors.Is(err, strategy.ErrValidationFailed) {
			log.Warn("patch rolled back", zap.Error(err))
		}
		return fail(err)
	}

	if report, err := validate.File(path, translations); err == nil {
		res.Report = report
		log.Info("validated", zap.String("report", report.String()))
		if report.Diff != "" {
			log.Debug("validation diff", zap.String("diff", report.Diff))
		}
	}

	if err := p.record(path, ledger.Record{
		Lang:     p.opts.TargetLang,
		Strategy: string(res.Strategy),
		Spans:    res.Spans,
		Applied:  fr.Applied,
	}); err != nil {
		return fail(err)
	}
	res.Status = StatusPatched
	return res
}

func (p *Pipeline) record(path string, rec ledger.Record) error {
	if p.ledger == nil {
		return nil
	}
	p.ledgerMu.Lock()
	defer p.ledgerMu.Unlock()
	if err := p.ledger.Record(path, rec); err != nil {
		return err
	}
	return p.ledger.Save()
}

// TranslateTexts translates span texts. Skipped spans pass through; in the
// others only prose between tokens is sent, without its surrounding
// whitespace, and identical prose is translated once.
func (p *Pipeline) TranslateTexts(ctx context.Context, texts []string) []string {
	skipped := p.opts.Policy.Filter(texts)

	segments := make([][]tokens.Segment, len(texts))
	index := make(map[string]int)
	var cores []string
	for i, text := range texts {
		if skipped[i] {
			continue
		}
		segments[i] = tokens.Segments(text)
		for _, seg := range segments[i] {
			if seg.Token {
				continue
			}
			_, core, _ := tokens.SplitSpace(seg.Text)
			if !hasLetter(core) {
				continue
			}
			if _, ok := index[core]; !ok {
				index[core] = len(cores)
				cores = append(cores, core)
			}
		}
	}

	translated := p.svc.TranslateBatch(ctx, cores, p.opts.TranslateWorkers)

	out := make([]string, len(texts))
	for i, text := range texts {
		if skipped[i] {
			out[i] = text
			continue
		}
		var b strings.Builder
		for _, seg := range segments[i] {
			if seg.Token {
				b.WriteString(seg.Text)
				continue
			}
			prefix, core, suffix := tokens.SplitSpace(seg.Text)
			if j, ok := index[core]; ok {
				core = strings.TrimSpace(translated[j])
			}
			b.WriteString(prefix)
			b.WriteString(core)
			b.WriteString(suffix)
		}
		out[i] = b.String()
	}
	return out
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
