package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/minios-linux/binloc/extract"
	"github.com/minios-linux/binloc/ledger"
	"github.com/minios-linux/binloc/patch"
	"github.com/minios-linux/binloc/pipeline"
	"github.com/minios-linux/binloc/pofile"
	"github.com/minios-linux/binloc/strategy"
	"github.com/minios-linux/binloc/validate"
)

// locateManifest returns the saved manifest for file, extracting and saving
// a new one when none exists.
func locateManifest(ws *workspace, file string) (*extract.Manifest, error) {
	m, err := patch.LocateManifest(ws.paths.OutputDir, file)
	switch {
	case err == nil:
		return m, nil
	case errors.Is(err, patch.ErrStaleManifest):
		return nil, fmt.Errorf("%w (restore %s or run 'binloc extract' on the current file)", err, patch.BackupPath(file))
	case !errors.Is(err, patch.ErrNoManifest):
		return nil, err
	}

	m, err = extract.ExtractFile(file)
	if err != nil {
		return nil, err
	}
	path, err := m.Save(ws.paths.OutputDir)
	if err != nil {
		return nil, err
	}
	logInfo("Extracted %d spans from %s → %s", len(m.Spans), file, relPath(ws.paths.Root, path))
	return m, nil
}

// loadTranslations reads the translations for m from a .po catalog or a
// translated list. With neither given, the list saved by the pipeline for
// lang is used.
func loadTranslations(ws *workspace, m *extract.Manifest, poPath, yamlPath, lang string) ([]string, error) {
	if poPath != "" && yamlPath != "" {
		return nil, fmt.Errorf("--po and --yaml are mutually exclusive")
	}
	if poPath != "" {
		prov, err := pofile.LoadProvider(poPath)
		if err != nil {
			return nil, err
		}
		tr, found := prov.Translations(m.Texts())
		logInfo("%s: %d of %d spans translated", poPath, found, len(m.Spans))
		return tr, nil
	}

	if yamlPath == "" {
		yamlPath = pipeline.TranslatedListPath(ws.paths.OutputDir, m.Source, lang)
		if !fileExists(yamlPath) {
			return nil, fmt.Errorf("no translations: pass --po or --yaml (looked for %s)", yamlPath)
		}
	}
	list, err := pipeline.LoadTranslatedList(yamlPath)
	if err != nil {
		return nil, err
	}
	tr, err := list.Translations(m)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", yamlPath, err)
	}
	return tr, nil
}

// ---------------------------------------------------------------------------
// extract
// ---------------------------------------------------------------------------

func newExtractCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "extract [FILE...]",
		Short: "Scan files and save their span manifests",
		Long: `Scan asset files for text and save one manifest per file under
<output>/extracted/. Without FILE arguments the game directory is scanned.

Examples:
  binloc extract
  binloc extract GameFiles/event/e101.pm1 --list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			files, err := ws.sources(args)
			if err != nil {
				return err
			}

			failed := 0
			for _, f := range files {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				m, err := extract.ExtractFile(f)
				if err != nil {
					logError("%v", err)
					failed++
					continue
				}
				path, err := m.Save(ws.paths.OutputDir)
				if err != nil {
					logError("%v", err)
					failed++
					continue
				}
				logSuccess("%s: %d spans → %s", relPath(ws.paths.Root, f), len(m.Spans), relPath(ws.paths.Root, path))
				if list {
					printSpans(m)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(files))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&list, "list", "l", false, "Print every span")
	return cmd
}

func printSpans(m *extract.Manifest) {
	for _, s := range m.Spans {
		line := fmt.Sprintf("  0x%08X  %-9s %s", s.Offset, s.Encoding, strconv.Quote(s.Text))
		if len(s.Repeats) > 0 {
			line += fmt.Sprintf(" (+%d)", len(s.Repeats))
		}
		fmt.Println(line)
	}
}

// ---------------------------------------------------------------------------
// patch
// ---------------------------------------------------------------------------

func newPatchCmd() *cobra.Command {
	var (
		poPath, yamlPath string
		strategyName     string
		lang             string
	)

	cmd := &cobra.Command{
		Use:   "patch FILE",
		Short: "Write translations into a file",
		Long: `Patch FILE in place with translations from a .po catalog or a
translated list. The file's manifest must match its current content; a
backup (FILE.backup) is taken on first patch.

Examples:
  binloc patch GameFiles/init.pac --po po/init.fr.po
  binloc patch GameFiles/init.pac --yaml TranslatedFiles/translated/init_fr.yaml
  binloc patch GameFiles/init.pac --po po/init.fr.po --strategy safe`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			if lang == "" {
				lang = ws.cfg.TargetLang
			}
			return runPatch(cmd, ws, args[0], poPath, yamlPath, strategyName, lang)
		},
	}

	cmd.Flags().StringVar(&poPath, "po", "", "Translated .po catalog")
	cmd.Flags().StringVar(&yamlPath, "yaml", "", "Translated list (default: the list saved by translate)")
	cmd.Flags().StringVarP(&strategyName, "strategy", "s", "", "Reinsertion strategy: direct, conservative, aggressive, safe, test-first")
	cmd.Flags().StringVar(&lang, "lang", "", "Target language of the translations")
	return cmd
}

func runPatch(cmd *cobra.Command, ws *workspace, file, poPath, yamlPath, strategyName, lang string) error {
	m, err := locateManifest(ws, file)
	if err != nil {
		return err
	}
	if len(m.Spans) == 0 {
		logInfo("%s: no text found, nothing to patch", file)
		return nil
	}
	tr, err := loadTranslations(ws, m, poPath, yamlPath, lang)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(ws.paths.Log, verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	mgr, err := newStrategyManager(ws, logger)
	if err != nil {
		return err
	}
	s := mgr.ChooseStrategy(extract.ExtensionTag(file), file, ws.cfg.TestMode)
	if strategyName != "" {
		if s, err = strategy.Parse(strategyName); err != nil {
			return err
		}
	}

	fr, err := mgr.ApplyStrategy(cmd.Context(), s, file, m, tr)
	if err != nil {
		return err
	}
	for _, w := range fr.Warnings {
		logWarning("%s", w)
	}
	logSuccess("%s: %d written, %d skipped, %d encoding fallbacks, size %+d (%s)",
		file, fr.Applied, fr.Skipped, fr.Fallbacks, fr.Delta, s)
	if fr.Backup != "" {
		logInfo("Backup: %s", fr.Backup)
	}

	led, err := ledger.Load(ws.paths.OutputDir)
	if err != nil {
		return err
	}
	if err := led.Record(file, ledger.Record{Lang: lang, Strategy: string(s), Spans: len(m.Spans), Applied: fr.Applied}); err != nil {
		return err
	}
	if err := led.Save(); err != nil {
		logger.Warn("saving ledger", zap.Error(err))
	}
	return nil
}

// ---------------------------------------------------------------------------
// export-po
// ---------------------------------------------------------------------------

func newExportPOCmd() *cobra.Command {
	var (
		output    string
		lang      string
		empty     bool
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "export-po FILE",
		Short: "Export a file's spans as a gettext catalog",
		Long: `Write FILE's spans as a .po catalog for human translators. References
carry the byte offset of every occurrence. Translations saved by a previous
translate run are prefilled unless --empty is given. When the catalog
already exists, its translations are kept unless --overwrite is given.

The catalog can be edited with any PO editor and applied with
'binloc patch FILE --po CATALOG'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			if lang == "" {
				lang = ws.cfg.TargetLang
			}
			file := args[0]

			m, err := locateManifest(ws, file)
			if err != nil {
				return err
			}

			var tr []string
			listPath := pipeline.TranslatedListPath(ws.paths.OutputDir, file, lang)
			if !empty && fileExists(listPath) {
				list, err := pipeline.LoadTranslatedList(listPath)
				if err == nil {
					tr, err = list.Translations(m)
				}
				if err != nil {
					logWarning("Ignoring %s: %v", listPath, err)
					tr = nil
				}
			}

			if output == "" {
				output = defaultPOPath(ws.paths.OutputDir, file, lang)
			}
			catalog, err := pofile.Export(m, lang, tr)
			if err != nil {
				return err
			}
			if !overwrite {
				kept, err := pofile.MergeFile(catalog, output)
				if err != nil {
					return err
				}
				if kept > 0 {
					logInfo("Kept %d translations from the existing %s", kept, output)
				}
			}
			if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
				return fmt.Errorf("creating %s: %w", filepath.Dir(output), err)
			}
			if err := catalog.WriteFile(output); err != nil {
				return err
			}
			total, translated := catalog.Stats()
			logSuccess("%s: %d entries (%d translated) → %s", file, total, translated, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output .po path (default: <output>/po/<stem>.<lang>.po)")
	cmd.Flags().StringVar(&lang, "lang", "", "Catalog language")
	cmd.Flags().BoolVar(&empty, "empty", false, "Do not prefill saved translations")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing catalog instead of keeping its translations")
	return cmd
}

// defaultPOPath returns the default catalog location for source.
func defaultPOPath(outputDir, source, lang string) string {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, "po", stem+"."+lang+".po")
}

// ---------------------------------------------------------------------------
// test
// ---------------------------------------------------------------------------

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test FILE",
		Short: "Compare reinsertion strategies on a scratch copy",
		Long: `Patch scratch copies of FILE with shortened texts using each candidate
strategy, re-extract them and score the result. FILE is not modified.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			logger, closeLog, err := newLogger("", verbose)
			if err != nil {
				return err
			}
			defer closeLog()

			mgr, err := newStrategyManager(ws, logger)
			if err != nil {
				return err
			}
			outcome, testErr := mgr.TestReinsertionMethods(cmd.Context(), args[0])

			fmt.Fprintf(os.Stderr, "\n%s %s\n", cyan("Strategy test:"), args[0])
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 50))
			for _, s := range strategy.Candidates {
				score, ok := outcome.Scores[s]
				if !ok {
					continue
				}
				mark := "  "
				if s == outcome.Best && outcome.OK {
					mark = green("* ")
				}
				fmt.Fprintf(os.Stderr, "%s%-14s %s\n", mark, s, progressBar(score, 20))
			}
			fmt.Fprintln(os.Stderr)

			if testErr != nil {
				return testErr
			}
			logSuccess("Best strategy: %s (default for .%s: %s)",
				outcome.Best, extract.ExtensionTag(args[0]), mgr.Default(extract.ExtensionTag(args[0])))
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// validate
// ---------------------------------------------------------------------------

func newValidateCmd() *cobra.Command {
	var (
		yamlPath  string
		lang      string
		threshold float64
		showDiff  bool
	)

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check that a patched file still yields its translations",
		Long: `Re-extract FILE and compare the recovered texts with the translations
that were written into it (the translated list saved by translate, or
--yaml). Fails when fewer than --threshold of them are recovered.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			if lang == "" {
				lang = ws.cfg.TargetLang
			}
			file := args[0]
			if yamlPath == "" {
				yamlPath = pipeline.TranslatedListPath(ws.paths.OutputDir, file, lang)
			}
			list, err := pipeline.LoadTranslatedList(yamlPath)
			if err != nil {
				return err
			}
			expected := make([]string, len(list.Entries))
			for i, e := range list.Entries {
				expected[i] = e.Translation
			}

			report, err := validate.File(file, expected)
			if err != nil {
				return err
			}
			passed := report.Passed(threshold)
			if passed {
				logSuccess("%s: %s", file, report)
			} else {
				logWarning("%s: %s", file, report)
			}
			if report.Diff != "" && (showDiff || !passed) {
				fmt.Print(report.Diff)
			}
			if !passed {
				return fmt.Errorf("%s: %.0f%% recovered, below %.0f%%", file, report.Ratio*100, threshold*100)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&yamlPath, "yaml", "", "Translated list (default: the list saved by translate)")
	cmd.Flags().StringVar(&lang, "lang", "", "Target language of the list")
	cmd.Flags().Float64Var(&threshold, "threshold", strategy.SafeThreshold, "Minimum recovered ratio")
	cmd.Flags().BoolVar(&showDiff, "diff", false, "Always print the diff")
	return cmd
}
