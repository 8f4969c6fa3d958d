package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/minios-linux/binloc/cache"
	"github.com/minios-linux/binloc/config"
	"github.com/minios-linux/binloc/ledger"
	"github.com/minios-linux/binloc/patch"
	"github.com/minios-linux/binloc/pipeline"
	"github.com/minios-linux/binloc/settings"
	"github.com/minios-linux/binloc/skip"
	"github.com/minios-linux/binloc/strategy"
	"github.com/minios-linux/binloc/translate"
)

// ---------------------------------------------------------------------------
// translate (full pipeline)
// ---------------------------------------------------------------------------

type translateArgs struct {
	provider, apiKey, model, baseURL string
	proxy, prompt                    string
	lang, sourceLang                 string
	workers, fileWorkers             int
	maxRetries                       int
	timeout, requestDelay            time.Duration
	testMode, force, dryRun, noCache bool
}

func newTranslateCmd() *cobra.Command {
	var a translateArgs

	cmd := &cobra.Command{
		Use:   "translate [FILE...]",
		Short: "Extract, translate and patch asset files",
		Long: `Run the full pipeline: extract spans, translate them, patch the file
with the format's reinsertion strategy and validate the result.

Without FILE arguments every asset file under the game directory is
processed. Files already processed for the target language are skipped
unless they changed or --force is given. Press Ctrl+C to stop; files in
progress are abandoned and the ledger keeps what completed.

Examples:
  # Translate the whole game directory to French with Gemini
  binloc translate --provider google --lang fr

  # Local model, two files at a time
  binloc translate --provider ollama --model qwen2.5 --file-workers 2

  # Compare strategies before patching each file
  binloc translate --test-mode

  # Check extraction and patching without calling a provider
  binloc translate --dry-run`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			applyTranslateFlags(cmd, ws.cfg, a)
			if ws.cfg.Provider.BaseURL == "" {
				ws.cfg.Provider.BaseURL = settings.GetBaseURL(ws.cfg.Provider.ID)
			}
			if err := ws.cfg.Validate(); err != nil {
				return err
			}
			return runTranslate(cmd, ws, a, args)
		},
	}

	// Provider selection
	cmd.Flags().StringVar(&a.provider, "provider", "", "AI provider: "+strings.Join(translate.ProviderIDs(), ", "))
	cmd.Flags().StringVar(&a.model, "model", "", "Model name (default: provider default)")
	cmd.Flags().StringVar(&a.apiKey, "api-key", "", "API key (or "+settings.EnvAPIKey+" env var)")
	cmd.Flags().StringVar(&a.baseURL, "base-url", "", "Custom API base URL")
	cmd.Flags().StringVar(&a.prompt, "prompt", "", "Custom system prompt ({{sourceLang}}, {{targetLang}} placeholders)")

	// Languages
	cmd.Flags().StringVar(&a.lang, "lang", "", "Target language (default: fr)")
	cmd.Flags().StringVar(&a.sourceLang, "source-lang", "", "Source language (default: en)")

	// Parallelization
	cmd.Flags().IntVar(&a.workers, "workers", translate.DefaultMaxWorkers, "Concurrent provider requests per file")
	cmd.Flags().IntVar(&a.fileWorkers, "file-workers", config.DefaultFileWorkers, "Files processed concurrently")
	cmd.Flags().DurationVar(&a.requestDelay, "request-delay", 0, "Delay between launching requests")

	// Behavior
	cmd.Flags().BoolVar(&a.testMode, "test-mode", false, "Test reinsertion strategies on a copy before patching")
	cmd.Flags().BoolVar(&a.force, "force", false, "Reprocess files already in the ledger")
	cmd.Flags().BoolVar(&a.dryRun, "dry-run", false, "Use the identity translator (no provider calls)")
	cmd.Flags().BoolVar(&a.noCache, "no-cache", false, "Do not read or write the translation cache")

	// Network
	cmd.Flags().DurationVar(&a.timeout, "timeout", 0, "Request timeout (0 = provider default)")
	cmd.Flags().StringVar(&a.proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	cmd.Flags().IntVar(&a.maxRetries, "max-retries", translate.DefaultMaxRetries, "Attempts per string before passing it through")

	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var out []string
		defaults := translate.DefaultProviders()
		for _, id := range translate.ProviderIDs() {
			out = append(out, id+"\t"+defaults[id].Name)
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// applyTranslateFlags overrides configuration values with the flags the
// user actually set.
func applyTranslateFlags(cmd *cobra.Command, cfg *config.File, a translateArgs) {
	changed := cmd.Flags().Changed
	if changed("provider") {
		cfg.Provider.ID = a.provider
	}
	if changed("model") {
		cfg.Provider.Model = a.model
	}
	if changed("base-url") {
		cfg.Provider.BaseURL = a.baseURL
	}
	if changed("proxy") {
		cfg.Provider.Proxy = a.proxy
	}
	if changed("timeout") {
		cfg.Provider.Timeout = a.timeout
	}
	if changed("prompt") {
		cfg.Provider.Prompt = a.prompt
	}
	if changed("lang") {
		cfg.TargetLang = a.lang
	}
	if changed("source-lang") {
		cfg.SourceLang = a.sourceLang
	}
	if changed("workers") {
		cfg.Workers.Translate = a.workers
	}
	if changed("file-workers") {
		cfg.Workers.Files = a.fileWorkers
	}
	if changed("max-retries") {
		cfg.MaxRetries = a.maxRetries
	}
	if changed("request-delay") {
		cfg.RequestDelay = a.requestDelay
	}
	if changed("test-mode") {
		cfg.TestMode = a.testMode
	}
}

// buildProvider resolves the configured provider and its credentials.
func buildProvider(cfg *config.File, apiKeyFlag string, logger *zap.Logger) (translate.Provider, error) {
	id := cfg.Provider.ID
	baseURL := cfg.Provider.BaseURL
	if baseURL == "" {
		baseURL = settings.GetBaseURL(id)
	}
	prov := translate.ResolveProvider(id, translate.ProviderConfig{
		BaseURL:      baseURL,
		APIKey:       settings.ResolveAPIKey(apiKeyFlag, id),
		Model:        cfg.Provider.Model,
		Proxy:        cfg.Provider.Proxy,
		Timeout:      cfg.Provider.Timeout,
		SystemPrompt: cfg.Provider.Prompt,
	})

	if prov.BaseURL == "" {
		return nil, fmt.Errorf("provider %s needs a base URL: use --base-url or 'binloc auth set %s --base-url URL'", id, id)
	}
	if prov.APIKey == "" && id != translate.ProviderOllama {
		hint := "--api-key, " + settings.EnvAPIKey
		if env := settings.EnvVarForProvider(id); env != "" {
			hint += ", " + env
		}
		return nil, fmt.Errorf("no API key for %s: use %s or 'binloc auth set %s'", id, hint, id)
	}
	return translate.NewHTTPProvider(prov, logger)
}

// serviceOptions maps the configuration onto the translation service. The
// per-call deadline is the resolved provider timeout, so the built-in
// provider defaults apply when none is configured.
func serviceOptions(cfg *config.File, prov translate.Provider, logger *zap.Logger) translate.Options {
	timeout := cfg.Provider.Timeout
	if hp, ok := prov.(interface{ Config() translate.ProviderConfig }); ok {
		timeout = hp.Config().Timeout
	}
	return translate.Options{
		SourceLang:     cfg.SourceLang,
		TargetLang:     cfg.TargetLang,
		MaxRetries:     cfg.MaxRetries,
		BackoffCap:     cfg.BackoffCap,
		RequestTimeout: timeout,
		RequestDelay:   cfg.RequestDelay,
		Logger:         logger,
	}
}

// openCache opens the translation cache for the configured language pair.
// The returned interface is nil when caching is disabled.
func openCache(ws *workspace) (translate.Cache, func(), error) {
	if err := os.MkdirAll(filepath.Dir(ws.paths.Cache), 0755); err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", filepath.Dir(ws.paths.Cache), err)
	}
	c, err := cache.Open(ws.paths.Cache, cache.Options{
		TTL:       ws.cfg.Cache.TTL,
		Namespace: cache.Namespace(ws.cfg.SourceLang, ws.cfg.TargetLang),
	})
	if err != nil {
		return nil, nil, err
	}
	if removed, err := c.CleanupExpired(); err == nil && removed > 0 {
		logInfo("Cache: removed %d expired entries", removed)
	}
	return c, func() { c.Close() }, nil
}

// newStrategyManager builds the manager used by translate, patch and test.
func newStrategyManager(ws *workspace, logger *zap.Logger) (*strategy.Manager, error) {
	overrides, err := ws.cfg.StrategyOverrides()
	if err != nil {
		return nil, err
	}
	return strategy.NewManager(strategy.Options{
		Overrides:  overrides,
		StagingDir: filepath.Join(ws.paths.OutputDir, patch.StagingDir),
		Logger:     logger,
	}), nil
}

func runTranslate(cmd *cobra.Command, ws *workspace, a translateArgs, args []string) error {
	ctx := cmd.Context()
	cfg := ws.cfg

	files, err := ws.sources(args)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(ws.paths.Log, verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	var prov translate.Provider = translate.Identity
	if a.dryRun {
		logInfo("Dry run: texts are passed through unchanged")
	} else {
		prov, err = buildProvider(cfg, a.apiKey, logger)
		if err != nil {
			return err
		}
	}

	var tc translate.Cache
	if !a.noCache && !a.dryRun {
		c, closeCache, err := openCache(ws)
		if err != nil {
			return err
		}
		defer closeCache()
		tc = c
	}

	mgr, err := newStrategyManager(ws, logger)
	if err != nil {
		return err
	}
	led, err := ledger.Load(ws.paths.OutputDir)
	if err != nil {
		return err
	}

	svc := translate.NewService(prov, tc, serviceOptions(cfg, prov, logger))
	pl := pipeline.New(svc, mgr, led, pipeline.Options{
		OutputDir:  ws.paths.OutputDir,
		SourceLang: cfg.SourceLang,
		TargetLang: cfg.TargetLang,
		Policy: skip.Policy{
			Whitelist:     cfg.Whitelist,
			SentenceCheck: cfg.Policy.SentenceCheck,
			NeighborCheck: cfg.Policy.NeighborCheck,
		},
		TranslateWorkers: cfg.Workers.Translate,
		FileWorkers:      cfg.Workers.Files,
		TestMode:         cfg.TestMode,
		Force:            a.force,
		Logger:           logger,
	})

	logInfo("Provider: %s, %s → %s, %d file(s), %d file worker(s)",
		cfg.Provider.ID, cfg.SourceLang, cfg.TargetLang, len(files), cfg.Workers.Files)

	start := time.Now()
	tally := pl.ProcessAll(ctx, files)
	printTally(ws.paths.Root, tally)

	cnt := svc.Counters()
	logInfo("Strings: %d translated, %d passed through, %d cache hits, %d provider calls (%d failed)",
		cnt.Translated, cnt.Passthrough, cnt.CacheHits, cnt.Calls, cnt.Failures)
	logInfo("Ledger: %s", led.Summary())
	logInfo("Done in %s, log: %s", time.Since(start).Round(time.Second), ws.paths.Log)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	if tally.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", tally.Failed, len(files))
	}
	return nil
}

func printTally(root string, t pipeline.Tally) {
	for _, r := range t.Results {
		name := relPath(root, r.Path)
		switch r.Status {
		case pipeline.StatusPatched:
			msg := fmt.Sprintf("%s: %d/%d spans translated, %d written (%s)",
				name, r.Translated, r.Spans, r.Patch.Applied, r.Strategy)
			if r.Report.Expected > 0 {
				msg += ", " + r.Report.String()
			}
			logSuccess("%s", msg)
			for _, w := range r.Patch.Warnings {
				logWarning("  %s", w)
			}
		case pipeline.StatusSkipped:
			logInfo("%s: already processed", name)
		case pipeline.StatusNoText:
			logInfo("%s: no text found", name)
		default:
			if errors.Is(r.Err, strategy.ErrValidationFailed) {
				logWarning("%s: %v (original restored)", name, r.Err)
				continue
			}
			logError("%s: %v", name, r.Err)
		}
	}
	fmt.Fprintf(os.Stderr, "\n  %s %d patched, %d skipped, %d without text, %d failed\n\n",
		cyan("Summary:"), t.Patched, t.Skipped, t.NoText, t.Failed)
}
