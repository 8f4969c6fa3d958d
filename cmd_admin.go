package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/minios-linux/binloc/cache"
	"github.com/minios-linux/binloc/formats"
	"github.com/minios-linux/binloc/ledger"
	"github.com/minios-linux/binloc/patch"
	"github.com/minios-linux/binloc/settings"
	"github.com/minios-linux/binloc/translate"
)

// ---------------------------------------------------------------------------
// status (read-only: project info + per-file state)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show project layout and per-file state",
		Long: `Show the configuration in effect, the asset files found under the game
directory and, for each, its detected format, text coverage, estimated
translation state and whether the ledger has it. Does not modify any files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			return runStatus(ws)
		},
	}
}

func runStatus(ws *workspace) error {
	cfg := ws.cfg

	fmt.Fprintf(os.Stderr, "\n%s\n", cyan("Project"))
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	source := "auto-detected"
	if ws.configured {
		source = ".binloc.yaml"
	}
	fmt.Fprintf(os.Stderr, "  %-12s %s\n", "Root:", ws.paths.Root)
	fmt.Fprintf(os.Stderr, "  %-12s %s\n", "Config:", source)
	fmt.Fprintf(os.Stderr, "  %-12s %s\n", "Game dir:", ws.paths.GameDir)
	fmt.Fprintf(os.Stderr, "  %-12s %s\n", "Output:", ws.paths.OutputDir)
	fmt.Fprintf(os.Stderr, "  %-12s %s → %s\n", "Languages:", cfg.SourceLang, cfg.TargetLang)
	fmt.Fprintf(os.Stderr, "  %-12s %s\n", "Provider:", cfg.Provider.ID)
	fmt.Fprintf(os.Stderr, "  %-12s %s\n", "Extensions:", strings.Join(cfg.Extensions, " "))

	led, err := ledger.Load(ws.paths.OutputDir)
	if err != nil {
		return err
	}

	files, err := ws.sources(nil)
	if err != nil {
		logWarning("%v", err)
		return nil
	}

	fmt.Fprintf(os.Stderr, "\n%s\n", cyan("Files"))
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "  %-28s %-5s %6s  %-27s %-12s %s\n", "FILE", "TYPE", "SPANS", "TEXT", "STATE", "LEDGER")
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %-28s %s\n", relPath(ws.paths.GameDir, f), red(err.Error()))
			continue
		}
		info := formats.Detect(f, data, cfg.TargetLang)
		fmt.Fprintf(os.Stderr, "  %-28s %-5s %6d  %s  %-12s %s\n",
			relPath(ws.paths.GameDir, f), info.Tag, info.Spans,
			progressBar(info.TextScore, 20), info.Status, ledgerState(led, f, cfg.TargetLang))
	}

	fmt.Fprintf(os.Stderr, "\n  Ledger: %s\n\n", led.Summary())
	return nil
}

// ledgerState describes what the ledger knows about path.
func ledgerState(led *ledger.Ledger, path, lang string) string {
	rec, ok := led.Lookup(path)
	if !ok {
		return "-"
	}
	modified, err := led.IsModified(path, lang)
	switch {
	case err != nil:
		return red("unreadable")
	case modified && rec.Lang != lang:
		return yellow(rec.Lang)
	case modified:
		return yellow("changed")
	case rec.NoText:
		return "no text"
	}
	if fileExists(patch.BackupPath(path)) {
		return green("done") + " (backup)"
	}
	return green("done")
}

// ---------------------------------------------------------------------------
// restore
// ---------------------------------------------------------------------------

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore FILE...",
		Short: "Restore files from their backups",
		Long: `Copy FILE.backup over FILE and forget FILE in the ledger, so the next
translate run processes it again.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			led, err := ledger.Load(ws.paths.OutputDir)
			if err != nil {
				return err
			}
			failed := 0
			for _, f := range args {
				if err := patch.Restore(f); err != nil {
					logError("%v", err)
					failed++
					continue
				}
				led.Remove(f)
				logSuccess("%s restored", f)
			}
			if err := led.Save(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files not restored", failed, len(args))
			}
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// cache
// ---------------------------------------------------------------------------

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clean the translation cache",
	}
	cmd.AddCommand(newCacheStatsCmd(), newCacheCleanCmd())
	return cmd
}

// cacheNamespaces lists the namespaces stored in the cache at path. Opening
// the cache creates the bucket for current, so it is always listed.
func cacheNamespaces(path, current string) ([]string, error) {
	c, err := cache.Open(path, cache.Options{Namespace: current})
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Namespaces()
}

// eachNamespace opens the cache once per namespace. Only one handle is open
// at a time since the database file is locked while open.
func eachNamespace(ws *workspace, all bool, fn func(ns string, c *cache.Cache) error) error {
	if !fileExists(ws.paths.Cache) {
		logInfo("No cache at %s", ws.paths.Cache)
		return nil
	}
	current := cache.Namespace(ws.cfg.SourceLang, ws.cfg.TargetLang)
	namespaces := []string{current}
	if all {
		var err error
		if namespaces, err = cacheNamespaces(ws.paths.Cache, current); err != nil {
			return err
		}
	}
	for _, ns := range namespaces {
		c, err := cache.Open(ws.paths.Cache, cache.Options{TTL: ws.cfg.Cache.TTL, Namespace: ns})
		if err != nil {
			return err
		}
		err = fn(ns, c)
		c.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func newCacheStatsCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "\n%s %s\n", cyan("Cache:"), ws.paths.Cache)
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
			err = eachNamespace(ws, all, func(ns string, c *cache.Cache) error {
				st, err := c.Stats()
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "  %-10s %6d entries, %6d expired, %6d hits (ttl %s)\n",
					ns, st.Entries, st.Expired, st.Hits, c.TTL())
				return nil
			})
			fmt.Fprintln(os.Stderr)
			return err
		},
	}

	cmd.Flags().BoolVar(&all, "all", true, "Show every language pair")
	return cmd
}

func newCacheCleanCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete expired cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			total := 0
			err = eachNamespace(ws, all, func(ns string, c *cache.Cache) error {
				n, err := c.CleanupExpired()
				if err != nil {
					return err
				}
				if n > 0 {
					logInfo("%s: removed %d expired entries", ns, n)
				}
				total += n
				return nil
			})
			if err != nil {
				return err
			}
			logSuccess("Removed %d expired entries", total)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Clean every language pair, not only the configured one")
	return cmd
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider API keys",
		Long: `Manage API keys for translation providers.

Keys are stored in ` + settings.FilePath() + ` with 0600 permissions.
Lookup order when translating: --api-key, ` + settings.EnvAPIKey + `, the provider's
own variable (GOOGLE_API_KEY, GROQ_API_KEY, OPENAI_API_KEY), then the store.`,
	}
	cmd.AddCommand(newAuthSetCmd(), newAuthListCmd(), newAuthRemoveCmd())
	return cmd
}

func knownProvider(id string) bool {
	_, ok := translate.DefaultProviders()[id]
	return ok
}

func newAuthSetCmd() *cobra.Command {
	var key, baseURL string

	cmd := &cobra.Command{
		Use:   "set PROVIDER",
		Short: "Store an API key for a provider",
		Long: `Store an API key for PROVIDER. Without --key the key is read from
standard input.

Examples:
  binloc auth set google
  binloc auth set custom-openai --base-url https://llm.example.com/v1 --key sk-...`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: translate.ProviderIDs(),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if !knownProvider(id) {
				return fmt.Errorf("unknown provider %q (valid: %s)", id, strings.Join(translate.ProviderIDs(), ", "))
			}
			if key == "" {
				existing := settings.GetAPIKey(id)
				if existing != "" {
					fmt.Fprintf(os.Stderr, "  Current key: %s\n", yellow(settings.MaskKey(existing)))
					fmt.Fprintf(os.Stderr, "  Enter new key to replace, or press Enter to keep: ")
				} else {
					fmt.Fprintf(os.Stderr, "  Enter API key: ")
				}
				scanner := bufio.NewScanner(cmd.InOrStdin())
				if scanner.Scan() {
					key = strings.TrimSpace(scanner.Text())
				}
				if key == "" {
					if existing == "" && baseURL == "" {
						return fmt.Errorf("no API key provided")
					}
					key = existing
				}
			}
			if baseURL == "" {
				baseURL = settings.GetBaseURL(id)
			}
			if err := settings.SetAPIKey(id, key, baseURL); err != nil {
				return fmt.Errorf("saving API key: %w", err)
			}
			logSuccess("%s credentials saved", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "API key")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Endpoint URL (custom-openai)")
	return cmd
}

func newAuthRemoveCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:     "remove [PROVIDER]",
		Aliases: []string{"rm"},
		Short:   "Remove stored credentials",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ids []string
			switch {
			case all:
				ids = settings.Providers()
			case len(args) == 1:
				ids = args
			default:
				return fmt.Errorf("name a provider or pass --all")
			}
			for _, id := range ids {
				if err := settings.Remove(id); err != nil {
					return fmt.Errorf("removing %s credentials: %w", id, err)
				}
				logSuccess("%s credentials removed", id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every stored credential")
	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored credentials",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(os.Stderr, "\n%s\n", cyan("Stored Credentials"))
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

			defaults := translate.DefaultProviders()
			for _, id := range translate.ProviderIDs() {
				fmt.Fprintf(os.Stderr, "  %-14s %s\n", id, credentialStatus(id, defaults[id]))
			}

			fmt.Fprintf(os.Stderr, "\n  %s\n", yellow("Environment Variables"))
			vars := []string{settings.EnvAPIKey}
			for _, id := range translate.ProviderIDs() {
				if v := settings.EnvVarForProvider(id); v != "" {
					vars = append(vars, v)
				}
			}
			for _, v := range vars {
				if val := os.Getenv(v); val != "" {
					fmt.Fprintf(os.Stderr, "  %-16s %s\n", v+":", green(settings.MaskKey(val)))
				} else {
					fmt.Fprintf(os.Stderr, "  %-16s %s\n", v+":", red("not set"))
				}
			}
			fmt.Fprintln(os.Stderr)
		},
	}
}

// credentialStatus describes the stored credentials for one provider.
func credentialStatus(id string, def translate.ProviderConfig) string {
	entry := settings.Get(id)
	switch {
	case entry != nil && entry.Key != "":
		status := fmt.Sprintf("%s (key: %s)", green("configured"), settings.MaskKey(entry.Key))
		if entry.BaseURL != "" {
			status += ", endpoint: " + entry.BaseURL
		}
		return status
	case entry != nil && entry.BaseURL != "":
		return fmt.Sprintf("%s (no key), endpoint: %s", green("configured"), entry.BaseURL)
	case id == translate.ProviderOllama:
		return "no key needed (" + def.BaseURL + ")"
	}
	return red("not configured")
}
