// binloc extracts, translates and re-injects text in binary game assets.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/minios-linux/binloc/config"
	"github.com/minios-linux/binloc/extract"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Terminal colors
var (
	red    = color.New(color.FgRed).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.Bold, color.FgYellow).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
	cyan   = color.New(color.Bold, color.FgCyan).SprintFunc()
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", blue("[INFO]"), fmt.Sprintf(format, args...))
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", green("[OK]"), fmt.Sprintf(format, args...))
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", yellow("[WARN]"), fmt.Sprintf(format, args...))
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", red("[ERROR]"), fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir string
	verbose bool
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "binloc",
		Short: "Translate text embedded in binary game asset files",
		Long: `binloc locates text inside binary game assets, translates it with an
AI provider and writes the translations back in place.

Files are scanned as raw bytes. Every span is recorded in a manifest with its
offset and encoding, so patching never has to guess where a string lives.

Commands:
  extract     Scan files and save their span manifests
  translate   Run the full pipeline over the game directory
  patch       Write translations from a .po or translated list into a file
  export-po   Export a file's spans as a gettext catalog
  test        Compare reinsertion strategies on a scratch copy
  validate    Re-extract a patched file and compare with its translations
  restore     Put back the original from a file's backup
  status      Show project layout and per-file state
  cache       Inspect or clean the translation cache
  auth        Manage provider API keys

AI Providers:
  google         Google AI (Gemini), API key
  groq           Groq, API key
  ollama         Ollama local server
  custom-openai  Custom OpenAI-compatible endpoint`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flags, inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newExtractCmd(),
		newTranslateCmd(),
		newPatchCmd(),
		newExportPOCmd(),
		newTestCmd(),
		newValidateCmd(),
		newRestoreCmd(),
		newStatusCmd(),
		newCacheCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("binloc version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// workspace is the configuration every command starts from.
type workspace struct {
	cfg   *config.File
	paths config.Paths
	// configured is false when no .binloc.yaml exists and the layout was
	// auto-detected.
	configured bool
}

// openWorkspace loads .binloc.yaml from rootDir, falling back to defaults
// and the detected game directory.
func openWorkspace() (*workspace, error) {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return nil, err
	}
	ws := &workspace{cfg: cfg, configured: cfg != nil}
	if cfg == nil {
		ws.cfg = config.Default()
	}
	ws.paths, err = ws.cfg.Resolve(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", rootDir, err)
	}
	if !ws.configured {
		ws.paths.GameDir = config.Detect(rootDir).GameDir
	}
	return ws, nil
}

// sources returns the files named on the command line, or every asset file
// under the game directory when none are given.
func (ws *workspace) sources(args []string) ([]string, error) {
	if len(args) > 0 {
		for _, a := range args {
			if !fileExists(a) {
				return nil, fmt.Errorf("%s: no such file", a)
			}
		}
		return args, nil
	}
	files, err := extract.FindSources([]string{ws.paths.GameDir}, ws.cfg.Extensions)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no asset files (%s) under %s", strings.Join(ws.cfg.Extensions, ", "), ws.paths.GameDir)
	}
	return files, nil
}

// newLogger builds the structured logger handed to library packages. The
// console core shows warnings (debug with --verbose); when logPath is set a
// JSON core appends info and up to it.
func newLogger(logPath string, debug bool) (*zap.Logger, func(), error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleLevel := zapcore.WarnLevel
	if debug {
		consoleLevel = zapcore.DebugLevel
	}
	consoleCfg := encCfg
	consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), consoleLevel),
	}

	closeFn := func() {}
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return nil, nil, fmt.Errorf("creating %s: %w", filepath.Dir(logPath), err)
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log %s: %w", logPath, err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.InfoLevel))
		closeFn = func() { f.Close() }
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return logger, func() {
		_ = logger.Sync()
		closeFn()
	}, nil
}

// progressBar renders ratio (0..1) as a colored bar followed by a percentage.
func progressBar(ratio float64, width int) string {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio*float64(width) + 0.5)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	paint := red
	switch {
	case ratio >= 0.8:
		paint = green
	case ratio >= 0.4:
		paint = yellow
	}
	return fmt.Sprintf("%s %3.0f%%", paint(bar), ratio*100)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// relPath shortens path for display relative to root.
func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
