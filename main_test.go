package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/minios-linux/binloc/config"
	"github.com/minios-linux/binloc/extract"
	"github.com/minios-linux/binloc/ledger"
	"github.com/minios-linux/binloc/pipeline"
	"github.com/minios-linux/binloc/pofile"
	"github.com/minios-linux/binloc/settings"
	"github.com/minios-linux/binloc/translate"
)

var fixture = []byte("\x00\x01Hello there, brave hero!\x00\x02\x03Open the gate now\x00\x00")

func noColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

// setupProject creates a project root with one asset file under GameFiles
// and points rootDir at it.
func setupProject(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	gameDir := filepath.Join(root, config.DefaultGameDir)
	if err := os.MkdirAll(gameDir, 0755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(gameDir, "init.pac")
	if err := os.WriteFile(file, fixture, 0644); err != nil {
		t.Fatal(err)
	}

	prev := rootDir
	rootDir = root
	t.Cleanup(func() { rootDir = prev })
	return root, file
}

func TestProgressBar(t *testing.T) {
	noColor(t)

	tests := []struct {
		name  string
		ratio float64
		width int
		want  string
	}{
		{"clamps below zero", -0.5, 4, "░░░░   0%"},
		{"half", 0.5, 4, "██░░  50%"},
		{"clamps above one", 1.7, 4, "████ 100%"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := progressBar(tc.ratio, tc.width); got != tc.want {
				t.Errorf("progressBar(%v, %d) = %q, want %q", tc.ratio, tc.width, got, tc.want)
			}
		})
	}
}

func TestRelPath(t *testing.T) {
	if got := relPath("/game", "/game/event/e101.pm1"); got != filepath.Join("event", "e101.pm1") {
		t.Errorf("relPath inside root = %q", got)
	}
	if got := relPath("/game", "/other/x.pac"); got != "/other/x.pac" {
		t.Errorf("relPath outside root = %q", got)
	}
}

func TestPOPath(t *testing.T) {
	got := defaultPOPath("/out", "/game/init.pac", "fr")
	want := filepath.Join("/out", "po", "init.fr.po")
	if got != want {
		t.Errorf("defaultPOPath = %q, want %q", got, want)
	}
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"extract", "translate", "patch", "export-po", "test", "validate", "restore", "status", "cache", "auth", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	if root.PersistentFlags().Lookup("root") == nil {
		t.Error("missing --root persistent flag")
	}
}

func TestOpenWorkspaceDetected(t *testing.T) {
	root, file := setupProject(t)

	ws, err := openWorkspace()
	if err != nil {
		t.Fatalf("openWorkspace: %v", err)
	}
	if ws.configured {
		t.Error("configured = true without .binloc.yaml")
	}
	if ws.paths.GameDir != filepath.Join(root, config.DefaultGameDir) {
		t.Errorf("GameDir = %q", ws.paths.GameDir)
	}
	files, err := ws.sources(nil)
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(files) != 1 || files[0] != file {
		t.Errorf("sources = %v, want [%s]", files, file)
	}
}

func TestOpenWorkspaceConfigured(t *testing.T) {
	root, _ := setupProject(t)
	cfg := "target_lang: de\noutput_dir: out\n"
	if err := os.WriteFile(filepath.Join(root, config.FileName), []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	ws, err := openWorkspace()
	if err != nil {
		t.Fatalf("openWorkspace: %v", err)
	}
	if !ws.configured || ws.cfg.TargetLang != "de" {
		t.Errorf("config not loaded: %+v", ws.cfg)
	}
	if ws.paths.OutputDir != filepath.Join(root, "out") {
		t.Errorf("OutputDir = %q", ws.paths.OutputDir)
	}
}

func TestSourcesMissingFile(t *testing.T) {
	setupProject(t)
	ws, err := openWorkspace()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ws.sources([]string{"does-not-exist.pac"}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyTranslateFlags(t *testing.T) {
	cmd := newTranslateCmd()
	if err := cmd.Flags().Set("lang", "de"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("file-workers", "4"); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Provider.Model = "from-config"
	applyTranslateFlags(cmd, cfg, translateArgs{lang: "de", fileWorkers: 4, model: "ignored", workers: 9})

	if cfg.TargetLang != "de" {
		t.Errorf("TargetLang = %q, want de", cfg.TargetLang)
	}
	if cfg.Workers.Files != 4 {
		t.Errorf("Workers.Files = %d, want 4", cfg.Workers.Files)
	}
	if cfg.Provider.Model != "from-config" {
		t.Errorf("unset --model overrode config: %q", cfg.Provider.Model)
	}
	if cfg.Workers.Translate != translate.DefaultMaxWorkers {
		t.Errorf("unset --workers overrode config: %d", cfg.Workers.Translate)
	}
}

func TestBuildProvider(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("BINLOC_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg := config.Default()
	if _, err := buildProvider(cfg, "", nil); err == nil || !strings.Contains(err.Error(), "no API key") {
		t.Errorf("missing key error = %v", err)
	}

	p, err := buildProvider(cfg, "test-key-123456", nil)
	if err != nil {
		t.Fatalf("buildProvider: %v", err)
	}
	hp, ok := p.(*translate.HTTPProvider)
	if !ok {
		t.Fatalf("provider type %T", p)
	}
	if hp.Config().APIKey != "test-key-123456" || hp.Config().Model == "" {
		t.Errorf("config = %+v", hp.Config())
	}

	cfg.Provider.ID = translate.ProviderCustomOpenAI
	if _, err := buildProvider(cfg, "k", nil); err == nil || !strings.Contains(err.Error(), "base URL") {
		t.Errorf("custom without base URL error = %v", err)
	}
}

func TestLocateManifestExtracts(t *testing.T) {
	_, file := setupProject(t)
	ws, err := openWorkspace()
	if err != nil {
		t.Fatal(err)
	}

	m, err := locateManifest(ws, file)
	if err != nil {
		t.Fatalf("locateManifest: %v", err)
	}
	if len(m.Spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(m.Spans))
	}
	data, _ := os.ReadFile(file)
	if !fileExists(extract.ManifestPath(ws.paths.OutputDir, file, extract.HashBytes(data))) {
		t.Error("manifest not saved")
	}

	// Second call loads the saved manifest.
	again, err := locateManifest(ws, file)
	if err != nil || again.SHA256 != m.SHA256 {
		t.Errorf("reload = %v, %v", again, err)
	}
}

func TestLoadTranslations(t *testing.T) {
	_, file := setupProject(t)
	ws, err := openWorkspace()
	if err != nil {
		t.Fatal(err)
	}
	m, err := locateManifest(ws, file)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := loadTranslations(ws, m, "", "", "fr"); err == nil {
		t.Error("expected error without --po, --yaml or a saved list")
	}

	want := []string{"Bonjour, brave héros !", "Ouvrez la porte"}
	list, err := pipeline.NewTranslatedList(m, "fr", want)
	if err != nil {
		t.Fatal(err)
	}
	if err := list.Save(pipeline.TranslatedListPath(ws.paths.OutputDir, file, "fr")); err != nil {
		t.Fatal(err)
	}
	got, err := loadTranslations(ws, m, "", "", "fr")
	if err != nil {
		t.Fatalf("saved list: %v", err)
	}
	if got[0] != want[0] || got[1] != want[1] {
		t.Errorf("saved list = %q", got)
	}

	po := filepath.Join(t.TempDir(), "init.fr.po")
	if err := pofile.ExportFile(m, "fr", []string{"Salut, héros !", m.Spans[1].Text}, po); err != nil {
		t.Fatal(err)
	}
	got, err = loadTranslations(ws, m, po, "", "fr")
	if err != nil {
		t.Fatalf("po: %v", err)
	}
	if got[0] != "Salut, héros !" || got[1] != m.Spans[1].Text {
		t.Errorf("po translations = %q", got)
	}

	if _, err := loadTranslations(ws, m, po, "x.yaml", "fr"); err == nil {
		t.Error("expected error for --po with --yaml")
	}
}

func TestLedgerState(t *testing.T) {
	noColor(t)
	_, file := setupProject(t)
	led, err := ledger.Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if got := ledgerState(led, file, "fr"); got != "-" {
		t.Errorf("unknown file = %q", got)
	}
	if err := led.Record(file, ledger.Record{Lang: "fr", Spans: 2, Applied: 2}); err != nil {
		t.Fatal(err)
	}
	if got := ledgerState(led, file, "fr"); got != "done" {
		t.Errorf("recorded file = %q", got)
	}
	if got := ledgerState(led, file, "de"); got != "fr" {
		t.Errorf("other language = %q", got)
	}
	if err := os.WriteFile(file, append(fixture, 'x'), 0644); err != nil {
		t.Fatal(err)
	}
	if got := ledgerState(led, file, "fr"); got != "changed" {
		t.Errorf("modified file = %q", got)
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", config.LogFileName)
	logger, closeLog, err := newLogger(path, false)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("extracted")
	logger.Debug("hidden")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"extracted"`) {
		t.Errorf("log missing info line: %s", data)
	}
	if strings.Contains(string(data), "hidden") {
		t.Errorf("debug line written to file: %s", data)
	}
}

func TestCredentialStatus(t *testing.T) {
	noColor(t)
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	defaults := translate.DefaultProviders()
	if got := credentialStatus("groq", defaults["groq"]); got != "not configured" {
		t.Errorf("empty store = %q", got)
	}
	if got := credentialStatus("ollama", defaults["ollama"]); !strings.HasPrefix(got, "no key needed") {
		t.Errorf("ollama = %q", got)
	}
	if err := settings.SetAPIKey("groq", "gsk_abcdefghijkl", ""); err != nil {
		t.Fatal(err)
	}
	if got := credentialStatus("groq", defaults["groq"]); got != "configured (key: gsk_...ijkl)" {
		t.Errorf("stored key = %q", got)
	}
}

func TestServiceTimeoutFollowsProvider(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	tests := []struct {
		name     string
		provider string
		flag     string
		want     time.Duration
	}{
		{"flag", translate.ProviderGroq, "300s", 5 * time.Minute},
		{"google default", translate.ProviderGoogle, "", 120 * time.Second},
		{"ollama default", translate.ProviderOllama, "", 120 * time.Second},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := newTranslateCmd()
			var a translateArgs
			if tc.flag != "" {
				if err := cmd.Flags().Set("timeout", tc.flag); err != nil {
					t.Fatal(err)
				}
				a.timeout, _ = time.ParseDuration(tc.flag)
			}
			cfg := config.Default()
			cfg.Provider.ID = tc.provider
			cfg.Provider.Model = "m"
			applyTranslateFlags(cmd, cfg, a)

			prov, err := buildProvider(cfg, "test-key-123456", nil)
			if err != nil {
				t.Fatalf("buildProvider: %v", err)
			}
			svc := translate.NewService(prov, nil, serviceOptions(cfg, prov, nil))
			if got := svc.RequestTimeout(); got != tc.want {
				t.Errorf("per-call deadline = %v, want %v", got, tc.want)
			}
		})
	}

	svc := translate.NewService(translate.Identity, nil, serviceOptions(config.Default(), translate.Identity, nil))
	if got := svc.RequestTimeout(); got != translate.DefaultRequestTimeout {
		t.Errorf("dry-run deadline = %v, want %v", got, translate.DefaultRequestTimeout)
	}
}
