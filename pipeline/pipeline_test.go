package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/minios-linux/binloc/extract"
	"github.com/minios-linux/binloc/ledger"
	"github.com/minios-linux/binloc/patch"
	"github.com/minios-linux/binloc/skip"
	"github.com/minios-linux/binloc/strategy"
	"github.com/minios-linux/binloc/translate"
)

var dictionary = map[string]string{
	"Hello World":    "Bonjour le Monde",
	"This is a test": "Ceci est un essai",
	"Press Start":    "Appuyez sur Start",
}

// recorder is a dictionary provider that counts calls per text.
type recorder struct {
	mu    sync.Mutex
	calls map[string]int
}

func (r *recorder) Translate(_ context.Context, text, _, _ string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[text]++
	if out, ok := dictionary[text]; ok {
		return out, nil
	}
	return text, nil
}

type fixture struct {
	game, out string
	provider  *recorder
	ledger    *ledger.Ledger
	pipeline  *Pipeline
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{game: filepath.Join(dir, "GameFiles"), out: filepath.Join(dir, "out"), provider: &recorder{}}
	if err := os.MkdirAll(f.game, 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(f.game, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	var err error
	if f.ledger, err = ledger.Load(f.out); err != nil {
		t.Fatal(err)
	}
	svc := translate.NewService(f.provider, nil, translate.Options{SourceLang: "en", TargetLang: "fr"})
	mgr := strategy.NewManager(strategy.Options{StagingDir: filepath.Join(f.out, patch.StagingDir)})
	f.pipeline = New(svc, mgr, f.ledger, Options{
		OutputDir:  f.out,
		SourceLang: "en",
		TargetLang: "fr",
	})
	return f
}

func (f *fixture) path(name string) string {
	return filepath.Join(f.game, name)
}

func TestProcessFile(t *testing.T) {
	f := newFixture(t, map[string]string{"E0001.pm1": "Hello World\x00This is a test\x00"})
	path := f.path("E0001.pm1")

	res := f.pipeline.ProcessFile(context.Background(), path)
	if res.Status != StatusPatched || res.Err != nil {
		t.Fatalf("result = %+v", res)
	}
	if res.Spans != 2 || res.Translated != 2 || res.Strategy != strategy.Safe {
		t.Errorf("result = %+v", res)
	}
	if res.Report.Matched != 2 {
		t.Errorf("report = %+v", res.Report)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "Bonjour le Monde\x00Ceci est un essai\x00" {
		t.Errorf("patched = %q", got)
	}
	backup, _ := os.ReadFile(patch.BackupPath(path))
	if string(backup) != "Hello World\x00This is a test\x00" {
		t.Errorf("backup = %q", backup)
	}
	if _, err := os.Stat(filepath.Join(f.out, patch.StagingDir, extract.PathKey(path), "E0001.pm1")); err != nil {
		t.Errorf("staged copy missing: %v", err)
	}
	manifests, _ := filepath.Glob(filepath.Join(f.out, extract.ManifestDir, "E0001.pm1-*.yaml"))
	if len(manifests) != 1 {
		t.Errorf("manifests = %v", manifests)
	}

	list, err := LoadTranslatedList(TranslatedListPath(f.out, path, "fr"))
	if err != nil {
		t.Fatalf("LoadTranslatedList: %v", err)
	}
	if len(list.Entries) != 2 || list.Entries[1].Translation != "Ceci est un essai" || list.Entries[1].Offset != 12 {
		t.Errorf("list = %+v", list)
	}

	rec, ok := f.ledger.Lookup(path)
	if !ok || rec.Applied != 2 || rec.Strategy != "safe" {
		t.Errorf("ledger record = %+v, %v", rec, ok)
	}
	if _, err := os.Stat(filepath.Join(f.out, ledger.FileName)); err != nil {
		t.Errorf("ledger not saved: %v", err)
	}

	again := f.pipeline.ProcessFile(context.Background(), path)
	if again.Status != StatusSkipped {
		t.Errorf("second run status = %q, want skipped", again.Status)
	}
}

func TestProcessFileKeepsTokens(t *testing.T) {
	content := "\x00{COLOR1}Press Start{WAIT30}\x00{COLOR1}Press Start\x00"
	f := newFixture(t, map[string]string{"title.bf": content})
	path := f.path("title.bf")

	res := f.pipeline.ProcessFile(context.Background(), path)
	if res.Status != StatusPatched {
		t.Fatalf("result = %+v", res)
	}
	got, _ := os.ReadFile(path)
	if !strings.Contains(string(got), "{COLOR1}Appuyez sur Start{WAIT30}") {
		t.Errorf("patched = %q", got)
	}
	if n := f.provider.calls["Press Start"]; n != 1 {
		t.Errorf("provider saw Press Start %d times, want 1", n)
	}
	for text := range f.provider.calls {
		if strings.Contains(text, "{") {
			t.Errorf("token sent to provider: %q", text)
		}
	}
}

func TestProcessFileNoText(t *testing.T) {
	f := newFixture(t, map[string]string{"blob.pak": "\x00\x01\x02\x03\xff\xfe"})
	path := f.path("blob.pak")

	res := f.pipeline.ProcessFile(context.Background(), path)
	if res.Status != StatusNoText {
		t.Fatalf("status = %q, err = %v", res.Status, res.Err)
	}
	rec, ok := f.ledger.Lookup(path)
	if !ok || !rec.NoText {
		t.Errorf("ledger record = %+v, %v", rec, ok)
	}
	if again := f.pipeline.ProcessFile(context.Background(), path); again.Status != StatusSkipped {
		t.Errorf("second run status = %q", again.Status)
	}
}

func TestProcessFileMissing(t *testing.T) {
	f := newFixture(t, nil)
	res := f.pipeline.ProcessFile(context.Background(), f.path("missing.pm1"))
	if res.Status != StatusFailed || res.Err == nil {
		t.Fatalf("result = %+v", res)
	}
}

func TestProcessAllTally(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.pm1":    "Hello World\x00",
		"b.tbl":    "This is a test\x00",
		"blob.pak": "\x00\x01\x02",
	})
	paths := []string{f.path("a.pm1"), f.path("b.tbl"), f.path("blob.pak"), f.path("missing.bf")}

	tally := f.pipeline.ProcessAll(context.Background(), paths)
	if tally.Patched != 2 || tally.NoText != 1 || tally.Failed != 1 || tally.Skipped != 0 {
		t.Fatalf("tally = %+v", tally)
	}
	for i, r := range tally.Results {
		if r.Path != paths[i] {
			t.Errorf("result %d path = %q, want %q", i, r.Path, paths[i])
		}
	}

	second := f.pipeline.ProcessAll(context.Background(), paths[:3])
	if second.Skipped != 3 {
		t.Errorf("second tally = %+v", second)
	}
}

func TestProcessAllCancelled(t *testing.T) {
	f := newFixture(t, map[string]string{"a.pm1": "Hello World\x00"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tally := f.pipeline.ProcessAll(ctx, []string{f.path("a.pm1")})
	if tally.Failed != 1 {
		t.Fatalf("tally = %+v", tally)
	}
	got, _ := os.ReadFile(f.path("a.pm1"))
	if string(got) != "Hello World\x00" {
		t.Errorf("file changed after cancellation: %q", got)
	}
}

func TestTranslateTextsSkips(t *testing.T) {
	f := newFixture(t, nil)
	f.pipeline.opts.Policy = skip.Policy{Whitelist: []string{"Yukari"}}

	texts := []string{"MSG_0012", "12345", "Hello World", "  Hello World  ", "Yukari"}
	got := f.pipeline.TranslateTexts(context.Background(), texts)
	want := []string{"MSG_0012", "12345", "Bonjour le Monde", "  Bonjour le Monde  ", "Yukari"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TranslateTexts[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if f.provider.calls["MSG_0012"] != 0 || f.provider.calls["12345"] != 0 {
		t.Errorf("skipped texts reached the provider: %v", f.provider.calls)
	}
	if f.provider.calls["Yukari"] != 1 {
		t.Errorf("whitelisted text not translated: %v", f.provider.calls)
	}
}

func TestTranslatedListRoundTrip(t *testing.T) {
	m := extract.NewManifest("E0001.pm1", []byte("Hello World\x00This is a test\x00"))
	list, err := NewTranslatedList(m, "fr", []string{"Bonjour", "Essai"})
	if err != nil {
		t.Fatal(err)
	}
	path := TranslatedListPath(t.TempDir(), "E0001.pm1", "fr")
	if filepath.Base(path) != "E0001-"+extract.PathKey("E0001.pm1")+"_fr.yaml" {
		t.Errorf("path = %q", path)
	}
	if err := list.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadTranslatedList(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := loaded.Translations(m)
	if err != nil {
		t.Fatalf("Translations: %v", err)
	}
	if got[0] != "Bonjour" || got[1] != "Essai" {
		t.Errorf("translations = %v", got)
	}

	other := extract.NewManifest("E0001.pm1", []byte("Other text here\x00"))
	if _, err := loaded.Translations(other); err == nil {
		t.Error("expected error for list of different content")
	}
	if _, err := NewTranslatedList(m, "fr", []string{"one"}); err == nil {
		t.Error("expected error for short list")
	}
}

func TestTranslatedListPathDistinguishesDirs(t *testing.T) {
	out := t.TempDir()
	a := TranslatedListPath(out, "/game/event/E0001.pm1", "fr")
	b := TranslatedListPath(out, "/game/battle/E0001.pm1", "fr")
	if a == b {
		t.Fatalf("same list path %s for files in different directories", a)
	}
	if a != TranslatedListPath(out, "/game/event/../event/E0001.pm1", "fr") {
		t.Errorf("equivalent paths map to different lists")
	}
	if !strings.HasPrefix(filepath.Base(a), "E0001-") || !strings.HasSuffix(a, "_fr.yaml") {
		t.Errorf("list path = %s", a)
	}
}
