package strategy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/minios-linux/binloc/extract"
	"github.com/minios-linux/binloc/patch"
)

var helloWorld = []byte("Hello World\x00This is a test\x00")

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestManager(t *testing.T, overrides map[string]Strategy) *Manager {
	t.Helper()
	return NewManager(Options{
		Overrides:  overrides,
		StagingDir: filepath.Join(t.TempDir(), patch.StagingDir),
	})
}

func TestParse(t *testing.T) {
	for _, name := range []string{"direct", "conservative", "aggressive", "safe", "test-first", " SAFE "} {
		if _, err := Parse(name); err != nil {
			t.Errorf("Parse(%q): %v", name, err)
		}
	}
	if _, err := Parse("reckless"); err == nil {
		t.Error("Parse(reckless) should fail")
	}
}

func TestShorten(t *testing.T) {
	long := strings.Repeat("abcd ", 8)
	tests := []struct {
		in, want string
	}{
		{"Hi there", "Hi there"},
		{"Hello World", "Hello W..."},
		{"こんにちは世界、元気ですか", "こんにちは世界、..."},
		{long, long[:20] + " [T]"},
	}
	for _, tc := range tests {
		if got := Shorten(tc.in); got != tc.want {
			t.Errorf("Shorten(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		expected, extracted, changed int
		want                         float64
	}{
		{2, 2, 2, 1},
		{0, 5, 5, 0},
		{4, 2, 8, 0.65},
		{10, 10, 0, 0.7},
	}
	for _, tc := range tests {
		got := Score(tc.expected, tc.extracted, tc.changed)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Score(%d, %d, %d) = %v, want %v", tc.expected, tc.extracted, tc.changed, got, tc.want)
		}
	}
}

func TestChooseStrategyDefaults(t *testing.T) {
	m := newTestManager(t, map[string]Strategy{".PAC": Conservative})
	tests := []struct {
		format   string
		testMode bool
		want     Strategy
	}{
		{"pm1", false, Safe},
		{"bf", false, Conservative},
		{"pac", false, Conservative},
		{"pak", false, Aggressive},
		{"xyz", false, Safe},
		{"pm1", true, TestFirst},
	}
	for _, tc := range tests {
		if got := m.ChooseStrategy(tc.format, "/game/file."+tc.format, tc.testMode); got != tc.want {
			t.Errorf("ChooseStrategy(%q, %v) = %q, want %q", tc.format, tc.testMode, got, tc.want)
		}
	}
}

func TestTestReinsertionMethods(t *testing.T) {
	path := writeFile(t, "E0001.pm1", helloWorld)
	m := newTestManager(t, nil)

	o, err := m.TestReinsertionMethods(context.Background(), path)
	if err != nil {
		t.Fatalf("TestReinsertionMethods: %v", err)
	}
	if !o.OK || o.Best != Conservative {
		t.Errorf("outcome = %+v, want OK with conservative", o)
	}
	for _, c := range Candidates {
		if o.Scores[c] != 1 {
			t.Errorf("score[%s] = %v, want 1", c, o.Scores[c])
		}
	}

	got, _ := os.ReadFile(path)
	if string(got) != string(helloWorld) {
		t.Error("test pass modified the original file")
	}
	if _, err := os.Stat(patch.BackupPath(path)); !os.IsNotExist(err) {
		t.Error("test pass left a backup next to the original")
	}
	if s := m.ChooseStrategy("pak", path, true); s != Conservative {
		t.Errorf("ChooseStrategy after success = %q, want conservative", s)
	}
}

func TestTestReinsertionMethodsNoText(t *testing.T) {
	path := writeFile(t, "empty.pac", []byte{0, 1, 2, 3, 0xff})
	m := newTestManager(t, nil)

	if _, err := m.TestReinsertionMethods(context.Background(), path); !errors.Is(err, ErrNoViableStrategy) {
		t.Fatalf("err = %v, want ErrNoViableStrategy", err)
	}
	if s := m.ChooseStrategy("pac", path, false); s != Safe {
		t.Errorf("ChooseStrategy after failure = %q, want safe", s)
	}
}

func TestApplySafe(t *testing.T) {
	path := writeFile(t, "E0001.pm1", helloWorld)
	manifest := extract.NewManifest(path, helloWorld)
	m := newTestManager(t, nil)

	fr, err := m.ApplyStrategy(context.Background(), Safe, path, manifest, []string{"Bonjour le Monde", "Ceci est un essai"})
	if err != nil {
		t.Fatalf("ApplyStrategy: %v", err)
	}
	if fr.Applied != 2 {
		t.Errorf("Applied = %d", fr.Applied)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "Bonjour le Monde\x00Ceci est un essai\x00" {
		t.Errorf("patched = %q", got)
	}
	if left, _ := filepath.Glob(path + ".safe-*"); len(left) != 0 {
		t.Errorf("temporary backups left: %v", left)
	}
	if _, err := os.Stat(patch.BackupPath(path)); err != nil {
		t.Errorf("persistent backup missing: %v", err)
	}
}

func TestApplySafeRollsBack(t *testing.T) {
	path := writeFile(t, "E0001.pm1", helloWorld)
	manifest := extract.NewManifest(path, helloWorld)
	m := newTestManager(t, nil)

	_, err := m.ApplyStrategy(context.Background(), Safe, path, manifest, []string{"\x01\x02\x03", "This is a test"})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("err = %v, want ErrValidationFailed", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != string(helloWorld) {
		t.Errorf("file not restored: %q", got)
	}
	if left, _ := filepath.Glob(path + ".safe-*"); len(left) != 0 {
		t.Errorf("temporary backups left: %v", left)
	}
}

func TestApplyTestFirst(t *testing.T) {
	path := writeFile(t, "E0001.pm1", helloWorld)
	manifest := extract.NewManifest(path, helloWorld)
	m := newTestManager(t, nil)

	if _, err := m.ApplyStrategy(context.Background(), TestFirst, path, manifest, []string{"Bonjour le Monde", "Ceci est un essai"}); err != nil {
		t.Fatalf("ApplyStrategy: %v", err)
	}
	if o, ok := m.Outcome(path); !ok || o.Best != Conservative {
		t.Errorf("outcome = %+v, %v", o, ok)
	}
	got, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(got), "Bonjour le Monde") {
		t.Errorf("patched = %q", got)
	}
}

func TestApplyDirectAndAggressive(t *testing.T) {
	for _, s := range []Strategy{Direct, Conservative, Aggressive} {
		t.Run(string(s), func(t *testing.T) {
			path := writeFile(t, "E0001.pm1", helloWorld)
			manifest := extract.NewManifest(path, helloWorld)
			m := newTestManager(t, nil)
			fr, err := m.ApplyStrategy(context.Background(), s, path, manifest, []string{"Salut", "Essai"})
			if err != nil {
				t.Fatalf("ApplyStrategy: %v", err)
			}
			if fr.Delta != 0 {
				t.Errorf("Delta = %d, want 0", fr.Delta)
			}
		})
	}
}

func TestApplyCancelled(t *testing.T) {
	path := writeFile(t, "E0001.pm1", helloWorld)
	manifest := extract.NewManifest(path, helloWorld)
	m := newTestManager(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.ApplyStrategy(ctx, Direct, path, manifest, manifest.Texts()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestApplySafeWarnsOnAlteredTexts(t *testing.T) {
	path := writeFile(t, "E0001.pm1", helloWorld)
	manifest := extract.NewManifest(path, helloWorld)
	core, logs := observer.New(zap.WarnLevel)
	m := NewManager(Options{
		StagingDir: filepath.Join(t.TempDir(), patch.StagingDir),
		Logger:     zap.New(core),
	})

	// The trailing control byte ends the run, so the span comes back as
	// "Bonjour le Monde": counted as recovered, not matched.
	if _, err := m.ApplyStrategy(context.Background(), Safe, path, manifest, []string{"Bonjour le Monde\x01", "Ceci est un essai"}); err != nil {
		t.Fatalf("ApplyStrategy: %v", err)
	}
	warned := logs.FilterMessage("validation passed with altered texts").All()
	if len(warned) != 1 {
		t.Fatalf("warnings = %v", logs.All())
	}
	if got := warned[0].ContextMap()["mismatched"]; got != int64(1) {
		t.Errorf("mismatched = %v, want 1", got)
	}

	logs.TakeAll()
	path = writeFile(t, "E0002.pm1", helloWorld)
	manifest = extract.NewManifest(path, helloWorld)
	if _, err := m.ApplyStrategy(context.Background(), Safe, path, manifest, []string{"Bonjour le Monde", "Ceci est un essai"}); err != nil {
		t.Fatal(err)
	}
	if n := logs.FilterMessage("validation passed with altered texts").Len(); n != 0 {
		t.Errorf("clean patch logged %d altered-text warnings", n)
	}
}
