package tokens

import (
	"reflect"
	"strings"
	"testing"
)

func TestMaskRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []string{
		"Plain text without codes",
		"{COLOR1}Hello {NAME1}!{00}",
		"{F2 08 FF FF}Welcome to {LOCATION5}.{0A}",
		"「Are you ready?」\nPress {CHOICE1} to continue.",
		"{WAIT30}  Wait   for {SOUND1}  it{CLEAR}",
		`Line one\nLine two\tend`,
		"{HP1}/{SP1} {STATUS1} {DAMAGE1}",
		"",
	}
	for _, text := range tests {
		toks, masked := Mask(text)
		if len(masked) != len(text) {
			t.Errorf("Mask(%q) changed length: %d vs %d", text, len(masked), len(text))
		}
		sum := 0
		for _, tok := range toks {
			sum += tok.Length
			if masked[tok.Position:tok.Position+tok.Length] != strings.Repeat(" ", tok.Length) {
				t.Errorf("Mask(%q): token %q slot not padded", text, tok.Token)
			}
		}
		if got := Reconstruct(masked, toks); got != text {
			t.Errorf("Reconstruct(Mask(%q)) = %q", text, got)
		}
		if sum > len(text) {
			t.Errorf("token lengths %d exceed text length %d", sum, len(text))
		}
	}
}

func TestMaskClaimsSpecificPatternsFirst(t *testing.T) {
	t.Parallel()

	toks, _ := Mask("Bye{00}")
	if len(toks) != 1 || toks[0].Type != "game_end" || toks[0].Position != 3 {
		t.Fatalf("tokens = %+v, want one game_end at 3", toks)
	}

	toks, _ = Mask("{F2 08 FF FF}Hi{F1 3F}")
	want := []Token{
		{Token: "{F2 08 FF FF}", Type: "game_format_4", Position: 0, Length: 13},
		{Token: "{F1 3F}", Type: "game_format_2", Position: 15, Length: 7},
	}
	if !reflect.DeepEqual(toks, want) {
		t.Fatalf("tokens = %+v, want %+v", toks, want)
	}
}

func TestExtractCleanText(t *testing.T) {
	t.Parallel()

	toks, clean := Extract("{COLOR1}Hello {NAME1}, welcome!{WAIT30}")
	if clean != "Hello , welcome!" {
		t.Fatalf("clean = %q", clean)
	}
	if len(toks) != 3 {
		t.Fatalf("got %d tokens, want 3", len(toks))
	}
	types := []string{toks[0].Type, toks[1].Type, toks[2].Type}
	if !reflect.DeepEqual(types, []string{"text_color", "player_name", "text_wait"}) {
		t.Fatalf("types = %v", types)
	}
}

func TestReconstructCollapsedSingleSpace(t *testing.T) {
	t.Parallel()

	text := "Hello\nWorld"
	toks, clean := Extract(text)
	if clean != "Hello World" {
		t.Fatalf("clean = %q", clean)
	}
	if got := Reconstruct(clean, toks); got != text {
		t.Fatalf("Reconstruct = %q, want %q", got, text)
	}
}

// Collapsing a multi-space run shifts later positions, so the collapsed
// path cannot restore the original exactly. The uncollapsed path can.
func TestReconstructCollapsedMultiSpaceDiverges(t *testing.T) {
	t.Parallel()

	text := "{COLOR1}Hi  there{WAIT30}"
	toks, clean := Extract(text)
	got := Reconstruct(clean, toks)
	if got == text {
		t.Fatalf("collapsed reconstruction unexpectedly exact")
	}
	if got != "{COLOR1}Hi there{WAIT30}" {
		t.Fatalf("collapsed reconstruction = %q", got)
	}

	toks, masked := Mask(text)
	if got := Reconstruct(masked, toks); got != text {
		t.Fatalf("uncollapsed reconstruction = %q", got)
	}
}

func TestReconstructRuneBoundary(t *testing.T) {
	t.Parallel()

	got := Reconstruct("éé", []Token{{Token: "{00}", Position: 1, Length: 4}})
	if got != "{00}éé" {
		t.Fatalf("Reconstruct = %q", got)
	}
}

func TestSegments(t *testing.T) {
	t.Parallel()

	text := "{COLOR1}Hello {NAME1}!"
	segs := Segments(text)
	want := []Segment{
		{Text: "{COLOR1}", Token: true},
		{Text: "Hello "},
		{Text: "{NAME1}", Token: true},
		{Text: "!"},
	}
	if !reflect.DeepEqual(segs, want) {
		t.Fatalf("Segments = %+v", segs)
	}
	if Join(segs) != text {
		t.Fatalf("Join = %q", Join(segs))
	}
	if segs := Segments("no codes"); len(segs) != 1 || segs[0].Token {
		t.Fatalf("Segments(plain) = %+v", segs)
	}
}

func TestSplitSpace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in                   string
		prefix, core, suffix string
	}{
		{"  hi there \n", "  ", "hi there", " \n"},
		{"word", "", "word", ""},
		{"   ", "   ", "", ""},
		{" café", " ", "café", ""},
	}
	for _, tc := range tests {
		p, c, s := SplitSpace(tc.in)
		if p != tc.prefix || c != tc.core || s != tc.suffix {
			t.Errorf("SplitSpace(%q) = %q %q %q", tc.in, p, c, s)
		}
	}
}

func TestIsSpecialToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want bool
	}{
		{"MSG_0012", true},
		{"EVT_OPENING", true},
		{"Hello「", true},
		{`a\nb`, true},
		{"Take {ITEM2}", true},
		{"Plain text", false},
		{"MESSAGE", false},
	}
	for _, tc := range tests {
		if got := IsSpecialToken(tc.text); got != tc.want {
			t.Errorf("IsSpecialToken(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestPreserve(t *testing.T) {
	t.Parallel()

	if got := Preserve("{COLOR1}Hello{00}", " Bonjour "); got != "{COLOR1}Bonjour{00}" {
		t.Fatalf("Preserve = %q", got)
	}
	if got := Preserve("{00}", "anything"); got != "{00}" {
		t.Fatalf("Preserve(tokens only) = %q", got)
	}
}
