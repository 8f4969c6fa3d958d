package skip

import (
	"reflect"
	"testing"
)

func TestShouldSkip(t *testing.T) {
	t.Parallel()

	whitelist := []string{"Yukari", "SEES"}
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", true},
		{"blank", "   ", true},
		{"tokens only", "{COLOR1}{00}", true},
		{"whitelisted name", "Yukari", false},
		{"whitelisted code-like name", "SEES", false},
		{"integer", "1234", true},
		{"uppercase code", "MSG_0012", true},
		{"command prefix", "EVT_Opening", true},
		{"symbols", "...", true},
		{"spaced symbols", "- - -", true},
		{"control char", "Hi\x01there", true},
		{"short no vowel", "Hm", true},
		{"short with vowel", "OK", false},
		{"word", "Hello", false},
		{"sentence", "Try again?", false},
		{"tokens around prose", "{COLOR1}Welcome back{00}", false},
		{"short code without vowel", "HP", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldSkip(tc.text, whitelist, "", ""); got != tc.want {
				t.Fatalf("ShouldSkip(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestSentenceCheck(t *testing.T) {
	t.Parallel()

	p := Policy{SentenceCheck: true}
	tests := []struct {
		text string
		want bool
	}{
		{"Hello", true},
		{"Press START to continue", false},
		{"hello there", true},
		{"hello there.", false},
		{"@#$ %^& ok.", true},
	}
	for _, tc := range tests {
		if got := p.ShouldSkip(tc.text, "", ""); got != tc.want {
			t.Errorf("ShouldSkip(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestNeighborCheck(t *testing.T) {
	t.Parallel()

	texts := []string{"Game Over", "game over", "Continue?"}

	got := Policy{NeighborCheck: true}.Filter(texts)
	if want := []bool{true, true, false}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Filter with neighbor check = %v, want %v", got, want)
	}

	got = Policy{}.Filter(texts)
	if want := []bool{false, false, false}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Filter = %v, want %v", got, want)
	}
}

func TestIsSentence(t *testing.T) {
	t.Parallel()

	if !IsSentence("Ça va bien, merci.") {
		t.Error("accented sentence rejected")
	}
	if IsSentence("Hi  there.") {
		t.Error("doubled space accepted")
	}
	if IsSentence(" Leading space.") {
		t.Error("edge space accepted")
	}
	if IsSentence("ab") {
		t.Error("too short accepted")
	}
}
