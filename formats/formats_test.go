package formats

import (
	"testing"
)

func TestDetectBinary(t *testing.T) {
	data := []byte("Hello World\x00This is a test\x00")
	info := Detect("/game/E0001.PM1", data, "fr")
	if info.Tag != "pm1" {
		t.Errorf("Tag = %q, want pm1", info.Tag)
	}
	if !info.Binary {
		t.Error("Binary = false for NUL-separated data")
	}
	if info.Spans != 2 {
		t.Errorf("Spans = %d, want 2", info.Spans)
	}
	if want := 25.0 / 27.0; info.TextScore != want {
		t.Errorf("TextScore = %v, want %v", info.TextScore, want)
	}
	if info.Status != Untranslated {
		t.Errorf("Status = %q, want untranslated", info.Status)
	}
	if info.Language != "" {
		t.Errorf("Language = %q for binary data", info.Language)
	}
}

func TestDetectText(t *testing.T) {
	info := Detect("notes.txt", []byte("Just some plain text here\n"), "fr")
	if info.Binary {
		t.Error("Binary = true for plain text")
	}
	if info.Spans != 1 {
		t.Errorf("Spans = %d, want 1", info.Spans)
	}
}

func TestDetectEmpty(t *testing.T) {
	info := Detect("empty.bf", nil, "fr")
	if info.TextScore != 0 || info.Spans != 0 || info.Status != Unknown {
		t.Errorf("info = %+v", info)
	}
}

func TestEstimateStatus(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		lang  string
		want  Status
	}{
		{"none marked", []string{"Hello World", "Game Over"}, "fr", Untranslated},
		{"all marked", []string{"Ça va très bien", "Partie terminée"}, "fr", Translated},
		{"half marked", []string{"Ça va très bien", "Game Over"}, "fr", Translated},
		{"some marked", []string{"Ça va très bien", "Game Over", "Continue", "Load"}, "fr", Partial},
		{"german", []string{"Schöne Grüße"}, "de", Translated},
		{"english has no markers", []string{"Hello"}, "en", Unknown},
		{"empty", nil, "fr", Unknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EstimateStatus(tc.texts, tc.lang); got != tc.want {
				t.Errorf("EstimateStatus = %q, want %q", got, tc.want)
			}
		})
	}
}
