// Package tokens separates embedded game control codes from translatable
// prose and restores them afterwards.
//
// A token is a literal control sequence ({COLOR1}, {F2 08 FF FF}, a quote
// marker, a newline escape...) inside a decoded span. Tokens are recorded
// with their byte position in the decoded text and replaced by equal-length
// space padding, so every other position stays stable.
package tokens

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token is one control code found inside decoded text.
type Token struct {
	// Token is the literal matched substring.
	Token string
	// Type is the category tag, e.g. "player_name" or "text_color".
	Type string
	// Position is the byte index in the decoded (unmasked) text.
	Position int
	// Length is the byte length of Token.
	Length int
}

type pattern struct {
	re  *regexp.Regexp
	typ string
}

// ---------------------------------------------------------------------------
// Pattern table
// ---------------------------------------------------------------------------

// Patterns are applied in order. A region claimed by an earlier pattern is
// masked before later patterns run, so {00} is tagged game_end and never
// re-matched by the generic two-digit code.
var patterns = []pattern{
	// Game format codes
	{regexp.MustCompile(`\{F[0-9A-F]{2}\s+[0-9A-F]{2}\s+[0-9A-F]{2}\s+[0-9A-F]{2}\}`), "game_format_4"},
	{regexp.MustCompile(`\{F[0-9A-F]{2}\s+[0-9A-F]{2}\}`), "game_format_2"},
	{regexp.MustCompile(`\{00\}`), "game_end"},
	{regexp.MustCompile(`\{[0-9A-F]{2}\}`), "game_format_1"},

	// Dialogue placeholders
	{regexp.MustCompile(`\{NAME\d+\}`), "player_name"},
	{regexp.MustCompile(`\{ITEM\d+\}`), "item_name"},
	{regexp.MustCompile(`\{PERSONA\d+\}`), "persona_name"},
	{regexp.MustCompile(`\{SKILL\d+\}`), "skill_name"},
	{regexp.MustCompile(`\{LOCATION\d+\}`), "location_name"},

	// Text formatting
	{regexp.MustCompile(`\{COLOR\d+\}`), "text_color"},
	{regexp.MustCompile(`\{SPEED\d+\}`), "text_speed"},
	{regexp.MustCompile(`\{WAIT\d+\}`), "text_wait"},
	{regexp.MustCompile(`\{CLEAR\}`), "clear_text"},
	{regexp.MustCompile(`\{WINDOW\d+\}`), "window_type"},

	// Sound and animation
	{regexp.MustCompile(`\{SOUND\d+\}`), "sound_effect"},
	{regexp.MustCompile(`\{VOICE\d+\}`), "voice_line"},
	{regexp.MustCompile(`\{ANIM\d+\}`), "animation"},
	{regexp.MustCompile(`\{FACE\d+\}`), "face_emotion"},

	// Menus and choices
	{regexp.MustCompile(`\{CHOICE\d+\}`), "menu_choice"},
	{regexp.MustCompile(`\{YESNO\}`), "yes_no_prompt"},
	{regexp.MustCompile(`\{INPUT\}`), "text_input"},
	{regexp.MustCompile(`\{CURSOR\d+\}`), "cursor_pos"},

	// Battle values
	{regexp.MustCompile(`\{HP\d+\}`), "hp_value"},
	{regexp.MustCompile(`\{SP\d+\}`), "sp_value"},
	{regexp.MustCompile(`\{STATUS\d+\}`), "status_effect"},
	{regexp.MustCompile(`\{DAMAGE\d+\}`), "damage_value"},

	// Standard formatting
	{regexp.MustCompile(`「`), "dialog_start"},
	{regexp.MustCompile(`」`), "dialog_end"},
	{regexp.MustCompile(`『`), "thought_start"},
	{regexp.MustCompile(`』`), "thought_end"},
	{regexp.MustCompile(`\\n`), "newline_esc"},
	{regexp.MustCompile(`\\t`), "tab_esc"},
	{regexp.MustCompile(`\\r`), "carriage_return_esc"},
	{regexp.MustCompile("\n"), "newline"},
	{regexp.MustCompile("\t"), "tab"},
	{regexp.MustCompile("\r"), "carriage_return"},
}

// formatTokens are the standard formatting sequences checked by
// IsSpecialToken.
var formatTokens = []string{"\n", "\t", "\r", `\n`, `\t`, `\r`, "「", "」", "『", "』"}

// CommandPrefixes start identifiers such as MSG_0012 or EVT_OPENING.
var CommandPrefixes = []string{"MSG_", "CMD_", "EVT_", "SCENE_", "BATTLE_", "QUEST_"}

var whitespaceRun = regexp.MustCompile(`\s+`)

// ---------------------------------------------------------------------------
// Extraction
// ---------------------------------------------------------------------------

// Mask finds every token in text and returns them ordered by position,
// together with text where each token is overwritten by spaces of equal
// byte length.
func Mask(text string) ([]Token, string) {
	work := []byte(text)
	var found []Token
	for _, p := range patterns {
		for _, loc := range p.re.FindAllIndex(work, -1) {
			start, end := loc[0], loc[1]
			found = append(found, Token{
				Token:    text[start:end],
				Type:     p.typ,
				Position: start,
				Length:   end - start,
			})
			for i := start; i < end; i++ {
				work[i] = ' '
			}
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Position < found[j].Position })
	return found, string(work)
}

// Extract returns the tokens of text and its clean text: the masked text
// with whitespace runs collapsed to one space and trimmed. Token positions
// refer to the uncollapsed text.
func Extract(text string) ([]Token, string) {
	toks, masked := Mask(text)
	return toks, Collapse(masked)
}

// Collapse folds whitespace runs to a single space and trims the result.
func Collapse(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// Reconstruct reinserts tokens into text in descending position order.
// When text still holds the space padding at a token's slot the padding is
// overwritten; otherwise the token is inserted at its position, clamped to
// the text and moved back to a rune boundary.
//
// Reconstruct(Mask(t)) always returns t. Reconstructing against collapsed
// text is only exact when no whitespace collapsed before a token.
func Reconstruct(text string, toks []Token) string {
	sorted := make([]Token, len(toks))
	copy(sorted, toks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position > sorted[j].Position })

	result := text
	for _, tok := range sorted {
		pos := tok.Position
		if pos < 0 {
			pos = 0
		}
		if pos > len(result) {
			pos = len(result)
		}
		for pos > 0 && pos < len(result) && !utf8.RuneStart(result[pos]) {
			pos--
		}
		if pos+tok.Length <= len(result) && isPadding(result[pos:pos+tok.Length]) && tok.Length > 0 {
			result = result[:pos] + tok.Token + result[pos+tok.Length:]
			continue
		}
		result = result[:pos] + tok.Token + result[pos:]
	}
	return result
}

func isPadding(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Segments
// ---------------------------------------------------------------------------

// Segment is a slice of decoded text that is either prose or one token.
type Segment struct {
	Text  string
	Token bool
}

// Segments splits text into alternating prose and token segments in
// original order. Joining every Segment.Text gives back text.
func Segments(text string) []Segment {
	toks, _ := Mask(text)
	var segs []Segment
	pos := 0
	for _, tok := range toks {
		if tok.Position > pos {
			segs = append(segs, Segment{Text: text[pos:tok.Position]})
		}
		segs = append(segs, Segment{Text: tok.Token, Token: true})
		pos = tok.Position + tok.Length
	}
	if pos < len(text) {
		segs = append(segs, Segment{Text: text[pos:]})
	}
	return segs
}

// Join concatenates segment texts.
func Join(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Text)
	}
	return b.String()
}

// SplitSpace separates leading and trailing whitespace from s.
func SplitSpace(s string) (prefix, core, suffix string) {
	start := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) })
	if start < 0 {
		return s, "", ""
	}
	end := strings.LastIndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) })
	_, size := utf8.DecodeRuneInString(s[end:])
	end += size
	return s[:start], s[start:end], s[end:]
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// IsSpecialToken reports whether text contains a control code, a standard
// formatting token, or starts with a command-id prefix.
func IsSpecialToken(text string) bool {
	for _, p := range patterns {
		if p.re.MatchString(text) {
			return true
		}
	}
	for _, f := range formatTokens {
		if strings.Contains(text, f) {
			return true
		}
	}
	return HasCommandPrefix(text)
}

// HasCommandPrefix reports whether text starts with a command-id prefix.
func HasCommandPrefix(text string) bool {
	for _, p := range CommandPrefixes {
		if strings.HasPrefix(text, p) {
			return true
		}
	}
	return false
}

// Preserve restores the tokens of original into a translated clean string.
// When original holds nothing but tokens it is returned unchanged.
func Preserve(original, translated string) string {
	toks, clean := Extract(original)
	if clean == "" {
		return original
	}
	return Reconstruct(strings.TrimSpace(translated), toks)
}
