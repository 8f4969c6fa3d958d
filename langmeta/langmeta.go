// Package langmeta provides a shared language metadata registry: English
// and native display names used in provider prompts and CLI output, plus
// the characters that mark text as written in that language.
package langmeta

import (
	"strings"

	"golang.org/x/text/language"
)

// Meta describes language display metadata.
type Meta struct {
	Code   string
	Name   string
	Native string
	// Markers are characters common in the language and rare in English.
	// They drive the translation-status estimate for extracted text.
	Markers string
}

// Registry is keyed by canonical BCP 47 code.
var Registry = map[string]Meta{
	"cs":    {Name: "Czech", Native: "Čeština", Markers: "ěščřžýáíéůú"},
	"de":    {Name: "German", Native: "Deutsch", Markers: "äöüßÄÖÜ"},
	"en":    {Name: "English", Native: "English"},
	"es":    {Name: "Spanish", Native: "Español", Markers: "ñáéíóú¿¡"},
	"fr":    {Name: "French", Native: "Français", Markers: "éèêàçùâîôûœÉ"},
	"it":    {Name: "Italian", Native: "Italiano", Markers: "àèéìòù"},
	"ja":    {Name: "Japanese", Native: "日本語", Markers: "のはをにがでしたすアイ"},
	"ko":    {Name: "Korean", Native: "한국어", Markers: "이는을에가다하"},
	"nl":    {Name: "Dutch", Native: "Nederlands", Markers: "ëïéĳ"},
	"pl":    {Name: "Polish", Native: "Polski", Markers: "ąćęłńóśźż"},
	"pt":    {Name: "Portuguese", Native: "Português", Markers: "ãõçáéíóúâê"},
	"pt-BR": {Name: "Portuguese (Brazil)", Native: "Português (Brasil)", Markers: "ãõçáéíóúâê"},
	"ru":    {Name: "Russian", Native: "Русский", Markers: "абвгдежзийклмнопрстуфхцчшщыьэюя"},
	"sv":    {Name: "Swedish", Native: "Svenska", Markers: "åäöÅÄÖ"},
	"tr":    {Name: "Turkish", Native: "Türkçe", Markers: "çğışöüİ"},
	"uk":    {Name: "Ukrainian", Native: "Українська", Markers: "абвгґдеєжзиіїйклмнопрстуфхцчшщьюя"},
	"zh":    {Name: "Chinese", Native: "中文", Markers: "的是了不在人我有"},
	"zh-CN": {Name: "Chinese (Simplified)", Native: "简体中文", Markers: "的是了不在人我有这"},
	"zh-TW": {Name: "Chinese (Traditional)", Native: "繁體中文", Markers: "的是了不在人我有這"},
}

// canonicalize returns the BCP 47 form of lang ("pt_br" becomes "pt-BR").
// Tags x/text/language rejects are normalized by case and separator only.
func canonicalize(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}
	if tag, err := language.Parse(lang); err == nil {
		return tag.String()
	}
	parts := strings.Split(strings.ReplaceAll(lang, "_", "-"), "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) > 1 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Resolve returns metadata for lang, trying the code as given, its
// canonical form, then its base language. Unknown codes get their own code
// as the name and no markers.
func Resolve(lang string) Meta {
	canon := canonicalize(lang)
	candidates := []string{lang, canon}
	if base, _, ok := strings.Cut(canon, "-"); ok {
		candidates = append(candidates, base)
	}
	for _, code := range candidates {
		if m, ok := Registry[code]; ok {
			m.Code = code
			return m
		}
	}
	return Meta{Code: lang, Name: lang, Native: lang}
}

// Known reports whether lang resolves to a registry entry.
func Known(lang string) bool {
	_, ok := Registry[Resolve(lang).Code]
	return ok
}

// PromptName renders a language for a provider prompt, e.g.
// "French (Français)".
func PromptName(lang string) string {
	m := Resolve(lang)
	if m.Native == "" || m.Native == m.Name {
		return m.Name
	}
	return m.Name + " (" + m.Native + ")"
}
