package provider

import (
	"golang.org/x/text/language"
)

var (
	untitledTags = []language.Tag{
		language.English,
		language.German,
		language.French,
		language.Spanish,
		language.Portuguese,
		language.Japanese,
	}
	untitledText = []string{
		"Untitled",
		"Ohne Titel",
		"Sans titre",
		"Sin título",
		"Sem título",
		"無題",
	}
	untitledMatcher = language.NewMatcher(untitledTags)
)

// Untitled returns the placeholder title for lang, an Accept-Language style
// list. Unknown or empty input falls back to English.
func Untitled(lang string) string {
	tags, _, err := language.ParseAcceptLanguage(lang)
	if err != nil || len(tags) == 0 {
		return untitledText[0]
	}
	_, idx, _ := untitledMatcher.Match(tags...)
	return untitledText[idx]
}
