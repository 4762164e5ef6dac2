package util

import (
	"time"

	"golang.org/x/text/language"
)

var supportedLanguages = []language.Tag{
	language.English, // default
	language.German,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

var timeLayouts = map[language.Base]string{
	mustBase(language.English): "Jan 2, 2006 3:04 PM",
	mustBase(language.German):  "02.01.2006 15:04",
}

func mustBase(tag language.Tag) language.Base {
	base, _ := tag.Base()
	return base
}

// Language returns the best supported language for an Accept-Language header value.
func Language(acceptLanguage string) language.Tag {
	tag, _ := language.MatchStrings(languageMatcher, acceptLanguage)
	return tag
}

// FormatTime formats t in the given location and language. The zero time yields an empty string.
func FormatTime(t time.Time, lang language.Tag, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	layout, ok := timeLayouts[mustBase(lang)]
	if !ok {
		layout = timeLayouts[mustBase(language.English)]
	}
	return t.In(loc).Format(layout)
}
