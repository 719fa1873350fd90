package sarvam

import (
	"unicode"

	"voice-lending-go/internal/locale"
)

var scripts = []struct {
	table *unicode.RangeTable
	tag   locale.Tag
}{
	{unicode.Devanagari, "hi-IN"},
	{unicode.Tamil, "ta-IN"},
	{unicode.Telugu, "te-IN"},
	{unicode.Kannada, "kn-IN"},
	{unicode.Malayalam, "ml-IN"},
	{unicode.Bengali, "bn-IN"},
	{unicode.Gujarati, "gu-IN"},
	{unicode.Gurmukhi, "pa-IN"},
}

// mockDetect guesses the language from the first non-Latin script it sees.
// Marathi shares Devanagari and comes back as Hindi.
func mockDetect(text string) locale.Tag {
	for _, r := range text {
		if r < unicode.MaxLatin1 {
			continue
		}
		for _, s := range scripts {
			if unicode.Is(s.table, r) {
				return s.tag
			}
		}
	}
	return locale.Default
}
