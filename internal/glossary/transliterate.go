package glossary

import (
	"strings"
	"unicode"
)

// cyrillicToLatin is a phonetic romanization, the informal style Russian
// gamers use in Latin-only chats.
var cyrillicToLatin = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d",
	'е': "e", 'ё': "yo", 'ж': "zh", 'з': "z", 'и': "i",
	'й': "y", 'к': "k", 'л': "l", 'м': "m", 'н': "n",
	'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t",
	'у': "u", 'ф': "f", 'х': "kh", 'ц': "ts", 'ч': "ch",
	'ш': "sh", 'щ': "shch", 'ъ': "", 'ы': "y", 'ь': "",
	'э': "e", 'ю': "yu", 'я': "ya",
	// Ukrainian і occasionally appears in mixed text.
	'і': "i",
}

// Transliterate converts Cyrillic characters to their Latin phonetic
// equivalents; everything else passes through unchanged.
func Transliterate(text string) string {
	if !HasCyrillic(text) {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	for _, r := range text {
		lower := unicode.ToLower(r)
		mapped, ok := cyrillicToLatin[lower]
		if !ok {
			b.WriteRune(r)
			continue
		}

		if r != lower && mapped != "" {
			b.WriteString(strings.ToUpper(mapped[:1]) + mapped[1:])
		} else {
			b.WriteString(mapped)
		}
	}

	return b.String()
}

// HasCyrillic reports whether the text contains any Cyrillic characters.
func HasCyrillic(text string) bool {
	for _, r := range text {
		if r >= 0x0400 && r <= 0x04FF {
			return true
		}
	}
	return false
}

// Transliterator wraps Transliterate to satisfy the pipeline Rewriter
// contract.
type Transliterator struct{}

// Apply transliterates the text.
func (Transliterator) Apply(text string) string {
	return Transliterate(text)
}

// Chain runs several rewriters in order.
type Chain []interface{ Apply(string) string }

// Apply runs every rewriter in the chain.
func (c Chain) Apply(text string) string {
	for _, r := range c {
		text = r.Apply(text)
	}
	return text
}
