package patterns

import (
	"strings"
	"unicode"
)

// NormalizeDigits maps Arabic-Indic (٠-٩) and Extended Arabic-Indic (۰-۹)
// digits to ASCII. Every other rune is kept, so byte offsets of non-digit
// text shift only where a digit was replaced.
func NormalizeDigits(s string) string {
	if !hasArabicDigit(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		b.WriteRune(asciiDigit(r))
	}
	return b.String()
}

func hasArabicDigit(s string) bool {
	for _, r := range s {
		if (r >= '٠' && r <= '٩') || (r >= '۰' && r <= '۹') {
			return true
		}
	}
	return false
}

func asciiDigit(r rune) rune {
	switch {
	case r >= '٠' && r <= '٩':
		return '0' + (r - '٠')
	case r >= '۰' && r <= '۹':
		return '0' + (r - '۰')
	}
	return r
}

// Fold produces the comparison form used for keyword matching: lowercase,
// ASCII digits, hamza-carrying alefs folded to bare alef, taa marbuta to haa,
// alef maqsura to yaa, with tatweel and harakat removed.
func Fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == 'أ' || r == 'إ' || r == 'آ' || r == 'ٱ':
			b.WriteRune('ا')
		case r == 'ة':
			b.WriteRune('ه')
		case r == 'ى':
			b.WriteRune('ي')
		case r == 'ـ':
			// tatweel
		case r >= 0x064B && r <= 0x065F, r == 0x0670:
			// harakat
		default:
			b.WriteRune(unicode.ToLower(asciiDigit(r)))
		}
	}
	return b.String()
}

// IsArabicWord reports whether the first letter of w is Arabic script.
func IsArabicWord(w string) bool {
	for _, r := range w {
		if unicode.IsLetter(r) {
			return unicode.Is(unicode.Arabic, r)
		}
	}
	return false
}
