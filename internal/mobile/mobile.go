// Package mobile validates, normalizes, formats, locates and masks Egyptian
// mobile numbers.
//
// Every function is total: invalid input yields false, an empty result or
// the input unchanged. Nothing here returns an error.
package mobile

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ahmedgfathy/contaboo/internal/patterns"
)

// Carrier is a mobile network operator.
type Carrier struct {
	Name       string
	ArabicName string
}

var carriers = map[byte]Carrier{
	'0': {Name: "Vodafone", ArabicName: "فودافون"},
	'1': {Name: "Etisalat", ArabicName: "اتصالات"},
	'2': {Name: "Orange", ArabicName: "أورانج"},
	'5': {Name: "WE", ArabicName: "وي"},
}

// canonicalRE is the 11-digit local form.
var canonicalRE = regexp.MustCompile(`^01[0125][0-9]{8}$`)

// Digit classes accept ASCII and both Arabic-Indic blocks so spans can be
// reported against the caller's original text.
const (
	digit   = `[0-9٠-٩۰-۹]`
	zero    = `[0٠۰]`
	one     = `[1١۱]`
	two     = `[2٢۲]`
	carrier = `[0125٠١٢٥۰۱۲۵]`
)

// variants are tried in order. Earlier variants win when spans overlap.
var variants = []*regexp.Regexp{
	// country-coded, optionally grouped: +20 10 1234 5678, 0020-10-12345678
	regexp.MustCompile(`(?:\+|` + zero + zero + `)?` + two + `[\s-]?` + zero + `[\s-]?` + zero + `?` + one + carrier + `(?:[\s-]?` + digit + `){8}`),
	// compact canonical shape, including "+2 01..." forms
	regexp.MustCompile(`\+?` + two + `?` + zero + one + carrier + digit + `{8}`),
	// local, optionally grouped: 010 1234 5678, 0101-234-5678
	regexp.MustCompile(zero + one + carrier + `(?:[\s-]?` + digit + `){8}`),
}

// splitRE captures the right-to-left rendering where a number is broken into
// an eight-digit body, the carrier pair and the country code, e.g.
// "26433244 10 20+".
var splitRE = regexp.MustCompile(`(` + digit + `{8})[\s-]*(` + digit + `{2})[\s-]*(` + digit + `{2})\+?`)

// Match is one mobile number found in free text. Start and End are byte
// offsets into the searched text. Reordered marks a right-to-left split
// form whose digit groups were put back in order to normalize it.
type Match struct {
	Start      int
	End        int
	Raw        string
	Normalized string
	Reordered  bool
}

// Normalize reduces any accepted form to the canonical 11-digit local form.
// The second return is false when the input cannot be an Egyptian mobile.
// Normalize is idempotent.
func Normalize(s string) (string, bool) {
	d := digitsOnly(s)
	switch {
	case strings.HasPrefix(d, "0020") && len(d) >= 14:
		d = d[4:]
	case strings.HasPrefix(d, "20") && (len(d) == 12 || len(d) == 13):
		d = d[2:]
	}
	if len(d) == 10 && d[0] == '1' {
		d = "0" + d
	}
	if !canonicalRE.MatchString(d) {
		return "", false
	}
	return d, true
}

// Validate reports whether s normalizes to a canonical Egyptian mobile.
func Validate(s string) bool {
	_, ok := Normalize(s)
	return ok
}

// Format renders the canonical display grouping "+20 10 1234 5678".
// Input that does not validate is returned unchanged.
func Format(s string) string {
	n, ok := Normalize(s)
	if !ok {
		return s
	}
	return "+20 " + n[1:3] + " " + n[3:7] + " " + n[7:]
}

// CarrierOf maps the carrier digit of a valid number to its operator.
func CarrierOf(s string) (Carrier, bool) {
	n, ok := Normalize(s)
	if !ok {
		return Carrier{}, false
	}
	c, ok := carriers[n[2]]
	return c, ok
}

// FindAll returns every mobile number in text, ordered by position. Spans
// never overlap. A candidate glued to further digits on either side is
// rejected so that longer numeric runs are left alone. Direct forms win
// over the right-to-left split form.
func FindAll(text string) []Match {
	if text == "" {
		return nil
	}
	var out []Match
	for _, re := range variants {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			if overlaps(out, start, end) || !bounded(text, start, end) {
				continue
			}
			raw := text[start:end]
			n, ok := Normalize(raw)
			if !ok {
				continue
			}
			out = append(out, Match{Start: start, End: end, Raw: raw, Normalized: n})
		}
	}
	for _, m := range splitRE.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if overlaps(out, start, end) || !bounded(text, start, end) {
			continue
		}
		body, pair, code := text[m[2]:m[3]], text[m[4]:m[5]], text[m[6]:m[7]]
		n, ok := Normalize(code + pair + body)
		if !ok {
			n, ok = Normalize(body + pair + code)
		}
		if !ok {
			continue
		}
		out = append(out, Match{Start: start, End: end, Raw: text[start:end], Normalized: n, Reordered: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Extract returns the first mobile number in text, normalized, including
// numbers whose digit groups were reordered by right-to-left rendering.
func Extract(text string) (string, bool) {
	if ms := FindAll(text); len(ms) > 0 {
		return ms[0].Normalized, true
	}
	return "", false
}

// ExtractAll returns every distinct normalized number in order of first
// appearance.
func ExtractAll(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range FindAll(text) {
		if seen[m.Normalized] {
			continue
		}
		seen[m.Normalized] = true
		out = append(out, m.Normalized)
	}
	return out
}

// IsEgyptian reports whether text carries at least one Egyptian mobile.
func IsEgyptian(text string) bool {
	_, ok := Extract(text)
	return ok
}

// Masking defaults.
const (
	DefaultMaskChar = '*'
	// VisiblePrefix is how many leading characters of a match an
	// unauthenticated viewer sees.
	VisiblePrefix = 2
	// maskedLen is fixed so the redaction does not leak the digit count.
	maskedLen = 9
)

// Masker rewrites mobile numbers inside free text.
type Masker struct {
	Char rune
}

// Mask uses the default mask character.
func Mask(text string, authenticated bool) string {
	return Masker{Char: DefaultMaskChar}.Mask(text, authenticated)
}

// Mask replaces every mobile number in text. Authenticated viewers get the
// formatted number; everyone else sees VisiblePrefix characters followed by
// mask characters. Text outside matches is copied verbatim.
func (m Masker) Mask(text string, authenticated bool) string {
	ms := FindAll(text)
	if len(ms) == 0 {
		return text
	}
	ch := m.Char
	if ch == 0 {
		ch = DefaultMaskChar
	}
	redacted := strings.Repeat(string(ch), maskedLen)

	var b strings.Builder
	b.Grow(len(text) + 8*len(ms))
	last := 0
	for _, mt := range ms {
		b.WriteString(text[last:mt.Start])
		if authenticated {
			b.WriteString(Format(mt.Normalized))
		} else {
			visible := mt.Raw
			if mt.Reordered {
				visible = mt.Normalized
			}
			b.WriteString(prefix(visible, VisiblePrefix))
			b.WriteString(redacted)
		}
		last = mt.End
	}
	b.WriteString(text[last:])
	return b.String()
}

func prefix(s string, n int) string {
	i := 0
	for idx := range s {
		if i == n {
			return s[:idx]
		}
		i++
	}
	return s
}

func digitsOnly(s string) string {
	s = patterns.NormalizeDigits(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func overlaps(ms []Match, start, end int) bool {
	for _, m := range ms {
		if start < m.End && m.Start < end {
			return true
		}
	}
	return false
}

// bounded reports whether the span is not glued to neighbouring digits.
func bounded(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isDigit(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isDigit(r) {
			return false
		}
	}
	return true
}

func isDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= '٠' && r <= '٩') || (r >= '۰' && r <= '۹')
}
