package quality

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ahmedgfathy/contaboo/internal/mobile"
	"github.com/ahmedgfathy/contaboo/internal/patterns"
)

// DefaultLookahead is how many earlier kept blocks a candidate repeated
// block is compared against.
const DefaultLookahead = 4

var (
	repeatedBlockRE   = patterns.Defect(patterns.RepeatedBlock)
	emptyElementRE    = patterns.Defect(patterns.EmptyElement)
	fieldValueRE      = patterns.Defect(patterns.FieldValuePair)
	digitRunRE        = patterns.Defect(patterns.DigitRun)
	scriptTokenRE     = patterns.Defect(patterns.ScriptToken)
	loneLatinRE       = patterns.Defect(patterns.LoneLatin)
	priceLabelRE      = patterns.Defect(patterns.PriceLabel)
	metricUnitRE      = patterns.Defect(patterns.MetricUnit)
	imperialUnitRE    = patterns.Defect(patterns.ImperialUnit)
	placeholderRE     = patterns.Defect(patterns.Placeholder)
	headerElementRE   = patterns.Defect(patterns.HeaderElement)
	stickyPositionRE  = patterns.Defect(patterns.StickyPosition)
	paragraphRE       = patterns.Defect(patterns.Paragraph)
	scrollButtonRE    = patterns.Defect(patterns.ScrollButton)
	scrollAffordRE    = patterns.Defect(patterns.ScrollAffordance)
	bodyTagRE         = patterns.Defect(patterns.BodyTag)
	clickHandlerRE    = patterns.Defect(patterns.ClickHandler)
	cssBlockRE        = patterns.Defect(patterns.CSSBlock)
	inlineStyleRE     = patterns.Defect(patterns.InlineStyle)
	offsetPositionRE  = patterns.Defect(patterns.OffsetPosition)
	layeredPositionRE = patterns.Defect(patterns.LayeredPosition)
	zeroEdgeRE        = patterns.Defect(patterns.ZeroEdge)
	zIndexRE          = patterns.Defect(patterns.ZIndex)
	wordRE            = patterns.Defect(patterns.Word)
	fieldSuffixRE     = patterns.Defect(patterns.FieldNameSuffix)
	fieldSepRE        = patterns.Defect(patterns.FieldNameSeparate)

	fixedPositionRE = regexp.MustCompile(`(?i)position\s*:\s*fixed`)
)

// stickyMarker tags the style block injected for floating headers. Markup
// carrying it is not reported again.
const stickyMarker = "/* contaboo:sticky-header */"

type span struct{ start, end int }

// ---- Record detectors ----

func normalizeFieldName(name string) string {
	l := strings.ToLower(strings.TrimSpace(name))
	base := fieldSuffixRE.ReplaceAllString(l, "")
	if base == "" {
		base = l
	}
	return fieldSepRE.ReplaceAllString(base, "")
}

// DetectDuplicateFields reports groups of fields whose names collide once
// case, separators and duplicate markers such as "_duplicate" or "_copy"
// are ignored. Numbered columns like "Phone 1" and "Phone 2" stay distinct.
func DetectDuplicateFields(r Record) []Finding {
	groups := make(map[string][]string)
	var order []string
	for _, f := range r.Fields {
		k := normalizeFieldName(f.Name)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], f.Name)
	}
	var out []Finding
	for _, k := range order {
		if names := groups[k]; len(names) > 1 {
			out = append(out, newFinding(RuleDuplicateFields, strings.Join(names, ", ")))
		}
	}
	return out
}

func isEmptyValue(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, "null") || strings.EqualFold(v, "undefined")
}

// DetectEmptyValues reports fields whose value is blank, "null" or
// "undefined".
func DetectEmptyValues(r Record) []Finding {
	var out []Finding
	for _, f := range r.Fields {
		if isEmptyValue(f.Value) {
			out = append(out, newFinding(RuleEmptyValues, f.Name))
		}
	}
	return out
}

// ---- Markup detectors ----

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// repeatedBlockSpans returns the blocks that repeat one of the previous
// lookahead kept blocks.
func repeatedBlockSpans(html string, lookahead int) []span {
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}
	var kept []string
	var dups []span
	for _, loc := range repeatedBlockRE.FindAllStringIndex(html, -1) {
		block := collapseSpace(html[loc[0]:loc[1]])
		from := len(kept) - lookahead
		if from < 0 {
			from = 0
		}
		dup := false
		for _, k := range kept[from:] {
			if strings.EqualFold(k, block) {
				dup = true
				break
			}
		}
		if dup {
			dups = append(dups, span{loc[0], loc[1]})
			continue
		}
		kept = append(kept, block)
	}
	return dups
}

// DetectRepeatedBlocks reports sections, unit-detail or repeated-block divs,
// label+control pairs and named inputs that repeat a recent block.
func DetectRepeatedBlocks(html string) []Finding {
	return detectRepeatedBlocks(html, DefaultLookahead)
}

func detectRepeatedBlocks(html string, lookahead int) []Finding {
	var out []Finding
	for _, s := range repeatedBlockSpans(html, lookahead) {
		out = append(out, newFinding(RuleRepeatedBlocks, html[s.start:s.end]))
	}
	return out
}

func emptyElementSpans(html string) []span {
	var out []span
	for _, m := range emptyElementRE.FindAllStringSubmatchIndex(html, -1) {
		if strings.EqualFold(html[m[2]:m[3]], html[m[4]:m[5]]) {
			out = append(out, span{m[0], m[1]})
		}
	}
	return out
}

// DetectEmptyFields reports p, span and div elements whose content is blank,
// "null", "undefined" or "empty".
func DetectEmptyFields(html string) []Finding {
	var out []Finding
	for _, s := range emptyElementSpans(html) {
		out = append(out, newFinding(RuleEmptyElements, html[s.start:s.end]))
	}
	return out
}

// DetectMalformedHTML reports unbalanced tags using the default scanner.
func DetectMalformedHTML(html string) []Finding {
	return detectMalformedHTML(html, RegexScanner{})
}

func detectMalformedHTML(html string, sc MarkupScanner) []Finding {
	var out []Finding
	for _, is := range sc.Unbalanced(html) {
		ev := is.Snippet
		if is.Unclosed {
			ev = "missing </" + is.Tag + "> for " + ev
		} else {
			ev = "unexpected " + ev
		}
		out = append(out, newFinding(RuleMalformedHTML, ev))
	}
	return out
}

// DetectPlaceholderContent reports elements holding only TODO, PLACEHOLDER,
// XXX or TBD.
func DetectPlaceholderContent(html string) []Finding {
	var out []Finding
	for _, m := range placeholderRE.FindAllString(html, -1) {
		out = append(out, newFinding(RulePlaceholder, m))
	}
	return out
}

// DetectFloatingHeaders reports header, toolbar and page-header elements
// that are not sticky or fixed.
func DetectFloatingHeaders(html string) []Finding {
	if strings.Contains(html, stickyMarker) {
		return nil
	}
	var out []Finding
	for _, m := range headerElementRE.FindAllString(html, -1) {
		if stickyPositionRE.MatchString(m) {
			continue
		}
		out = append(out, newFinding(RuleFloatingHeader, m))
	}
	return out
}

func paragraphSpans(html string) []span {
	var dups []span
	lastKept := ""
	prevEnd := -1
	for _, loc := range paragraphRE.FindAllStringIndex(html, -1) {
		p := collapseSpace(html[loc[0]:loc[1]])
		adjacent := prevEnd >= 0 && strings.TrimSpace(html[prevEnd:loc[0]]) == ""
		if adjacent && p == lastKept {
			dups = append(dups, span{prevEnd, loc[1]})
		} else {
			lastKept = p
		}
		prevEnd = loc[1]
	}
	return dups
}

// DetectSameParagraphTwice reports a paragraph that immediately repeats the
// one before it.
func DetectSameParagraphTwice(html string) []Finding {
	var out []Finding
	for _, s := range paragraphSpans(html) {
		out = append(out, newFinding(RuleRepeatedParagraph, strings.TrimSpace(html[s.start:s.end])))
	}
	return out
}

// DetectScrollButtonIssues reports scroll-to-top buttons that are not fixed
// in place, are empty, or have no click behavior, and pages with a body and
// no scroll-to-top affordance at all.
func DetectScrollButtonIssues(html string) []Finding {
	var out []Finding
	buttons := scrollButtonRE.FindAllStringSubmatchIndex(html, -1)
	for _, m := range buttons {
		whole := html[m[0]:m[1]]
		attrs := html[m[4]:m[5]]
		inner := html[m[6]:m[7]]
		if !fixedPositionRE.MatchString(attrs) && !hasFixedScrollRule(html) {
			out = append(out, newFinding(RuleScrollButtonStyling, whole))
		}
		if strings.TrimSpace(inner) == "" {
			out = append(out, newFinding(RuleInactiveScrollButton, whole))
		}
		if !clickHandlerRE.MatchString(attrs) && !strings.Contains(html[m[1]:], "addEventListener") {
			out = append(out, newFinding(RuleScrollButtonBehavior, whole))
		}
	}
	if len(buttons) == 0 && bodyTagRE.MatchString(html) && !scrollAffordRE.MatchString(html) {
		out = append(out, newFinding(RuleMissingScrollToTop, bodyTagRE.FindString(html)))
	}
	return out
}

var fixedScrollRuleRE = regexp.MustCompile(`(?i)(?:scroll|to-top)[^{}]*\{[^}]*position\s*:\s*fixed`)

func hasFixedScrollRule(html string) bool {
	return fixedScrollRuleRE.MatchString(html)
}

// DetectPositionStylingIssues reports CSS blocks and inline styles that pin
// an absolute or relative element to a viewport edge, or layer a fixed,
// absolute or sticky element without a z-index.
func DetectPositionStylingIssues(css string) []Finding {
	var out []Finding
	check := func(decl string) {
		if offsetPositionRE.MatchString(decl) && zeroEdgeRE.MatchString(decl) {
			out = append(out, newFinding(RulePositionStyling, "edge-pinned "+strings.TrimSpace(decl)))
		}
		if layeredPositionRE.MatchString(decl) && !zIndexRE.MatchString(decl) {
			out = append(out, newFinding(RulePositionStyling, "missing z-index: "+strings.TrimSpace(decl)))
		}
	}
	for _, m := range cssBlockRE.FindAllStringSubmatch(css, -1) {
		check(m[1])
	}
	for _, m := range inlineStyleRE.FindAllStringSubmatch(css, -1) {
		check(m[1])
	}
	return out
}

// ---- Text detectors ----

type word struct {
	start, end int
	text       string
	folded     string
}

func words(text string) []word {
	locs := wordRE.FindAllStringIndex(text, -1)
	out := make([]word, 0, len(locs))
	for _, l := range locs {
		w := text[l[0]:l[1]]
		out = append(out, word{start: l[0], end: l[1], text: w, folded: patterns.Fold(w)})
	}
	return out
}

func onlySpace(s string) bool {
	return s != "" && strings.TrimSpace(s) == ""
}

// inlineRepeatSpans returns each word that repeats the previous kept word
// with only whitespace between them. The span covers the gap and the word.
func inlineRepeatSpans(text string) []span {
	ws := words(text)
	var out []span
	for i := 1; i < len(ws); i++ {
		prev, cur := ws[i-1], ws[i]
		if utf8.RuneCountInString(cur.text) < 3 {
			continue
		}
		if cur.folded == prev.folded && onlySpace(text[prev.end:cur.start]) {
			out = append(out, span{prev.end, cur.end})
		}
	}
	return out
}

// DetectInlineRepetition reports words of three or more letters repeated
// back to back, once per distinct word.
func DetectInlineRepetition(text string) []Finding {
	seen := make(map[string]bool)
	var out []Finding
	for _, s := range inlineRepeatSpans(text) {
		w := strings.TrimSpace(text[s.start:s.end])
		key := patterns.Fold(w)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, newFinding(RuleInlineRepetition, w+" "+w))
	}
	return out
}

// fieldValueSpans returns every "key: value" pair that repeats an earlier
// pair.
func fieldValueSpans(text string) []span {
	seen := make(map[string]bool)
	var out []span
	for _, m := range fieldValueRE.FindAllStringSubmatchIndex(text, -1) {
		key := patterns.Fold(text[m[2]:m[3]])
		val := strings.TrimSpace(text[m[4]:m[5]])
		if val == "" {
			continue
		}
		k := key + "\x00" + strings.ToLower(val)
		if seen[k] {
			out = append(out, span{m[0], m[1]})
			continue
		}
		seen[k] = true
	}
	return out
}

// DetectDuplicateFieldValues reports "key: value" pairs that appear more
// than once.
func DetectDuplicateFieldValues(text string) []Finding {
	var out []Finding
	for _, s := range fieldValueSpans(text) {
		out = append(out, newFinding(RuleDuplicateFieldValues, strings.TrimSpace(text[s.start:s.end])))
	}
	return out
}

func digitsOf(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func isCarrierDigit(c byte) bool {
	return c == '0' || c == '1' || c == '2' || c == '5'
}

// incompleteMobile reports whether run has a mobile prefix but too few
// digits to be a full number.
func incompleteMobile(run string) bool {
	if mobile.Validate(run) {
		return false
	}
	d := digitsOf(run)
	var national string
	switch {
	case strings.HasPrefix(run, "+20"):
		national = d[2:]
	case strings.HasPrefix(d, "0020"):
		national = d[4:]
	default:
		// local 01x prefix, five to ten digits
		return len(d) >= 5 && len(d) < 11 && strings.HasPrefix(d, "01") && isCarrierDigit(d[2])
	}
	national = strings.TrimPrefix(national, "0")
	return national != "" && national[0] == '1' && len(national) < 10
}

func incompleteMobileSpans(text string) []span {
	var out []span
	for _, loc := range digitRunRE.FindAllStringIndex(text, -1) {
		if incompleteMobile(text[loc[0]:loc[1]]) {
			out = append(out, span{loc[0], loc[1]})
		}
	}
	return out
}

// DetectIncompleteMobileNumbers reports digit runs that start like an
// Egyptian mobile but are too short to be one.
func DetectIncompleteMobileNumbers(text string) []Finding {
	var out []Finding
	for _, s := range incompleteMobileSpans(text) {
		out = append(out, newFinding(RuleIncompleteMobile, text[s.start:s.end]))
	}
	return out
}

func mixesScripts(tok string) bool {
	latin, arabic := false, false
	for _, r := range tok {
		switch {
		case unicode.Is(unicode.Latin, r):
			latin = true
		case unicode.Is(unicode.Arabic, r) && unicode.IsLetter(r):
			arabic = true
		}
		if latin && arabic {
			return true
		}
	}
	return false
}

// DetectMixedLanguageIssues reports single tokens mixing Latin and Arabic
// letters, and Arabic phrases interrupted by a lone Latin letter.
func DetectMixedLanguageIssues(text string) []Finding {
	var out []Finding
	for _, tok := range scriptTokenRE.FindAllString(text, -1) {
		if mixesScripts(tok) {
			out = append(out, newFinding(RuleMixedLanguage, tok))
		}
	}
	for _, m := range loneLatinRE.FindAllString(text, -1) {
		out = append(out, newFinding(RuleMixedLanguage, m))
	}
	return out
}

var currencyPrefixes = []string{"egp", "le", "l.e", "usd", "جنيه", "ج.م", "دولار"}

func validPriceValue(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(v)
	if unicode.IsDigit(r) || strings.ContainsRune("$£€", r) {
		return true
	}
	lv := strings.ToLower(v)
	for _, c := range currencyPrefixes {
		if strings.HasPrefix(lv, c) {
			return true
		}
	}
	return false
}

// DetectInvalidPriceFormats reports a price label followed by something that
// is neither a number nor a currency.
func DetectInvalidPriceFormats(text string) []Finding {
	var out []Finding
	for _, m := range priceLabelRE.FindAllStringSubmatch(text, -1) {
		if !validPriceValue(m[2]) {
			out = append(out, newFinding(RuleInvalidPrice, strings.TrimSpace(m[0])))
		}
	}
	return out
}

// DetectInconsistentUnits reports text that measures in both metric and
// imperial area units.
func DetectInconsistentUnits(text string) []Finding {
	metric := metricUnitRE.FindString(text)
	imperial := imperialUnitRE.FindString(text)
	if metric == "" || imperial == "" {
		return nil
	}
	return []Finding{newFinding(RuleInconsistentUnits, metric+" / "+imperial)}
}

// duplicateMobileSpans returns every occurrence of a mobile number after
// its first.
func duplicateMobileSpans(text string) ([]span, []string) {
	seen := make(map[string]bool)
	reported := make(map[string]bool)
	var spans []span
	var numbers []string
	for _, m := range mobile.FindAll(text) {
		if !seen[m.Normalized] {
			seen[m.Normalized] = true
			continue
		}
		spans = append(spans, span{m.Start, m.End})
		if !reported[m.Normalized] {
			reported[m.Normalized] = true
			numbers = append(numbers, m.Normalized)
		}
	}
	return spans, numbers
}

// DetectDuplicateMobileBlocks reports each mobile number that appears more
// than once.
func DetectDuplicateMobileBlocks(text string) []Finding {
	_, numbers := duplicateMobileSpans(text)
	var out []Finding
	for _, n := range numbers {
		out = append(out, newFinding(RuleDuplicateMobile, n))
	}
	return out
}

// maxPhraseWords bounds the length of a duplicated Arabic phrase.
const maxPhraseWords = 12

func copyGap(s string) bool {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune("،,.-|/", r)
	}) == "" && s != ""
}

// arabicDuplicate finds the first phrase of two or more words, starting
// with an Arabic word, that is immediately repeated. It returns the span of
// the second copy including the gap before it.
func arabicDuplicate(text string) (span, string, bool) {
	ws := words(text)
	for i := range ws {
		if !patterns.IsArabicWord(ws[i].text) {
			continue
		}
		maxK := (len(ws) - i) / 2
		if maxK > maxPhraseWords {
			maxK = maxPhraseWords
		}
		for k := maxK; k >= 2; k-- {
			if phraseRepeats(text, ws, i, k) {
				first := ws[i].start
				firstEnd := ws[i+k-1].end
				return span{firstEnd, ws[i+2*k-1].end}, text[first:firstEnd], true
			}
		}
	}
	return span{}, "", false
}

func phraseRepeats(text string, ws []word, i, k int) bool {
	for j := 0; j < k; j++ {
		if ws[i+j].folded != ws[i+k+j].folded {
			return false
		}
	}
	for j := i; j < i+2*k-1; j++ {
		gap := text[ws[j].end:ws[j+1].start]
		if j == i+k-1 {
			if !copyGap(gap) {
				return false
			}
			continue
		}
		if !onlySpace(gap) {
			return false
		}
	}
	return true
}

// DetectArabicFieldDuplication reports Arabic phrases that are immediately
// repeated, e.g. "مطلوب شقه مطلوب شقه".
func DetectArabicFieldDuplication(text string) []Finding {
	var out []Finding
	rest := text
	for n := 0; n < 64; n++ {
		s, phrase, ok := arabicDuplicate(rest)
		if !ok {
			break
		}
		out = append(out, newFinding(RuleArabicDuplication, phrase))
		rest = rest[:s.start] + rest[s.end:]
	}
	return out
}
