package patterns

import (
	"fmt"
	"regexp"
	"sort"
)

// DefectKind tags a data-quality finding. The set is closed.
type DefectKind string

const (
	KindDuplicateField       DefectKind = "duplicate-field"
	KindDuplicateFieldValue  DefectKind = "duplicate-field-value"
	KindRepeatedHTMLBlock    DefectKind = "repeated-html-block"
	KindEmptyField           DefectKind = "empty-field"
	KindInlineRepetition     DefectKind = "inline-repetition"
	KindMalformedHTML        DefectKind = "malformed-html"
	KindIncompleteMobile     DefectKind = "incomplete-mobile"
	KindMixedLanguage        DefectKind = "mixed-language"
	KindInvalidPriceFormat   DefectKind = "invalid-price-format"
	KindInconsistentUnits    DefectKind = "inconsistent-units"
	KindPlaceholderContent   DefectKind = "placeholder-content"
	KindFloatingHeader       DefectKind = "floating-header"
	KindDuplicateMobileBlock DefectKind = "duplicate-mobile-block"
	KindArabicDuplication    DefectKind = "arabic-field-duplication"
	KindRepeatedParagraph    DefectKind = "repeated-paragraph"
	KindScrollButtonIssue    DefectKind = "scroll-button-issue"
	KindPositionStyling      DefectKind = "position-styling-issue"
)

// DefectKinds returns every kind in a stable order.
func DefectKinds() []DefectKind {
	return []DefectKind{
		KindDuplicateField, KindDuplicateFieldValue, KindRepeatedHTMLBlock, KindEmptyField,
		KindInlineRepetition, KindMalformedHTML, KindIncompleteMobile, KindMixedLanguage,
		KindInvalidPriceFormat, KindInconsistentUnits, KindPlaceholderContent, KindFloatingHeader,
		KindDuplicateMobileBlock, KindArabicDuplication, KindRepeatedParagraph,
		KindScrollButtonIssue, KindPositionStyling,
	}
}

// Names of the registered defect expressions.
const (
	RepeatedBlock     = "repeated-block"
	EmptyElement      = "empty-element"
	FieldValuePair    = "field-value-pair"
	MarkupTag         = "markup-tag"
	DigitRun          = "digit-run"
	ScriptToken       = "script-token"
	LoneLatin         = "lone-latin"
	PriceLabel        = "price-label"
	MetricUnit        = "metric-unit"
	ImperialUnit      = "imperial-unit"
	Placeholder       = "placeholder"
	HeaderElement     = "header-element"
	StickyPosition    = "sticky-position"
	Paragraph         = "paragraph"
	ScrollButton      = "scroll-button"
	ScrollAffordance  = "scroll-affordance"
	BodyTag           = "body-tag"
	ClickHandler      = "click-handler"
	CSSBlock          = "css-block"
	InlineStyle       = "inline-style"
	OffsetPosition    = "offset-position"
	LayeredPosition   = "layered-position"
	ZeroEdge          = "zero-edge"
	ZIndex            = "z-index"
	Word              = "word"
	FieldNameSuffix   = "field-name-suffix"
	FieldNameSeparate = "field-name-separator"
)

// DefectPattern is one registered expression and the kind of finding it
// feeds.
type DefectPattern struct {
	Name string
	Kind DefectKind
	Expr *regexp.Regexp
}

var defectPatterns = map[string]DefectPattern{}

func register(name string, kind DefectKind, expr string) {
	if _, dup := defectPatterns[name]; dup {
		panic(fmt.Sprintf("patterns: duplicate defect pattern %q", name))
	}
	defectPatterns[name] = DefectPattern{Name: name, Kind: kind, Expr: regexp.MustCompile(expr)}
}

func init() {
	register(RepeatedBlock, KindRepeatedHTMLBlock,
		`(?is)<section\b[^>]*>.*?</section>`+
			`|<div\b[^>]*class\s*=\s*"[^"]*(?:unit-detail|repeated-block)[^"]*"[^>]*>.*?</div>`+
			`|<label\b[^>]*>[^<]*</label>\s*<(?:input|select|textarea)\b[^>]*>`)
	register(EmptyElement, KindEmptyField,
		`(?i)<(p|span|div)\b[^>]*>\s*(?:null|undefined|empty)?\s*</(p|span|div)\s*>`)
	register(FieldValuePair, KindDuplicateFieldValue,
		`([\p{L}_][\p{L}\p{N}_]*)[ \t]*:[ \t]*([^,\n<]+)`)
	register(MarkupTag, KindMalformedHTML,
		`<(/?)([a-zA-Z][a-zA-Z0-9-]*)\b[^<>]*?(/?)>`)
	register(DigitRun, KindIncompleteMobile,
		`\+?[0-9](?:[ -]?[0-9])*`)
	register(ScriptToken, KindMixedLanguage,
		`[\p{Latin}\p{Arabic}]+`)
	register(LoneLatin, KindMixedLanguage,
		`(\p{Arabic}+)[ \t]+[A-Za-z][ \t]+(\p{Arabic}+)`)
	register(PriceLabel, KindInvalidPriceFormat,
		`(?i)(price|السعر)[ \t]*:[ \t]*([^\n<,]*)`)
	register(MetricUnit, KindInconsistentUnits,
		`(?i)\b(?:sqm|m2|square met(?:er|re)s?|met(?:er|re)s?)\b|m²|متر|م2|م²`)
	register(ImperialUnit, KindInconsistentUnits,
		`(?i)\b(?:sq\.? ?ft|sqft|square f(?:ee|oo)t|ft2|feet)\b|ft²|قدم مربع`)
	register(Placeholder, KindPlaceholderContent,
		`(?i)<[a-z][^>]*>\s*(?:TODO|PLACEHOLDER|XXX|TBD)\s*</[a-z][^>]*>`)
	register(HeaderElement, KindFloatingHeader,
		`(?i)<header\b[^>]*>|<(?:div|nav)\b[^>]*class\s*=\s*"[^"]*(?:top-header|toolbar|page-header)[^"]*"[^>]*>`)
	register(StickyPosition, KindFloatingHeader,
		`(?i)position\s*:\s*(?:sticky|fixed)`)
	register(Paragraph, KindRepeatedParagraph,
		`(?is)<p\b[^>]*>.*?</p\s*>`)
	register(ScrollButton, KindScrollButtonIssue,
		`(?is)<(button|a|div)\b([^>]*(?:class|id)\s*=\s*"[^"]*(?:scroll-to-top|scroll-top|back-to-top|to-top|scroll-btn|scrolltop)[^"]*"[^>]*)>(.*?)</(?:button|a|div)\s*>`)
	register(ScrollAffordance, KindScrollButtonIssue,
		`(?i)(?:class|id)\s*=\s*"[^"]*(?:scroll|to-top)[^"]*"`)
	register(BodyTag, KindScrollButtonIssue,
		`(?i)<body\b`)
	register(ClickHandler, KindScrollButtonIssue,
		`(?i)\bonclick\s*=|addEventListener\s*\(`)
	register(CSSBlock, KindPositionStyling,
		`\{([^{}]*)\}`)
	register(InlineStyle, KindPositionStyling,
		`(?i)style\s*=\s*"([^"]*)"`)
	register(OffsetPosition, KindPositionStyling,
		`(?i)position\s*:\s*(?:absolute|relative)`)
	register(LayeredPosition, KindPositionStyling,
		`(?i)position\s*:\s*(?:fixed|absolute|sticky)`)
	register(ZeroEdge, KindPositionStyling,
		`(?i)(?:^|[;\s])(?:top|bottom)\s*:\s*0(?:px)?\s*(?:;|$|!)`)
	register(ZIndex, KindPositionStyling,
		`(?i)z-index\s*:`)
	register(Word, KindInlineRepetition,
		`[\p{L}\p{M}\p{N}]+`)
	register(FieldNameSuffix, KindDuplicateField,
		`(?:[_\-\s]*(?:duplicate|dup|copy))+$`)
	register(FieldNameSeparate, KindDuplicateField,
		`[_\-\s]+`)
}

// Defect returns the named defect expression. It panics on an unknown name,
// which can only be a programming error since the registry is static.
func Defect(name string) *regexp.Regexp {
	p, ok := defectPatterns[name]
	if !ok {
		panic(fmt.Sprintf("patterns: unknown defect pattern %q", name))
	}
	return p.Expr
}

// DefectPatterns returns the registry sorted by name.
func DefectPatterns() []DefectPattern {
	out := make([]DefectPattern, 0, len(defectPatterns))
	for _, p := range defectPatterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
