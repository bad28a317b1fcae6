package quality

import "github.com/ahmedgfathy/contaboo/internal/patterns"

// Kind tags a finding. See patterns.DefectKinds for the closed set.
type Kind = patterns.DefectKind

// Rule is the unit of scoring. Most kinds have exactly one rule; empty-field
// and scroll-button-issue are split into several rules with their own
// penalties.
type Rule string

const (
	RuleDuplicateFields      Rule = "duplicate-fields"
	RuleEmptyValues          Rule = "empty-values"
	RuleRepeatedBlocks       Rule = "repeated-blocks"
	RuleEmptyElements        Rule = "empty-elements"
	RuleInlineRepetition     Rule = "inline-repetition"
	RuleDuplicateFieldValues Rule = "duplicate-field-values"
	RuleMalformedHTML        Rule = "malformed-html"
	RuleIncompleteMobile     Rule = "incomplete-mobile"
	RuleMixedLanguage        Rule = "mixed-language"
	RuleInvalidPrice         Rule = "invalid-price"
	RuleInconsistentUnits    Rule = "inconsistent-units"
	RulePlaceholder          Rule = "placeholder"
	RuleFloatingHeader       Rule = "floating-header"
	RuleDuplicateMobile      Rule = "duplicate-mobile"
	RuleArabicDuplication    Rule = "arabic-duplication"
	RuleRepeatedParagraph    Rule = "repeated-paragraph"
	RuleScrollButtonStyling  Rule = "scroll-button-styling"
	RuleInactiveScrollButton Rule = "inactive-scroll-button"
	RuleScrollButtonBehavior Rule = "scroll-button-behavior"
	RulePositionStyling      Rule = "position-styling"
	RuleMissingScrollToTop   Rule = "missing-scroll-to-top"
)

type ruleSpec struct {
	kind       Kind
	penalty    int
	suggestion string
}

// ruleOrder fixes the order suggestions are reported in.
var ruleOrder = []Rule{
	RuleDuplicateFields, RuleEmptyValues, RuleRepeatedBlocks, RuleEmptyElements,
	RuleInlineRepetition, RuleDuplicateFieldValues, RuleMalformedHTML, RuleIncompleteMobile,
	RuleMixedLanguage, RuleInvalidPrice, RuleInconsistentUnits, RulePlaceholder,
	RuleFloatingHeader, RuleDuplicateMobile, RuleArabicDuplication, RuleRepeatedParagraph,
	RuleScrollButtonStyling, RuleInactiveScrollButton, RuleScrollButtonBehavior,
	RulePositionStyling, RuleMissingScrollToTop,
}

var rules = map[Rule]ruleSpec{
	RuleDuplicateFields:      {patterns.KindDuplicateField, 20, "Remove duplicate fields"},
	RuleEmptyValues:          {patterns.KindEmptyField, 10, "Fill empty fields"},
	RuleRepeatedBlocks:       {patterns.KindRepeatedHTMLBlock, 15, "Remove repeated HTML blocks"},
	RuleEmptyElements:        {patterns.KindEmptyField, 10, "Remove or fill empty HTML elements"},
	RuleInlineRepetition:     {patterns.KindInlineRepetition, 5, "Fix repeated words in text"},
	RuleDuplicateFieldValues: {patterns.KindDuplicateFieldValue, 15, "Remove duplicate field values"},
	RuleMalformedHTML:        {patterns.KindMalformedHTML, 20, "Fix malformed HTML tags"},
	RuleIncompleteMobile:     {patterns.KindIncompleteMobile, 10, "Complete or remove invalid mobile numbers"},
	RuleMixedLanguage:        {patterns.KindMixedLanguage, 8, "Fix mixed language text issues"},
	RuleInvalidPrice:         {patterns.KindInvalidPriceFormat, 12, "Use proper numeric price formats"},
	RuleInconsistentUnits:    {patterns.KindInconsistentUnits, 5, "Use consistent unit formats"},
	RulePlaceholder:          {patterns.KindPlaceholderContent, 15, "Replace placeholder content with actual data"},
	RuleFloatingHeader:       {patterns.KindFloatingHeader, 8, "Fix header positioning for better UX"},
	RuleDuplicateMobile:      {patterns.KindDuplicateMobileBlock, 12, "Remove duplicate mobile number blocks"},
	RuleArabicDuplication:    {patterns.KindArabicDuplication, 10, "Remove Arabic text field duplication"},
	RuleRepeatedParagraph:    {patterns.KindRepeatedParagraph, 8, "Remove repeated paragraph content"},
	RuleScrollButtonStyling:  {patterns.KindScrollButtonIssue, 5, "Optimize floating scroll button styling and positioning"},
	RuleInactiveScrollButton: {patterns.KindScrollButtonIssue, 10, "Add content and functionality to empty scroll buttons"},
	RuleScrollButtonBehavior: {patterns.KindScrollButtonIssue, 12, "Add JavaScript functionality to scroll-to-top buttons"},
	RulePositionStyling:      {patterns.KindPositionStyling, 8, "Fix position styling issues (use fixed positioning, add z-index)"},
	RuleMissingScrollToTop:   {patterns.KindScrollButtonIssue, 6, "Add scroll-to-top button for better user experience"},
}

// Penalty returns the score deduction for r, or 0 for an unknown rule.
func Penalty(r Rule) int {
	return rules[r].penalty
}

// KindOf returns the finding kind r produces.
func KindOf(r Rule) Kind {
	return rules[r].kind
}

// Suggestion returns the remediation hint for r.
func Suggestion(r Rule) string {
	return rules[r].suggestion
}

// Rules returns every rule in reporting order.
func Rules() []Rule {
	return append([]Rule(nil), ruleOrder...)
}
