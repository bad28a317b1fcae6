package quality

import (
	"regexp"
	"sort"
	"strings"
)

// CleaningResult is the outcome of AutoClean.
type CleaningResult struct {
	OriginalScore int      `json:"original_score"`
	FinalScore    int      `json:"final_score"`
	Improvement   int      `json:"improvement"`
	Actions       []string `json:"actions_performed"`
	Cleaned       Input    `json:"-"`
	Before        Report   `json:"before"`
	After         Report   `json:"after"`
}

// CleanedString returns the cleaned content as text. Records are rendered
// with Record.Serialize.
func (c CleaningResult) CleanedString() string {
	switch v := c.Cleaned.(type) {
	case Text:
		return string(v)
	case Markup:
		return string(v)
	case Record:
		return v.Serialize()
	}
	return ""
}

// cleanStep is one repair. Markup-only steps are skipped for Text and
// Record values.
type cleanStep struct {
	action     string
	markupOnly bool
	apply      func(a *Analyzer, s string) string
}

// Steps run in this order: block-level collapsing first so that later
// word-level steps see a single copy, then removals, then tag repair and the
// empty elements those repairs leave behind, then layout fixes.
var cleanSteps = []cleanStep{
	{"Removed repeated HTML blocks", true, func(a *Analyzer, s string) string {
		return removeSpans(s, repeatedBlockSpans(s, a.lookahead))
	}},
	{"Removed repeated paragraph content", true, func(_ *Analyzer, s string) string {
		return removeSpans(s, paragraphSpans(s))
	}},
	{"Removed Arabic field duplication", false, func(_ *Analyzer, s string) string {
		return collapseArabicDuplication(s)
	}},
	{"Removed duplicate mobile number blocks", false, func(_ *Analyzer, s string) string {
		spans, _ := duplicateMobileSpans(s)
		return removeSpans(s, spans)
	}},
	{"Cleaned duplicate field values", false, func(_ *Analyzer, s string) string {
		return removeSpans(s, fieldValueSpans(s))
	}},
	{"Fixed inline text repetitions", false, func(_ *Analyzer, s string) string {
		return removeSpans(s, inlineRepeatSpans(s))
	}},
	{"Removed placeholder content", true, func(_ *Analyzer, s string) string {
		return placeholderRE.ReplaceAllString(s, "")
	}},
	{"Removed incomplete mobile numbers", false, func(_ *Analyzer, s string) string {
		return removeSpans(s, incompleteMobileSpans(s))
	}},
	{"Fixed mixed language issues", false, func(_ *Analyzer, s string) string {
		return untilStable(s, func(s string) string { return loneLatinRE.ReplaceAllString(s, "$1 $2") })
	}},
	{"Fixed malformed HTML tags", true, func(a *Analyzer, s string) string {
		return a.scanner.Balance(s)
	}},
	{"Removed empty HTML elements", true, func(_ *Analyzer, s string) string {
		return untilStable(s, func(s string) string { return removeSpans(s, emptyElementSpans(s)) })
	}},
	{"Fixed floating header positioning", true, func(_ *Analyzer, s string) string {
		return injectStickyHeader(s)
	}},
}

// AutoClean analyzes in, applies every repair step, and analyzes the
// result. It never fails: a nil input comes back unchanged with an empty
// action log.
func (a *Analyzer) AutoClean(in Input) CleaningResult {
	res := CleaningResult{Actions: []string{}, Cleaned: in}
	before, err := a.Analyze(in)
	if err != nil {
		return res
	}
	res.Before = before
	res.OriginalScore = before.Score

	switch v := in.(type) {
	case Text:
		s, actions := a.runSteps(string(v), false)
		res.Cleaned, res.Actions = Text(s), actions
	case Markup:
		s, actions := a.runSteps(string(v), true)
		res.Cleaned, res.Actions = Markup(s), actions
	case Record:
		res.Cleaned, res.Actions = a.cleanRecord(v)
	}

	after, err := a.Analyze(res.Cleaned)
	if err != nil {
		return res
	}
	res.After = after
	res.FinalScore = after.Score
	res.Improvement = res.FinalScore - res.OriginalScore
	return res
}

func (a *Analyzer) runSteps(s string, markup bool) (string, []string) {
	actions := []string{}
	for _, st := range cleanSteps {
		if st.markupOnly && !markup {
			continue
		}
		next := st.apply(a, s)
		if !a.logOnlyChanges || next != s {
			actions = append(actions, st.action)
		}
		s = next
	}
	return s, actions
}

// cleanRecord drops a duplicate field only when it repeats the value of the
// field kept under the same name, or is empty. Colliding fields holding
// different values are all kept. Every value is then cleaned as text.
func (a *Analyzer) cleanRecord(r Record) (Record, []string) {
	out := Record{}
	kept := make(map[string][]string)
	for _, f := range r.Fields {
		k := normalizeFieldName(f.Name)
		if prev, ok := kept[k]; ok && (isEmptyValue(f.Value) || containsValue(prev, f.Value)) {
			continue
		}
		kept[k] = append(kept[k], f.Value)
		out.Fields = append(out.Fields, f)
	}
	actions := []string{}
	if !a.logOnlyChanges || len(out.Fields) != len(r.Fields) {
		actions = append(actions, "Removed duplicate fields")
	}

	for _, st := range cleanSteps {
		if st.markupOnly {
			continue
		}
		changed := false
		for i := range out.Fields {
			next := st.apply(a, out.Fields[i].Value)
			if next != out.Fields[i].Value {
				changed = true
				out.Fields[i].Value = next
			}
		}
		if !a.logOnlyChanges || changed {
			actions = append(actions, st.action)
		}
	}
	return out, actions
}

func containsValue(values []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, p := range values {
		if strings.TrimSpace(p) == v {
			return true
		}
	}
	return false
}

// removeSpans deletes the given byte ranges. Overlapping ranges are merged.
func removeSpans(s string, spans []span) string {
	if len(spans) == 0 {
		return s
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, sp := range spans {
		if sp.start < last {
			if sp.end > last {
				last = sp.end
			}
			continue
		}
		b.WriteString(s[last:sp.start])
		last = sp.end
	}
	b.WriteString(s[last:])
	return b.String()
}

// maxPasses bounds the fixed-point loops.
const maxPasses = 16

func untilStable(s string, f func(string) string) string {
	for i := 0; i < maxPasses; i++ {
		next := f(s)
		if next == s {
			return s
		}
		s = next
	}
	return s
}

func collapseArabicDuplication(s string) string {
	return untilStable(s, func(s string) string {
		sp, _, ok := arabicDuplicate(s)
		if !ok {
			return s
		}
		return s[:sp.start] + s[sp.end:]
	})
}

var headCloseRE = regexp.MustCompile(`(?i)</head\s*>`)

const stickyHeaderCSS = "<style>" + stickyMarker +
	" .top-header, .toolbar, .page-header, header { position: sticky; top: 0; z-index: 50; }</style>"

// injectStickyHeader adds the sticky-header stylesheet once, inside head
// when there is one.
func injectStickyHeader(s string) string {
	if len(DetectFloatingHeaders(s)) == 0 {
		return s
	}
	if loc := headCloseRE.FindStringIndex(s); loc != nil {
		return s[:loc[0]] + stickyHeaderCSS + s[loc[0]:]
	}
	return stickyHeaderCSS + s
}
