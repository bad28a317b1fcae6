package quality

import "unicode/utf8"

// maxEvidence bounds Finding.Evidence, in runes.
const maxEvidence = 100

// Finding is one detected defect.
type Finding struct {
	Kind       Kind   `json:"kind"`
	Rule       Rule   `json:"rule"`
	Evidence   string `json:"evidence"`
	Suggestion string `json:"suggestion"`
}

func newFinding(r Rule, evidence string) Finding {
	return Finding{
		Kind:       KindOf(r),
		Rule:       r,
		Evidence:   truncate(evidence, maxEvidence),
		Suggestion: Suggestion(r),
	}
}

// Status is the tier derived from a score.
type Status string

const (
	Excellent Status = "Excellent"
	Good      Status = "Good"
	Fair      Status = "Fair"
	Poor      Status = "Poor"
)

// StatusFor maps a score to its tier.
func StatusFor(score int) Status {
	switch {
	case score >= 90:
		return Excellent
	case score >= 75:
		return Good
	case score >= 60:
		return Fair
	default:
		return Poor
	}
}

// Report aggregates the findings for one input.
type Report struct {
	Findings    []Finding `json:"findings"`
	Score       int       `json:"score"`
	Status      Status    `json:"status"`
	Suggestions []string  `json:"suggestions"`
}

// ByKind groups findings by kind, preserving detection order inside each
// group.
func (r Report) ByKind() map[Kind][]Finding {
	out := make(map[Kind][]Finding)
	for _, f := range r.Findings {
		out[f.Kind] = append(out[f.Kind], f)
	}
	return out
}

// Has reports whether any finding has kind k.
func (r Report) Has(k Kind) bool {
	for _, f := range r.Findings {
		if f.Kind == k {
			return true
		}
	}
	return false
}

// Score computes the score of a set of findings: 100 minus the penalty of
// every distinct rule present, clamped to [0,100]. Repeated findings of one
// rule cost nothing extra.
func Score(findings []Finding) int {
	seen := make(map[Rule]bool)
	score := 100
	for _, f := range findings {
		if seen[f.Rule] {
			continue
		}
		seen[f.Rule] = true
		score -= Penalty(f.Rule)
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func buildReport(findings []Finding) Report {
	if findings == nil {
		findings = []Finding{}
	}
	present := make(map[Rule]bool)
	for _, f := range findings {
		present[f.Rule] = true
	}
	suggestions := []string{}
	seen := make(map[string]bool)
	for _, r := range ruleOrder {
		if !present[r] {
			continue
		}
		s := Suggestion(r)
		if seen[s] {
			continue
		}
		seen[s] = true
		suggestions = append(suggestions, s)
	}
	score := Score(findings)
	return Report{
		Findings:    findings,
		Score:       score,
		Status:      StatusFor(score),
		Suggestions: suggestions,
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for idx := range s {
		if i == n {
			return s[:idx]
		}
		i++
	}
	return s
}
