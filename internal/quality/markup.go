package quality

import (
	"strings"

	"github.com/ahmedgfathy/contaboo/internal/patterns"
)

// TagIssue is one unbalanced tag.
type TagIssue struct {
	Tag    string `json:"tag"`
	Offset int    `json:"offset"`
	// Unclosed is true for an open tag that is never closed, false for a
	// closing tag with no matching open tag.
	Unclosed bool   `json:"unclosed"`
	Snippet  string `json:"snippet"`
}

// MarkupScanner finds and repairs unbalanced markup. The default is a
// tag-stack scanner over regular expressions; a structural parser can be
// plugged in with WithScanner.
type MarkupScanner interface {
	Unbalanced(html string) []TagIssue
	Balance(html string) string
}

// RegexScanner balances tags with a stack. Void elements and self-closing
// tags never need a close; script and style bodies are skipped.
type RegexScanner struct{}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "param": true,
	"source": true, "track": true, "wbr": true,
}

var tagRE = patterns.Defect(patterns.MarkupTag)

type tagToken struct {
	start, end int
	name       string
	closing    bool
}

type openTag struct {
	tok tagToken
	idx int
}

// scan walks the tags and reports, per token index, what the balancer must
// do: tokens in stray are removed, and closeBefore[i] lists open tags to
// close right before token i. Tags still open at the end are returned last.
func (RegexScanner) scan(html string) (toks []tagToken, stray map[int]bool, closeBefore map[int][]tagToken, dangling []tagToken) {
	stray = make(map[int]bool)
	closeBefore = make(map[int][]tagToken)

	skipUntil := 0
	for _, m := range tagRE.FindAllStringSubmatchIndex(html, -1) {
		if m[0] < skipUntil {
			continue
		}
		t := tagToken{
			start:   m[0],
			end:     m[1],
			name:    strings.ToLower(html[m[4]:m[5]]),
			closing: m[3] > m[2],
		}
		selfClosing := m[7] > m[6]
		if !t.closing && (selfClosing || voidElements[t.name]) {
			continue
		}
		toks = append(toks, t)
		if !t.closing && (t.name == "script" || t.name == "style") {
			rest := strings.ToLower(html[t.end:])
			if i := strings.Index(rest, "</"+t.name); i >= 0 {
				skipUntil = t.end + i
			} else {
				skipUntil = len(html)
			}
		}
	}

	var stack []openTag
	for i, t := range toks {
		if !t.closing {
			stack = append(stack, openTag{tok: t, idx: i})
			continue
		}
		match := -1
		for j := len(stack) - 1; j >= 0; j-- {
			if stack[j].tok.name == t.name {
				match = j
				break
			}
		}
		if match < 0 {
			stray[i] = true
			continue
		}
		for j := len(stack) - 1; j > match; j-- {
			closeBefore[i] = append(closeBefore[i], stack[j].tok)
		}
		stack = stack[:match]
	}
	for j := len(stack) - 1; j >= 0; j-- {
		dangling = append(dangling, stack[j].tok)
	}
	return toks, stray, closeBefore, dangling
}

// Unbalanced implements MarkupScanner.
func (s RegexScanner) Unbalanced(html string) []TagIssue {
	toks, stray, closeBefore, dangling := s.scan(html)
	var out []TagIssue
	for i, t := range toks {
		for _, o := range closeBefore[i] {
			out = append(out, tagIssue(html, o, true))
		}
		if stray[i] {
			out = append(out, tagIssue(html, t, false))
		}
	}
	for _, o := range dangling {
		out = append(out, tagIssue(html, o, true))
	}
	return out
}

// Balance implements MarkupScanner. The result of Balance is itself
// balanced, so a second call is a no-op.
func (s RegexScanner) Balance(html string) string {
	toks, stray, closeBefore, dangling := s.scan(html)
	if len(stray) == 0 && len(closeBefore) == 0 && len(dangling) == 0 {
		return html
	}
	var b strings.Builder
	b.Grow(len(html) + 16)
	last := 0
	for i, t := range toks {
		if len(closeBefore[i]) == 0 && !stray[i] {
			continue
		}
		b.WriteString(html[last:t.start])
		for _, o := range closeBefore[i] {
			b.WriteString("</" + o.name + ">")
		}
		if stray[i] {
			last = t.end
		} else {
			last = t.start
		}
	}
	b.WriteString(html[last:])
	for _, o := range dangling {
		b.WriteString("</" + o.name + ">")
	}
	return b.String()
}

func tagIssue(html string, t tagToken, unclosed bool) TagIssue {
	return TagIssue{
		Tag:      t.name,
		Offset:   t.start,
		Unclosed: unclosed,
		Snippet:  html[t.start:t.end],
	}
}
