package quality

import (
	"reflect"
	"strings"
	"testing"
)

const messyListing = `<div class="top-header">Logo</div>` +
	`<section>Unit</section><section>Unit</section>` +
	`<p>nice nice view</p><p>nice nice view</p>` +
	`<span>TODO</span><div><p>open</div>`

func TestAutoCleanRecord(t *testing.T) {
	res := AutoClean(RecordFromMap(map[string]string{
		"title":           "Villa",
		"title_duplicate": "Villa",
	}))
	if res.OriginalScore != 80 || res.FinalScore != 100 || res.Improvement != 20 {
		t.Errorf("scores = %d -> %d (%+d)", res.OriginalScore, res.FinalScore, res.Improvement)
	}
	rec, ok := res.Cleaned.(Record)
	if !ok || len(rec.Fields) != 1 || rec.Fields[0].Name != "title" {
		t.Fatalf("cleaned = %#v", res.Cleaned)
	}
	if len(res.Actions) != 7 || res.Actions[0] != "Removed duplicate fields" {
		t.Errorf("actions = %v", res.Actions)
	}
}

func TestAutoCleanRecordKeepsDistinctValues(t *testing.T) {
	in := Record{Fields: []Field{
		{Name: "Phone 1", Value: "01012345678"},
		{Name: "Phone 2", Value: "01298765432"},
		{Name: "unit", Value: "A"},
		{Name: "unit_copy", Value: "B"},
		{Name: "unit_duplicate", Value: "A"},
		{Name: "unit-dup", Value: ""},
	}}
	res := AutoClean(in)
	want := "Phone 1: 01012345678\nPhone 2: 01298765432\nunit: A\nunit_copy: B"
	if got := res.CleanedString(); got != want {
		t.Errorf("cleaned = %q, want %q", got, want)
	}
	if res.FinalScore < res.OriginalScore {
		t.Errorf("score fell %d -> %d", res.OriginalScore, res.FinalScore)
	}
	if !res.After.Has(KindOf(RuleDuplicateFields)) {
		t.Errorf("unit/unit_copy collision should still be reported: %+v", res.After.Findings)
	}
}

func TestAutoCleanRepeatedPriceParagraph(t *testing.T) {
	res := AutoClean(Markup("<p>Price: ABC123</p><p>Price: ABC123</p>"))
	if res.OriginalScore != 65 || res.FinalScore != 88 {
		t.Errorf("scores = %d -> %d", res.OriginalScore, res.FinalScore)
	}
	if got := res.CleanedString(); got != "<p>Price: ABC123</p>" {
		t.Errorf("cleaned = %q", got)
	}
	if len(res.Actions) != len(cleanSteps) {
		t.Errorf("default logging recorded %d actions, want %d", len(res.Actions), len(cleanSteps))
	}
	if !res.After.Has(KindOf(RuleInvalidPrice)) {
		t.Errorf("invalid price should survive cleaning: %+v", res.After.Findings)
	}
}

func TestAutoCleanLogOnlyChanges(t *testing.T) {
	a := NewAnalyzer(WithLogOnlyChanges(true))
	res := a.AutoClean(Markup("<p>Price: ABC123</p><p>Price: ABC123</p>"))
	want := []string{"Removed repeated paragraph content"}
	if !reflect.DeepEqual(res.Actions, want) {
		t.Errorf("actions = %v, want %v", res.Actions, want)
	}

	res = a.AutoClean(Text("nothing to fix here"))
	if len(res.Actions) != 0 || res.Improvement != 0 {
		t.Errorf("clean text: actions %v improvement %d", res.Actions, res.Improvement)
	}
}

func TestAutoCleanMessyMarkup(t *testing.T) {
	first := AutoClean(Markup(messyListing))
	if first.OriginalScore != 29 || first.Before.Status != Poor {
		t.Errorf("original = %d %s (%+v)", first.OriginalScore, first.Before.Status, first.Before.Findings)
	}
	if first.FinalScore != 100 {
		t.Errorf("final = %d (%+v)", first.FinalScore, first.After.Findings)
	}
	out := first.CleanedString()
	for _, gone := range []string{"TODO", "nice nice", "<section>Unit</section><section>"} {
		if strings.Contains(out, gone) {
			t.Errorf("cleaned output still contains %q: %s", gone, out)
		}
	}
	if !strings.Contains(out, "<div><p>open</p></div>") {
		t.Errorf("unclosed paragraph not repaired: %s", out)
	}
	if strings.Count(out, stickyMarker) != 1 {
		t.Errorf("sticky header css injected %d times", strings.Count(out, stickyMarker))
	}

	second := AutoClean(first.Cleaned)
	if second.CleanedString() != out {
		t.Errorf("second pass changed output:\n%s\n%s", out, second.CleanedString())
	}
	if second.FinalScore != first.FinalScore {
		t.Errorf("second pass score %d, first %d", second.FinalScore, first.FinalScore)
	}
}

func TestAutoCleanNeverLowersScore(t *testing.T) {
	inputs := []Input{
		Text("the the apartment is is nice nice"),
		Text("مطلوب شقه مطلوب شقه في المعادي 01012345678 01012345678"),
		Text("شقة x فاخرة +20 12 345"),
		Markup("<div><p>null</p><span> </span></div>"),
		Markup(messyListing),
		Record{Fields: []Field{{Name: "title", Value: "Villa Villa Villa"}, {Name: "Title", Value: "x"}}},
	}
	for _, in := range inputs {
		res := AutoClean(in)
		if res.FinalScore < res.OriginalScore {
			t.Errorf("%#v: score fell %d -> %d", in, res.OriginalScore, res.FinalScore)
		}
	}
}

func TestAutoCleanTextSteps(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"the the apartment is is nice nice", "the apartment is is nice"},
		{"شقة x فاخرة", "شقة فاخرة"},
		{"مطلوب شقه مطلوب شقه في المعادي", "مطلوب شقه في المعادي"},
		{"call 01012345678 or 01012345678", "call 01012345678 or "},
		{"call +20 12 345 now", "call  now"},
	}
	for _, tt := range tests {
		res := AutoClean(Text(tt.in))
		if got := res.CleanedString(); got != tt.want {
			t.Errorf("AutoClean(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if len(res.Actions) != 6 {
			t.Errorf("%q: text cleaning logged %d actions", tt.in, len(res.Actions))
		}
	}
}

func TestAutoCleanEmptyElementsCascade(t *testing.T) {
	res := AutoClean(Markup("<div><p>null</p><span> </span></div>"))
	if got := res.CleanedString(); got != "" {
		t.Errorf("cleaned = %q, want empty", got)
	}
}

func TestAutoCleanStickyHeaderInHead(t *testing.T) {
	html := `<html><head><title>x</title></head><body><div class="toolbar">Menu</div><a class="back-to-top" href="#" onclick="up()" style="position:fixed">Top</a></body></html>`
	res := AutoClean(Markup(html))
	out := res.CleanedString()
	i, j := strings.Index(out, stickyMarker), strings.Index(out, "</head>")
	if i < 0 || j < 0 || i > j {
		t.Errorf("sticky css not placed inside head: %s", out)
	}
	if res.After.Has(KindOf(RuleFloatingHeader)) {
		t.Errorf("floating header still reported after cleaning")
	}
}

func TestAutoCleanNil(t *testing.T) {
	res := AutoClean(nil)
	if res.Cleaned != nil || len(res.Actions) != 0 || res.Improvement != 0 {
		t.Errorf("AutoClean(nil) = %+v", res)
	}
	if res.Actions == nil {
		t.Error("actions should be an empty slice")
	}
}

type stubScanner struct{ balanced bool }

func (s *stubScanner) Unbalanced(string) []TagIssue {
	if s.balanced {
		return nil
	}
	return []TagIssue{{Tag: "x", Unclosed: true, Snippet: "<x>"}}
}

func (s *stubScanner) Balance(html string) string {
	s.balanced = true
	return html
}

func TestWithScanner(t *testing.T) {
	sc := &stubScanner{}
	a := NewAnalyzer(WithScanner(sc))
	r, err := a.Analyze(Markup("<p>fine</p>"))
	if err != nil {
		t.Fatal(err)
	}
	if !r.Has(KindOf(RuleMalformedHTML)) {
		t.Fatalf("custom scanner ignored: %+v", r.Findings)
	}
	res := a.AutoClean(Markup("<p>fine</p>"))
	if res.FinalScore != 100 || !sc.balanced {
		t.Errorf("final = %d, balanced = %v", res.FinalScore, sc.balanced)
	}
}
