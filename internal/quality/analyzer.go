package quality

import "fmt"

// Analyzer scores inputs and repairs them. The zero value is not usable;
// create one with NewAnalyzer. An Analyzer is safe for concurrent use.
type Analyzer struct {
	scanner        MarkupScanner
	lookahead      int
	logOnlyChanges bool
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithScanner replaces the markup balancer used for malformed-tag detection
// and repair.
func WithScanner(s MarkupScanner) Option {
	return func(a *Analyzer) {
		if s != nil {
			a.scanner = s
		}
	}
}

// WithLookahead sets how many earlier blocks a repeated block is compared
// against.
func WithLookahead(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.lookahead = n
		}
	}
}

// WithLogOnlyChanges makes AutoClean record only the steps that changed the
// content. By default every attempted step is logged.
func WithLogOnlyChanges(on bool) Option {
	return func(a *Analyzer) {
		a.logOnlyChanges = on
	}
}

// NewAnalyzer creates an analyzer with the regex scanner, a lookahead of
// DefaultLookahead and unconditional action logging.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		scanner:   RegexScanner{},
		lookahead: DefaultLookahead,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var defaultAnalyzer = NewAnalyzer()

// Analyze runs the default analyzer.
func Analyze(in Input) (Report, error) {
	return defaultAnalyzer.Analyze(in)
}

// AutoClean runs the default analyzer.
func AutoClean(in Input) CleaningResult {
	return defaultAnalyzer.AutoClean(in)
}

// Analyze dispatches in to the detectors for its shape and scores the
// findings. Only a nil input is an error.
func (a *Analyzer) Analyze(in Input) (Report, error) {
	findings, err := a.detect(in)
	if err != nil {
		return Report{}, err
	}
	return buildReport(findings), nil
}

func (a *Analyzer) detect(in Input) ([]Finding, error) {
	switch v := in.(type) {
	case Text:
		return a.detectText(string(v)), nil
	case Markup:
		return a.detectMarkup(string(v)), nil
	case Record:
		return a.detectRecord(v), nil
	case nil:
		return nil, fmt.Errorf("analyze: %w: nil", ErrInvalidInput)
	default:
		return nil, fmt.Errorf("analyze: %w: %T", ErrInvalidInput, in)
	}
}

func (a *Analyzer) detectText(s string) []Finding {
	var out []Finding
	out = append(out, DetectInlineRepetition(s)...)
	out = append(out, DetectDuplicateFieldValues(s)...)
	out = append(out, DetectIncompleteMobileNumbers(s)...)
	out = append(out, DetectMixedLanguageIssues(s)...)
	out = append(out, DetectInvalidPriceFormats(s)...)
	out = append(out, DetectInconsistentUnits(s)...)
	out = append(out, DetectDuplicateMobileBlocks(s)...)
	out = append(out, DetectArabicFieldDuplication(s)...)
	return out
}

func (a *Analyzer) detectMarkup(s string) []Finding {
	var out []Finding
	out = append(out, detectRepeatedBlocks(s, a.lookahead)...)
	out = append(out, DetectEmptyFields(s)...)
	out = append(out, detectMalformedHTML(s, a.scanner)...)
	out = append(out, DetectPlaceholderContent(s)...)
	out = append(out, DetectFloatingHeaders(s)...)
	out = append(out, DetectSameParagraphTwice(s)...)
	out = append(out, DetectScrollButtonIssues(s)...)
	out = append(out, DetectPositionStylingIssues(s)...)
	out = append(out, a.detectText(s)...)
	return out
}

// detectRecord checks the field set itself, then runs the text detectors
// over each value on its own, the same unit AutoClean repairs. The same
// mobile in two columns is not a duplicate block. A price column is checked
// under its own name as label.
func (a *Analyzer) detectRecord(r Record) []Finding {
	var out []Finding
	out = append(out, DetectDuplicateFields(r)...)
	out = append(out, DetectEmptyValues(r)...)
	for _, f := range r.Fields {
		out = append(out, a.detectText(f.Value)...)
		if isEmptyValue(f.Value) || priceLabelRE.MatchString(f.Value) {
			continue
		}
		out = append(out, DetectInvalidPriceFormats(f.Name+": "+f.Value)...)
	}
	return out
}
