// Package extract turns free-form bilingual real-estate text into structured
// listing fields without any external model:
// - Purpose (sale, rent, wanted)
// - Locality from a fixed gazetteer
// - Asking price and its band
// - Broker name and mobile number
// - Property type and the matched keywords
//
// Extraction is deterministic and never fails. A field that cannot be found
// is left at its zero value.
package extract

import (
	"strconv"
	"strings"

	"github.com/ahmedgfathy/contaboo/internal/mobile"
	"github.com/ahmedgfathy/contaboo/internal/patterns"
)

// Purpose is the intent of a listing.
type Purpose string

const (
	Sale    Purpose = "sale"
	Rent    Purpose = "rent"
	Wanted  Purpose = "wanted"
	Unknown Purpose = "unknown"
)

// PriceRange buckets a price for reporting.
type PriceRange string

const (
	PriceLow     PriceRange = "low"
	PriceMedium  PriceRange = "medium"
	PriceHigh    PriceRange = "high"
	PriceUnknown PriceRange = "unknown"
)

// Band thresholds in EGP.
const (
	lowCeiling    = 1_000_000
	mediumCeiling = 5_000_000
)

// Fields is the structured result of one extraction. Empty strings and a
// nil Price mean "not found".
type Fields struct {
	Purpose      Purpose               `json:"purpose"`
	Area         string                `json:"area,omitempty"`
	Price        *float64              `json:"price"`
	PriceRange   PriceRange            `json:"price_range"`
	BrokerName   string                `json:"broker_name,omitempty"`
	BrokerMobile string                `json:"broker_mobile,omitempty"`
	PropertyType patterns.PropertyType `json:"property_type"`
	Keywords     []string              `json:"keywords"`
}

// Pipeline holds the compiled vocabulary used for extraction. A Pipeline is
// immutable after construction and safe for concurrent use.
type Pipeline struct {
	gazetteer      []string
	areaKeywords   []string
	priceKeywords  []string
	types          []patterns.PropertyType
	typeKeywords   map[patterns.PropertyType][]string
	purposeOrder   []purposeRule
	minPriceDigits int
}

type purposeRule struct {
	purpose Purpose
	tokens  []string
}

// PipelineOption configures the extraction pipeline.
type PipelineOption func(*Pipeline)

// WithMinPriceDigits sets how many integer digits a numeric token needs
// before it is taken as a price. The default is 4.
func WithMinPriceDigits(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.minPriceDigits = n
		}
	}
}

// WithExtraAreas adds localities to the gazetteer. The merged list is kept
// longest-first.
func WithExtraAreas(areas ...string) PipelineOption {
	return func(p *Pipeline) {
		p.gazetteer = mergeLongestFirst(p.gazetteer, areas)
	}
}

// NewPipeline creates a pipeline over the shared pattern registry.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		gazetteer:     patterns.AreaGazetteer(),
		areaKeywords:  patterns.AreaKeywords(),
		priceKeywords: patterns.PriceKeywords(),
		types:         patterns.PropertyTypes(),
		typeKeywords:  make(map[patterns.PropertyType][]string),
		purposeOrder: []purposeRule{
			{Rent, patterns.RentTokens()},
			{Sale, patterns.SaleTokens()},
			{Wanted, patterns.WantedTokens()},
		},
		minPriceDigits: 4,
	}
	for _, t := range p.types {
		p.typeKeywords[t] = patterns.PropertyTypeKeywords(t)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultPipeline = NewPipeline()

// Extract runs the default pipeline.
func Extract(text string) Fields {
	return defaultPipeline.Extract(text)
}

// Extract computes every field of text. The result shares no memory with
// the pipeline.
func (p *Pipeline) Extract(text string) Fields {
	f := Fields{
		Purpose:      Unknown,
		PriceRange:   PriceUnknown,
		PropertyType: patterns.Other,
		Keywords:     []string{},
	}
	if strings.TrimSpace(text) == "" {
		return f
	}

	folded := patterns.Fold(text)
	kw := newKeywordSet()

	f.Purpose = p.purpose(folded)

	f.Area = p.area(folded)
	if f.Area != "" {
		kw.add(f.Area)
	}
	for _, k := range p.areaKeywords {
		if patterns.Contains(folded, k) {
			kw.add(k)
		}
	}

	f.Price = p.price(text)
	f.PriceRange = Band(f.Price)
	for _, k := range p.priceKeywords {
		if patterns.Contains(folded, k) {
			kw.add(k)
		}
	}

	if m, ok := mobile.Extract(text); ok {
		f.BrokerMobile = m
	}
	f.BrokerName = brokerName(text)

	for _, t := range p.types {
		matched := false
		for _, k := range p.typeKeywords[t] {
			if patterns.Contains(folded, k) {
				kw.add(k)
				matched = true
			}
		}
		if matched && f.PropertyType == patterns.Other {
			f.PropertyType = t
		}
	}

	f.Keywords = kw.list()
	return f
}

// Purpose classifies text alone.
func (p *Pipeline) Purpose(text string) Purpose {
	return p.purpose(patterns.Fold(text))
}

func (p *Pipeline) purpose(folded string) Purpose {
	for _, r := range p.purposeOrder {
		for _, tok := range r.tokens {
			if patterns.Contains(folded, tok) {
				return r.purpose
			}
		}
	}
	return Unknown
}

// LegacyPurpose is the two-way classifier some older call sites used: any
// text without a rent token counts as a sale.
//
// Deprecated: it labels requests and unrelated text as sales. Use
// Pipeline.Purpose, which reports Unknown when nothing matches.
func LegacyPurpose(text string) Purpose {
	if defaultPipeline.Purpose(text) == Rent {
		return Rent
	}
	return Sale
}

func (p *Pipeline) area(folded string) string {
	for _, a := range p.gazetteer {
		if patterns.Contains(folded, a) {
			return a
		}
	}
	return ""
}

// price returns the first numeric token with enough integer digits.
// Digits belonging to a mobile number never count.
func (p *Pipeline) price(text string) *float64 {
	norm := patterns.NormalizeDigits(text)
	for _, m := range mobile.FindAll(norm) {
		norm = norm[:m.Start] + strings.Repeat(" ", m.End-m.Start) + norm[m.End:]
	}
	for _, tok := range patterns.PriceTokenPattern().FindAllString(norm, -1) {
		if v, ok := parsePrice(tok, p.minPriceDigits); ok {
			return &v
		}
	}
	return nil
}

// parsePrice strips grouping separators from tok. A trailing period group
// of one or two digits is read as the decimal part.
func parsePrice(tok string, minDigits int) (float64, bool) {
	intPart, frac := tok, ""
	if i := strings.LastIndexByte(tok, '.'); i >= 0 && strings.LastIndexByte(tok, ',') < i {
		if tail := tok[i+1:]; len(tail) <= 2 {
			intPart, frac = tok[:i], tail
		}
	}
	intPart = strings.NewReplacer(",", "", ".", "").Replace(intPart)
	if len(intPart) < minDigits {
		return 0, false
	}
	s := intPart
	if frac != "" {
		s += "." + frac
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Band buckets a price. A nil price is PriceUnknown.
func Band(price *float64) PriceRange {
	switch {
	case price == nil:
		return PriceUnknown
	case *price < lowCeiling:
		return PriceLow
	case *price < mediumCeiling:
		return PriceMedium
	default:
		return PriceHigh
	}
}

func brokerName(text string) string {
	return strings.TrimSpace(patterns.BrokerNamePattern().FindString(text))
}

// keywordSet keeps first-seen order.
type keywordSet struct {
	seen  map[string]bool
	items []string
}

func newKeywordSet() *keywordSet {
	return &keywordSet{seen: make(map[string]bool)}
}

func (k *keywordSet) add(s string) {
	key := patterns.Fold(s)
	if k.seen[key] {
		return
	}
	k.seen[key] = true
	k.items = append(k.items, s)
}

func (k *keywordSet) list() []string {
	if k.items == nil {
		return []string{}
	}
	return k.items
}

func mergeLongestFirst(base, extra []string) []string {
	out := append([]string(nil), base...)
	for _, e := range extra {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		dup := false
		for _, b := range out {
			if strings.EqualFold(b, e) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, e)
		}
	}
	// insertion sort keeps equal-length names in their original order
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len([]rune(out[j])) > len([]rune(out[j-1])); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
