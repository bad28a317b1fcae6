// Package patterns is the single registry of keyword tables, the locality
// gazetteer, the Egyptian mobile expression and the defect-detection
// expressions shared by the extractor and the quality analyzer.
//
// Everything here is static data built at package init. Accessors return
// copies so callers can never mutate the registry.
package patterns

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Version identifies the current revision of the keyword and pattern tables.
// Bump it whenever a table changes so stored extractions can be re-run.
const Version = "2025.07"

// PropertyType is the closed set of listing categories.
type PropertyType string

const (
	Apartment PropertyType = "apartment"
	Villa     PropertyType = "villa"
	Land      PropertyType = "land"
	Office    PropertyType = "office"
	Warehouse PropertyType = "warehouse"
	Other     PropertyType = "other"
)

// propertyTypeOrder is the priority used when several types match.
var propertyTypeOrder = []PropertyType{Apartment, Villa, Land, Office, Warehouse}

var propertyKeywords = map[PropertyType][]string{
	Apartment: {
		"شقة", "شقق", "دور", "أدوار", "طابق", "غرفة", "غرف", "صالة", "حمام", "مطبخ", "ستوديو", "بنتهاوس",
		"apartment", "flat", "studio", "penthouse", "duplex apartment",
	},
	Villa: {
		"فيلا", "فيلات", "قصر", "قصور", "بيت", "بيوت", "منزل", "منازل", "دوبلكس", "تاون هاوس", "توين هاوس",
		"villa", "townhouse", "town house", "twin house", "duplex", "mansion",
	},
	Land: {
		"أرض", "أراضي", "قطعة", "قطع", "مساحة", "متر", "فدان", "قيراط",
		"land", "plot", "acre", "feddan",
	},
	Office: {
		"مكتب", "مكاتب", "إداري", "تجاري", "محل", "محلات", "متجر", "عيادة",
		"office", "shop", "retail", "commercial", "clinic",
	},
	Warehouse: {
		"مخزن", "مخازن", "مستودع", "مستودعات", "ورشة", "ورش", "مصنع",
		"warehouse", "storage", "workshop", "factory",
	},
}

// gazetteer lists the recognized localities. It is sorted longest-first at
// init so that a multi-word name is always tried before its constituents.
var gazetteer = []string{
	"القاهرة الجديدة", "التجمع الخامس", "التجمع", "مدينة نصر", "مصر الجديدة", "المعادي",
	"الشيخ زايد", "السادس من أكتوبر", "أكتوبر", "الزمالك", "وسط البلد", "الهرم",
	"فيصل", "إمبابة", "شبرا", "المهندسين", "الدقي", "الرحاب", "مدينتي", "الشروق",
	"العاصمة الإدارية", "العاشر من رمضان", "المقطم", "حلوان",
	"New Cairo", "Fifth Settlement", "Tagamoa", "Nasr City", "Heliopolis", "Maadi",
	"Sheikh Zayed", "Zayed", "6th October", "October", "Zamalek", "Downtown",
	"Mohandessin", "Dokki", "Rehab", "Madinaty", "Shorouk", "New Capital", "Mokattam",
}

// areaKeywords are generic location words reported as keywords even when no
// gazetteer entry matched.
var areaKeywords = []string{
	"الحي", "منطقة", "شارع", "طريق", "ميدان", "كوبري", "جسر", "حدائق", "مدينة",
	"قرية", "العاشر", "الخامس", "السادس", "كمبوند",
}

var priceKeywords = []string{
	"جنيه", "ألف", "مليون", "سعر", "ثمن", "تكلفة", "مقدم", "قسط", "أقساط",
	"نقدي", "كاش", "تمويل", "بنك", "عربون",
}

// Purpose vocabulary. Categories are tried in the order rent, sale, wanted.
var (
	rentTokens   = []string{"for rent", "to rent", "for lease", "للإيجار", "للايجار", "ايجار"}
	saleTokens   = []string{"for sale", "to sell", "offered", "متاح", "للبيع"}
	wantedTokens = []string{"required", "wanted", "want", "need", "looking for", "مطلوب", "أريد", "أحتاج", "محتاج"}
)

func init() {
	sort.SliceStable(gazetteer, func(i, j int) bool {
		return utf8.RuneCountInString(gazetteer[i]) > utf8.RuneCountInString(gazetteer[j])
	})
}

// PropertyTypes returns the matchable types in priority order. Other is not
// included; it is the fallback when nothing matches.
func PropertyTypes() []PropertyType {
	return append([]PropertyType(nil), propertyTypeOrder...)
}

// PropertyTypeKeywords returns the Arabic and English keywords for t.
// Unknown types and Other yield an empty list.
func PropertyTypeKeywords(t PropertyType) []string {
	return append([]string(nil), propertyKeywords[t]...)
}

// AreaGazetteer returns the recognized localities, longest name first.
func AreaGazetteer() []string {
	return append([]string(nil), gazetteer...)
}

// AreaKeywords returns the generic location words.
func AreaKeywords() []string {
	return append([]string(nil), areaKeywords...)
}

// PriceKeywords returns the price vocabulary.
func PriceKeywords() []string {
	return append([]string(nil), priceKeywords...)
}

// RentTokens, SaleTokens and WantedTokens return the purpose vocabularies.
func RentTokens() []string   { return append([]string(nil), rentTokens...) }
func SaleTokens() []string   { return append([]string(nil), saleTokens...) }
func WantedTokens() []string { return append([]string(nil), wantedTokens...) }

// mobileRE is the canonical Egyptian mobile shape: optional +, optional 2,
// then 01, a carrier digit and eight digits.
var mobileRE = regexp.MustCompile(`\+?2?01[0125][0-9]{8}`)

// MobilePattern returns the canonical Egyptian mobile expression.
// The returned value is safe for concurrent use.
func MobilePattern() *regexp.Regexp {
	return mobileRE
}

// brokerNameRE matches an Arabic professional title followed by one or two
// Arabic words, or an English title followed by one or two capitalized words.
var brokerNameRE = regexp.MustCompile(
	`(?:المهندس|مهندس|الدكتور|دكتور|الأستاذ|الاستاذ|أستاذ|استاذ)\s+\p{Arabic}+(?:\s+\p{Arabic}+)?` +
		`|\b(?:Mr|Mrs|Ms|Eng|Dr)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?`,
)

// BrokerNamePattern returns the title+name expression.
func BrokerNamePattern() *regexp.Regexp {
	return brokerNameRE
}

// priceTokenRE finds numeric runs with optional comma/period grouping.
var priceTokenRE = regexp.MustCompile(`[0-9]+(?:[.,][0-9]+)*`)

// PriceTokenPattern returns the numeric token expression used for prices.
func PriceTokenPattern() *regexp.Regexp {
	return priceTokenRE
}

// latinWordRE reports whether a keyword is pure ASCII letters and spaces, in
// which case it is matched on word boundaries rather than by containment.
var latinWordRE = regexp.MustCompile(`^[a-z][a-z ]*$`)

var boundaryCache = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp)
	add := func(words []string) {
		for _, w := range words {
			lw := strings.ToLower(w)
			if latinWordRE.MatchString(lw) {
				m[lw] = regexp.MustCompile(`\b` + regexp.QuoteMeta(lw) + `\b`)
			}
		}
	}
	for _, kws := range propertyKeywords {
		add(kws)
	}
	add(gazetteer)
	add(rentTokens)
	add(saleTokens)
	add(wantedTokens)
	return m
}()

// Contains reports whether keyword occurs in text. Both sides are folded
// with Fold; ASCII keywords must sit on word boundaries, Arabic keywords
// match by containment since Arabic attaches prefixes such as ال and ب.
// The haystack is expected to be folded already.
func Contains(foldedText, keyword string) bool {
	k := Fold(keyword)
	if k == "" {
		return false
	}
	if re, ok := boundaryCache[k]; ok {
		return re.MatchString(foldedText)
	}
	return strings.Contains(foldedText, k)
}
