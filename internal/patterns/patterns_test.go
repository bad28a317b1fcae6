package patterns

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestAreaGazetteerLongestFirst(t *testing.T) {
	g := AreaGazetteer()
	if len(g) < 25 {
		t.Fatalf("gazetteer has %d entries, want at least 25", len(g))
	}
	for i := 1; i < len(g); i++ {
		if utf8.RuneCountInString(g[i-1]) < utf8.RuneCountInString(g[i]) {
			t.Fatalf("gazetteer not longest-first at %d: %q before %q", i, g[i-1], g[i])
		}
	}

	idx := func(name string) int {
		for i, n := range g {
			if n == name {
				return i
			}
		}
		t.Fatalf("%q missing from gazetteer", name)
		return -1
	}
	if idx("التجمع الخامس") > idx("التجمع") {
		t.Error("التجمع الخامس must be tried before التجمع")
	}
	if idx("Sheikh Zayed") > idx("Zayed") {
		t.Error("Sheikh Zayed must be tried before Zayed")
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	g := AreaGazetteer()
	g[0] = "mutated"
	if AreaGazetteer()[0] == "mutated" {
		t.Fatal("AreaGazetteer exposed internal slice")
	}

	kw := PropertyTypeKeywords(Villa)
	kw[0] = "mutated"
	if PropertyTypeKeywords(Villa)[0] == "mutated" {
		t.Fatal("PropertyTypeKeywords exposed internal slice")
	}
}

func TestPropertyTypeKeywords(t *testing.T) {
	tests := []struct {
		typ  PropertyType
		want []string
	}{
		{Apartment, []string{"شقة", "apartment", "flat"}},
		{Villa, []string{"فيلا", "villa", "duplex"}},
		{Land, []string{"أرض", "land", "feddan"}},
		{Office, []string{"مكتب", "office", "shop"}},
		{Warehouse, []string{"مخزن", "warehouse"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			got := strings.Join(PropertyTypeKeywords(tt.typ), "|")
			for _, w := range tt.want {
				if !strings.Contains("|"+got+"|", "|"+w+"|") {
					t.Errorf("keywords for %s missing %q", tt.typ, w)
				}
			}
		})
	}
	if len(PropertyTypeKeywords(Other)) != 0 {
		t.Error("Other should have no keywords")
	}
}

func TestMobilePattern(t *testing.T) {
	re := MobilePattern()
	tests := []struct {
		in   string
		want string
	}{
		{"call 01012345678 now", "01012345678"},
		{"+201123456789", "+201123456789"},
		{"201512345678", "201512345678"},
		{"01312345678", ""},
		{"0101234567", ""},
	}
	for _, tt := range tests {
		if got := re.FindString(tt.in); got != tt.want {
			t.Errorf("FindString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"شقة", "شقه"},
		{"للإيجار", "للايجار"},
		{"أكتوبر", "اكتوبر"},
		{"مبنى", "مبني"},
		{"شـــقة", "شقه"},
		{"شَقَّة", "شقه"},
		{"New CAIRO", "new cairo"},
		{"٢٥٠٠", "2500"},
	}
	for _, tt := range tests {
		if got := Fold(tt.in); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeDigits(t *testing.T) {
	if got := NormalizeDigits("٠١٠١٢٣٤٥٦٧٨"); got != "01012345678" {
		t.Errorf("Arabic-Indic = %q", got)
	}
	if got := NormalizeDigits("۰۱۲۳"); got != "0123" {
		t.Errorf("Extended Arabic-Indic = %q", got)
	}
	if got := NormalizeDigits("no digits"); got != "no digits" {
		t.Errorf("plain = %q", got)
	}
}

func TestContains(t *testing.T) {
	tests := []struct {
		text, keyword string
		want          bool
	}{
		{"شقه للبيع", "شقة", true},
		{"nice flat in maadi", "flat", true},
		{"flatten the list", "flat", false},
		{"a shopping mall", "shop", false},
		{"شقق بالمعادي", "المعادي", true},
		{"villa in new cairo", "New Cairo", true},
		{"", "villa", false},
		{"anything", "", false},
	}
	for _, tt := range tests {
		if got := Contains(tt.text, tt.keyword); got != tt.want {
			t.Errorf("Contains(%q, %q) = %v, want %v", tt.text, tt.keyword, got, tt.want)
		}
	}
}

func TestDefectPatternsRegistered(t *testing.T) {
	known := map[DefectKind]bool{}
	for _, k := range DefectKinds() {
		known[k] = true
	}
	ps := DefectPatterns()
	if len(ps) == 0 {
		t.Fatal("no defect patterns registered")
	}
	for _, p := range ps {
		if !known[p.Kind] {
			t.Errorf("pattern %s tagged with unknown kind %q", p.Name, p.Kind)
		}
		if Defect(p.Name) != p.Expr {
			t.Errorf("Defect(%q) returned a different expression", p.Name)
		}
	}
}

func TestDefectUnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown pattern")
		}
	}()
	Defect("no-such-pattern")
}

func TestIsArabicWord(t *testing.T) {
	if !IsArabicWord("المعادي") {
		t.Error("المعادي should be Arabic")
	}
	if IsArabicWord("Maadi") {
		t.Error("Maadi should not be Arabic")
	}
	if IsArabicWord("123") {
		t.Error("digits should not be Arabic")
	}
}
