package mobile

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"01012345678", "01012345678", true},
		{"+201012345678", "01012345678", true},
		{"201112345678", "01112345678", true},
		{"00201212345678", "01212345678", true},
		{"+20 10 1234 5678", "01012345678", true},
		{"010-1234-5678", "01012345678", true},
		{"0155 123 4567", "01551234567", true},
		{"1012345678", "01012345678", true},
		{"+20 010 1234 5678", "01012345678", true},
		{"٠١٠١٢٣٤٥٦٧٨", "01012345678", true},
		{"01312345678", "", false},
		{"0101234567", "", false},
		{"+20 12 345", "", false},
		{"", "", false},
		{"hello", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Normalize(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("Normalize(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	inputs := []string{
		"01012345678", "+201012345678", "201512345678", "0020 11 2345 6789",
		"+20 12 1234 5678", "010 1234 5678", "0125-123-4567",
	}
	for _, in := range inputs {
		n, ok := Normalize(in)
		if !ok {
			t.Fatalf("Normalize(%q) failed", in)
		}
		if !Validate(n) {
			t.Errorf("Validate(Normalize(%q)) = false", in)
		}
		again, ok := Normalize(n)
		if !ok || again != n {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, n, again)
		}
	}
}

func TestValidate(t *testing.T) {
	if !Validate("01012345678") {
		t.Error("canonical number should validate")
	}
	if Validate("+20 12 345") {
		t.Error("truncated number should not validate")
	}
	if Validate("01412345678") {
		t.Error("carrier digit 4 should not validate")
	}
}

func TestFormat(t *testing.T) {
	if got := Format("01012345678"); got != "+20 10 1234 5678" {
		t.Errorf("Format = %q", got)
	}
	if got := Format("+201512345678"); got != "+20 15 1234 5678" {
		t.Errorf("Format = %q", got)
	}
	if got := Format("12345"); got != "12345" {
		t.Errorf("invalid input should be returned unchanged, got %q", got)
	}
}

func TestCarrierOf(t *testing.T) {
	tests := []struct {
		in   string
		name string
		ar   string
	}{
		{"01012345678", "Vodafone", "فودافون"},
		{"01112345678", "Etisalat", "اتصالات"},
		{"01212345678", "Orange", "أورانج"},
		{"01512345678", "WE", "وي"},
	}
	for _, tt := range tests {
		c, ok := CarrierOf(tt.in)
		if !ok || c.Name != tt.name || c.ArabicName != tt.ar {
			t.Errorf("CarrierOf(%q) = %+v, %v", tt.in, c, ok)
		}
	}
	if _, ok := CarrierOf("0101"); ok {
		t.Error("invalid number should have no carrier")
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"compact", "اتصل 01012345678 الآن", "01012345678"},
		{"country coded", "call +201112345678", "01112345678"},
		{"spaced", "Tel: 010 1234 5678", "01012345678"},
		{"dashed", "Tel: 0122-123-4567", "01221234567"},
		{"arabic digits", "موبايل ٠١٥١٢٣٤٥٦٧٨", "01512345678"},
		{"rtl split", "للتواصل 26433244 10 20+", "01026433244"},
		{"first wins", "01012345678 or 01112345678", "01012345678"},
		{"none", "no phone here 12345", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.in)
			if got != tt.want || ok != (tt.want != "") {
				t.Fatalf("Extract(%q) = %q, %v; want %q", tt.in, got, ok, tt.want)
			}
		})
	}
}

func TestFindAllRejectsLongerRuns(t *testing.T) {
	if ms := FindAll("ref 301012345678901"); len(ms) != 0 {
		t.Fatalf("expected no matches inside a longer numeric run, got %+v", ms)
	}
	ms := FindAll("a 01012345678 b 01512345678")
	if len(ms) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(ms))
	}
	if ms[0].Start > ms[1].Start {
		t.Error("matches not ordered by position")
	}
	if ms[1].Raw != "01512345678" || ms[1].Normalized != "01512345678" {
		t.Errorf("second match = %+v", ms[1])
	}
}

func TestFindAllSplitForm(t *testing.T) {
	text := "اتصل 01012345678 او 26433244 10 20+"
	ms := FindAll(text)
	if len(ms) != 2 {
		t.Fatalf("FindAll = %+v, want 2 matches", ms)
	}
	split := ms[1]
	if !split.Reordered || split.Normalized != "01026433244" || split.Raw != "26433244 10 20+" {
		t.Errorf("split match = %+v", split)
	}
	if text[split.Start:split.End] != split.Raw {
		t.Errorf("span %d..%d does not cover %q", split.Start, split.End, split.Raw)
	}
	if ms[0].Reordered {
		t.Errorf("direct match marked reordered: %+v", ms[0])
	}

	got := ExtractAll("26433244 10 20+ و 01026433244")
	if len(got) != 1 || got[0] != "01026433244" {
		t.Errorf("ExtractAll = %v, want the split and direct forms merged", got)
	}
}

func TestExtractAllDedups(t *testing.T) {
	got := ExtractAll("01012345678, +201012345678, 01112345678")
	if len(got) != 2 || got[0] != "01012345678" || got[1] != "01112345678" {
		t.Fatalf("ExtractAll = %v", got)
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		name string
		in   string
		auth bool
		want string
	}{
		{"unauth local", "call 01012345678", false, "call 01*********"},
		{"unauth country coded", "+201234567890", false, "+2*********"},
		{"auth", "call 01012345678 now", true, "call +20 10 1234 5678 now"},
		{"auth spaced", "رقم 010 1234 5678", true, "رقم +20 10 1234 5678"},
		{"price untouched", "price 2500000 EGP", false, "price 2500000 EGP"},
		{"long run untouched", "id 301012345678901", false, "id 301012345678901"},
		{"unauth rtl split", "للتواصل 26433244 10 20+", false, "للتواصل 01*********"},
		{"auth rtl split", "للتواصل 26433244 10 20+", true, "للتواصل +20 10 2643 3244"},
		{"empty", "", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Mask(tt.in, tt.auth); got != tt.want {
				t.Fatalf("Mask(%q, %v) = %q, want %q", tt.in, tt.auth, got, tt.want)
			}
		})
	}
}

func TestMaskNeverLeaksDigits(t *testing.T) {
	inputs := []string{"01012345678", "+201012345678", "0020 10 1234 5678", "010-1234-5678", "26433244 10 20+"}
	for _, in := range inputs {
		out := Mask("x "+in+" y", false)
		digits := 0
		for _, r := range out {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits > VisiblePrefix {
			t.Errorf("Mask(%q) revealed %d digits: %q", in, digits, out)
		}
	}
}

func TestMaskAuthenticatedKeepsAllDigits(t *testing.T) {
	out := Mask("01512345678", true)
	digits := 0
	for _, r := range out {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 11 {
		t.Fatalf("authenticated mask shortened the number: %q", out)
	}
}

func TestMaskerCustomChar(t *testing.T) {
	got := Masker{Char: '•'}.Mask("01012345678", false)
	if got != "01"+strings.Repeat("•", 9) {
		t.Fatalf("custom mask = %q", got)
	}
}

func TestIsEgyptian(t *testing.T) {
	if !IsEgyptian("+20 10 1234 5678") {
		t.Error("expected Egyptian")
	}
	if IsEgyptian("+1 415 555 0100") {
		t.Error("US number should not be Egyptian")
	}
}
