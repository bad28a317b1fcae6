package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ahmedgfathy/contaboo/internal/extract"
	"github.com/ahmedgfathy/contaboo/internal/patterns"
	"github.com/ahmedgfathy/contaboo/internal/quality"
	"github.com/ahmedgfathy/contaboo/internal/store"
)

const sampleChat = `12/01/2024, 10:30 - Messages and calls are end-to-end encrypted.
[15/1/24, 10:30:25 AM] Ahmed: شقة للبيع في المعادي السعر 2500000 اتصل 01012345678
[15/1/24, 10:31:00 AM] Sara: مطلوب فيلا في الشيخ زايد
الميزانية مفتوحة
[15/1/24, 10:32:00 AM] Omar: <Media omitted>
`

const sampleCSV = "title,location,price,property_type,mobile\n" +
	"شقة للبيع,المعادي,2500000,شقة,01012345678\n" +
	",,,,\n" +
	"فيلا للإيجار,الشيخ زايد,40000,فيلا,\n"

const sampleHTML = `<html><head><title>Listings</title></head><body>
<div class="listing"><h2>شقة للبيع</h2><p>المعادي</p><p>Price: 2500000</p><div class="listing">nested</div></div>
<article><h2>Office for rent</h2><p>Zamalek</p><script>var x = 1;</script></article>
</body></html>`

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// ==================== WhatsApp Importer Tests ====================

func TestWhatsAppImport(t *testing.T) {
	ctx := context.Background()
	path := writeTemp(t, t.TempDir(), "chat.txt", sampleChat)

	listings, err := (&WhatsAppImporter{}).Import(ctx, path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("Expected 2 listings (media placeholder dropped), got %d", len(listings))
	}

	first := listings[0]
	if first.Sender != "Ahmed" || first.SourceLine != 2 || first.SourceSection != "msg-1" {
		t.Errorf("first listing provenance = %q line %d %q", first.Sender, first.SourceLine, first.SourceSection)
	}
	want := time.Date(2024, 1, 15, 10, 30, 25, 0, time.UTC)
	if first.SentAt == nil || !first.SentAt.Equal(want) {
		t.Errorf("SentAt = %v, want %v", first.SentAt, want)
	}
	if !filepath.IsAbs(first.SourceFile) {
		t.Errorf("SourceFile should be absolute, got %q", first.SourceFile)
	}

	if got := listings[1].Message; got != "مطلوب فيلا في الشيخ زايد\nالميزانية مفتوحة" {
		t.Errorf("continuation not joined: %q", got)
	}
}

func TestWhatsAppImport_ParagraphFallback(t *testing.T) {
	ctx := context.Background()
	path := writeTemp(t, t.TempDir(), "pasted.txt", "شقة للبيع في المعادي\n\n\nفيلا للإيجار\nفي الشيخ زايد\n")

	listings, err := (&WhatsAppImporter{}).Import(ctx, path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("Expected 2 paragraphs, got %d", len(listings))
	}
	if listings[0].SourceLine != 1 {
		t.Errorf("First paragraph should start at line 1, got %d", listings[0].SourceLine)
	}
	if listings[1].Message != "فيلا للإيجار\nفي الشيخ زايد" {
		t.Errorf("second paragraph = %q", listings[1].Message)
	}
}

func TestIsChatPlaceholder(t *testing.T) {
	tests := map[string]bool{
		"<Media omitted>":          true,
		"This message was deleted": true,
		"image omitted":            true,
		"شقة للبيع":                false,
		"media coverage is great":  false,
	}
	for in, want := range tests {
		if got := isChatPlaceholder(in); got != want {
			t.Errorf("isChatPlaceholder(%q) = %v, want %v", in, got, want)
		}
	}
}

// ==================== CSV Importer Tests ====================

func TestCSVImport(t *testing.T) {
	ctx := context.Background()
	path := writeTemp(t, t.TempDir(), "crm.csv", sampleCSV)

	listings, err := (&CSVImporter{}).Import(ctx, path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("Expected 2 rows (empty row skipped), got %d", len(listings))
	}

	rec, ok := listings[0].Input.(quality.Record)
	if !ok {
		t.Fatalf("Input should be a Record, got %T", listings[0].Input)
	}
	if len(rec.Fields) != 5 || rec.Fields[0].Name != "title" || rec.Fields[4].Name != "mobile" {
		t.Errorf("fields out of header order: %+v", rec.Fields)
	}
	if got := listings[0].Message; got != "شقة للبيع\nشقة\nالمعادي\n2500000\n01012345678" {
		t.Errorf("message = %q", got)
	}

	second := listings[1]
	if second.SourceLine != 4 || second.SourceSection != "row-3" {
		t.Errorf("second row provenance = line %d %q", second.SourceLine, second.SourceSection)
	}
	if r := second.Input.(quality.Record); len(r.Fields) != 4 {
		t.Errorf("blank cells should be dropped: %+v", r.Fields)
	}
}

func TestCSVImport_TSV(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "crm.tsv", "title\tprice\nOffice for sale\t3000000\n")
	listings, err := (&CSVImporter{}).Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(listings) != 1 || listings[0].Message != "Office for sale\n3000000" {
		t.Fatalf("listings = %+v", listings)
	}
}

func TestCSVImport_HeaderOnly(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "empty.csv", "title,price\n")
	listings, err := (&CSVImporter{}).Import(context.Background(), path)
	if err != nil || len(listings) != 0 {
		t.Fatalf("header-only CSV = %d listings, %v", len(listings), err)
	}
}

func TestRecordMessage_Fallback(t *testing.T) {
	r := quality.Record{Fields: []quality.Field{{Name: "notes", Value: "call me"}, {Name: "extra", Value: "x"}}}
	if got := recordMessage(r); got != "call me\nx" {
		t.Errorf("recordMessage = %q", got)
	}
}

// ==================== JSON Importer Tests ====================

func TestJSONImport_Wrapped(t *testing.T) {
	body := `{"listings": [
		{"title": "Villa for sale", "location": "Sheikh Zayed", "price": 7500000, "meta": {"agent": "Karim"}},
		{"title": "Flat", "notes": null},
		5
	]}`
	path := writeTemp(t, t.TempDir(), "export.json", body)

	listings, err := (&JSONImporter{}).Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("Expected 2 listings, got %d", len(listings))
	}
	rec := listings[0].Input.(quality.Record)
	names := []string{}
	for _, f := range rec.Fields {
		names = append(names, f.Name)
	}
	if strings.Join(names, ",") != "title,location,price,meta.agent" {
		t.Errorf("field order = %v", names)
	}
	if listings[0].Message != "Villa for sale\nSheikh Zayed\n7500000" {
		t.Errorf("message = %q", listings[0].Message)
	}
	if r := listings[1].Input.(quality.Record); len(r.Fields) != 1 {
		t.Errorf("null values should be dropped: %+v", r.Fields)
	}
	if listings[1].SourceSection != "[1]" {
		t.Errorf("section = %q", listings[1].SourceSection)
	}
}

func TestJSONImport_Array(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "a.json", `[{"description": "شقة للبيع"}, "مطلوب فيلا"]`)
	listings, err := (&JSONImporter{}).Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(listings) != 2 || listings[1].Message != "مطلوب فيلا" {
		t.Fatalf("listings = %+v", listings)
	}
}

func TestJSONImport_Invalid(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{"bad.json": `{"a": `, "scalar.json": `42`} {
		path := writeTemp(t, dir, name, body)
		if _, err := (&JSONImporter{}).Import(context.Background(), path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

// ==================== HTML Importer Tests ====================

func TestHTMLImport_Cards(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "page.html", sampleHTML)

	listings, err := (&HTMLImporter{}).Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("Expected 2 cards (nested card folded into its parent), got %d", len(listings))
	}
	if got := listings[0].Message; got != "شقة للبيع\nالمعادي\nPrice: 2500000\nnested" {
		t.Errorf("first card text = %q", got)
	}
	if got := listings[1].Message; got != "Office for rent\nZamalek" {
		t.Errorf("script text leaked: %q", got)
	}
	m, ok := listings[0].Input.(quality.Markup)
	if !ok || !strings.HasPrefix(string(m), `<div class="listing">`) {
		t.Errorf("card markup = %v", listings[0].Input)
	}
	if listings[1].SourceSection != "card-2" {
		t.Errorf("section = %q", listings[1].SourceSection)
	}
}

func TestHTMLImport_NoCards(t *testing.T) {
	body := "<html><body><p>فيلا للبيع</p><p>التجمع الخامس</p></body></html>"
	path := writeTemp(t, t.TempDir(), "single.htm", body)

	listings, err := (&HTMLImporter{}).Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(listings) != 1 || listings[0].SourceSection != "page" {
		t.Fatalf("listings = %+v", listings)
	}
	if listings[0].Message != "فيلا للبيع\nالتجمع الخامس" {
		t.Errorf("message = %q", listings[0].Message)
	}
}

func TestMarkupText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<p>Price: ABC123</p>", "Price: ABC123"},
		{"<div>a<br>b</div><style>p{}</style>", "a\nb"},
		{"<ul><li>one</li><li>two  words</li></ul>", "one\ntwo words"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := MarkupText(tt.in); got != tt.want {
			t.Errorf("MarkupText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ==================== Engine / Format Detection Tests ====================

func TestEngine_FormatDetection(t *testing.T) {
	e := NewEngine(nil) // store not needed for detection

	tests := []struct {
		path   string
		format string
	}{
		{"chat.txt", "whatsapp"},
		{"CHAT.TXT", "whatsapp"},
		{"crm.csv", "csv"},
		{"crm.tsv", "csv"},
		{"export.json", "json"},
		{"page.html", "html"},
		{"page.htm", "html"},
	}
	for _, tt := range tests {
		imp := e.detectImporter(tt.path)
		if imp == nil {
			t.Errorf("No importer found for %s", tt.path)
			continue
		}
		if imp.Format() != tt.format {
			t.Errorf("%s detected as %s, want %s", tt.path, imp.Format(), tt.format)
		}
	}
	if imp := e.detectImporter("notes.md"); imp != nil {
		t.Errorf("notes.md should have no importer, got %s", imp.Format())
	}
}

func TestEngine_ContentSniffing(t *testing.T) {
	e := NewEngine(nil)
	dir := t.TempDir()

	tests := []struct {
		body   string
		format string
	}{
		{`[{"title": "x"}]`, "json"},
		{"<!DOCTYPE html><html><body>x</body></html>", "html"},
		{"<div>card</div>", "html"},
		{"[1/7/25, 10:30:25 AM] Sara: مطلوب شقة\n", "whatsapp"},
		{"# just markdown\n", ""},
		{"", ""},
	}
	for i, tt := range tests {
		path := writeTemp(t, dir, "sniff-"+string(rune('a'+i))+".dat", tt.body)
		imp := e.sniffFormat(path)
		got := ""
		if imp != nil {
			got = imp.Format()
		}
		if got != tt.format {
			t.Errorf("sniff(%q) = %q, want %q", tt.body, got, tt.format)
		}
	}
}

func TestIsBinaryFile(t *testing.T) {
	dir := t.TempDir()
	txt := writeTemp(t, dir, "text.txt", "Hello, this is text content.\n")
	bin := writeTemp(t, dir, "binary.bin", string([]byte{0x00, 0x01, 0x02, 0xFF, 0xFE, 0x00}))

	if isBinaryFile(txt) {
		t.Error("Text file should not be detected as binary")
	}
	if !isBinaryFile(bin) {
		t.Error("Binary file should be detected as binary")
	}
}

// ==================== Engine Integration Tests ====================

func TestEngine_ImportFile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := NewEngine(s)

	path := writeTemp(t, t.TempDir(), "chat.txt", sampleChat)
	result, err := e.ImportFile(ctx, path, ImportOptions{})
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if result.FilesImported != 1 || result.ListingsNew != 2 || len(result.Errors) != 0 {
		t.Fatalf("result = %+v", result)
	}

	props, err := s.ListProperties(ctx, store.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("ListProperties: %v", err)
	}
	bySender := map[string]*store.Property{}
	for _, p := range props {
		bySender[p.Sender] = p
	}

	ahmed := bySender["Ahmed"]
	if ahmed == nil {
		t.Fatalf("Ahmed's listing missing: %+v", props)
	}
	if ahmed.Purpose != extract.Sale || ahmed.Area != "المعادي" || ahmed.BrokerMobile != "01012345678" {
		t.Errorf("extracted = %+v", ahmed.Fields())
	}
	if ahmed.SourceRef != "chat.txt:2#msg-1" {
		t.Errorf("SourceRef = %q", ahmed.SourceRef)
	}
	if ahmed.QualityStatus == "" || ahmed.SentAt == nil {
		t.Errorf("quality/sent_at not recorded: %q %v", ahmed.QualityStatus, ahmed.SentAt)
	}

	sara := bySender["Sara"]
	if sara == nil || sara.Purpose != extract.Wanted || sara.PropertyType != patterns.Villa {
		t.Errorf("Sara's listing = %+v", sara)
	}
	if result.AverageQuality() <= 0 {
		t.Errorf("average quality = %v", result.AverageQuality())
	}
}

func TestEngine_ImportFile_CSVAndHTML(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := NewEngine(s)
	dir := t.TempDir()

	for name, body := range map[string]string{"crm.csv": sampleCSV, "page.html": sampleHTML} {
		path := writeTemp(t, dir, name, body)
		r, err := e.ImportFile(ctx, path, ImportOptions{})
		if err != nil {
			t.Fatalf("ImportFile(%s): %v", name, err)
		}
		if r.ListingsNew != 2 {
			t.Errorf("%s: %d new listings, want 2", name, r.ListingsNew)
		}
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 4 || st.ByPurpose["sale"] != 2 || st.ByPurpose["rent"] != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestEngine_Dedup_SameContent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := NewEngine(s)
	path := writeTemp(t, t.TempDir(), "chat.txt", sampleChat)

	result1, err := e.ImportFile(ctx, path, ImportOptions{})
	if err != nil {
		t.Fatalf("First import failed: %v", err)
	}

	// Second import: everything is a duplicate
	result2, err := e.ImportFile(ctx, path, ImportOptions{})
	if err != nil {
		t.Fatalf("Second import failed: %v", err)
	}
	if result2.ListingsNew != 0 {
		t.Errorf("Expected 0 new listings on re-import, got %d", result2.ListingsNew)
	}
	if result2.ListingsDuplicate != result1.ListingsNew {
		t.Errorf("Expected %d duplicates, got %d", result1.ListingsNew, result2.ListingsDuplicate)
	}
}

func TestEngine_DryRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := NewEngine(s)
	path := writeTemp(t, t.TempDir(), "chat.txt", sampleChat)

	result, err := e.ImportFile(ctx, path, ImportOptions{DryRun: true})
	if err != nil {
		t.Fatalf("DryRun import failed: %v", err)
	}
	if result.ListingsNew != 2 {
		t.Errorf("Dry run should report 2 new listings, got %d", result.ListingsNew)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Expected 0 listings in store after dry run, got %d", stats.Total)
	}
}

func TestEngine_CleanOnImport(t *testing.T) {
	ctx := context.Background()
	body := "title,title_duplicate\nVilla,Villa\n"

	tests := []struct {
		clean       bool
		wantScore   int
		wantStatus  string
		wantCleaned int
	}{
		{false, 80, "Good", 0},
		{true, 100, "Excellent", 1},
	}
	for _, tt := range tests {
		s := newTestStore(t)
		e := NewEngine(s)
		path := writeTemp(t, t.TempDir(), "dup.csv", body)

		result, err := e.ImportFile(ctx, path, ImportOptions{Clean: tt.clean})
		if err != nil {
			t.Fatalf("ImportFile: %v", err)
		}
		if result.ListingsCleaned != tt.wantCleaned {
			t.Errorf("clean=%v: cleaned = %d, want %d", tt.clean, result.ListingsCleaned, tt.wantCleaned)
		}
		props, _ := s.ListProperties(ctx, store.ListOpts{})
		if len(props) != 1 {
			t.Fatalf("clean=%v: %d listings stored", tt.clean, len(props))
		}
		p := props[0]
		if p.QualityScore != tt.wantScore || p.QualityStatus != tt.wantStatus || p.Message != "Villa" {
			t.Errorf("clean=%v: stored %d %q %q", tt.clean, p.QualityScore, p.QualityStatus, p.Message)
		}
	}
}

func TestEngine_ImportFile_Skips(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(newTestStore(t))
	dir := t.TempDir()

	tests := []struct {
		name, body, reason string
		opts               ImportOptions
	}{
		{"blob.bin", string([]byte{0x00, 0x01, 0x02}), "binary file", ImportOptions{}},
		{"notes.md", "# hello\n", "unsupported format", ImportOptions{}},
		{"big.txt", strings.Repeat("x", 64), "exceeds", ImportOptions{MaxFileSize: 16}},
	}
	for _, tt := range tests {
		path := writeTemp(t, dir, tt.name, tt.body)
		r, err := e.ImportFile(ctx, path, tt.opts)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tt.name, err)
		}
		if r.FilesSkipped != 1 || len(r.Errors) != 1 || !strings.Contains(r.Errors[0].Message, tt.reason) {
			t.Errorf("%s: result = %+v", tt.name, r)
		}
	}
}

func TestEngine_ImportFile_ParseErrorIsFileLevel(t *testing.T) {
	e := NewEngine(newTestStore(t))
	path := writeTemp(t, t.TempDir(), "bad.json", `{"listings": [`)
	if _, err := e.ImportFile(context.Background(), path, ImportOptions{}); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestEngine_ImportDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeTemp(t, dir, "chat.txt", sampleChat)
	writeTemp(t, dir, ".hidden.txt", "شقة مخفية للبيع\n")
	writeTemp(t, dir, "blob.bin", string([]byte{0x00, 0x01}))
	writeTemp(t, dir, filepath.Join("sub", "crm.csv"), sampleCSV)

	e := NewEngine(newTestStore(t))
	flat, err := e.ImportDir(ctx, dir, ImportOptions{Recursive: false})
	if err != nil {
		t.Fatalf("ImportDir failed: %v", err)
	}
	if flat.FilesScanned != 2 || flat.FilesImported != 1 || flat.FilesSkipped != 1 || flat.ListingsNew != 2 {
		t.Errorf("non-recursive result = %+v", flat)
	}

	var progress []int
	e2 := NewEngine(newTestStore(t))
	deep, err := e2.ImportDir(ctx, dir, ImportOptions{
		Recursive: true,
		ProgressFn: func(current, total int, file string) {
			if total != 3 {
				t.Errorf("progress total = %d, want 3", total)
			}
			progress = append(progress, current)
		},
	})
	if err != nil {
		t.Fatalf("Recursive ImportDir failed: %v", err)
	}
	if deep.FilesScanned != 3 || deep.FilesImported != 2 || deep.ListingsNew != 4 {
		t.Errorf("recursive result = %+v", deep)
	}
	if len(progress) != 3 || progress[2] != 3 {
		t.Errorf("progress calls = %v", progress)
	}
}

func TestEngine_ImportFile_SymlinkedDirectoryRejected(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(newTestStore(t))

	tmpDir := t.TempDir()
	targetDir := filepath.Join(tmpDir, "target")
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		t.Fatalf("mkdir target: %v", err)
	}
	linkPath := filepath.Join(tmpDir, "dir-link")
	if err := os.Symlink(targetDir, linkPath); err != nil {
		t.Skipf("symlink not supported in this environment: %v", err)
	}

	_, err := e.ImportFile(ctx, linkPath, ImportOptions{Recursive: true})
	if err == nil || !strings.Contains(err.Error(), "symlinked directory") {
		t.Fatalf("expected symlinked directory error, got: %v", err)
	}
}

func TestEngine_ImportDir_ReportsUnreadableSubdirError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	ctx := context.Background()
	e := NewEngine(newTestStore(t))

	tmpDir := t.TempDir()
	writeTemp(t, tmpDir, "chat.txt", sampleChat)
	lockedDir := filepath.Join(tmpDir, "locked")
	writeTemp(t, lockedDir, "secret.txt", "شقة للبيع\n")
	if err := os.Chmod(lockedDir, 0o000); err != nil {
		t.Fatalf("chmod locked dir: %v", err)
	}
	defer os.Chmod(lockedDir, 0o755)

	result, err := e.ImportDir(ctx, tmpDir, ImportOptions{Recursive: true})
	if err != nil {
		t.Fatalf("ImportDir returned unexpected error: %v", err)
	}
	if len(result.Errors) == 0 {
		t.Fatalf("expected walk errors for unreadable subdirectory")
	}
	if result.FilesImported == 0 {
		t.Fatalf("expected readable files to still import")
	}
}

func TestEngine_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewEngine(newTestStore(t))
	path := writeTemp(t, t.TempDir(), "chat.txt", sampleChat)

	_, err := e.ImportFile(ctx, path, ImportOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestProcessListing_EmptyTextFails(t *testing.T) {
	e := NewEngine(newTestStore(t))
	err := e.processListing(context.Background(), "whatsapp", RawListing{Message: "   ", SourceFile: "x.txt"}, ImportOptions{}, &ImportResult{})
	if err == nil {
		t.Fatal("expected error for empty listing")
	}
}

// ==================== Format Result Tests ====================

func TestFormatImportResult(t *testing.T) {
	r := &ImportResult{
		FilesScanned:      10,
		FilesImported:     8,
		FilesSkipped:      2,
		ListingsNew:       4,
		ListingsDuplicate: 3,
		ListingsCleaned:   1,
		QualityTotal:      340,
		Errors: []ImportError{
			{File: "/test/bad.bin", Message: "binary file"},
			{File: "/test/crm.csv", Line: 7, Message: "storing listing: boom"},
		},
	}

	output := FormatImportResult(r)
	for _, want := range []string{"10 scanned", "8 imported", "4 new", "3 duplicate", "1 cleaned", "85.0 average", "binary file", "/test/crm.csv:7"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestImportResult_Add(t *testing.T) {
	a := &ImportResult{FilesScanned: 1, ListingsNew: 2, QualityTotal: 150}
	a.Add(&ImportResult{FilesScanned: 2, ListingsNew: 1, QualityTotal: 90, Errors: []ImportError{{File: "x"}}})
	if a.FilesScanned != 3 || a.ListingsNew != 3 || a.AverageQuality() != 80 || len(a.Errors) != 1 {
		t.Errorf("merged = %+v", a)
	}
	if (&ImportResult{}).AverageQuality() != 0 {
		t.Error("empty result should average 0")
	}
}
