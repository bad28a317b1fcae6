package ingest

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/ahmedgfathy/contaboo/internal/metrics"
	"github.com/ahmedgfathy/contaboo/internal/store"
)

const identicalListing = "شقة للبيع في المعادي السعر 2500000 اتصل 01012345678"

func TestProcessListing_ConcurrentIdenticalImports_NoErrors(t *testing.T) {
	s := newTestStore(t)
	engine := NewEngine(s)
	ctx := context.Background()

	raw := RawListing{
		Message:    identicalListing,
		SourceFile: "/exports/group.txt",
		SourceLine: 1,
	}

	const workers = 100
	start := make(chan struct{})
	errCh := make(chan error, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			if err := engine.processListing(ctx, "whatsapp", raw, ImportOptions{}, &ImportResult{}); err != nil {
				errCh <- err
			}
		}()
	}

	close(start)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Fatalf("expected no errors from concurrent identical imports, got: %v", err)
	}

	props, err := s.ListProperties(ctx, store.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("ListProperties: %v", err)
	}
	if len(props) != 1 {
		t.Fatalf("expected exactly 1 stored listing, got %d", len(props))
	}
}

func TestProcessAll_WorkerPool(t *testing.T) {
	s := newTestStore(t)
	engine := NewEngine(s, WithLogger(zap.NewNop()))
	ctx := context.Background()

	var listings []RawListing
	for i := 0; i < 60; i++ {
		listings = append(listings, RawListing{Message: identicalListing, SourceFile: "/exports/group.txt", SourceLine: i + 1})
	}
	listings = append(listings, RawListing{Message: "", SourceFile: "/exports/group.txt", SourceLine: 99})

	result := &ImportResult{}
	if err := engine.processAll(ctx, "whatsapp", listings, ImportOptions{Workers: 8}, result); err != nil {
		t.Fatalf("processAll: %v", err)
	}
	if result.ListingsNew != 1 || result.ListingsDuplicate != 59 || result.ListingsFailed != 1 {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0].Line != 99 {
		t.Fatalf("errors = %+v", result.Errors)
	}
}

func TestEngine_RecordsMetrics(t *testing.T) {
	reg := metrics.New()
	e := NewEngine(newTestStore(t), WithMetrics(reg))
	path := writeTemp(t, t.TempDir(), "chat.txt", sampleChat)

	if _, err := e.ImportFile(context.Background(), path, ImportOptions{}); err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if _, err := e.ImportFile(context.Background(), path, ImportOptions{}); err != nil {
		t.Fatalf("second ImportFile: %v", err)
	}

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	for _, want := range []string{
		`contaboo_import_rows_total{source="whatsapp",status="imported"} 2`,
		`contaboo_import_rows_total{source="whatsapp",status="duplicate"} 2`,
		`contaboo_extractions_total{property_type="apartment",purpose="sale"} 1`,
		`contaboo_extractions_total{property_type="villa",purpose="wanted"} 1`,
		`contaboo_quality_score_count 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
