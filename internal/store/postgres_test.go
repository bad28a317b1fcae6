package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/ahmedgfathy/contaboo/internal/extract"
)

// newPostgresTestStore connects to CONTABOO_TEST_DATABASE_URL and empties
// the listing table. Tests using it are skipped when the variable is unset.
func newPostgresTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("CONTABOO_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CONTABOO_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, StoreConfig{DatabaseURL: url, BatchSize: 2})
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	if _, err := s.db.Exec(ctx, `TRUNCATE properties RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	s := newPostgresTestStore(t)
	ctx := context.Background()

	id, err := s.AddProperty(ctx, &Property{Message: saleListing, Source: "pg"})
	if err != nil {
		t.Fatalf("AddProperty: %v", err)
	}
	again, err := s.AddProperty(ctx, &Property{Message: saleListing, Source: "pg"})
	if !errors.Is(err, ErrDuplicate) || again != id {
		t.Fatalf("duplicate = %d, %v", again, err)
	}

	got, err := s.GetProperty(ctx, id)
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}
	if got.Purpose != extract.Sale || got.Area != "المعادي" || len(got.Keywords) == 0 {
		t.Errorf("fields = %+v", got.Fields())
	}

	hits, err := s.SearchProperties(ctx, "شقه", 10)
	if err != nil || len(hits) != 1 {
		t.Errorf("search = %d, %v", len(hits), err)
	}

	if err := s.SetQuality(ctx, id, 90, "Excellent"); err != nil {
		t.Fatal(err)
	}
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 1 || st.Analyzed != 1 || st.ByPurpose["sale"] != 1 {
		t.Errorf("stats = %+v", st)
	}

	if _, err := s.db.Exec(ctx, `UPDATE properties SET purpose = 'unknown'`); err != nil {
		t.Fatal(err)
	}
	if n, err := s.ReExtract(ctx); err != nil || n != 1 {
		t.Errorf("ReExtract = %d, %v", n, err)
	}

	if err := s.DeleteProperty(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetProperty(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete: %v", err)
	}
}

func TestEscapeLike(t *testing.T) {
	tests := map[string]string{
		"plain":  "plain",
		"50%":    `50\%`,
		"a_b":    `a\_b`,
		`back\s`: `back\\s`,
	}
	for in, want := range tests {
		if got := escapeLike(in); got != want {
			t.Errorf("escapeLike(%q) = %q, want %q", in, got, want)
		}
	}
}
