package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ahmedgfathy/contaboo/internal/quality"
)

// CSVImporter handles .csv and .tsv CRM exports.
type CSVImporter struct{}

func (c *CSVImporter) Format() string { return "csv" }

// CanHandle returns true for CSV/TSV file extensions.
func (c *CSVImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".csv" || ext == ".tsv"
}

// Import parses a CSV file into listings.
// First row is treated as headers (become field names). Each subsequent row
// becomes one Record in header order, so a repeated header column stays
// visible to duplicate-field detection.
func (c *CSVImporter) Import(ctx context.Context, path string) ([]RawListing, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)

	// Auto-detect TSV
	if strings.ToLower(filepath.Ext(path)) == ".tsv" {
		reader.Comma = '\t'
	}

	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parsing CSV %s: %w", path, err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var listings []RawListing
	for row := 1; ; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing CSV %s: %w", path, err)
		}

		r := quality.Record{}
		for j, val := range rec {
			if j >= len(headers) || headers[j] == "" {
				continue
			}
			val = strings.TrimSpace(val)
			if val == "" {
				continue
			}
			r.Fields = append(r.Fields, quality.Field{Name: headers[j], Value: val})
		}
		if len(r.Fields) == 0 {
			continue
		}

		line, _ := reader.FieldPos(0)
		listings = append(listings, RawListing{
			Message:       recordMessage(r),
			Input:         r,
			SourceFile:    absPath,
			SourceLine:    line,
			SourceSection: fmt.Sprintf("row-%d", row),
		})
	}

	return listings, nil
}

// messageFields are the record fields that make up a listing's message, in
// the order they are joined.
var messageFields = []string{
	"title", "description", "property_type", "location", "area", "price",
	"rooms", "area_size", "agent_name", "mobile",
}

// recordMessage renders the listing text the extractor runs over. A record
// with none of the known fields falls back to all of its values.
func recordMessage(r quality.Record) string {
	var parts []string
	for _, name := range messageFields {
		if v, ok := r.Get(name); ok && strings.TrimSpace(v) != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		for _, f := range r.Fields {
			parts = append(parts, f.Value)
		}
	}
	return strings.Join(parts, "\n")
}
