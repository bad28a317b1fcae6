package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ahmedgfathy/contaboo/internal/quality"
)

// JSONImporter handles .json listing exports.
type JSONImporter struct{}

func (j *JSONImporter) Format() string { return "json" }

// CanHandle returns true for JSON file extensions.
func (j *JSONImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".json"
}

// listKeys are the wrapper keys accepted around an array of listings.
var listKeys = []string{"listings", "properties", "data", "rows"}

// Import parses a JSON file into listings.
// - Array of objects: each element becomes one listing.
// - Object wrapping such an array under a well-known key: same.
// - Any other object: one listing.
// Nested values are flattened with dot notation into record fields.
func (j *JSONImporter) Import(ctx context.Context, path string) ([]RawListing, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	var elems []interface{}
	switch v := raw.(type) {
	case []interface{}:
		elems = v
	case map[string]interface{}:
		elems = []interface{}{v}
		for _, k := range listKeys {
			if arr, ok := v[k].([]interface{}); ok {
				elems = arr
				break
			}
		}
	default:
		return nil, fmt.Errorf("invalid JSON in %s: expected an object or array of listings", path)
	}

	var listings []RawListing
	for i, elem := range elems {
		fields := map[string]string{}
		switch e := elem.(type) {
		case map[string]interface{}:
			for k, inner := range e {
				flattenJSON(k, inner, fields)
			}
		case string:
			fields["description"] = e
		default:
			continue
		}
		r := jsonRecord(fields)
		if len(r.Fields) == 0 {
			continue
		}
		listings = append(listings, RawListing{
			Message:       recordMessage(r),
			Input:         r,
			SourceFile:    absPath,
			SourceSection: fmt.Sprintf("[%d]", i),
		})
	}
	return listings, nil
}

// jsonRecord orders the known message fields first, the rest by name.
func jsonRecord(m map[string]string) quality.Record {
	for k, v := range m {
		if strings.TrimSpace(v) == "" || v == "null" {
			delete(m, k)
		}
	}
	r := quality.Record{}
	for _, name := range messageFields {
		if v, ok := m[name]; ok {
			r.Fields = append(r.Fields, quality.Field{Name: name, Value: v})
			delete(m, name)
		}
	}
	rest := make([]string, 0, len(m))
	for k := range m {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	for _, k := range rest {
		r.Fields = append(r.Fields, quality.Field{Name: k, Value: m[k]})
	}
	return r
}

// flattenJSON recursively flattens a JSON value into dot-notation key-value pairs.
func flattenJSON(prefix string, val interface{}, out map[string]string) {
	switch v := val.(type) {
	case map[string]interface{}:
		for k, inner := range v {
			flattenJSON(prefix+"."+k, inner, out)
		}
	case []interface{}:
		for i, elem := range v {
			flattenJSON(fmt.Sprintf("%s[%d]", prefix, i), elem, out)
		}
	case string:
		out[prefix] = v
	case float64:
		out[prefix] = fmt.Sprintf("%.0f", v)
		if v != float64(int64(v)) {
			out[prefix] = fmt.Sprintf("%g", v)
		}
	case bool:
		out[prefix] = fmt.Sprintf("%t", v)
	case nil:
		out[prefix] = "null"
	default:
		out[prefix] = fmt.Sprintf("%v", v)
	}
}
