// Package quality detects and repairs data-quality defects in imported
// listings and scores the result.
//
// An Input is one of three shapes: plain Text, HTML Markup, or a Record of
// named fields. Each shape has its own analysis path. Detection and cleaning
// are pure functions of the input; an Analyzer only carries configuration.
package quality

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidInput is returned by Analyze when the input has no usable shape.
var ErrInvalidInput = errors.New("quality: invalid input shape")

// Input is the value being analyzed. It is implemented only by Text, Markup
// and Record.
type Input interface {
	isInput()
}

// Text is free-form plain text such as a chat message.
type Text string

// Markup is an HTML fragment or document.
type Markup string

// Field is one named value of a Record.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Record is an ordered set of named values, e.g. an imported CSV row. Field
// order matters: duplicate removal keeps the first occurrence.
type Record struct {
	Fields []Field `json:"fields"`
}

func (Text) isInput()   {}
func (Markup) isInput() {}
func (Record) isInput() {}

// RecordFromMap builds a Record with fields sorted by name so the result is
// deterministic.
func RecordFromMap(m map[string]string) Record {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	r := Record{Fields: make([]Field, 0, len(names))}
	for _, n := range names {
		r.Fields = append(r.Fields, Field{Name: n, Value: m[n]})
	}
	return r
}

// RecordFromJSON builds a Record from a JSON object, keeping key order.
// Strings are unquoted, null becomes an empty value, and other values keep
// their JSON text.
func RecordFromJSON(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return Record{}, fmt.Errorf("%w: record must be a JSON object", ErrInvalidInput)
	}

	r := Record{Fields: []Field{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		name, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return Record{}, fmt.Errorf("%w: field %q: %v", ErrInvalidInput, name, err)
		}
		r.Fields = append(r.Fields, Field{Name: name, Value: jsonValueText(raw)})
	}
	if _, err := dec.Token(); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return r, nil
}

func jsonValueText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0 || string(raw) == "null":
		return ""
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case raw[0] == '{' || raw[0] == '[':
		var b bytes.Buffer
		if err := json.Compact(&b, raw); err == nil {
			return b.String()
		}
	}
	return string(raw)
}

// Get returns the first value whose normalized name matches name.
func (r Record) Get(name string) (string, bool) {
	want := normalizeFieldName(name)
	for _, f := range r.Fields {
		if normalizeFieldName(f.Name) == want {
			return f.Value, true
		}
	}
	return "", false
}

// Map returns the fields as a map. Later duplicates do not overwrite
// earlier ones.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r.Fields))
	for _, f := range r.Fields {
		if _, ok := m[f.Name]; !ok {
			m[f.Name] = f.Value
		}
	}
	return m
}

// Serialize renders the record as "name: value" lines, the form the text
// detectors run over.
func (r Record) Serialize() string {
	var b strings.Builder
	for i, f := range r.Fields {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}
	return b.String()
}

func (r Record) clone() Record {
	return Record{Fields: append([]Field(nil), r.Fields...)}
}
