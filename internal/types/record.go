package types

import (
	"fmt"
	"strings"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/fiscalkey"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/normalize"
)

// =============================================================================
// SCHEMA
// =============================================================================

// Schema maps logical fields to column positions of a concrete header row.
type Schema struct {
	// Header is the header row as read from the dataset.
	Header []string

	index [fieldCount]int
}

// NewSchema resolves the column index of every logical field.
//
// PARAMETERS:
//   - header: The dataset header row (already trimmed).
//   - headers: Field -> column name. Fields missing from this map fall back
//     to DefaultHeaders.
//
// RETURNS:
//   - The resolved Schema.
//   - An error naming every field whose column is absent from header.
func NewSchema(header []string, headers map[Field]string) (*Schema, error) {
	names := DefaultHeaders()
	for f, name := range headers {
		names[f] = name
	}

	positions := make(map[string]int, len(header))
	for i, h := range header {
		if _, seen := positions[h]; !seen {
			positions[h] = i
		}
	}

	s := &Schema{Header: header}
	var missing []string
	for _, f := range AllFields() {
		pos, ok := positions[names[f]]
		if !ok {
			missing = append(missing, fmt.Sprintf("%s (%q)", f, names[f]))
			continue
		}
		s.index[f] = pos
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return s, nil
}

// DefaultSchema returns a Schema whose header holds exactly the default
// column names, in field order.
func DefaultSchema() *Schema {
	names := DefaultHeaders()
	header := make([]string, fieldCount)
	s := &Schema{Header: header}
	for _, f := range AllFields() {
		header[f] = names[f]
		s.index[f] = int(f)
	}
	return s
}

// Index returns the column position of a field.
func (s *Schema) Index(f Field) int {
	return s.index[f]
}

// Width returns the number of columns in the header.
func (s *Schema) Width() int {
	return len(s.Header)
}

// =============================================================================
// RECORD
// =============================================================================

// Record is one data row of the dataset.
//
// Fields hold the strings produced by the CSV reader. They are never copied;
// Set replaces a single element and marks the record dirty, so untouched
// records can be written back from the raw input without re-encoding.
type Record struct {
	schema *Schema
	fields []string
	line   int
	dirty  bool
}

// NewRecord wraps a row read from the dataset.
// The record takes ownership of fields.
func NewRecord(schema *Schema, fields []string, line int) *Record {
	return &Record{schema: schema, fields: fields, line: line}
}

// NewBlankRecord builds a record with every column empty.
func NewBlankRecord(schema *Schema, line int) *Record {
	return NewRecord(schema, make([]string, schema.Width()), line)
}

// Get returns the trimmed value of a field.
func (r *Record) Get(f Field) string {
	return strings.TrimSpace(r.fields[r.schema.index[f]])
}

// Raw returns the value of a field as read, untrimmed.
func (r *Record) Raw(f Field) string {
	return r.fields[r.schema.index[f]]
}

// Set replaces the value of a field and marks the record dirty when the
// value actually changes.
func (r *Record) Set(f Field, value string) {
	i := r.schema.index[f]
	if r.fields[i] == value {
		return
	}
	r.fields[i] = value
	r.dirty = true
}

// Fields returns all columns of the row, in header order.
func (r *Record) Fields() []string {
	return r.fields
}

// Dirty reports whether any field was modified.
func (r *Record) Dirty() bool {
	return r.dirty
}

// Line returns the 1-indexed line number where the row starts.
func (r *Record) Line() int {
	return r.line
}

// Key parses the fiscal document key of the row.
func (r *Record) Key() (fiscalkey.Key, error) {
	return fiscalkey.Parse(r.Get(FieldKey))
}

// Cancelled reports whether the row belongs to a cancelled document.
func (r *Record) Cancelled() bool {
	return normalize.IsCancelled(r.Get(FieldCancelled))
}
