// Package mapping turns source records into RDF resources.
//
// A Mapping is built once from configuration and never modified: it names
// the RDF type of every record, the pattern producing each record's subject
// URI, and one Column per exported field.
package mapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sdshare/sdshare/internal/rdf"
)

// ErrMissingField is returned when a pattern references a field the record
// does not carry.
var ErrMissingField = errors.New("record is missing a referenced field")

// Record is one source row: field name to trimmed value. Empty values are
// never stored.
type Record map[string]string

// NewRecord builds a record from parallel header and value slices,
// trimming values and dropping empty ones.
func NewRecord(headers, values []string) Record {
	rec := make(Record, len(headers))
	for i, h := range headers {
		if i >= len(values) {
			break
		}
		rec.Set(h, values[i])
	}
	return rec
}

// Set stores value under field if it is non-empty after trimming.
func (r Record) Set(field, value string) {
	if v := strings.TrimSpace(value); v != "" {
		r[field] = v
	}
}

// Pattern builds a URI from a record. Patterns containing "{field}"
// placeholders are expanded over the whole record; anything else is a
// printf pattern applied to a single value. A pattern with neither is a
// plain prefix.
type Pattern string

// IsRecordPattern reports whether p uses whole-record placeholders.
func (p Pattern) IsRecordPattern() bool {
	s := string(p)
	open := strings.IndexByte(s, '{')
	return open >= 0 && strings.IndexByte(s[open:], '}') > 0
}

// Fields lists the placeholders of a whole-record pattern.
func (p Pattern) Fields() []string {
	var fields []string
	s := string(p)
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			return fields
		}
		end := strings.IndexByte(s[open:], '}')
		if end < 0 {
			return fields
		}
		fields = append(fields, s[open+1:open+end])
		s = s[open+end+1:]
	}
}

// Apply expands the pattern. value is used for printf patterns; rec for
// whole-record patterns.
func (p Pattern) Apply(value string, rec Record) (string, error) {
	if !p.IsRecordPattern() {
		if !strings.Contains(string(p), "%") {
			return string(p) + value, nil
		}
		return fmt.Sprintf(string(p), value), nil
	}

	var b strings.Builder
	s := string(p)
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(s[open:], '}')
		if end < 0 {
			break
		}
		field := s[open+1 : open+end]
		v, ok := rec[field]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingField, field)
		}
		b.WriteString(s[:open])
		b.WriteString(v)
		s = s[open+end+1:]
	}
	b.WriteString(s)
	return b.String(), nil
}

// Column maps one source field to an RDF property.
type Column struct {
	// Name is the source field. It may be empty when Pattern is a
	// whole-record pattern.
	Name     string
	Property string
	// Literal selects a literal object; otherwise the value is a
	// resource reference.
	Literal bool
	Pattern Pattern
}

// Value returns the rendered value of c for rec, or "" when the source
// value is missing.
func (c Column) Value(rec Record) string {
	if c.Pattern != "" && c.Pattern.IsRecordPattern() {
		v, err := c.Pattern.Apply("", rec)
		if err != nil {
			return ""
		}
		return v
	}

	v := strings.TrimSpace(rec[c.Name])
	if v == "" {
		return ""
	}
	if c.Pattern != "" {
		out, _ := c.Pattern.Apply(v, rec)
		return out
	}
	return v
}

// Mapping describes how records of one feed become resources.
type Mapping struct {
	Type    string
	Columns []Column
	// Subject builds each record's subject URI from IDField or, for
	// whole-record patterns, from the whole record.
	Subject Pattern
	IDField string
}

// Properties returns the configured property URIs in column order.
func (m *Mapping) Properties() []string {
	props := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		props[i] = c.Property
	}
	return props
}

// Namespaces allocates prefixes for every configured property. The result
// depends only on configuration, never on data.
func (m *Mapping) Namespaces() *rdf.Namespaces {
	return rdf.ExtractNamespaces(m.Properties())
}

// SubjectURI builds the subject URI for rec.
func (m *Mapping) SubjectURI(rec Record) (string, error) {
	id := rec[m.IDField]
	if m.Subject == "" {
		if id == "" {
			return "", fmt.Errorf("%w: %s", ErrMissingField, m.IDField)
		}
		return id, nil
	}
	if !m.Subject.IsRecordPattern() && id == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, m.IDField)
	}
	return m.Subject.Apply(id, rec)
}

// Resource builds the resource for rec. Columns with no value yield no
// property.
func (m *Mapping) Resource(rec Record) (*rdf.Resource, error) {
	uri, err := m.SubjectURI(rec)
	if err != nil {
		return nil, err
	}
	return m.ResourceFor(uri, rec), nil
}

// ResourceFor builds the resource for rec under an already known subject.
func (m *Mapping) ResourceFor(uri string, rec Record) *rdf.Resource {
	res := rdf.NewResource(uri, m.Type)
	for _, c := range m.Columns {
		res.AddProperty(c.Property, c.Value(rec), c.Literal)
	}
	return res
}
