// Package config loads process settings and the collections file, and
// builds the registry the server answers from.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/sdshare/sdshare/internal/mapping"
	"github.com/sdshare/sdshare/internal/rdf"
)

// Feed backend types.
const (
	TypeCSV = "csv"
	TypeSQL = "sql"
)

// ErrInvalid is matched by every validation failure of a collections file.
var ErrInvalid = errors.New("invalid configuration")

// File is the collections file.
type File struct {
	Title       string       `yaml:"title"`
	Author      string       `yaml:"author"`
	Collections []Collection `yaml:"collections"`
}

// Collection declares one collection and its feeds. The first feed serves
// fragments and snapshots.
type Collection struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Feeds []Feed `yaml:"feeds"`
}

// Feed declares one backend and its column mapping.
type Feed struct {
	Type string `yaml:"type"`

	// csv
	Source    string `yaml:"source,omitempty"`
	Timestamp string `yaml:"timestamp,omitempty"`

	// sql
	Database   string      `yaml:"database,omitempty"`
	Table      string      `yaml:"table,omitempty"`
	IDColumn   string      `yaml:"id_column,omitempty"`
	TimeColumn string      `yaml:"time_column,omitempty"`
	Filter     string      `yaml:"filter,omitempty"`
	Keys       []string    `yaml:"keys,omitempty"`
	BatchSize  int         `yaml:"batch_size,omitempty"`
	Permanent  []CodeRange `yaml:"permanent_codes,omitempty"`

	// mapping
	RDFType string   `yaml:"rdf_type"`
	Subject string   `yaml:"subject"`
	IDField string   `yaml:"id_field,omitempty"`
	Columns []Column `yaml:"columns"`

	PageSize int `yaml:"page_size,omitempty"`
}

// CodeRange lists backend error codes to treat as permanent. When present
// it replaces the default SQLite classification.
type CodeRange struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// Column maps one source field to a property. Columns are literals unless
// Reference is set.
type Column struct {
	Name      string `yaml:"name,omitempty"`
	Property  string `yaml:"property"`
	Reference bool   `yaml:"reference,omitempty"`
	Pattern   string `yaml:"pattern,omitempty"`
}

// Load reads and validates the collections file at path. Unknown fields are
// rejected.
func Load(fsys afero.Fs, path string) (*File, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("collections file %s not found: %w", path, err)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes a collections file. name is used in error messages.
func Parse(data []byte, name string) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &f, nil
}

// Validate checks the file for structural errors.
func (f *File) Validate() error {
	if len(f.Collections) == 0 {
		return fmt.Errorf("%w: no collections", ErrInvalid)
	}
	seen := make(map[string]bool)
	for i, c := range f.Collections {
		if c.ID == "" {
			return fmt.Errorf("%w: collection %d has no id", ErrInvalid, i)
		}
		if seen[c.ID] {
			return fmt.Errorf("%w: duplicate collection id %q", ErrInvalid, c.ID)
		}
		seen[c.ID] = true
		if len(c.Feeds) == 0 {
			return fmt.Errorf("%w: collection %q has no feeds", ErrInvalid, c.ID)
		}
		for j, fd := range c.Feeds {
			if err := fd.validate(); err != nil {
				return fmt.Errorf("%w: collection %q feed %d: %v", ErrInvalid, c.ID, j, err)
			}
		}
	}
	return nil
}

func (f *Feed) validate() error {
	switch f.Type {
	case TypeCSV:
		if f.Source == "" || f.Timestamp == "" {
			return errors.New("csv feeds need source and timestamp")
		}
		if f.Subject == "" && f.IDField == "" {
			return errors.New("csv feeds need a subject pattern or id_field")
		}
	case TypeSQL:
		if f.Database == "" || f.Table == "" || f.IDColumn == "" || f.TimeColumn == "" {
			return errors.New("sql feeds need database, table, id_column and time_column")
		}
	default:
		return fmt.Errorf("unknown feed type %q", f.Type)
	}
	if f.RDFType == "" {
		return errors.New("rdf_type is required")
	}
	for k, col := range f.Columns {
		if col.Property == "" {
			return fmt.Errorf("column %d has no property", k)
		}
		if err := rdf.CheckProperty(col.Property); err != nil {
			return fmt.Errorf("column %d: %w", k, err)
		}
		if col.Name == "" && !mapping.Pattern(col.Pattern).IsRecordPattern() {
			return fmt.Errorf("column %q needs a name or a {field} pattern", col.Property)
		}
	}
	return nil
}

// Mapping converts the feed's mapping section.
func (f *Feed) Mapping() *mapping.Mapping {
	m := &mapping.Mapping{
		Type:    f.RDFType,
		Subject: mapping.Pattern(f.Subject),
		IDField: f.IDField,
	}
	for _, c := range f.Columns {
		m.Columns = append(m.Columns, mapping.Column{
			Name:     c.Name,
			Property: c.Property,
			Literal:  !c.Reference,
			Pattern:  mapping.Pattern(c.Pattern),
		})
	}
	return m
}
