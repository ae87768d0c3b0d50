package rdf

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Property is one (predicate, object) pair of a Resource.
type Property struct {
	URI     string
	Value   string
	Literal bool
}

// Resource is an RDF entity under construction.
type Resource struct {
	URI        string
	Type       string
	Properties []Property
}

// NewResource creates a resource with the given subject and type URIs.
func NewResource(uri, typ string) *Resource {
	return &Resource{URI: uri, Type: typ}
}

// AddProperty appends a property. Empty values are ignored so that no empty
// element is ever rendered.
func (r *Resource) AddProperty(prop, value string, literal bool) {
	if value == "" {
		return
	}
	r.Properties = append(r.Properties, Property{URI: prop, Value: value, Literal: literal})
}

// Namespaces allocates prefixes for the properties this resource carries.
func (r *Resource) Namespaces() *Namespaces {
	props := make([]string, len(r.Properties))
	for i, p := range r.Properties {
		props[i] = p.URI
	}
	return ExtractNamespaces(props)
}

// Render writes one rdf:Description block using the prefixes in ns.
func (r *Resource) Render(w io.Writer, ns *Namespaces) error {
	var b strings.Builder
	b.WriteString(`  <rdf:Description rdf:about="`)
	b.WriteString(escape(r.URI))
	b.WriteString("\">\n")
	b.WriteString(`    <rdf:type rdf:resource="`)
	b.WriteString(escape(r.Type))
	b.WriteString("\"/>\n")

	for _, p := range r.Properties {
		uri, local := SplitProperty(p.URI)
		pre, ok := ns.Prefix(uri)
		if !ok {
			return fmt.Errorf("namespace %q of property %q is not declared", uri, p.URI)
		}
		qname := pre + ":" + local
		if p.Literal {
			fmt.Fprintf(&b, "    <%s>%s</%s>\n", qname, escape(p.Value), qname)
		} else {
			fmt.Fprintf(&b, "    <%s rdf:resource=\"%s\"/>\n", qname, escape(p.Value))
		}
	}

	b.WriteString("  </rdf:Description>\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// Document renders r as a standalone RDF/XML document with its own
// namespace declarations.
func (r *Resource) Document() ([]byte, error) {
	var buf bytes.Buffer
	ns := r.Namespaces()
	if err := WriteHeader(&buf, ns); err != nil {
		return nil, err
	}
	if err := r.Render(&buf, ns); err != nil {
		return nil, err
	}
	if err := WriteFooter(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func escape(s string) string {
	var b strings.Builder
	// strings.Builder never fails to write.
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
