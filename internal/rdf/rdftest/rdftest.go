// Package rdftest reads documents written by package rdf back into triples
// so tests can compare documents independent of prefix numbering.
package rdftest

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sort"

	rdfgo "github.com/geoknoesis/rdf-go/rdf"
)

const rdfNamespace = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"

// Triple is a parsed statement. Literal objects are quoted, references are
// wrapped in angle brackets.
type Triple struct {
	S, P, O string
}

func (t Triple) String() string {
	return fmt.Sprintf("<%s> <%s> %s", t.S, t.P, t.O)
}

// Document is the parsed form of one rdf:RDF document.
type Document struct {
	// Subjects lists rdf:about values in document order, one per
	// rdf:Description block, so a resource described twice appears twice.
	Subjects []string
	Triples  []Triple
	// Roots counts rdf:RDF elements.
	Roots int
}

// Set returns the triples as sorted strings.
func (d *Document) Set() []string {
	out := make([]string, 0, len(d.Triples))
	for _, t := range d.Triples {
		out = append(out, t.String())
	}
	sort.Strings(out)
	return out
}

// Parse decodes data as RDF/XML. The triples come from the RDF/XML parser;
// Subjects and Roots describe the element structure, which the triple model
// does not keep.
func Parse(data []byte) (*Document, error) {
	doc := &Document{}
	if err := scan(data, doc); err != nil {
		return nil, err
	}
	err := rdfgo.Parse(context.Background(), bytes.NewReader(data), rdfgo.FormatRDFXML, func(st rdfgo.Statement) error {
		doc.Triples = append(doc.Triples, Triple{S: term(st.S), P: st.P.Value, O: term(st.O)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func term(t rdfgo.Term) string {
	switch v := t.(type) {
	case rdfgo.IRI:
		return "<" + v.Value + ">"
	case rdfgo.Literal:
		return v.String()
	default:
		return t.String()
	}
}

// scan walks the element tree to record root elements and the subject of
// every description block.
func scan(data []byte, doc *Document) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				if el.Name.Space != rdfNamespace || el.Name.Local != "RDF" {
					return fmt.Errorf("unexpected root %s%s", el.Name.Space, el.Name.Local)
				}
				doc.Roots++
			case 2:
				doc.Subjects = append(doc.Subjects, about(el))
			}
		case xml.EndElement:
			depth--
		}
	}
}

func about(el xml.StartElement) string {
	for _, a := range el.Attr {
		if a.Name.Space == rdfNamespace && a.Name.Local == "about" {
			return a.Value
		}
	}
	return ""
}
