// Package rdf renders records as RDF/XML descriptions.
//
// Documents produced here are self-contained: every document declares the
// namespaces it uses, with prefixes allocated fresh for that document. Two
// renderings of the same data may therefore number their prefixes
// differently while describing the same triples.
package rdf

import (
	"fmt"
	"io"
	"strings"
	"unicode"
)

// RDFNamespace is the RDF syntax namespace bound to the rdf: prefix.
const RDFNamespace = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"

// Namespaces maps namespace URIs to allocated prefixes, remembering the
// order in which they were first seen.
type Namespaces struct {
	order    []string
	prefixes map[string]string
}

// ExtractNamespaces allocates prefixes pre0, pre1, ... to the namespaces of
// the given properties in first-seen order.
func ExtractNamespaces(properties []string) *Namespaces {
	ns := &Namespaces{prefixes: make(map[string]string)}
	for _, prop := range properties {
		ns.add(SplitProperty(prop))
	}
	return ns
}

func (n *Namespaces) add(ns, _ string) {
	if _, ok := n.prefixes[ns]; ok {
		return
	}
	n.prefixes[ns] = fmt.Sprintf("pre%d", len(n.order))
	n.order = append(n.order, ns)
}

// Prefix returns the prefix allocated to ns.
func (n *Namespaces) Prefix(ns string) (string, bool) {
	p, ok := n.prefixes[ns]
	return p, ok
}

// Len returns the number of declared namespaces.
func (n *Namespaces) Len() int {
	return len(n.order)
}

// URIs returns the declared namespace URIs in allocation order.
func (n *Namespaces) URIs() []string {
	out := make([]string, len(n.order))
	copy(out, n.order)
	return out
}

// SplitProperty splits a property URI into namespace and local name. The
// split happens after the last '/', or after a '#' that follows it.
func SplitProperty(prop string) (ns, local string) {
	ix := strings.LastIndexAny(prop, "/#")
	return prop[:ix+1], prop[ix+1:]
}

// CheckProperty reports an error when prop cannot be written as a prefixed
// element name: it needs a namespace ending in '/' or '#' and a local name
// that is an XML name.
func CheckProperty(prop string) error {
	ns, local := SplitProperty(prop)
	if ns == "" {
		return fmt.Errorf("property %q has no namespace ending in '/' or '#'", prop)
	}
	if local == "" {
		return fmt.Errorf("property %q has an empty local name", prop)
	}
	for i, r := range local {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && (r == '-' || r == '.' || unicode.IsDigit(r)) {
			continue
		}
		return fmt.Errorf("property %q has local name %q, which is not an XML name", prop, local)
	}
	return nil
}

// WriteHeader writes the opening rdf:RDF element declaring the rdf
// namespace and every namespace in n.
func WriteHeader(w io.Writer, n *Namespaces) error {
	var b strings.Builder
	b.WriteString(`<rdf:RDF xmlns:rdf="` + RDFNamespace + `"`)
	for _, ns := range n.order {
		b.WriteString("\n         xmlns:")
		b.WriteString(n.prefixes[ns])
		b.WriteString(`="`)
		b.WriteString(escape(ns))
		b.WriteString(`"`)
	}
	b.WriteString(">\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteFooter closes the rdf:RDF element.
func WriteFooter(w io.Writer) error {
	_, err := io.WriteString(w, "</rdf:RDF>\n")
	return err
}
