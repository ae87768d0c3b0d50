package rdf_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdshare/sdshare/internal/rdf"
	"github.com/sdshare/sdshare/internal/rdf/rdftest"
)

func TestSplitProperty(t *testing.T) {
	tests := []struct {
		prop, ns, local string
	}{
		{"http://example.com/name", "http://example.com/", "name"},
		{"http://example.com/a/b/zip", "http://example.com/a/b/", "zip"},
		{"http://xmlns.com/foaf/0.1/#mbox", "http://xmlns.com/foaf/0.1/#", "mbox"},
		{"http://example.com/ns#name", "http://example.com/ns#", "name"},
	}
	for _, tt := range tests {
		ns, local := rdf.SplitProperty(tt.prop)
		assert.Equal(t, tt.ns, ns, tt.prop)
		assert.Equal(t, tt.local, local, tt.prop)
	}
}

func TestCheckProperty(t *testing.T) {
	assert.NoError(t, rdf.CheckProperty("http://purl.org/dc/terms/title"))
	assert.NoError(t, rdf.CheckProperty("http://example.com/ns#has-part.v2"))

	for _, prop := range []string{
		"urn:x:title",
		"title",
		"http://example.com/",
		"http://example.com/ns#",
		"http://example.com/1st",
		"http://example.com/a b",
	} {
		assert.Error(t, rdf.CheckProperty(prop), prop)
	}
}

func TestExtractNamespaces_FirstSeenOrder(t *testing.T) {
	ns := rdf.ExtractNamespaces([]string{
		"http://b.example/x",
		"http://a.example/y",
		"http://b.example/z",
		"http://c.example/w",
	})

	require.Equal(t, 3, ns.Len())
	assert.Equal(t, []string{"http://b.example/", "http://a.example/", "http://c.example/"}, ns.URIs())

	pre, ok := ns.Prefix("http://b.example/")
	assert.True(t, ok)
	assert.Equal(t, "pre0", pre)
	pre, _ = ns.Prefix("http://a.example/")
	assert.Equal(t, "pre1", pre)
	pre, _ = ns.Prefix("http://c.example/")
	assert.Equal(t, "pre2", pre)

	_, ok = ns.Prefix("http://missing.example/")
	assert.False(t, ok)
}

func TestAddProperty_IgnoresEmpty(t *testing.T) {
	r := rdf.NewResource("http://example.com/1", "http://example.com/Person")
	r.AddProperty("http://example.com/name", "", true)
	r.AddProperty("http://example.com/knows", "", false)
	r.AddProperty("http://example.com/age", "42", true)

	require.Len(t, r.Properties, 1)
	assert.Equal(t, "42", r.Properties[0].Value)
}

func TestRender_Shape(t *testing.T) {
	r := rdf.NewResource("http://example.com/1", "http://example.com/Person")
	r.AddProperty("http://example.com/name", "Ann & <Bob>", true)
	r.AddProperty("http://other.example/knows", "http://example.com/2", false)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, r.Namespaces()))

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, `  <rdf:Description rdf:about="http://example.com/1">`, lines[0])
	assert.Equal(t, `    <rdf:type rdf:resource="http://example.com/Person"/>`, lines[1])
	assert.Equal(t, `    <pre0:name>Ann &amp; &lt;Bob&gt;</pre0:name>`, lines[2])
	assert.Equal(t, `    <pre1:knows rdf:resource="http://example.com/2"/>`, lines[3])
	assert.Equal(t, `  </rdf:Description>`, lines[4])
}

func TestRender_UndeclaredNamespace(t *testing.T) {
	r := rdf.NewResource("http://example.com/1", "http://example.com/T")
	r.AddProperty("http://example.com/name", "x", true)

	err := r.Render(&bytes.Buffer{}, rdf.ExtractNamespaces(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not declared")
}

func TestDocument_ParsesToTriples(t *testing.T) {
	r := rdf.NewResource("http://example.com/1", "http://example.com/Person")
	r.AddProperty("http://example.com/name", "Ann", true)
	r.AddProperty("http://example.com/knows", "http://example.com/2", false)

	data, err := r.Document()
	require.NoError(t, err)

	doc, err := rdftest.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Roots)
	assert.Equal(t, []string{"http://example.com/1"}, doc.Subjects)
	assert.Equal(t, []string{
		`<http://example.com/1> <http://example.com/knows> <http://example.com/2>`,
		`<http://example.com/1> <http://example.com/name> "Ann"`,
		`<http://example.com/1> <` + rdf.RDFNamespace + `type> <http://example.com/Person>`,
	}, doc.Set())
}

// Re-rendering with a different prefix allocation must describe the same
// triples.
func TestRender_TripleSetEquivalence(t *testing.T) {
	r := rdf.NewResource("http://example.com/1", "http://example.com/Person")
	r.AddProperty("http://a.example/name", "Ann", true)
	r.AddProperty("http://b.example/knows", "http://example.com/2", false)

	first, err := r.Document()
	require.NoError(t, err)

	reversed := rdf.ExtractNamespaces([]string{"http://b.example/knows", "http://a.example/name"})
	var buf bytes.Buffer
	require.NoError(t, rdf.WriteHeader(&buf, reversed))
	require.NoError(t, r.Render(&buf, reversed))
	require.NoError(t, rdf.WriteFooter(&buf))
	second := buf.Bytes()

	assert.NotEqual(t, string(first), string(second))

	d1, err := rdftest.Parse(first)
	require.NoError(t, err)
	d2, err := rdftest.Parse(second)
	require.NoError(t, err)
	assert.Equal(t, d1.Set(), d2.Set())
}

func TestWriteHeader_DeclaresNamespaces(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, rdf.WriteHeader(&buf, rdf.ExtractNamespaces([]string{"http://a.example/x"})))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, `<rdf:RDF xmlns:rdf="`+rdf.RDFNamespace+`"`))
	assert.Contains(t, out, `xmlns:pre0="http://a.example/"`)
	assert.True(t, strings.HasSuffix(out, ">\n"))
}
