package server

import (
	"encoding/xml"
	"io"

	"github.com/google/uuid"
)

// Atom and SDShare vocabulary.
const (
	AtomNamespace    = "http://www.w3.org/2005/Atom"
	SDShareNamespace = "http://www.sdshare.org/2012/extension/"

	RelCollection = "http://www.sdshare.org/2012/collection"
	RelFragments  = "http://www.sdshare.org/2012/fragments"
	RelSnapshots  = "http://www.sdshare.org/2012/snapshots"

	ContentTypeAtom = "application/atom+xml; charset=utf-8"
	ContentTypeRDF  = "application/rdf+xml; charset=utf-8"
	mediaTypeRDF    = "application/rdf+xml"
)

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Xmlns   string      `xml:"xmlns,attr"`
	XmlnsSD string      `xml:"xmlns:sd,attr"`
	Title   string      `xml:"title"`
	ID      string      `xml:"id"`
	Updated string      `xml:"updated"`
	Author  *atomAuthor `xml:"author,omitempty"`
	Links   []atomLink  `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr,omitempty"`
	Type string `xml:"type,attr,omitempty"`
	Href string `xml:"href,attr"`
}

type atomEntry struct {
	Title    string     `xml:"title"`
	ID       string     `xml:"id"`
	Updated  string     `xml:"updated"`
	Links    []atomLink `xml:"link"`
	Resource string     `xml:"sd:resource,omitempty"`
}

func newFeed(title, self, updated, author string) *atomFeed {
	f := &atomFeed{
		Xmlns:   AtomNamespace,
		XmlnsSD: SDShareNamespace,
		Title:   title,
		ID:      atomID(self),
		Updated: updated,
		Links:   []atomLink{{Rel: "self", Type: "application/atom+xml", Href: self}},
	}
	if author != "" {
		f.Author = &atomAuthor{Name: author}
	}
	return f
}

// atomID derives a stable urn:uuid identifier from a URL, so a feed keeps
// its id across requests and restarts.
func atomID(url string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).URN()
}

func (f *atomFeed) write(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(f); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
