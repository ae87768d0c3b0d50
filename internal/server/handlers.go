package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sdshare/sdshare/internal/feed"
	"github.com/sdshare/sdshare/internal/registry"
)

// statusRecorder captures the status code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.status = http.StatusOK
		r.wrote = true
	}
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach Flush and SetWriteDeadline on
// the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		defer func() {
			s.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			s.log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("Request served")
		}()
		h(rec, r)
	})
}

// writeError maps err to a status: unknown ids are 404, malformed since
// values 400, anything else 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, feed.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, feed.ErrInvalidSince):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.WithField("path", r.URL.Path).WithError(err).Error("Request failed")
	}
	http.Error(w, err.Error(), status)
}

func (s *Server) baseURL(r *http.Request) string {
	if s.config.BaseURL != "" {
		return strings.TrimSuffix(s.config.BaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (s *Server) now() string {
	return feed.FormatTime(s.clock.Now())
}

func (s *Server) writeAtom(w http.ResponseWriter, r *http.Request, f *atomFeed) {
	w.Header().Set("Content-Type", ContentTypeAtom)
	if err := f.write(w); err != nil {
		s.log.WithField("path", r.URL.Path).WithError(err).Warn("Failed to write feed")
	}
}

func (s *Server) collection(w http.ResponseWriter, r *http.Request, id string) (*registry.Collection, bool) {
	c, err := s.registry.Collection(id)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return c, true
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	base := s.baseURL(r)
	now := s.now()

	f := newFeed(s.registry.Title, base+"/", now, s.registry.Author)
	for _, c := range s.registry.Collections() {
		href := base + "/collection/" + url.PathEscape(c.ID)
		f.Entries = append(f.Entries, atomEntry{
			Title:   c.Title,
			ID:      atomID(href),
			Updated: now,
			Links:   []atomLink{{Rel: RelCollection, Type: "application/atom+xml", Href: href}},
		})
	}
	s.writeAtom(w, r, f)
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	base := s.baseURL(r)
	now := s.now()
	id := url.PathEscape(c.ID)

	f := newFeed(c.Title, base+"/collection/"+id, now, c.Author())
	fragments := base + "/fragments/" + id
	snapshots := base + "/snapshots/" + id
	f.Entries = []atomEntry{
		{
			Title:   "Fragments",
			ID:      atomID(fragments),
			Updated: now,
			Links:   []atomLink{{Rel: RelFragments, Type: "application/atom+xml", Href: fragments}},
		},
		{
			Title:   "Snapshots",
			ID:      atomID(snapshots),
			Updated: now,
			Links:   []atomLink{{Rel: RelSnapshots, Type: "application/atom+xml", Href: snapshots}},
		},
	}
	s.writeAtom(w, r, f)
}

func (s *Server) handleFragments(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	q := r.URL.Query()
	req := feed.PageRequest{Since: q.Get("since"), After: q.Get("after")}

	page, err := c.FetchPage(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	base := s.baseURL(r)
	id := url.PathEscape(c.ID)
	self := base + "/fragments/" + id
	if len(q) > 0 {
		self += "?" + q.Encode()
	}

	f := newFeed("Fragments of "+c.Title, self, s.now(), c.Author())
	for _, frag := range page.Fragments {
		href := base + "/fragment/" + id + "/" + url.PathEscape(frag.ID)
		f.Entries = append(f.Entries, atomEntry{
			Title:    frag.ID,
			ID:       atomID(href + "@" + frag.Updated),
			Updated:  frag.Updated,
			Links:    []atomLink{{Rel: "alternate", Type: mediaTypeRDF, Href: href}},
			Resource: frag.URI,
		})
	}
	if page.HasNext {
		f.Links = append(f.Links, atomLink{
			Rel:  "next",
			Type: "application/atom+xml",
			Href: base + "/fragments/" + id + "?" + page.Next.Encode(),
		})
	}
	s.writeAtom(w, r, f)
}

func (s *Server) handleFragment(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r, r.PathValue("collection"))
	if !ok {
		return
	}
	frag, err := c.FetchOne(r.Context(), r.PathValue("fragment"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := frag.Document()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", ContentTypeRDF)
	_, _ = w.Write(doc)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	base := s.baseURL(r)
	now := s.now()
	id := url.PathEscape(c.ID)
	href := base + "/snapshot/" + id

	f := newFeed("Snapshots of "+c.Title, base+"/snapshots/"+id, now, c.Author())
	f.Entries = []atomEntry{{
		Title:   "Snapshot of " + c.Title,
		ID:      atomID(href),
		Updated: now,
		Links:   []atomLink{{Rel: "alternate", Type: mediaTypeRDF, Href: href}},
	}}
	s.writeAtom(w, r, f)
}

// handleSnapshot streams the snapshot chunk by chunk. The response is
// chunked because it has no Content-Length and is flushed as it goes. A
// failure after the first chunk cannot change the status any more; the
// connection is aborted instead so the client sees a truncated body.
//
// The collection's query channel is held while a chunk is written, so every
// write gets its own deadline.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	rc := http.NewResponseController(w)
	log := s.log.WithField("collection", c.ID)

	started := false
	for chunk, err := range c.Snapshot(r.Context()) {
		if err != nil {
			if !started {
				s.writeError(w, r, err)
				return
			}
			if r.Context().Err() != nil {
				log.Debug("Snapshot client went away")
				return
			}
			log.WithError(err).Error("Snapshot failed mid-stream, aborting response")
			panic(http.ErrAbortHandler)
		}
		if !started {
			w.Header().Set("Content-Type", ContentTypeRDF)
			started = true
		}
		if err := rc.SetWriteDeadline(time.Now().Add(s.config.ChunkWriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			log.WithError(err).Debug("Failed to set snapshot write deadline")
		}
		if _, err := w.Write(chunk); err != nil {
			log.WithError(err).Debug("Snapshot write failed")
			return
		}
		if err := rc.Flush(); err != nil {
			log.WithError(err).Debug("Snapshot flush failed")
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"collections": len(s.registry.Collections()),
		"subscribers": s.hub.count(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	hello := s.hub.message(MessageTypeHello, HelloData{Collections: s.registry.IDs()})
	s.hub.serve(w, r, hello)
}

