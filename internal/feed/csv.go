package feed

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/sdshare/sdshare/internal/mapping"
	"github.com/sdshare/sdshare/internal/rdf"
)

// LoadState is the lifecycle of a CSV feed's resident copy.
type LoadState int

const (
	// Unloaded feeds read their source on next use.
	Unloaded LoadState = iota
	// Loading feeds have a read in flight; callers join it.
	Loading
	// Ready feeds serve from memory.
	Ready
)

// String returns the state name.
func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// CSVConfig configures a CSV-backed feed.
type CSVConfig struct {
	// Source is the path of the CSV file. The first row holds field names.
	Source string

	// Fs the source is read from (default: the OS filesystem).
	Fs afero.Fs

	// Mapping renders records. Mapping.IDField, when set, names the field
	// used as fragment id; otherwise the subject URI is the id.
	Mapping *mapping.Mapping

	// TimestampField holds each record's update time in wire format.
	TimestampField string

	// PageSize bounds fragment pages (default: 1000).
	PageSize int

	// Logger for load activity (default: standard logrus logger).
	Logger logrus.FieldLogger
}

type csvEntry struct {
	id      string
	updated string
	uri     string
	record  mapping.Record
}

// csvIndex is the resident copy of a source. It is never modified after
// it is built.
type csvIndex struct {
	byID map[string]*csvEntry
	// order is first-seen file order, for snapshots.
	order []*csvEntry
	// sorted is ordered by (updated, id), for pages.
	sorted []*csvEntry
}

// CSVFeed serves a CSV file held entirely in memory. The file is read on
// first use; concurrent first callers share one read.
//
// Since filtering compares timestamp strings directly. That is correct for
// the wire format, which sorts lexicographically, but it is not calendar
// aware. Pages continue strictly after the last fragment by (updated, id),
// with ids compared as strings in the same order the index is sorted.
type CSVFeed struct {
	config CSVConfig
	log    logrus.FieldLogger

	group singleflight.Group

	mu    sync.RWMutex
	state LoadState
	index *csvIndex
	// generation is bumped by Invalidate so a read that started before the
	// invalidation is not cached.
	generation uint64
	loads      int
}

// NewCSVFeed creates an unloaded feed.
func NewCSVFeed(config CSVConfig) (*CSVFeed, error) {
	if config.Source == "" {
		return nil, fmt.Errorf("csv feed requires a source")
	}
	if config.Mapping == nil {
		return nil, fmt.Errorf("csv feed %s requires a mapping", config.Source)
	}
	if config.TimestampField == "" {
		return nil, fmt.Errorf("csv feed %s requires a timestamp field", config.Source)
	}
	if config.Fs == nil {
		config.Fs = afero.NewOsFs()
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	return &CSVFeed{
		config: config,
		log:    config.Logger.WithField("source", config.Source),
	}, nil
}

// Source returns the path of the backing file.
func (f *CSVFeed) Source() string {
	return f.config.Source
}

// State reports the load state.
func (f *CSVFeed) State() LoadState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Loads counts completed reads of the source.
func (f *CSVFeed) Loads() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loads
}

// Invalidate drops the resident copy; the next call reads the source again.
func (f *CSVFeed) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = Unloaded
	f.index = nil
	f.generation++
	f.log.Debug("CSV feed invalidated")
}

func (f *CSVFeed) load() (*csvIndex, error) {
	f.mu.RLock()
	if f.state == Ready {
		idx := f.index
		f.mu.RUnlock()
		return idx, nil
	}
	f.mu.RUnlock()

	v, err, _ := f.group.Do("load", func() (any, error) {
		f.mu.Lock()
		if f.state == Ready {
			idx := f.index
			f.mu.Unlock()
			return idx, nil
		}
		f.state = Loading
		gen := f.generation
		f.mu.Unlock()

		idx, err := f.read()

		f.mu.Lock()
		defer f.mu.Unlock()
		if err != nil {
			if gen == f.generation {
				f.state = Unloaded
			}
			return nil, err
		}
		f.loads++
		if gen == f.generation {
			f.index = idx
			f.state = Ready
		}
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*csvIndex), nil
}

func (f *CSVFeed) read() (*csvIndex, error) {
	file, err := f.config.Fs.Open(f.config.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.config.Source, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	headers, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &csvIndex{byID: map[string]*csvEntry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", f.config.Source, err)
	}

	m := f.config.Mapping
	idx := &csvIndex{byID: make(map[string]*csvEntry)}
	line := 1
	for {
		values, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.config.Source, err)
		}
		line++

		rec := mapping.NewRecord(headers, values)
		uri, err := m.SubjectURI(rec)
		if err != nil {
			f.log.WithField("line", line).WithError(err).Warn("Skipping record without subject")
			continue
		}
		updated := rec[f.config.TimestampField]
		if updated == "" {
			f.log.WithField("line", line).Warn("Skipping record without timestamp")
			continue
		}
		id := uri
		if m.IDField != "" {
			id = rec[m.IDField]
		}
		if id == "" {
			f.log.WithField("line", line).Warn("Skipping record without id")
			continue
		}

		e := &csvEntry{id: id, updated: updated, uri: uri, record: rec}
		if old, ok := idx.byID[id]; ok {
			// Later rows replace earlier ones but keep their position.
			*old = *e
			continue
		}
		idx.byID[id] = e
		idx.order = append(idx.order, e)
	}

	idx.sorted = append([]*csvEntry(nil), idx.order...)
	sort.SliceStable(idx.sorted, func(i, j int) bool {
		a, b := idx.sorted[i], idx.sorted[j]
		if a.updated != b.updated {
			return a.updated < b.updated
		}
		return a.id < b.id
	})

	f.log.WithField("records", len(idx.order)).Info("CSV feed loaded")
	return idx, nil
}

func (f *CSVFeed) fragment(e *csvEntry) *Fragment {
	return NewFragment(e.id, e.updated, f.config.Mapping.ResourceFor(e.uri, e.record))
}

// FetchPage implements Feed. req.After is only honoured together with
// req.Since.
func (f *CSVFeed) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	idx, err := f.load()
	if err != nil {
		return nil, err
	}

	start := 0
	switch {
	case req.Since != "" && req.After != "":
		start = sort.Search(len(idx.sorted), func(i int) bool {
			e := idx.sorted[i]
			return e.updated > req.Since || (e.updated == req.Since && e.id > req.After)
		})
	case req.Since != "":
		start = sort.Search(len(idx.sorted), func(i int) bool {
			return idx.sorted[i].updated >= req.Since
		})
	}
	end := min(start+f.config.PageSize+1, len(idx.sorted))

	candidates := make([]*Fragment, 0, end-start)
	for _, e := range idx.sorted[start:end] {
		candidates = append(candidates, f.fragment(e))
	}
	return NewPage(candidates, f.config.PageSize, KeysetContinuation), nil
}

// FetchOne implements Feed.
func (f *CSVFeed) FetchOne(ctx context.Context, id string) (*Fragment, error) {
	idx, err := f.load()
	if err != nil {
		return nil, err
	}
	e, ok := idx.byID[id]
	if !ok {
		return nil, fmt.Errorf("fragment %q: %w", id, ErrNotFound)
	}
	return f.fragment(e), nil
}

// Snapshot implements Feed. The resident set is rendered in file order.
func (f *CSVFeed) Snapshot(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		idx, err := f.load()
		if err != nil {
			yield(nil, err)
			return
		}

		ns := f.config.Mapping.Namespaces()
		var buf bytes.Buffer
		if err := rdf.WriteHeader(&buf, ns); err != nil {
			yield(nil, err)
			return
		}
		if !yield(bytes.Clone(buf.Bytes()), nil) {
			return
		}

		for _, e := range idx.order {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			buf.Reset()
			res := f.config.Mapping.ResourceFor(e.uri, e.record)
			if err := res.Render(&buf, ns); err != nil {
				yield(nil, err)
				return
			}
			if !yield(bytes.Clone(buf.Bytes()), nil) {
				return
			}
		}

		buf.Reset()
		if err := rdf.WriteFooter(&buf); err != nil {
			yield(nil, err)
			return
		}
		yield(buf.Bytes(), nil)
	}
}
