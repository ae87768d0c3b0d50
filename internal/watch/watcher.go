// Package watch invalidates in-memory feeds when their source files change.
package watch

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Op is the kind of change seen on a source.
type Op int

const (
	// OpCreate indicates the source was created, e.g. moved into place.
	OpCreate Op = iota
	// OpModify indicates the source was written.
	OpModify
	// OpDelete indicates the source was removed or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Target is a feed backed by a file.
type Target interface {
	Source() string
	Invalidate()
}

// Event reports an invalidated source.
type Event struct {
	Source string
	Op     Op
	Time   time.Time
}

// Config holds watcher configuration.
type Config struct {
	// OnChange is called after a target was invalidated. It runs on the
	// watcher goroutine and must not block.
	OnChange func(Event)

	// Logger for watcher activity (default: standard logrus logger).
	Logger logrus.FieldLogger
}

// Watcher watches the directories of its targets. Directories rather than
// files are watched so that sources replaced by rename are still seen.
type Watcher struct {
	watcher *fsnotify.Watcher
	config  Config

	// targets by absolute source path.
	targets map[string][]Target

	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// New creates a watcher for targets. It must be started with Start.
func New(targets []Target, config Config) (*Watcher, error) {
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	byPath := make(map[string][]Target)
	for _, t := range targets {
		abs, err := filepath.Abs(t.Source())
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", t.Source(), err)
		}
		byPath[abs] = append(byPath[abs], t)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		watcher: w,
		config:  config,
		targets: byPath,
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	dirs := make(map[string]bool)
	for path := range w.targets {
		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	w.config.Logger.WithField("sources", len(w.targets)).Info("Watching CSV sources")
	return nil
}

// Stop stops watching. It blocks until the event goroutine has exited and
// is safe to call on a watcher that was never started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if wasRunning {
		close(w.done)
	}
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.WithError(err).Warn("File watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	targets, ok := w.targets[abs]
	if !ok {
		return
	}

	var op Op
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		// chmod
		return
	}

	for _, t := range targets {
		t.Invalidate()
	}
	w.config.Logger.WithFields(logrus.Fields{"source": abs, "op": op}).Info("Source changed, feed invalidated")

	if w.config.OnChange != nil {
		w.config.OnChange(Event{Source: abs, Op: op, Time: time.Now()})
	}
}
