// Package server is the HTTP boundary of an SDShare server.
//
// It publishes Atom feeds describing the collections, their fragment pages
// and snapshots, serves single fragments and streamed snapshots as
// RDF/XML, and exposes /health, /metrics and an /events websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sdshare/sdshare/internal/query"
	"github.com/sdshare/sdshare/internal/registry"
	"github.com/sdshare/sdshare/internal/snapshot"
	"github.com/sdshare/sdshare/internal/watch"
)

// Config holds server configuration.
type Config struct {
	// Addr to listen on (default: ":8080").
	Addr string

	// Registry of collections served. Required.
	Registry *registry.Registry

	// BaseURL prefixes links in Atom documents. Empty derives it from
	// each request's Host.
	BaseURL string

	// Clock stamps Atom documents and events (default: real clock).
	Clock clockwork.Clock

	// Metrics receives the server's collectors (default: a new registry).
	Metrics *prometheus.Registry

	// Logger for server activity (default: standard logrus logger).
	Logger logrus.FieldLogger

	// ChunkWriteTimeout bounds each write of a streamed snapshot. A client
	// that stops reading is dropped instead of holding the collection's
	// query channel (default: 30s).
	ChunkWriteTimeout time.Duration
}

// DefaultChunkWriteTimeout is used when Config.ChunkWriteTimeout is zero.
const DefaultChunkWriteTimeout = 30 * time.Second

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:              ":8080",
		Clock:             clockwork.NewRealClock(),
		Logger:            logrus.StandardLogger(),
		ChunkWriteTimeout: DefaultChunkWriteTimeout,
	}
}

// Server serves one registry.
type Server struct {
	config   *Config
	registry *registry.Registry
	clock    clockwork.Clock
	log      logrus.FieldLogger

	metrics  *prometheus.Registry
	requests *prometheus.CounterVec

	hub     *hub
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	wg       sync.WaitGroup
}

// New creates a server. Call Close, or Stop after Start, to release it.
func New(config *Config) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Registry == nil {
		return nil, fmt.Errorf("server requires a registry")
	}
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	if config.ChunkWriteTimeout <= 0 {
		config.ChunkWriteTimeout = DefaultChunkWriteTimeout
	}

	s := &Server{
		config:   config,
		registry: config.Registry,
		clock:    config.Clock,
		log:      config.Logger,
		metrics:  config.Metrics,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sdshare",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
	if s.metrics == nil {
		s.metrics = prometheus.NewRegistry()
	}
	collectors := append([]prometheus.Collector{s.requests}, query.Collectors()...)
	collectors = append(collectors, snapshot.Collectors()...)
	for _, c := range collectors {
		if err := s.metrics.Register(c); err != nil {
			var dup prometheus.AlreadyRegisteredError
			if !errors.As(err, &dup) {
				return nil, fmt.Errorf("failed to register metrics: %w", err)
			}
		}
	}

	s.hub = newHub(s.clock, s.log)
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", s.instrument("overview", s.handleOverview))
	mux.Handle("GET /collection/{id}", s.instrument("collection", s.handleCollection))
	mux.Handle("GET /fragments/{id}", s.instrument("fragments", s.handleFragments))
	mux.Handle("GET /fragment/{collection}/{fragment...}", s.instrument("fragment", s.handleFragment))
	mux.Handle("GET /snapshots/{id}", s.instrument("snapshots", s.handleSnapshots))
	mux.Handle("GET /snapshot/{id}", s.instrument("snapshot", s.handleSnapshot))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("GET /events", s.handleEvents)
	return mux
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening and serving in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("server already running")
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln

	// No WriteTimeout: snapshots stream for as long as the table takes,
	// with a deadline per chunk instead.
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.WithField("addr", ln.Addr().String()).Info("SDShare server listening")
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("Server error")
		}
	}()
	return nil
}

// Stop gracefully shuts down the server, waiting up to 5 seconds for
// in-flight requests.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Info("Stopping SDShare server")
	s.hub.close()

	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	s.server = nil
	if err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.log.Info("SDShare server stopped")
	return nil
}

// Close releases a server that was never started.
func (s *Server) Close() {
	s.hub.close()
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// SourceChanged publishes a feed_reloaded event. It is meant to be used as
// watch.Config.OnChange.
func (s *Server) SourceChanged(e watch.Event) {
	s.hub.publish(s.hub.message(MessageTypeFeedReloaded, FeedReloadedData{
		Source: e.Source,
		Op:     e.Op.String(),
	}))
}

// Subscribers returns the number of connected /events clients.
func (s *Server) Subscribers() int {
	return s.hub.count()
}
