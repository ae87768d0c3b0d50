package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sdshare/sdshare/internal/config"
	"github.com/sdshare/sdshare/internal/feed"
	"github.com/sdshare/sdshare/internal/registry"
	"github.com/sdshare/sdshare/internal/server"
	"github.com/sdshare/sdshare/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "serve",
	Short:   "Serve the configured collections over HTTP",
	Long: `Start the SDShare HTTP server.

Endpoints:
  /                         Atom overview of all collections
  /collection/{id}          Atom feed linking a collection's fragments and snapshots
  /fragments/{id}?since=    Paged Atom feed of fragments updated since a time
  /fragment/{id}/{frag}     One fragment as RDF/XML
  /snapshots/{id}           Atom feed linking the snapshot
  /snapshot/{id}            The whole collection, streamed as RDF/XML
  /health                   JSON health check
  /metrics                  Prometheus metrics
  /events                   WebSocket stream of feed reload events

CSV sources are watched and reloaded on change unless --watch=false.

Example usage:
  sdshare serve -c collections.yaml
  sdshare serve --addr :9000 --base-url https://data.example.org`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.FromViper(v)
		baseURL, _ := cmd.Flags().GetString("base-url")

		reg, err := loadRegistry(settings)
		if err != nil {
			return err
		}
		defer func() {
			if err := reg.Close(); err != nil {
				log.WithError(err).Warn("Failed to close databases")
			}
		}()

		metrics := prometheus.NewRegistry()
		metrics.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		srv, err := server.New(&server.Config{
			Addr:     settings.Addr,
			Registry: reg,
			BaseURL:  baseURL,
			Metrics:  metrics,
			Logger:   log,
		})
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			srv.Close()
			return err
		}

		var watcher *watch.Watcher
		if targets := csvTargets(reg); settings.Watch && len(targets) > 0 {
			watcher, err = watch.New(targets, watch.Config{OnChange: srv.SourceChanged, Logger: log})
			if err == nil {
				err = watcher.Start()
			}
			if err != nil {
				_ = srv.Stop()
				return fmt.Errorf("failed to watch sources: %w", err)
			}
		}

		fmt.Printf("SDShare server started on http://%s\n", srv.Addr())
		fmt.Printf("Serving %d collections from %s\n", len(reg.Collections()), settings.Config)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			<-ctx.Done()
			return srv.Stop()
		})
		if watcher != nil {
			g.Go(func() error {
				<-ctx.Done()
				return watcher.Stop()
			})
		}
		return g.Wait()
	},
}

// csvTargets returns the file-backed feeds of reg.
func csvTargets(reg *registry.Registry) []watch.Target {
	var targets []watch.Target
	for _, c := range reg.Collections() {
		for _, f := range c.Feeds {
			if csv, ok := f.(*feed.CSVFeed); ok {
				targets = append(targets, csv)
			}
		}
	}
	return targets
}

func init() {
	serveCmd.Flags().String(config.KeyAddr, v.GetString(config.KeyAddr), "Address to listen on")
	serveCmd.Flags().Bool(config.KeyWatch, v.GetBool(config.KeyWatch), "Reload CSV sources when they change")
	serveCmd.Flags().String("base-url", "", "Public base URL for links (default: derived from the request Host)")
	if err := v.BindPFlags(serveCmd.Flags()); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(serveCmd)
}
