// Command sdshare publishes relational tables and CSV files as SDShare
// fragment and snapshot feeds.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sdshare/sdshare/internal/config"
	"github.com/sdshare/sdshare/internal/registry"
)

var (
	v   = config.NewViper()
	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "sdshare",
	Short: "SDShare server for relational tables and CSV files",
	Long: `Publish relational tables and CSV files as SDShare feeds.

Collections are declared in a YAML collections file (--config). Each
collection is backed by a SQLite table or a CSV file and is published as:
  - an Atom feed of fragments, paged by last-updated time
  - a snapshot: the whole collection as one streamed RDF/XML document

Every flag can also be set through an SDSHARE_* environment variable,
e.g. SDSHARE_PAGE_SIZE=500 or SDSHARE_LOG_LEVEL=debug.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(config.FromViper(v))
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "serve", Title: "Serving:"},
		&cobra.Group{ID: "tools", Title: "Offline tools:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringP(config.KeyConfig, "c", v.GetString(config.KeyConfig), "Collections file")
	flags.Int(config.KeyPageSize, v.GetInt(config.KeyPageSize), "Default fragments per page")
	flags.Int(config.KeyBatchSize, v.GetInt(config.KeyBatchSize), "Default snapshot batch size")
	flags.Int(config.KeyMaxAttempts, v.GetInt(config.KeyMaxAttempts), "Query attempts before giving up on a database")
	flags.Duration(config.KeyBackoff, v.GetDuration(config.KeyBackoff), "Delay between query retries, multiplied by the attempt number")
	flags.String(config.KeyLogLevel, v.GetString(config.KeyLogLevel), "Log level (debug, info, warn, error)")
	flags.String(config.KeyLogFormat, v.GetString(config.KeyLogFormat), "Log format (text or json)")
	flags.String(config.KeyLogFile, "", "Write logs to a rotating file instead of stderr")

	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(s config.Settings) error {
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", s.LogLevel, err)
	}
	log.SetLevel(level)

	switch strings.ToLower(s.LogFormat) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", s.LogFormat)
	}

	var out io.Writer = os.Stderr
	if s.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   s.LogFile,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}
	log.SetOutput(out)
	return nil
}

// loadRegistry reads the collections file and builds its feeds. Relative
// paths in the file are resolved against the file's directory.
func loadRegistry(s config.Settings) (*registry.Registry, error) {
	fs := afero.NewOsFs()
	f, err := config.Load(fs, s.Config)
	if err != nil {
		return nil, err
	}
	return config.Build(f, config.BuildOptions{
		Settings: s,
		Fs:       fs,
		BaseDir:  filepath.Dir(s.Config),
		Logger:   log,
	})
}

func collectionArg(reg *registry.Registry, args []string) (*registry.Collection, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("collection id required (one of: %s)", strings.Join(reg.IDs(), ", "))
	}
	return reg.Collection(args[0])
}
