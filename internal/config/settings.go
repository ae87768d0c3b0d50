package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sdshare/sdshare/internal/feed"
	"github.com/sdshare/sdshare/internal/query"
	"github.com/sdshare/sdshare/internal/snapshot"
)

// EnvPrefix prefixes every environment variable read by Settings.
const EnvPrefix = "SDSHARE"

// Setting keys, shared by flags, environment and viper.
const (
	KeyConfig      = "config"
	KeyAddr        = "addr"
	KeyPageSize    = "page-size"
	KeyBatchSize   = "batch-size"
	KeyMaxAttempts = "max-attempts"
	KeyBackoff     = "backoff"
	KeyWatch       = "watch"
	KeyLogLevel    = "log-level"
	KeyLogFile     = "log-file"
	KeyLogFormat   = "log-format"
)

// Settings are the process-level knobs. Per-collection settings live in
// the collections file.
type Settings struct {
	Config      string
	Addr        string
	PageSize    int
	BatchSize   int
	MaxAttempts int
	Backoff     time.Duration
	Watch       bool
	LogLevel    string
	LogFile     string
	LogFormat   string
}

// NewViper returns a viper instance with defaults set and SDSHARE_*
// environment variables bound, so SDSHARE_PAGE_SIZE overrides page-size.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyConfig, "sdshare.yaml")
	v.SetDefault(KeyAddr, ":8080")
	v.SetDefault(KeyPageSize, feed.DefaultPageSize)
	v.SetDefault(KeyBatchSize, snapshot.DefaultBatchSize)
	v.SetDefault(KeyMaxAttempts, query.DefaultMaxAttempts)
	v.SetDefault(KeyBackoff, 200*time.Millisecond)
	v.SetDefault(KeyWatch, true)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogFormat, "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// FromViper reads Settings from v.
func FromViper(v *viper.Viper) Settings {
	return Settings{
		Config:      v.GetString(KeyConfig),
		Addr:        v.GetString(KeyAddr),
		PageSize:    v.GetInt(KeyPageSize),
		BatchSize:   v.GetInt(KeyBatchSize),
		MaxAttempts: v.GetInt(KeyMaxAttempts),
		Backoff:     v.GetDuration(KeyBackoff),
		Watch:       v.GetBool(KeyWatch),
		LogLevel:    v.GetString(KeyLogLevel),
		LogFile:     v.GetString(KeyLogFile),
		LogFormat:   v.GetString(KeyLogFormat),
	}
}
