package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

const (
	DefaultPollInterval    = 5 * time.Second
	DefaultMaxPollInterval = 5 * time.Minute
)

// Config is the root of a rowwatch HCL file.
type Config struct {
	LogLevel  string `hcl:"log_level,optional"`
	LogFormat string `hcl:"log_format,optional"` // text or json

	Database   DatabaseConfig    `hcl:"database,block"`
	Lock       *LockConfig       `hcl:"lock,block"`
	Publisher  *PublisherConfig  `hcl:"publisher,block"`
	Notifier   *NotifierConfig   `hcl:"notifier,block"`
	References []ReferenceConfig `hcl:"reference,block"`
	Watchers   []WatcherConfig   `hcl:"watcher,block"`
}

// DatabaseConfig selects the watched store.
type DatabaseConfig struct {
	Driver           string `hcl:"driver,optional"` // sqlserver or sqlite3
	ConnectionString string `hcl:"connection_string"`
	MaxOpenConns     int    `hcl:"max_open_conns,optional"`
	ConnMaxIdle      string `hcl:"conn_max_idle,optional"`
}

// LockConfig represents the configuration for distributed locking
type LockConfig struct {
	Type             string `hcl:"type"`              // Lock provider type (e.g., "azure_blob")
	ConnectionString string `hcl:"connection_string"` // Connection string for the lock provider
	ContainerName    string `hcl:"container_name"`    // Name of the container used for lock files
}

// PublisherConfig selects where change events are streamed.
type PublisherConfig struct {
	Type             string `hcl:"type"` // stdout, nats or servicebus
	URL              string `hcl:"url,optional"`
	Stream           string `hcl:"stream,optional"`
	Subject          string `hcl:"subject,optional"`
	Queue            string `hcl:"queue,optional"`
	ConnectionString string `hcl:"connection_string,optional"`
}

// NotifierConfig selects the transport for per-row notifications.
type NotifierConfig struct {
	Type             string `hcl:"type"` // log, nats or servicebus
	URL              string `hcl:"url,optional"`
	Subject          string `hcl:"subject,optional"`
	Queue            string `hcl:"queue,optional"`
	ConnectionString string `hcl:"connection_string,optional"`
	Delay            string `hcl:"delay,optional"`
}

// ReferenceConfig is a cached lookup query that notification templates can read.
type ReferenceConfig struct {
	Name  string `hcl:"name,label"`
	Query string `hcl:"query"`
	TTL   string `hcl:"ttl,optional"`
}

// WatcherConfig describes one watched query.
type WatcherConfig struct {
	Name string `hcl:"name,label"`

	Query   string   `hcl:"query,optional"`
	Table   string   `hcl:"table,optional"`
	Columns []string `hcl:"columns,optional"`
	Where   string   `hcl:"where,optional"`

	IDField  string `hcl:"id_field"`
	IDColumn string `hcl:"id_column,optional"`

	TrackUpdates bool      `hcl:"track_updates,optional"`
	TrackDeletes bool      `hcl:"track_deletes,optional"`
	IgnoreFields *[]string `hcl:"ignore_fields,optional"`

	PollInterval    string `hcl:"poll_interval,optional"`
	MaxPollInterval string `hcl:"max_poll_interval,optional"`

	Notify []NotifyConfig `hcl:"notify,block"`
}

// NotifyConfig sends one message per changed row of the labelled class.
type NotifyConfig struct {
	On        string `hcl:"on,label"` // new, update or delete
	To        string `hcl:"to"`
	Message   string `hcl:"message"`
	Reference string `hcl:"reference,optional"`
	When      string `hcl:"when,optional"`
}

// GetPollInterval returns the poll interval, DefaultPollInterval when unset.
func (w WatcherConfig) GetPollInterval() (time.Duration, error) {
	return parseDuration(w.PollInterval, DefaultPollInterval)
}

// GetMaxPollInterval returns the ceiling of the initialization retry backoff.
func (w WatcherConfig) GetMaxPollInterval() (time.Duration, error) {
	return parseDuration(w.MaxPollInterval, DefaultMaxPollInterval)
}

// Ignored returns the configured fingerprint exclusions; nil when unset.
func (w WatcherConfig) Ignored() []string {
	if w.IgnoreFields == nil {
		return nil
	}
	return append([]string{}, (*w.IgnoreFields)...)
}

// GetDelay returns the pause between notification messages.
func (n NotifierConfig) GetDelay() (time.Duration, error) {
	return parseDuration(n.Delay, 0)
}

// GetTTL returns how long a reference lookup stays cached; zero means until refreshed.
func (r ReferenceConfig) GetTTL() (time.Duration, error) {
	return parseDuration(r.TTL, 0)
}

// GetConnMaxIdle returns the pool idle timeout.
func (d DatabaseConfig) GetConnMaxIdle() (time.Duration, error) {
	return parseDuration(d.ConnMaxIdle, 0)
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// LoadConfig reads and validates an HCL config file.
func LoadConfig(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(path, src)
}

// Parse decodes HCL source; filename is used in diagnostics and must end in .hcl.
func Parse(filename string, src []byte) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, src, evalContext(), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlserver"
	}
}

func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"env": envFunc,
		},
	}
}

// envFunc reads an environment variable; unset variables are empty strings.
var envFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "name", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(os.Getenv(args[0].AsString())), nil
	},
})
