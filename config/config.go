// Package config loads the generator configuration.
//
// Values are layered, later layers winning: built-in defaults, an optional
// YAML file, a .env file, the process environment, then command-line flags.
// The short environment names NEO4J_URI, QUERIES_FILE, OBSIDIAN_OUT and
// friends are honoured alongside ADCHECKLIST_* names derived from the
// configuration keys.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	adchecklist "github.com/zero-day-ai/adchecklist"
	"github.com/zero-day-ai/adchecklist/auditerr"
	"github.com/zero-day-ai/adchecklist/catalog"
	"github.com/zero-day-ai/adchecklist/graph"
	"github.com/zero-day-ai/adchecklist/report"
)

// Section names of the two file catalogs.
const (
	GeneralSection = "General checks"
	OwnedSection   = "Owned checks"
)

// Config is the complete generator configuration.
type Config struct {
	Neo4j   Neo4jConfig   `yaml:"neo4j" mapstructure:"neo4j"`
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Run     RunConfig     `yaml:"run" mapstructure:"run"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Redis   RedisConfig   `yaml:"redis" mapstructure:"redis"`
}

// Neo4jConfig configures the BloodHound graph store.
type Neo4jConfig struct {
	URI            string        `yaml:"uri" mapstructure:"uri"`
	User           string        `yaml:"user" mapstructure:"user"`
	Password       string        `yaml:"password" mapstructure:"password"`
	Database       string        `yaml:"database" mapstructure:"database"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
}

// CatalogConfig names where query definitions come from.
type CatalogConfig struct {
	// QueriesFile holds the general checks. Required.
	QueriesFile string `yaml:"queries_file" mapstructure:"queries_file"`

	// OwnedQueriesFile holds checks starting from owned principals. Skipped
	// when the file does not exist.
	OwnedQueriesFile string `yaml:"owned_queries_file" mapstructure:"owned_queries_file"`

	Etcd EtcdConfig `yaml:"etcd" mapstructure:"etcd"`
}

// EtcdConfig configures the optional etcd catalog source. An empty endpoint
// list disables it.
type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints" mapstructure:"endpoints"`
	Prefix      string        `yaml:"prefix" mapstructure:"prefix"`
	Username    string        `yaml:"username" mapstructure:"username"`
	Password    string        `yaml:"password" mapstructure:"password"`
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
}

// OutputConfig configures the written documents.
type OutputConfig struct {
	// Dir is the Obsidian vault folder documents are written to.
	Dir string `yaml:"dir" mapstructure:"dir"`

	Checklist string `yaml:"checklist" mapstructure:"checklist"`

	// Notes and Tracking may be set to "" to skip the document.
	Notes    string `yaml:"notes" mapstructure:"notes"`
	Tracking string `yaml:"tracking" mapstructure:"tracking"`

	Title      string `yaml:"title" mapstructure:"title"`
	LinkPrefix string `yaml:"link_prefix" mapstructure:"link_prefix"`

	// VaultDir is Dir relative to the Obsidian vault root, used by the
	// tracking dashboard queries. Empty when Dir is the vault root.
	VaultDir string `yaml:"vault_dir" mapstructure:"vault_dir"`

	// MaxRows bounds the result rows shown per query in the notes. Zero
	// shows every row.
	MaxRows int `yaml:"max_rows" mapstructure:"max_rows"`
}

// RunConfig tunes query execution.
type RunConfig struct {
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	FailFast    bool          `yaml:"fail_fast" mapstructure:"fail_fast"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" mapstructure:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format" mapstructure:"format"`
}

// RedisConfig configures the optional run report publisher. An empty URL
// disables it.
type RedisConfig struct {
	URL        string `yaml:"url" mapstructure:"url"`
	Channel    string `yaml:"channel" mapstructure:"channel"`
	Prefix     string `yaml:"prefix" mapstructure:"prefix"`
	HistoryLen int    `yaml:"history_len" mapstructure:"history_len"`
}

// Validate checks the configuration and reports every problem at once as a
// KindConfiguration error.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Neo4j.URI) == "" {
		errs = append(errs, errors.New("neo4j.uri is required"))
	} else if u, err := url.Parse(c.Neo4j.URI); err != nil || u.Scheme == "" {
		errs = append(errs, fmt.Errorf("neo4j.uri %q is not a URI", c.Neo4j.URI))
	}
	if strings.TrimSpace(c.Catalog.QueriesFile) == "" && len(c.Catalog.Etcd.Endpoints) == 0 {
		errs = append(errs, errors.New("catalog.queries_file or catalog.etcd.endpoints is required"))
	}
	if strings.TrimSpace(c.Output.Checklist) == "" {
		errs = append(errs, errors.New("output.checklist is required"))
	}
	if c.Output.MaxRows < 0 {
		errs = append(errs, fmt.Errorf("output.max_rows must not be negative, got %d", c.Output.MaxRows))
	}
	if c.Run.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("run.concurrency must be at least 1, got %d", c.Run.Concurrency))
	}
	if c.Run.Timeout < 0 {
		errs = append(errs, fmt.Errorf("run.timeout must not be negative, got %s", c.Run.Timeout))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Redis.URL != "" {
		if _, err := url.Parse(c.Redis.URL); err != nil {
			errs = append(errs, fmt.Errorf("redis.url: %w", err))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return auditerr.Configuration("config.Validate", errors.Join(errs...))
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Paths returns the output documents inside Output.Dir.
func (c *Config) Paths() adchecklist.Paths {
	join := func(name string) string {
		if name == "" {
			return ""
		}
		if filepath.IsAbs(name) {
			return name
		}
		return filepath.Join(c.Output.Dir, name)
	}
	return adchecklist.Paths{
		Checklist: join(c.Output.Checklist),
		Notes:     join(c.Output.Notes),
		Tracking:  join(c.Output.Tracking),
	}
}

// FileSources returns the file catalogs to load, general checks first. A
// missing owned-checks file is returned in skipped instead.
func (c *Config) FileSources() (sources []catalog.Source, skipped []string) {
	if c.Catalog.QueriesFile != "" {
		sources = append(sources, catalog.FileSource{Path: c.Catalog.QueriesFile, Section: GeneralSection})
	}
	if owned := c.Catalog.OwnedQueriesFile; owned != "" {
		if _, err := os.Stat(owned); err != nil {
			skipped = append(skipped, owned)
		} else {
			sources = append(sources, catalog.FileSource{Path: owned, Section: OwnedSection})
		}
	}
	return sources, skipped
}

// Neo4jClientConfig returns the graph connection settings.
func (c *Config) Neo4jClientConfig() graph.Neo4jConfig {
	return graph.Neo4jConfig{
		URI:            c.Neo4j.URI,
		Username:       c.Neo4j.User,
		Password:       c.Neo4j.Password,
		Database:       c.Neo4j.Database,
		ConnectTimeout: c.Neo4j.ConnectTimeout,
	}
}

// EtcdClientConfig returns the etcd connection settings and whether the etcd
// source is enabled.
func (c *Config) EtcdClientConfig() (catalog.EtcdConfig, bool) {
	e := c.Catalog.Etcd
	return catalog.EtcdConfig{
		Endpoints:   e.Endpoints,
		Username:    e.Username,
		Password:    e.Password,
		DialTimeout: e.DialTimeout,
	}, len(e.Endpoints) > 0
}

// RedisOptions returns the publisher settings and whether publishing is
// enabled.
func (c *Config) RedisOptions() (report.RedisOptions, bool) {
	return report.RedisOptions{
		URL:        c.Redis.URL,
		Channel:    c.Redis.Channel,
		Prefix:     c.Redis.Prefix,
		HistoryLen: c.Redis.HistoryLen,
	}, c.Redis.URL != ""
}

// GeneratorOptions returns the generator options derived from the
// configuration. Catalog sources, logger and publisher are wired by the
// caller.
func (c *Config) GeneratorOptions() []adchecklist.Option {
	return []adchecklist.Option{
		adchecklist.WithPaths(c.Paths()),
		adchecklist.WithTitle(c.Output.Title),
		adchecklist.WithLinkPrefix(c.Output.LinkPrefix),
		adchecklist.WithVaultDir(c.Output.VaultDir),
		adchecklist.WithMaxRows(c.Output.MaxRows),
		adchecklist.WithConcurrency(c.Run.Concurrency),
		adchecklist.WithTimeout(c.Run.Timeout),
		adchecklist.WithFailFast(c.Run.FailFast),
	}
}
