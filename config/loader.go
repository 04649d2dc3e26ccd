package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	adchecklist "github.com/zero-day-ai/adchecklist"
	"github.com/zero-day-ai/adchecklist/auditerr"
	"github.com/zero-day-ai/adchecklist/catalog"
	"github.com/zero-day-ai/adchecklist/query"
	"github.com/zero-day-ai/adchecklist/report"
)

// EnvPrefix prefixes the environment names derived from configuration keys,
// e.g. ADCHECKLIST_RUN_CONCURRENCY for run.concurrency.
const EnvPrefix = "ADCHECKLIST"

// DefaultEnvFile is the dotenv file read from the working directory.
const DefaultEnvFile = ".env"

// legacyEnv maps configuration keys to the short environment names used by
// existing deployments. They take precedence over the derived ADCHECKLIST_ names.
var legacyEnv = map[string]string{
	"neo4j.uri":                  "NEO4J_URI",
	"neo4j.user":                 "NEO4J_USER",
	"neo4j.password":             "NEO4J_PASS",
	"neo4j.database":             "NEO4J_DATABASE",
	"catalog.queries_file":       "QUERIES_FILE",
	"catalog.owned_queries_file": "OWNED_QUERIES_FILE",
	"output.dir":                 "OBSIDIAN_OUT",
	"output.max_rows":            "MAX_ROWS",
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"neo4j-uri":      "neo4j.uri",
	"neo4j-user":     "neo4j.user",
	"neo4j-database": "neo4j.database",
	"queries":        "catalog.queries_file",
	"owned-queries":  "catalog.owned_queries_file",
	"etcd-endpoints": "catalog.etcd.endpoints",
	"etcd-prefix":    "catalog.etcd.prefix",
	"out":            "output.dir",
	"title":          "output.title",
	"link-prefix":    "output.link_prefix",
	"vault-dir":      "output.vault_dir",
	"max-rows":       "output.max_rows",
	"concurrency":    "run.concurrency",
	"timeout":        "run.timeout",
	"fail-fast":      "run.fail_fast",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"redis-url":      "redis.url",
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Neo4j: Neo4jConfig{
			URI:            "bolt://127.0.0.1:7687",
			User:           "neo4j",
			Password:       "neo4j",
			ConnectTimeout: 10 * time.Second,
		},
		Catalog: CatalogConfig{
			QueriesFile:      "queries.json",
			OwnedQueriesFile: "ownedqueries.json",
			Etcd: EtcdConfig{
				Prefix:      catalog.DefaultEtcdPrefix,
				DialTimeout: 5 * time.Second,
			},
		},
		Output: OutputConfig{
			Dir:       "output",
			Checklist: adchecklist.DefaultChecklistFile,
			Notes:     adchecklist.DefaultNotesFile,
			Tracking:  adchecklist.DefaultTrackingFile,
			MaxRows:   50,
		},
		Run: RunConfig{
			Concurrency: query.DefaultConcurrency,
			Timeout:     query.DefaultTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Redis: RedisConfig{
			Channel:    report.DefaultChannel,
			HistoryLen: report.DefaultHistoryLen,
		},
	}
}

// LoadOptions selects the optional layers of Load.
type LoadOptions struct {
	// ConfigFile is an optional YAML file. A named file that does not exist
	// is an error.
	ConfigFile string

	// EnvFile is the dotenv file; DefaultEnvFile when empty. A missing file
	// is ignored. Variables already set in the environment are not replaced.
	EnvFile string

	// Flags are bound by their names in RegisterFlags; only flags the user
	// changed override other layers.
	Flags *pflag.FlagSet
}

// RegisterFlags defines the configuration flags on fs. Defaults shown in
// help are the built-in defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.String("neo4j-uri", d.Neo4j.URI, "Neo4j Bolt URI")
	fs.String("neo4j-user", d.Neo4j.User, "Neo4j user")
	fs.String("neo4j-database", d.Neo4j.Database, "Neo4j database (server default when empty)")
	fs.String("queries", d.Catalog.QueriesFile, "general checks catalog file")
	fs.String("owned-queries", d.Catalog.OwnedQueriesFile, "owned checks catalog file (skipped when missing)")
	fs.StringSlice("etcd-endpoints", nil, "etcd endpoints holding additional catalog entries")
	fs.String("etcd-prefix", d.Catalog.Etcd.Prefix, "etcd key prefix of catalog entries")
	fs.String("out", d.Output.Dir, "output directory (Obsidian vault folder)")
	fs.String("title", d.Output.Title, "checklist heading")
	fs.String("link-prefix", d.Output.LinkPrefix, "render entities as links to notes with this prefix")
	fs.String("vault-dir", d.Output.VaultDir, "output directory relative to the vault root, for the tracking dashboard")
	fs.Int("max-rows", d.Output.MaxRows, "result rows shown per query in the notes, 0 for all")
	fs.Int("concurrency", d.Run.Concurrency, "queries executed at once")
	fs.Duration("timeout", d.Run.Timeout, "per-query timeout, 0 to disable")
	fs.Bool("fail-fast", d.Run.FailFast, "abort at the first failed query without writing output")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log-format", d.Log.Format, "log format (text, json)")
	fs.String("redis-url", d.Redis.URL, "publish run reports to this Redis")
}

// Load builds the configuration from every layer and validates it.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, auditerr.Configuration("config.Load", fmt.Errorf("load %s: %w", envFile, err))
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, auditerr.Configuration("config.Load", fmt.Errorf("read %s: %w", opts.ConfigFile, err))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range legacyEnv {
		if err := v.BindEnv(key, name, envName(key)); err != nil {
			return nil, auditerr.Configuration("config.Load", err)
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, auditerr.Configuration("config.Load", err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, auditerr.Configuration("config.Load", fmt.Errorf("decode: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envName returns the ADCHECKLIST_ environment name of key.
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// setDefaults registers every key of cfg with v, so that AutomaticEnv and
// Unmarshal see keys no file mentions.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("neo4j.uri", cfg.Neo4j.URI)
	v.SetDefault("neo4j.user", cfg.Neo4j.User)
	v.SetDefault("neo4j.password", cfg.Neo4j.Password)
	v.SetDefault("neo4j.database", cfg.Neo4j.Database)
	v.SetDefault("neo4j.connect_timeout", cfg.Neo4j.ConnectTimeout)

	v.SetDefault("catalog.queries_file", cfg.Catalog.QueriesFile)
	v.SetDefault("catalog.owned_queries_file", cfg.Catalog.OwnedQueriesFile)
	v.SetDefault("catalog.etcd.endpoints", cfg.Catalog.Etcd.Endpoints)
	v.SetDefault("catalog.etcd.prefix", cfg.Catalog.Etcd.Prefix)
	v.SetDefault("catalog.etcd.username", cfg.Catalog.Etcd.Username)
	v.SetDefault("catalog.etcd.password", cfg.Catalog.Etcd.Password)
	v.SetDefault("catalog.etcd.dial_timeout", cfg.Catalog.Etcd.DialTimeout)

	v.SetDefault("output.dir", cfg.Output.Dir)
	v.SetDefault("output.checklist", cfg.Output.Checklist)
	v.SetDefault("output.notes", cfg.Output.Notes)
	v.SetDefault("output.tracking", cfg.Output.Tracking)
	v.SetDefault("output.title", cfg.Output.Title)
	v.SetDefault("output.link_prefix", cfg.Output.LinkPrefix)
	v.SetDefault("output.vault_dir", cfg.Output.VaultDir)
	v.SetDefault("output.max_rows", cfg.Output.MaxRows)

	v.SetDefault("run.concurrency", cfg.Run.Concurrency)
	v.SetDefault("run.timeout", cfg.Run.Timeout)
	v.SetDefault("run.fail_fast", cfg.Run.FailFast)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	v.SetDefault("redis.url", cfg.Redis.URL)
	v.SetDefault("redis.channel", cfg.Redis.Channel)
	v.SetDefault("redis.prefix", cfg.Redis.Prefix)
	v.SetDefault("redis.history_len", cfg.Redis.HistoryLen)
}
