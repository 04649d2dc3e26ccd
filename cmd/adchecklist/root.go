package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	adchecklist "github.com/zero-day-ai/adchecklist"
	"github.com/zero-day-ai/adchecklist/catalog"
	"github.com/zero-day-ai/adchecklist/config"
	"github.com/zero-day-ai/adchecklist/graph"
	"github.com/zero-day-ai/adchecklist/report"
)

var (
	configFile string
	envFile    string
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "adchecklist",
		Short: "Sync BloodHound findings into an Obsidian audit checklist",
		Long: `adchecklist runs a catalog of read-only Cypher queries against a BloodHound
Neo4j database and rewrites an Obsidian checklist with one task per finding.

Completed tasks and comments survive regeneration; findings that disappear
are dropped when completed and kept as stale otherwise.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runGenerate,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML configuration file")
	flags.StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file (ignored when missing)")
	config.RegisterFlags(flags)

	root.AddCommand(
		&cobra.Command{
			Use:   "generate",
			Short: "Run every query and rewrite the checklist (default)",
			Args:  cobra.NoArgs,
			RunE:  runGenerate,
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Load configuration and the query catalog without querying the graph",
			Args:  cobra.NoArgs,
			RunE:  runValidate,
		},
		newCheckCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), "adchecklist", version)
			},
		},
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(version string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(version).ExecuteContext(ctx)
	if err == nil {
		return adchecklist.ExitOK
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", exit.err)
		}
		return exit.code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return adchecklist.ExitFatal
}

func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: configFile,
		EnvFile:    envFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// catalogSources returns the configured catalog sources and a cleanup
// closing any store connection they hold.
func catalogSources(cfg *config.Config, logger *slog.Logger) ([]catalog.Source, func(), error) {
	sources, skipped := cfg.FileSources()
	for _, path := range skipped {
		logger.Warn("catalog file not found, skipping", "path", path)
	}

	etcdCfg, ok := cfg.EtcdClientConfig()
	if !ok {
		return sources, func() {}, nil
	}
	cli, err := catalog.NewEtcdClient(etcdCfg)
	if err != nil {
		return nil, nil, err
	}
	sources = append(sources, catalog.EtcdSource{KV: cli, Prefix: cfg.Catalog.Etcd.Prefix})
	return sources, func() { adchecklist.CloseWithLog(cli, logger, "etcd client") }, nil
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return &exitError{code: adchecklist.ExitFatal, err: err}
	}

	sources, cleanup, err := catalogSources(cfg, logger)
	if err != nil {
		return &exitError{code: adchecklist.ExitFatal, err: err}
	}
	defer cleanup()

	cat, err := catalog.Load(cmd.Context(), sources...)
	if err != nil {
		return &exitError{code: adchecklist.ExitFatal, err: err}
	}

	out := cmd.OutOrStdout()
	for _, w := range cat.Warnings() {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	fmt.Fprintf(out, "catalog ok: %d queries\n", cat.Len())
	for _, section := range cat.Sections() {
		n := 0
		for _, q := range cat.Queries() {
			if q.Section == section {
				n++
			}
		}
		fmt.Fprintf(out, "  %s: %d\n", section, n)
	}
	return nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return &exitError{code: adchecklist.ExitFatal, err: err}
	}

	sources, cleanup, err := catalogSources(cfg, logger)
	if err != nil {
		return &exitError{code: adchecklist.ExitFatal, err: err}
	}
	defer cleanup()

	client, err := graph.NewNeo4jClient(ctx, cfg.Neo4jClientConfig())
	if err != nil {
		return &exitError{code: adchecklist.ExitFatal, err: err}
	}
	defer func() {
		if cerr := client.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("failed to close resource", "resource", "neo4j driver", "error", cerr)
		}
	}()

	opts := append(cfg.GeneratorOptions(),
		adchecklist.WithSources(sources...),
		adchecklist.WithLogger(logger),
		adchecklist.WithTracer(otel.Tracer("adchecklist")),
		adchecklist.WithMeter(otel.Meter("adchecklist")),
	)

	if redisOpts, ok := cfg.RedisOptions(); ok {
		pub, err := report.NewRedisPublisher(redisOpts)
		if err != nil {
			// Reports are optional; the checklist is still written.
			logger.Warn("run reports disabled", "error", err)
		} else {
			defer adchecklist.CloseWithLog(pub, logger, "redis publisher")
			opts = append(opts, adchecklist.WithPublisher(pub))
		}
	}

	gen, err := adchecklist.New(client, opts...)
	if err != nil {
		return &exitError{code: adchecklist.ExitFatal, err: err}
	}

	rep, err := gen.Run(ctx)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "[+] %s\n", rep.Summary())
	if err == nil {
		fmt.Fprintf(out, "[+] checklist: %s\n", rep.Checklist)
	}
	if code := adchecklist.ExitCode(rep, err); code != adchecklist.ExitOK {
		return &exitError{code: code, err: err}
	}
	return nil
}
