package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	adchecklist "github.com/zero-day-ai/adchecklist"
	"github.com/zero-day-ai/adchecklist/catalog"
	"github.com/zero-day-ai/adchecklist/config"
	"github.com/zero-day-ai/adchecklist/graph"
	"github.com/zero-day-ai/adchecklist/health"
	"github.com/zero-day-ai/adchecklist/report"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks against files and services",
		Long: `Verifies the catalog files, the output folder, the existing checklist and
connectivity to Neo4j and the optional etcd and Redis services, then reports
pass/fail for each.`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return &exitError{code: adchecklist.ExitFatal, err: err}
	}

	statuses := preflight(cmd.Context(), cfg)
	out := cmd.OutOrStdout()
	for _, s := range statuses {
		mark := "✓"
		switch {
		case s.IsUnhealthy():
			mark = "✗"
		case s.IsDegraded():
			mark = "!"
		}
		fmt.Fprintf(out, "  %s %-16s %s\n", mark, s.Name, s.Message)
		if e, ok := s.Details["error"]; ok {
			fmt.Fprintf(out, "    %v\n", e)
		}
	}

	summary := health.Combine(statuses...)
	fmt.Fprintf(out, "%s: %s\n", summary.State, summary.Message)
	if summary.IsUnhealthy() {
		return &exitError{code: adchecklist.ExitFatal}
	}
	return nil
}

// preflight runs every check the configuration calls for.
func preflight(ctx context.Context, cfg *config.Config) []health.Status {
	paths := cfg.Paths()
	statuses := []health.Status{
		health.FileCheck("catalog general", cfg.Catalog.QueriesFile, len(cfg.Catalog.Etcd.Endpoints) > 0),
		health.FileCheck("catalog owned", cfg.Catalog.OwnedQueriesFile, true),
		health.DirWritableCheck("output", filepath.Dir(paths.Checklist)),
		health.ChecklistCheck("checklist", paths.Checklist),
	}

	statuses = append(statuses, health.PingCheck(ctx, "neo4j", cfg.Neo4j.ConnectTimeout, false, func(ctx context.Context) error {
		client, err := graph.NewNeo4jClient(ctx, cfg.Neo4jClientConfig())
		if err != nil {
			return err
		}
		return client.Close(ctx)
	}))

	if etcdCfg, ok := cfg.EtcdClientConfig(); ok {
		statuses = append(statuses, health.PingCheck(ctx, "etcd", etcdCfg.DialTimeout, false, func(ctx context.Context) error {
			cli, err := catalog.NewEtcdClient(etcdCfg)
			if err != nil {
				return err
			}
			defer cli.Close()
			_, err = catalog.EtcdSource{KV: cli, Prefix: cfg.Catalog.Etcd.Prefix}.Load(ctx)
			return err
		}))
	}

	if redisOpts, ok := cfg.RedisOptions(); ok {
		statuses = append(statuses, health.PingCheck(ctx, "redis", 0, true, func(context.Context) error {
			pub, err := report.NewRedisPublisher(redisOpts)
			if err != nil {
				return err
			}
			return pub.Close()
		}))
	}
	return statuses
}
