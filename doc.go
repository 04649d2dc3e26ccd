// Package adchecklist turns BloodHound graph queries into a persistent,
// human-editable remediation checklist.
//
// A Generator runs a catalog of named, read-only Cypher queries against a
// BloodHound-populated Neo4j store, converts every result row into a task
// with a stable identity, and merges the tasks into the checklist written by
// the previous run. Completion marks and operator comments survive
// regeneration; findings that disappear are dropped when they were checked
// off and kept as stale when they were not.
//
// # Pipeline
//
//	catalog ─▶ query ─▶ task ─▶ merge (+ state) ─▶ render ─▶ files
//	                                              └─▶ report ─▶ log, Redis
//
// Each stage lives in its own package:
//
//   - catalog: query definitions from YAML/JSON files or etcd
//   - graph: the graph store client (Neo4j) and read-only guard
//   - query: lazy per-query row sequences on a bounded pool
//   - identity, task: stable ids and task synthesis
//   - state: the previous checklist, parsed back
//   - merge: completion carry-forward and stale retention
//   - render: checklist, notes and tracking documents
//   - report: run outcome and publication
//
// # Getting Started
//
//	client, err := graph.NewNeo4jClient(ctx, graph.Neo4jConfig{
//		URI:      "bolt://localhost:7687",
//		Username: "neo4j",
//		Password: "bloodhound",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close(ctx)
//
//	gen, err := adchecklist.New(client,
//		adchecklist.WithSources(catalog.FileSource{Path: "queries.yaml", Section: "General checks"}),
//		adchecklist.WithPaths(adchecklist.DefaultPaths("vault/audit")),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	rep, err := gen.Run(ctx)
//
// Run returns an error only for failures that stop the run before output is
// written: an invalid catalog, an unreadable checklist, an output write
// failure or, under fail-fast, the first failed query. Everything else is
// collected in the returned report.
//
// Concurrent runs against the same output paths are not supported.
package adchecklist
