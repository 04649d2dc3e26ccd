package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/adchecklist/auditerr"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd("1.2.3")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "adchecklist 1.2.3\n", out)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	queries := filepath.Join(dir, "queries.json")
	require.NoError(t, os.WriteFile(queries, []byte(`{"queries": [
		{"name": "kerberoastable-accounts", "query": "MATCH (u:User {hasspn: true}) RETURN u.name AS account"},
		{"name": "asrep-roastable", "query": "MATCH (u:User {dontreqpreauth: true}) RETURN u.name AS account"}
	]}`), 0o644))

	out, err := execute(t, "validate",
		"--env-file", filepath.Join(dir, "none.env"),
		"--queries", queries,
		"--owned-queries", filepath.Join(dir, "missing.json"),
	)
	require.NoError(t, err)
	assert.Contains(t, out, "catalog ok: 2 queries")
	assert.Contains(t, out, "General checks: 2")
	assert.Contains(t, out, "catalog file not found, skipping")
}

func TestValidateRejectsWrites(t *testing.T) {
	dir := t.TempDir()
	queries := filepath.Join(dir, "queries.json")
	require.NoError(t, os.WriteFile(queries, []byte(`[{"name": "wipe", "query": "MATCH (n) DETACH DELETE n"}]`), 0o644))

	_, err := execute(t, "validate",
		"--env-file", filepath.Join(dir, "none.env"),
		"--queries", queries,
		"--owned-queries", "",
	)
	require.Error(t, err)

	var exit *exitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.code)
	assert.ErrorIs(t, err, auditerr.ErrCatalog)
}

func TestInvalidConfiguration(t *testing.T) {
	_, err := execute(t, "validate",
		"--env-file", filepath.Join(t.TempDir(), "none.env"),
		"--concurrency", "0",
	)
	assert.ErrorIs(t, err, auditerr.ErrConfiguration)
}

func TestCheckReportsUnreachableGraph(t *testing.T) {
	dir := t.TempDir()
	queries := filepath.Join(dir, "queries.json")
	require.NoError(t, os.WriteFile(queries, []byte(`[]`), 0o644))
	t.Setenv("ADCHECKLIST_NEO4J_CONNECT_TIMEOUT", "2s")

	out, err := execute(t, "check",
		"--env-file", filepath.Join(dir, "none.env"),
		"--queries", queries,
		"--owned-queries", filepath.Join(dir, "owned.json"),
		"--out", filepath.Join(dir, "vault"),
		"--neo4j-uri", "bolt://127.0.0.1:1",
	)
	require.Error(t, err)

	var exit *exitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.code)
	assert.Contains(t, out, "✓ catalog general")
	assert.Contains(t, out, "! catalog owned")
	assert.Contains(t, out, "✓ output")
	assert.Contains(t, out, "✗ neo4j")
	assert.Contains(t, out, "unhealthy: 1 check(s) failed")
}
