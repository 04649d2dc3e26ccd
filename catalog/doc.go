// Package catalog models the named graph queries that drive checklist
// generation.
//
// A catalog is an ordered list of query definitions gathered from one or more
// sources (YAML or JSON files, or an etcd prefix). Each definition names a
// read-only Cypher query, the category its findings are filed under, the
// template used to render a task title from a result row, and the row fields
// that identify a finding across runs.
//
// Catalogs are validated once, before any query runs: names must be unique
// across all sources, queries must be read-only, title templates and
// exclusion rules must compile. Any violation is an auditerr KindCatalog
// error and aborts the run.
//
// # File format
//
// Files hold either a bare list of definitions or a mapping with a "queries"
// key, which keeps BloodHound custom-query exports loadable as-is:
//
//	queries:
//	  - name: kerberoastable-accounts
//	    category: Kerberos
//	    severity: high
//	    query: MATCH (u:User {hasspn: true}) RETURN u.name AS account
//	    template: "Remove SPN or rotate password for {{.account}}"
//	    identify: [account]
//	    exclude: 'row.account.startsWith("krbtgt")'
//
// Entries without query text are treated as disabled placeholders and skipped.
package catalog
