// Package migrations embeds the schema migrations shipped with the binary.
package migrations

import "embed"

// Cassandra holds the CQL migrations under cassandra/, applied in order by
// golang-migrate.
//
//go:embed cassandra/*.cql
var Cassandra embed.FS
