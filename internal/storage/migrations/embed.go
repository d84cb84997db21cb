package migrations

import "embed"

// SQLite embeds the SQL migration files for the SQLite storage layer.
//
//go:embed sqlite/*.sql
var SQLite embed.FS

// Postgres embeds the SQL migration files for the Postgres storage layer.
//
//go:embed postgres/*.sql
var Postgres embed.FS
