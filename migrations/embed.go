// Package migrations embeds the PostgreSQL schema migrations.
package migrations

import "embed"

// FS holds the migration files under postgres/.
//
//go:embed postgres/*.sql
var FS embed.FS

// PostgresDir is the directory inside FS holding PostgreSQL migrations.
const PostgresDir = "postgres"
