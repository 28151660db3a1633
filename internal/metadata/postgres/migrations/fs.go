// Package migrations embeds the SQL migration files for the Postgres
// metadata store so the binary carries its own schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
