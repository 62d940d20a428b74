// Package migrations embeds the Postgres schema so a binary can migrate
// without the SQL files next to it.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
