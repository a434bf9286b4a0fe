// Package migrations embeds the SQL schema files for goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
