// Package migrations embeds the registry's numbered SQL migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
