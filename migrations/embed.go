// Package migrations embeds the SQL schema so binaries and tests migrate from
// the same source.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
