// Package migrations embeds the SQL schema migrations so the binary can
// apply them at startup without shipping the files separately.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
