// Package migrations embeds the SQL schema migrations.
package migrations

import "embed"

// FS holds the golang-migrate files.
//
//go:embed *.sql
var FS embed.FS

// Dir is the directory inside FS holding the migrations.
const Dir = "."
