// Package migrations embeds the SQLite schema for race storage.
package migrations

import "embed"

// FS contains embedded SQLite migrations for race storage.
//
//go:embed *.sql
var FS embed.FS
