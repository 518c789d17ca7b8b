package migrations

import "embed"

// FS contains embedded SQLite migrations for the mission logbook.
//
//go:embed *.sql
var FS embed.FS
