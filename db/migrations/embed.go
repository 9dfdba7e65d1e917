// Package dbmigrations exposes embedded SQL migrations for tip binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into tip binaries.
//
//go:embed *.sql
var Files embed.FS
