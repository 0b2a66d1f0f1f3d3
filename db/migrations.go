// Package db carries the embedded schema migrations so a deployed binary
// needs no migration files on disk.
package db

import "embed"

// Migrations holds the goose migration scripts applied at startup.
//
//go:embed migrations/*.sql
var Migrations embed.FS
