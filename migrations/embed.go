// Package migrations carries the SQL schema migrations so binaries can
// check the database against them without the source tree.
package migrations

import "embed"

// Files holds every *.up.sql and *.down.sql file of this directory
//
//go:embed *.sql
var Files embed.FS
