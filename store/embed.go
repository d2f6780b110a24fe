package store

import "embed"

// Migrations holds the embedded golang-migrate source tree consumed by
// store/postgres. sqlite applies schemaStatements directly instead (see
// ApplySchema) since a single-file pure-Go database has no separate
// migration runner to speak of.
//
//go:embed migrations
var Migrations embed.FS
