// Package db embeds the SQL schema applied on startup.
package db

import _ "embed"

// Schema holds the full database schema. Applied idempotently by the
// migration runner before the server starts accepting traffic.
//
//go:embed migrations/001_schema.sql
var Schema string
