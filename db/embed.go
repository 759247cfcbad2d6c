// Package db embeds the SQL schema applied at daemon startup.
package db

import _ "embed"

// Schema holds the DDL for every table the promo engine owns.
//
//go:embed migrations/001_schema.sql
var Schema string
