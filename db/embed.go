// Package db carries the embedded schema applied at boot.
package db

import _ "embed"

// Schema is the idempotent DDL for all application tables. It is applied
// unconditionally on every start by repository.RunMigrations.
//
//go:embed migrations/001_schema.sql
var Schema string
