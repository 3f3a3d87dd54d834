package repository

import "embed"

// MigrationsFS embeds the SQL migrations for the PostgreSQL backing store.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS

// MigrationsPath is the directory inside MigrationsFS holding the files.
const MigrationsPath = "migrations"
