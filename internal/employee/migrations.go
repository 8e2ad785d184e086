package employee

import "embed"

// MigrationsDir is the directory of Migrations holding the employee schema.
const MigrationsDir = "migrations"

// Migrations embeds the golang-migrate files of the employee table.
//
//go:embed migrations/*.sql
var Migrations embed.FS
