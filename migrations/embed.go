// Package migrations compiles the schema migration SQL into the binary and
// registers it with the database package, so deployments never depend on
// loose .sql files.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-discovery/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "."
}
