// Package migrations embeds the academia-core schema migrations so the
// binary can migrate a database without the SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/academia-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
