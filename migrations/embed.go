// Package migrations embeds SQL migration files into the binary so
// Gatehouse can bootstrap its schema without SQL files on disk.
package migrations

import (
	"embed"

	"github.com/thornfield/gatehouse/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
