// Package migrations embeds the versioned PostgreSQL schema of each service and applies it with golang-migrate.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres:// driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed identity/*.sql
var identityFS embed.FS

//go:embed lore/*.sql
var loreFS embed.FS

// Source is one service's migration set.
type Source struct {
	Name string
	fsys fs.FS
	dir  string
}

// Sets owned by each stateful service.
var (
	Identity = Source{Name: "identity", fsys: identityFS, dir: "identity"}
	Lore     = Source{Name: "lore", fsys: loreFS, dir: "lore"}
)

// Files lists the embedded migration file names.
func (s Source) Files() ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s migrations: %w", s.Name, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Up applies all pending migrations of src against databaseURL.
// Each set keeps its own version table so the services may share a database.
func Up(databaseURL string, src Source) error {
	driver, err := iofs.New(src.fsys, src.dir)
	if err != nil {
		return fmt.Errorf("failed to open %s migrations: %w", src.Name, err)
	}

	url := databaseURL + "&x-migrations-table=schema_migrations_" + src.Name
	m, err := migrate.NewWithSourceInstance("iofs", driver, url)
	if err != nil {
		return fmt.Errorf("failed to init %s migrations: %w", src.Name, err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply %s migrations: %w", src.Name, err)
	}
	return nil
}
