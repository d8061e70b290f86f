package sql

import (
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"
	"sync"
)

//go:embed migrations/*.sql
var embedded embed.FS

// migration is a numbered sql script, e.g. 0002_stores.sql.
type migration struct {
	version    int
	name       string
	statements []string
}

func parseMigrations(fsys fs.FS) ([]migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}
	migrations := make([]migration, 0, len(names))
	for _, name := range names {
		prefix, _, _ := strings.Cut(name, "_")
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %s is not prefixed with a version", name)
		}
		script, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		m := migration{version: version, name: name}
		for _, stmt := range strings.SplitAfter(string(script), ";") {
			if strings.TrimSpace(stmt) != "" {
				m.statements = append(m.statements, stmt)
			}
		}
		migrations = append(migrations, m)
	}
	slices.SortFunc(migrations, func(a, b migration) int {
		return a.version - b.version
	})
	for i := 1; i < len(migrations); i++ {
		if migrations[i].version == migrations[i-1].version {
			return nil, fmt.Errorf("migrations %s and %s have the same version",
				migrations[i-1].name, migrations[i].name)
		}
	}
	return migrations, nil
}

var loadEmbedded = sync.OnceValues(func() ([]migration, error) {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		return nil, err
	}
	return parseMigrations(sub)
})

// UserVersion returns the version of the last applied migration.
func UserVersion(db Executor) (int, error) {
	var current int
	if _, err := db.Exec("PRAGMA user_version;", nil, func(stmt *Statement) bool {
		current = stmt.ColumnInt(0)
		return false
	}); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return current, nil
}

func applyMigrations(db Executor, migrations []migration) error {
	current, err := UserVersion(db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := db.Exec(stmt, nil, nil); err != nil {
				return fmt.Errorf("exec %s: %w", m.name, err)
			}
		}
		// pragma doesn't accept bound parameters
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d;", m.version), nil, nil); err != nil {
			return fmt.Errorf("set user_version to %d: %w", m.version, err)
		}
	}
	return nil
}

func embeddedMigrations(db Executor) error {
	migrations, err := loadEmbedded()
	if err != nil {
		return err
	}
	return applyMigrations(db, migrations)
}
