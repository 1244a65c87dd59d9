// Package migrations hands the embedded notify schema to a migration runner,
// one source per SQL dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	notify "github.com/goliatone/go-notify"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	defaultSourceLabel = "go-notify"
	migrationsDir      = "data/sql/migrations"
)

// Source is the migration set for one dialect. Postgres files live at the
// root of the migrations directory and SQLite files under sqlite/.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*registration)

type registration struct {
	label    string
	dialects []string
	root     fs.FS
	err      error
}

func WithSourceLabel(label string) Option {
	return func(r *registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.label = trimmed
		}
	}
}

// WithDialects limits registration to the given dialects. Store driver names
// such as sqlite3 or postgresql are accepted.
func WithDialects(dialects ...string) Option {
	return func(r *registration) {
		var next []string
		for _, value := range dialects {
			if strings.TrimSpace(value) == "" {
				continue
			}
			dialect, err := DialectForDriver(value)
			if err != nil {
				r.err = err
				return
			}
			if !slices.Contains(next, dialect) {
				next = append(next, dialect)
			}
		}
		if len(next) > 0 {
			r.dialects = next
		}
	}
}

// WithRoot reads migrations from root instead of the embedded files.
func WithRoot(root fs.FS) Option {
	return func(r *registration) {
		if root != nil {
			r.root = root
		}
	}
}

func DialectForDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pg", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: no dialect for driver %q", driver)
	}
}

// Sources returns the postgres and sqlite migration sets found under root,
// or under the embedded files when root is nil.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = notify.GetMigrationsFS()
	}
	base, basePath, err := migrationsRoot(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite source: %w", err)
	}

	sources := []Source{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: joinPath(basePath, "sqlite"), FS: sqliteFS},
	}
	for _, source := range sources {
		matches, err := fs.Glob(source.FS, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", source.Dialect, source.Path, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s source %q has no *.up.sql files", source.Dialect, source.Path)
		}
	}
	return sources, nil
}

// Register calls registerFn once per selected dialect and returns the sources
// it registered.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) ([]Source, error) {
	reg := registration{
		label:    defaultSourceLabel,
		dialects: []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if reg.err != nil {
		return nil, reg.err
	}
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}

	sources, err := Sources(reg.root)
	if err != nil {
		return nil, err
	}
	var registered []Source
	for _, source := range sources {
		if !slices.Contains(reg.dialects, source.Dialect) {
			continue
		}
		if err := registerFn(ctx, source.Dialect, reg.label, source.FS); err != nil {
			return registered, fmt.Errorf("migrations: register %s (%s): %w", source.Dialect, source.Path, err)
		}
		registered = append(registered, source)
	}
	return registered, nil
}

// migrationsRoot accepts either a module root holding data/sql/migrations or
// a directory of .sql files.
func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	sub, err := fs.Sub(root, migrationsDir)
	if err == nil {
		if _, statErr := fs.Stat(sub, "."); statErr == nil {
			return sub, migrationsDir, nil
		}
	}
	entries, readErr := fs.ReadDir(root, ".")
	if readErr == nil {
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
				return root, ".", nil
			}
		}
	}
	return nil, "", fmt.Errorf("migrations: %s not found", migrationsDir)
}

func joinPath(base string, suffix string) string {
	if base == "." {
		return suffix
	}
	return strings.TrimSuffix(base, "/") + "/" + suffix
}
