package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is one SQL file from the migrations directory.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// MigrationStatus pairs a known migration with whether (and when) it was
// applied to a schema.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Migrator applies versioned SQL files to one practice schema at a time.
// Files are named NNN_description.sql; the numeric prefix is the version.
type Migrator struct {
	pool *pgxpool.Pool
	dir  string
}

func NewMigrator(pool *pgxpool.Pool, migrationsDir string) *Migrator {
	return &Migrator{pool: pool, dir: migrationsDir}
}

// LoadMigrations reads the directory and returns migrations sorted by
// version. Non-SQL files and files without a numeric prefix are skipped;
// two files claiming the same version are an error.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory %s: %w", m.dir, err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		name := entry.Name()

		prefix, _, found := strings.Cut(name, "_")
		if !found {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", version, prev, name)
		}
		seen[version] = name

		content, err := os.ReadFile(filepath.Join(m.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migrations = append(migrations, Migration{Version: version, Name: name, SQL: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Up applies every pending migration to the schema in version order, one
// transaction per migration. It returns how many were applied.
func (m *Migrator) Up(ctx context.Context, schema string) (int, error) {
	if err := m.ensureVersionTable(ctx, schema); err != nil {
		return 0, err
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}
	applied, err := m.appliedVersions(ctx, schema)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range migrations {
		if _, done := applied[mig.Version]; done {
			continue
		}
		if err := m.applyOne(ctx, schema, mig); err != nil {
			return count, fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		count++
	}
	return count, nil
}

// Status reports every known migration and whether the schema has it.
func (m *Migrator) Status(ctx context.Context, schema string) ([]MigrationStatus, error) {
	if err := m.ensureVersionTable(ctx, schema); err != nil {
		return nil, err
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}
	applied, err := m.appliedVersions(ctx, schema)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		s := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, ok := applied[mig.Version]; ok {
			s.Applied = true
			s.AppliedAt = &at
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

func (m *Migrator) ensureVersionTable(ctx context.Context, schema string) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.schema_migrations (
    version INTEGER PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    applied_at TIMESTAMPTZ DEFAULT NOW()
)`, quoteSchema(schema))
	if _, err := m.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("create schema_migrations in %s: %w", schema, err)
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context, schema string) (map[int]time.Time, error) {
	q := fmt.Sprintf(`SELECT version, applied_at FROM %s.schema_migrations`, quoteSchema(schema))
	rows, err := m.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query applied versions in %s: %w", schema, err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var v int
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("scan applied version: %w", err)
		}
		applied[v] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied versions: %w", err)
	}
	return applied, nil
}

func (m *Migrator) applyOne(ctx context.Context, schema string, mig Migration) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", quoteSchema(schema))); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	if _, err := tx.Exec(ctx, mig.SQL); err != nil {
		return fmt.Errorf("execute SQL: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
		mig.Version, mig.Name,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit(ctx)
}

// quoteSchema quotes a schema name as an identifier so a practice name can
// never break out of its position in the statement.
func quoteSchema(schema string) string {
	return pgx.Identifier{schema}.Sanitize()
}
