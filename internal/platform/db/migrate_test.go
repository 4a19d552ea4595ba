package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeMigrationFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, sql := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadMigrations(t *testing.T) {
	dir := writeMigrationFiles(t, map[string]string{
		"001_core.sql":         "CREATE TABLE doctor (id UUID PRIMARY KEY);",
		"002_schedule.sql":     "CREATE TABLE weekly_schedule (id UUID PRIMARY KEY);",
		"003_appointments.sql": "CREATE TABLE appointment (id UUID PRIMARY KEY);",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("got %d migrations, want 3", len(migrations))
	}
	for i, want := range []int{1, 2, 3} {
		if migrations[i].Version != want {
			t.Errorf("migration %d version = %d, want %d", i, migrations[i].Version, want)
		}
	}
	if !strings.Contains(migrations[0].SQL, "CREATE TABLE doctor") {
		t.Errorf("migration SQL not loaded: %q", migrations[0].SQL)
	}
}

func TestLoadMigrations_SortsByVersionNotFilename(t *testing.T) {
	// Lexical order of these names differs from numeric order.
	dir := writeMigrationFiles(t, map[string]string{
		"010_ten.sql": "SELECT 10;",
		"002_two.sql": "SELECT 2;",
		"001_one.sql": "SELECT 1;",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	got := []int{}
	for _, m := range migrations {
		got = append(got, m.Version)
	}
	want := []int{1, 2, 10}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("versions = %v, want %v", got, want)
		}
	}
}

func TestLoadMigrations_SkipsNonMigrationFiles(t *testing.T) {
	dir := writeMigrationFiles(t, map[string]string{
		"001_core.sql": "SELECT 1;",
		"README.md":    "not a migration",
		"notes.sql":    "no numeric prefix",
		"abc_x.sql":    "prefix is not a number",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 1 || migrations[0].Version != 1 {
		t.Errorf("migrations = %+v, want only version 1", migrations)
	}
}

func TestLoadMigrations_RejectsDuplicateVersions(t *testing.T) {
	dir := writeMigrationFiles(t, map[string]string{
		"002_schedule.sql": "SELECT 1;",
		"002_schema.sql":   "SELECT 2;",
	})

	_, err := NewMigrator(nil, dir).LoadMigrations()
	if err == nil || !strings.Contains(err.Error(), "duplicate migration version 2") {
		t.Fatalf("err = %v, want duplicate version error", err)
	}
}

func TestLoadMigrations_EmptyDir(t *testing.T) {
	migrations, err := NewMigrator(nil, t.TempDir()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("got %d migrations from empty dir", len(migrations))
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	if _, err := NewMigrator(nil, "/nonexistent/migrations").LoadMigrations(); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestQuoteSchema(t *testing.T) {
	cases := map[string]string{
		"practice_default":   `"practice_default"`,
		`evil"; DROP TABLE`:  `"evil""; DROP TABLE"`,
		"practice_acme_2027": `"practice_acme_2027"`,
	}
	for in, want := range cases {
		if got := quoteSchema(in); got != want {
			t.Errorf("quoteSchema(%q) = %q, want %q", in, got, want)
		}
	}
}
