// Package n8nschema creates the subset of n8n's SQLite schema that the
// bootstrap path touches, so tests can run against a real database file.
package n8nschema

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// Table names as n8n creates them.
const (
	User            = "user"
	Role            = "role"
	Project         = "project"
	ProjectRelation = "project_relation"
)

// All is the creation order; later tables reference earlier ones.
var All = []string{Role, User, Project, ProjectRelation}

var ddl = map[string]string{
	Role: `CREATE TABLE IF NOT EXISTS "role" (
	slug VARCHAR(128) PRIMARY KEY NOT NULL,
	displayName TEXT,
	roleType TEXT,
	systemRole BOOLEAN NOT NULL DEFAULT FALSE
);
INSERT OR IGNORE INTO "role" (slug, displayName, roleType, systemRole) VALUES
	('global:owner', 'Owner', 'global', TRUE),
	('global:admin', 'Admin', 'global', TRUE),
	('global:member', 'Member', 'global', TRUE)`,

	User: `CREATE TABLE IF NOT EXISTS "user" (
	id VARCHAR PRIMARY KEY NOT NULL,
	email VARCHAR(255) UNIQUE,
	"firstName" VARCHAR(32),
	"lastName" VARCHAR(32),
	password VARCHAR,
	"personalizationAnswers" TEXT,
	settings TEXT,
	disabled BOOLEAN NOT NULL DEFAULT FALSE,
	"mfaEnabled" BOOLEAN NOT NULL DEFAULT FALSE,
	"roleSlug" VARCHAR(128) REFERENCES "role" (slug),
	"createdAt" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	"updatedAt" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,

	Project: `CREATE TABLE IF NOT EXISTS "project" (
	id VARCHAR(36) PRIMARY KEY NOT NULL,
	name VARCHAR(255) NOT NULL,
	type VARCHAR(36) NOT NULL,
	"creatorId" VARCHAR REFERENCES "user" (id) ON DELETE SET NULL,
	"createdAt" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	"updatedAt" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,

	ProjectRelation: `CREATE TABLE IF NOT EXISTS "project_relation" (
	"projectId" VARCHAR(36) NOT NULL REFERENCES "project" (id) ON DELETE CASCADE,
	"userId" VARCHAR NOT NULL REFERENCES "user" (id) ON DELETE CASCADE,
	role VARCHAR NOT NULL,
	"createdAt" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	"updatedAt" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY ("projectId", "userId")
)`,
}

// Open creates an empty SQLite database in a test temp dir.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "database.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection keeps every statement on the same file handle.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Apply creates the named tables, or all of them when none are named.
func Apply(ctx context.Context, db *sql.DB, tables ...string) error {
	if len(tables) == 0 {
		tables = All
	}
	for _, name := range tables {
		stmt, ok := ddl[name]
		if !ok {
			return fmt.Errorf("n8nschema: unknown table %q", name)
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("n8nschema: create %q: %w", name, err)
		}
	}
	return nil
}

// MustApply is Apply for tests.
func MustApply(t testing.TB, db *sql.DB, tables ...string) {
	t.Helper()
	if err := Apply(context.Background(), db, tables...); err != nil {
		t.Fatal(err)
	}
}

// Count returns the number of rows in table matching where (may be empty).
func Count(t testing.TB, db *sql.DB, table, where string, args ...any) int {
	t.Helper()
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %q`, table)
	if where != "" {
		q += " WHERE " + where
	}
	var n int
	if err := db.QueryRow(q, args...).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
