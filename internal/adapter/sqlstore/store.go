// Package sqlstore implements bootstrap.Store on database/sql for the two
// databases n8n runs on: Postgres (through pgx) and SQLite (through the
// pure-Go modernc driver).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"n8nstack/internal/bootstrap"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var _ bootstrap.Store = (*Store)(nil)

type Store struct {
	db      *sql.DB
	dialect Dialect
	prefix  string
}

type Option func(*Store)

// WithTablePrefix matches n8n's DB_TABLE_PREFIX.
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// Open prepares a connection pool. It does not dial; the first query (or the
// liveness probe) does.
func Open(dialect Dialect, dsn string, opts ...Option) (*Store, error) {
	if dialect == SQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	return New(db, dialect, opts...), nil
}

// sqliteDSN adds a busy timeout to every connection the pool opens, so
// writes wait out n8n's own lock instead of failing with SQLITE_BUSY.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)"
}

// New wraps an existing pool.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: dialect}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) table(name string) string {
	return quoteIdent(s.prefix + name)
}

func (s *Store) query(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(q), args...)
}

func (s *Store) exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(q), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	var ok bool
	if err := s.query(ctx, s.dialect.tableExistsQuery(), s.prefix+table).Scan(&ok); err != nil {
		return false, fmt.Errorf("query table %q: %w", s.prefix+table, err)
	}
	return ok, nil
}

func (s *Store) UserIDByEmail(ctx context.Context, email string) (string, bool, error) {
	q := fmt.Sprintf(`SELECT id FROM %s WHERE email = $1 LIMIT 1`, s.table(bootstrap.TableUser))
	var id string
	if err := s.query(ctx, q, email).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("query user by email: %w", err)
	}
	return id, true, nil
}

func (s *Store) RoleExists(ctx context.Context, slug string) (bool, error) {
	q := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE slug = $1)`, s.table(bootstrap.TableRole))
	var ok bool
	if err := s.query(ctx, q, slug).Scan(&ok); err != nil {
		return false, fmt.Errorf("query role %q: %w", slug, err)
	}
	return ok, nil
}

func (s *Store) InsertUser(ctx context.Context, u bootstrap.NewUser) (bool, error) {
	q := fmt.Sprintf(`INSERT INTO %s
	(id, email, "firstName", "lastName", password, "roleSlug", disabled, "mfaEnabled", "createdAt", "updatedAt")
VALUES ($1, $2, $3, $4, $5, $6, FALSE, FALSE, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
ON CONFLICT (email) DO NOTHING`, s.table(bootstrap.TableUser))
	n, err := s.exec(ctx, q, u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.RoleSlug)
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	return n == 1, nil
}

func (s *Store) WriteUserSettings(ctx context.Context, userID string, settings []byte) error {
	q := fmt.Sprintf(`UPDATE %s SET settings = $1, "updatedAt" = CURRENT_TIMESTAMP WHERE id = $2`, s.table(bootstrap.TableUser))
	n, err := s.exec(ctx, q, string(settings), userID)
	if err != nil {
		return fmt.Errorf("update user settings: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update user settings: user %q not found", userID)
	}
	return nil
}

func (s *Store) PersonalWorkspace(ctx context.Context) (bootstrap.Workspace, bool, error) {
	q := fmt.Sprintf(`SELECT id, name, type, "creatorId" FROM %s WHERE type = $1 ORDER BY "createdAt", id LIMIT 1`,
		s.table(bootstrap.TableWorkspace))
	var (
		w       bootstrap.Workspace
		creator sql.NullString
	)
	if err := s.query(ctx, q, bootstrap.WorkspaceKindPersonal).Scan(&w.ID, &w.Name, &w.Type, &creator); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return bootstrap.Workspace{}, false, nil
		}
		return bootstrap.Workspace{}, false, fmt.Errorf("query personal project: %w", err)
	}
	w.CreatorID = creator.String
	return w, true, nil
}

func (s *Store) InsertWorkspace(ctx context.Context, w bootstrap.Workspace) (bool, error) {
	q := fmt.Sprintf(`INSERT INTO %s (id, name, type, "creatorId", "createdAt", "updatedAt")
VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
ON CONFLICT (id) DO NOTHING`, s.table(bootstrap.TableWorkspace))
	creator := sql.NullString{String: w.CreatorID, Valid: w.CreatorID != ""}
	n, err := s.exec(ctx, q, w.ID, w.Name, w.Type, creator)
	if err != nil {
		return false, fmt.Errorf("insert project: %w", err)
	}
	return n == 1, nil
}

func (s *Store) SetWorkspaceCreator(ctx context.Context, workspaceID, userID string) error {
	q := fmt.Sprintf(`UPDATE %s SET "creatorId" = $1, "updatedAt" = CURRENT_TIMESTAMP WHERE id = $2`, s.table(bootstrap.TableWorkspace))
	n, err := s.exec(ctx, q, userID, workspaceID)
	if err != nil {
		return fmt.Errorf("update project creator: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update project creator: project %q not found", workspaceID)
	}
	return nil
}

func (s *Store) MembershipExists(ctx context.Context, workspaceID, userID string) (bool, error) {
	q := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE "projectId" = $1 AND "userId" = $2)`, s.table(TableMembership))
	var ok bool
	if err := s.query(ctx, q, workspaceID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("query project relation: %w", err)
	}
	return ok, nil
}

func (s *Store) InsertMembership(ctx context.Context, m bootstrap.Membership) (bool, error) {
	q := fmt.Sprintf(`INSERT INTO %s ("projectId", "userId", role, "createdAt", "updatedAt")
VALUES ($1, $2, $3, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
ON CONFLICT ("projectId", "userId") DO NOTHING`, s.table(TableMembership))
	n, err := s.exec(ctx, q, m.WorkspaceID, m.UserID, m.Role)
	if err != nil {
		return false, fmt.Errorf("insert project relation: %w", err)
	}
	return n == 1, nil
}

// TableMembership is not part of the schema wait: n8n creates it in the same
// migration as project.
const TableMembership = "project_relation"
