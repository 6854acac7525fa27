package bootstrap

import "context"

// LivenessProbe reports whether the database accepts connections. A nil
// error means ready.
type LivenessProbe interface {
	Alive(ctx context.Context) error
}

// Store is the query/execute surface the orchestrator needs. Inserts are
// conflict-safe: they report false instead of failing when the row already
// exists.
type Store interface {
	TableExists(ctx context.Context, table string) (bool, error)

	UserIDByEmail(ctx context.Context, email string) (string, bool, error)
	RoleExists(ctx context.Context, slug string) (bool, error)
	InsertUser(ctx context.Context, u NewUser) (bool, error)
	WriteUserSettings(ctx context.Context, userID string, settings []byte) error

	PersonalWorkspace(ctx context.Context) (Workspace, bool, error)
	InsertWorkspace(ctx context.Context, w Workspace) (bool, error)
	SetWorkspaceCreator(ctx context.Context, workspaceID, userID string) error

	MembershipExists(ctx context.Context, workspaceID, userID string) (bool, error)
	InsertMembership(ctx context.Context, m Membership) (bool, error)
}

// PasswordHasher turns a plaintext password into a stored credential hash.
type PasswordHasher interface {
	Hash(password string) (string, error)
}
