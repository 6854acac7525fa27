package bootstrap

import "time"

// Tables the schema phase waits for.
const (
	TableUser      = "user"
	TableRole      = "role"
	TableWorkspace = "project"
)

// RequiredTables lists the tables that must exist before any write.
var RequiredTables = []string{TableUser, TableRole, TableWorkspace}

const (
	RoleOwner             = "global:owner"
	WorkspaceKindPersonal = "personal"
	MembershipRoleOwner   = "project:personalOwner"

	DefaultInterval       = 2 * time.Second
	DefaultSchemaAttempts = 60
	DefaultProgressEvery  = 5

	MinPasswordLength = 6

	workspaceIDLength = 16
)

// Entity names a provisioned row kind in reports and metrics.
type Entity string

const (
	EntityUser       Entity = "user"
	EntityWorkspace  Entity = "workspace"
	EntityMembership Entity = "membership"
)

type NewUser struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	RoleSlug     string
}

// Workspace is a project row. An empty CreatorID means NULL.
type Workspace struct {
	ID        string
	Name      string
	Type      string
	CreatorID string
}

type Membership struct {
	WorkspaceID string
	UserID      string
	Role        string
}
