package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"n8nstack/internal/bootstrap"
)

var _ bootstrap.Store = (*Store)(nil)

const (
	FaultStoreTableExists      = "store.table_exists"
	FaultStoreUserIDByEmail    = "store.user_id_by_email"
	FaultStoreInsertUser       = "store.insert_user"
	FaultStoreInsertWorkspace  = "store.insert_workspace"
	FaultStoreInsertMembership = "store.insert_membership"
	FaultStoreWriteSettings    = "store.write_settings"
)

// Store is an in-memory bootstrap.Store with the same conflict semantics as
// the SQL store: inserts that hit an existing key report false.
type Store struct {
	CallRecorder
	Faults

	mu          sync.Mutex
	tables      map[string]bool
	roles       map[string]bool
	users       map[string]StoredUser // by email
	workspaces  map[string]bootstrap.Workspace
	memberships map[[2]string]string

	// HideUsers makes UserIDByEmail report nothing, as if the row were
	// invisible to this connection.
	HideUsers bool
	// SwallowInserts makes inserts report a conflict without writing.
	SwallowInserts bool
}

type StoredUser struct {
	bootstrap.NewUser
	Settings []byte
}

// NewStore returns a store whose schema is fully migrated and whose role
// table holds the owner role.
func NewStore() *Store {
	s := &Store{
		tables:      make(map[string]bool),
		roles:       map[string]bool{bootstrap.RoleOwner: true},
		users:       make(map[string]StoredUser),
		workspaces:  make(map[string]bootstrap.Workspace),
		memberships: make(map[[2]string]string),
	}
	for _, t := range bootstrap.RequiredTables {
		s.tables[t] = true
	}
	return s
}

func (s *Store) SetTable(name string, exists bool) {
	s.mu.Lock()
	s.tables[name] = exists
	s.mu.Unlock()
}

func (s *Store) SetRole(slug string, exists bool) {
	s.mu.Lock()
	s.roles[slug] = exists
	s.mu.Unlock()
}

// PutWorkspace stores w as if another process had created it.
func (s *Store) PutWorkspace(w bootstrap.Workspace) {
	s.mu.Lock()
	s.workspaces[w.ID] = w
	s.mu.Unlock()
}

func (s *Store) Users() []StoredUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StoredUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (s *Store) Workspaces() []bootstrap.Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bootstrap.Workspace, 0, len(s.workspaces))
	for _, w := range s.workspaces {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Memberships() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.memberships)
}

func (s *Store) TableExists(_ context.Context, table string) (bool, error) {
	s.record("TableExists", table)
	if err := s.evalFault(FaultStoreTableExists, table); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[table], nil
}

func (s *Store) UserIDByEmail(_ context.Context, email string) (string, bool, error) {
	s.record("UserIDByEmail", email)
	if err := s.evalFault(FaultStoreUserIDByEmail, email); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.HideUsers {
		return "", false, nil
	}
	u, ok := s.users[email]
	return u.ID, ok, nil
}

func (s *Store) RoleExists(_ context.Context, slug string) (bool, error) {
	s.record("RoleExists", slug)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles[slug], nil
}

func (s *Store) InsertUser(_ context.Context, u bootstrap.NewUser) (bool, error) {
	s.record("InsertUser", u)
	if err := s.evalFault(FaultStoreInsertUser, u); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Email]; ok || s.SwallowInserts {
		return false, nil
	}
	s.users[u.Email] = StoredUser{NewUser: u}
	return true, nil
}

func (s *Store) WriteUserSettings(_ context.Context, userID string, settings []byte) error {
	s.record("WriteUserSettings", userID, settings)
	if err := s.evalFault(FaultStoreWriteSettings, userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, u := range s.users {
		if u.ID == userID {
			u.Settings = append([]byte(nil), settings...)
			s.users[email] = u
			return nil
		}
	}
	return fmt.Errorf("user %q not found", userID)
}

func (s *Store) PersonalWorkspace(_ context.Context) (bootstrap.Workspace, bool, error) {
	s.record("PersonalWorkspace")
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.workspaces))
	for id, w := range s.workspaces {
		if w.Type == bootstrap.WorkspaceKindPersonal {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return bootstrap.Workspace{}, false, nil
	}
	sort.Strings(ids)
	return s.workspaces[ids[0]], true, nil
}

func (s *Store) InsertWorkspace(_ context.Context, w bootstrap.Workspace) (bool, error) {
	s.record("InsertWorkspace", w)
	if err := s.evalFault(FaultStoreInsertWorkspace, w); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[w.ID]; ok || s.SwallowInserts {
		return false, nil
	}
	s.workspaces[w.ID] = w
	return true, nil
}

func (s *Store) SetWorkspaceCreator(_ context.Context, workspaceID, userID string) error {
	s.record("SetWorkspaceCreator", workspaceID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workspaces[workspaceID]
	if !ok {
		return fmt.Errorf("project %q not found", workspaceID)
	}
	w.CreatorID = userID
	s.workspaces[workspaceID] = w
	return nil
}

func (s *Store) MembershipExists(_ context.Context, workspaceID, userID string) (bool, error) {
	s.record("MembershipExists", workspaceID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.memberships[[2]string{workspaceID, userID}]
	return ok, nil
}

func (s *Store) InsertMembership(_ context.Context, m bootstrap.Membership) (bool, error) {
	s.record("InsertMembership", m)
	if err := s.evalFault(FaultStoreInsertMembership, m); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{m.WorkspaceID, m.UserID}
	if _, ok := s.memberships[key]; ok || s.SwallowInserts {
		return false, nil
	}
	s.memberships[key] = m.Role
	return true, nil
}
