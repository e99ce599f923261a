package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/collabspace/collab-api/internal/db/models"
	"github.com/collabspace/collab-api/internal/mail"
)

// memDB is an in-memory implementation of every store interface. WithTx serializes
// transactions and rolls the maps back when fn fails, which stands in for row locks.
type memDB struct {
	mu   sync.Mutex
	txMu sync.Mutex
	seq  int

	users       map[string]models.User
	orgs        map[string]models.Organization
	members     map[memberKey]models.OrganizationMember
	invitations map[string]models.Invitation
	audit       []models.AuditLog

	// failNext makes the named method return the error once
	failNext map[string]error
}

type memberKey struct{ org, user string }

func newMemDB() *memDB {
	return &memDB{
		users:       map[string]models.User{},
		orgs:        map[string]models.Organization{},
		members:     map[memberKey]models.OrganizationMember{},
		invitations: map[string]models.Invitation{},
		failNext:    map[string]error{},
	}
}

func (m *memDB) Users() UserStore                 { return m }
func (m *memDB) Organizations() OrganizationStore { return m }
func (m *memDB) Members() MemberStore             { return m }
func (m *memDB) Invitations() InvitationStore     { return m }
func (m *memDB) AuditLogs() AuditStore            { return m }

func (m *memDB) WithTx(ctx context.Context, fn func(StoreProvider) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snap := m.snapshot()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

type memSnapshot struct {
	users       map[string]models.User
	orgs        map[string]models.Organization
	members     map[memberKey]models.OrganizationMember
	invitations map[string]models.Invitation
	audit       []models.AuditLog
}

func (m *memDB) snapshot() memSnapshot {
	s := memSnapshot{
		users:       make(map[string]models.User, len(m.users)),
		orgs:        make(map[string]models.Organization, len(m.orgs)),
		members:     make(map[memberKey]models.OrganizationMember, len(m.members)),
		invitations: make(map[string]models.Invitation, len(m.invitations)),
		audit:       append([]models.AuditLog(nil), m.audit...),
	}
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.orgs {
		s.orgs[k] = v
	}
	for k, v := range m.members {
		s.members[k] = v
	}
	for k, v := range m.invitations {
		s.invitations[k] = v
	}
	return s
}

func (m *memDB) restore(s memSnapshot) {
	m.users, m.orgs, m.members, m.invitations, m.audit = s.users, s.orgs, s.members, s.invitations, s.audit
}

func (m *memDB) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memDB) fail(method string) error {
	if err, ok := m.failNext[method]; ok {
		delete(m.failNext, method)
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// UserStore
// ---------------------------------------------------------------------------

func (m *memDB) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateUser"); err != nil {
		return err
	}
	for _, existing := range m.users {
		if existing.Email == u.Email && existing.DeletedAt == nil {
			return fmt.Errorf("insert user: %w", ErrDuplicateKey)
		}
	}
	if u.ID == "" {
		u.ID = m.nextID("user")
	}
	m.users[u.ID] = *u
	return nil
}

func (m *memDB) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetUserByID"); err != nil {
		return nil, err
	}
	u, ok := m.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, nil
	}
	return &u, nil
}

func (m *memDB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email && u.DeletedAt == nil {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (m *memDB) SoftDeleteUser(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.DeletedAt = &at
	u.IsActive = false
	m.users[id] = u
	return nil
}

// ---------------------------------------------------------------------------
// OrganizationStore
// ---------------------------------------------------------------------------

func (m *memDB) CreateOrganization(_ context.Context, org *models.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if o.Slug == org.Slug && o.DeletedAt == nil {
			return fmt.Errorf("insert organization: %w", ErrDuplicateKey)
		}
	}
	if org.ID == "" {
		org.ID = m.nextID("org")
	}
	m.orgs[org.ID] = *org
	return nil
}

func (m *memDB) GetOrganizationByID(_ context.Context, id string) (*models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetOrganizationByID"); err != nil {
		return nil, err
	}
	o, ok := m.orgs[id]
	if !ok || o.DeletedAt != nil {
		return nil, nil
	}
	return &o, nil
}

func (m *memDB) GetOrganizationByIDIncludingDeleted(_ context.Context, id string) (*models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *memDB) LockOrganization(ctx context.Context, id string) (*models.Organization, error) {
	return m.GetOrganizationByID(ctx, id)
}

func (m *memDB) SlugTaken(_ context.Context, slug, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, o := range m.orgs {
		if o.Slug == slug && o.DeletedAt == nil && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memDB) UpdateOrganization(_ context.Context, org *models.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orgs[org.ID] = *org
	return nil
}

func (m *memDB) SoftDeleteOrganization(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orgs[id]
	o.DeletedAt = &at
	m.orgs[id] = o
	return nil
}

func (m *memDB) RestoreOrganization(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orgs[id]
	o.DeletedAt = nil
	m.orgs[id] = o
	return nil
}

func (m *memDB) ListOrganizationsForUser(_ context.Context, userID string) ([]*models.OrganizationWithRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.OrganizationWithRole
	for k, mem := range m.members {
		if k.user != userID {
			continue
		}
		o, ok := m.orgs[k.org]
		if !ok || o.DeletedAt != nil {
			continue
		}
		out = append(out, &models.OrganizationWithRole{Organization: o, Role: mem.Role, JoinedAt: mem.JoinedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ---------------------------------------------------------------------------
// MemberStore
// ---------------------------------------------------------------------------

func (m *memDB) GetMember(_ context.Context, orgID, userID string) (*models.OrganizationMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetMember"); err != nil {
		return nil, err
	}
	mem, ok := m.members[memberKey{orgID, userID}]
	if !ok {
		return nil, nil
	}
	return &mem, nil
}

func (m *memDB) GetMemberWithUser(_ context.Context, orgID, userID string) (*models.OrganizationMemberWithUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[memberKey{orgID, userID}]
	if !ok {
		return nil, nil
	}
	return m.enrich(mem), nil
}

func (m *memDB) enrich(mem models.OrganizationMember) *models.OrganizationMemberWithUser {
	u := m.users[mem.UserID]
	return &models.OrganizationMemberWithUser{
		OrganizationID: mem.OrganizationID,
		UserID:         mem.UserID,
		Role:           mem.Role,
		JoinedAt:       mem.JoinedAt,
		UserName:       u.Name,
		UserEmail:      u.Email,
		UserAvatarURL:  u.AvatarURL,
	}
}

func (m *memDB) ListMembersWithUsers(_ context.Context, orgID string) ([]*models.OrganizationMemberWithUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.OrganizationMemberWithUser
	for k, mem := range m.members {
		if k.org == orgID && m.users[k.user].DeletedAt == nil {
			out = append(out, m.enrich(mem))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memDB) LockOtherAdmins(_ context.Context, orgID, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, mem := range m.members {
		if k.org == orgID && k.user != userID && mem.Role == models.RoleAdmin && m.users[k.user].DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

func (m *memDB) AddMember(_ context.Context, mem *models.OrganizationMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memberKey{mem.OrganizationID, mem.UserID}
	if _, ok := m.members[k]; ok {
		return fmt.Errorf("insert member: %w", ErrDuplicateKey)
	}
	m.members[k] = *mem
	return nil
}

func (m *memDB) UpdateMemberRole(_ context.Context, orgID, userID string, role models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memberKey{orgID, userID}
	mem := m.members[k]
	mem.Role = role
	m.members[k] = mem
	return nil
}

func (m *memDB) RemoveMember(_ context.Context, orgID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, memberKey{orgID, userID})
	return nil
}

// ---------------------------------------------------------------------------
// InvitationStore
// ---------------------------------------------------------------------------

func (m *memDB) CreateInvitation(_ context.Context, inv *models.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateInvitation"); err != nil {
		return err
	}
	if inv.ID == "" {
		inv.ID = m.nextID("inv")
	}
	m.invitations[inv.ID] = *inv
	return nil
}

func (m *memDB) GetInvitationByID(_ context.Context, id string) (*models.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (m *memDB) LockInvitationByToken(_ context.Context, token string) (*models.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.Token == token {
			inv := inv
			return &inv, nil
		}
	}
	return nil, nil
}

func (m *memDB) FindPendingInvitation(_ context.Context, orgID, email string, now time.Time) (*models.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.OrganizationID == orgID && inv.Email == email && inv.Status(now) == models.InvitationStatusPending {
			inv := inv
			return &inv, nil
		}
	}
	return nil, nil
}

func (m *memDB) filterInvitations(f models.InvitationFilter) []models.Invitation {
	var out []models.Invitation
	for _, inv := range m.invitations {
		if inv.OrganizationID != f.OrganizationID {
			continue
		}
		if f.PendingOnly && inv.Status(f.Now) != models.InvitationStatusPending {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memDB) ListInvitations(_ context.Context, f models.InvitationFilter) ([]*models.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.filterInvitations(f)
	var out []*models.Invitation
	for i := f.Offset; i < len(all) && i < f.Offset+f.Limit; i++ {
		inv := all[i]
		out = append(out, &inv)
	}
	return out, nil
}

func (m *memDB) CountInvitations(_ context.Context, f models.InvitationFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filterInvitations(f)), nil
}

func (m *memDB) MarkInvitationAccepted(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("MarkInvitationAccepted"); err != nil {
		return err
	}
	inv := m.invitations[id]
	inv.AcceptedAt = &at
	m.invitations[id] = inv
	return nil
}

func (m *memDB) DeleteInvitation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.invitations, id)
	return nil
}

func (m *memDB) DeleteExpiredInvitations(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, inv := range m.invitations {
		if inv.AcceptedAt == nil && inv.ExpiresAt.Before(before) {
			delete(m.invitations, id)
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// AuditStore
// ---------------------------------------------------------------------------

func (m *memDB) CreateAuditLog(_ context.Context, e *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateAuditLog"); err != nil {
		return err
	}
	e.ID = m.nextID("audit")
	m.audit = append(m.audit, *e)
	return nil
}

func (m *memDB) ListAuditLogs(_ context.Context, orgID string, limit, offset int) ([]*models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*models.AuditLog
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if e.OrganizationID != nil && *e.OrganizationID == orgID {
			matched = append(matched, &e)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (m *memDB) CountAuditLogs(_ context.Context, orgID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.audit {
		if e.OrganizationID != nil && *e.OrganizationID == orgID {
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

// fakeClock is a settable clock shared by the services under test
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingNotifier captures invitation emails
type recordingNotifier struct {
	mu   sync.Mutex
	sent []mail.Invitation
	err  error
}

func (r *recordingNotifier) SendInvitation(_ context.Context, inv mail.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, inv)
	return r.err
}

func (r *recordingNotifier) last() mail.Invitation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

func syncDispatch(_ string, fn func()) { fn() }

// fixture wires every service to one memDB and clock
type fixture struct {
	db       *memDB
	clock    *fakeClock
	notifier *recordingNotifier

	invitations   *InvitationService
	members       *MemberService
	organizations *OrganizationService
	users         *UserService
	authz         *Authorizer
}

func newFixture() *fixture {
	db := newMemDB()
	clock := newFakeClock()
	notifier := &recordingNotifier{}
	tokens := 0

	inv := NewInvitationService(db, db, notifier, 0).WithDispatcher(syncDispatch)
	inv.now = clock.Now
	inv.newToken = func() (string, error) {
		tokens++
		return fmt.Sprintf("token-%02d-abcdefghijklmnopqrstuvwxyz0123456", tokens), nil
	}

	members := NewMemberService(db, db)
	members.now = clock.Now
	orgs := NewOrganizationService(db, db)
	orgs.now = clock.Now
	users := NewUserService(db, db, 4)
	users.now = clock.Now

	return &fixture{
		db:            db,
		clock:         clock,
		notifier:      notifier,
		invitations:   inv,
		members:       members,
		organizations: orgs,
		users:         users,
		authz:         NewAuthorizer(db),
	}
}

// seedUser stores an active user directly
func (f *fixture) seedUser(id, email, name string) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	now := f.clock.Now()
	f.db.users[id] = models.User{ID: id, Email: email, Name: name, IsActive: true, CreatedAt: now, UpdatedAt: now}
}

// seedOrg stores an organization with the given members
func (f *fixture) seedOrg(id, slug string, members map[string]models.Role) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	now := f.clock.Now()
	f.db.orgs[id] = models.Organization{ID: id, Name: slug, Slug: slug, CreatedAt: now, UpdatedAt: now}
	for userID, role := range members {
		f.db.members[memberKey{id, userID}] = models.OrganizationMember{
			OrganizationID: id, UserID: userID, Role: role, JoinedAt: now,
		}
	}
}

func (f *fixture) roleOf(orgID, userID string) (models.Role, bool) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	m, ok := f.db.members[memberKey{orgID, userID}]
	return m.Role, ok
}
