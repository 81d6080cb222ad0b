package services

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/quill/internal/auth"
	"github.com/BradenHooton/quill/internal/models"
	"github.com/BradenHooton/quill/internal/repositories"
	pkgauth "github.com/BradenHooton/quill/pkg/auth"
	pkglogger "github.com/BradenHooton/quill/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock is a settable time source shared by the service and session manager
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ============================================================================
// Function-field mocks
// ============================================================================

// MockUserRepository implements UserRepository and UserStore for testing
type MockUserRepository struct {
	GetByIDFunc                   func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc                func(ctx context.Context, email string) (*models.User, error)
	GetByIdentifierFunc           func(ctx context.Context, identifier string) (*models.User, error)
	ListFunc                      func(ctx context.Context, limit, offset int) ([]*models.User, error)
	ExistsByEmailOrUsernameFunc   func(ctx context.Context, email, username string) (bool, bool, error)
	CreateFunc                    func(ctx context.Context, user *models.User) (*models.User, error)
	RecordLoginFailureFunc        func(ctx context.Context, id string, now time.Time, threshold int, lockUntil time.Time) (*repositories.LockoutState, error)
	RecordLoginSuccessFunc        func(ctx context.Context, id string, now time.Time) error
	SetPasswordResetTokenFunc     func(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	ConsumePasswordResetTokenFunc func(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error)
	SetActiveFunc                 func(ctx context.Context, id string, active bool) error
	UpdateProfileFunc             func(ctx context.Context, id, firstName, lastName string) (*models.User, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	if m.GetByIdentifierFunc != nil {
		return m.GetByIdentifierFunc(ctx, identifier)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, bool, error) {
	if m.ExistsByEmailOrUsernameFunc != nil {
		return m.ExistsByEmailOrUsernameFunc(ctx, email, username)
	}
	return false, false, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) RecordLoginFailure(ctx context.Context, id string, now time.Time, threshold int, lockUntil time.Time) (*repositories.LockoutState, error) {
	if m.RecordLoginFailureFunc != nil {
		return m.RecordLoginFailureFunc(ctx, id, now, threshold, lockUntil)
	}
	return &repositories.LockoutState{FailedLoginCount: 1}, nil
}

func (m *MockUserRepository) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	if m.RecordLoginSuccessFunc != nil {
		return m.RecordLoginSuccessFunc(ctx, id, now)
	}
	return nil
}

func (m *MockUserRepository) SetPasswordResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	if m.SetPasswordResetTokenFunc != nil {
		return m.SetPasswordResetTokenFunc(ctx, id, tokenHash, expiresAt)
	}
	return nil
}

func (m *MockUserRepository) ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	if m.ConsumePasswordResetTokenFunc != nil {
		return m.ConsumePasswordResetTokenFunc(ctx, tokenHash, passwordHash, now)
	}
	return "", models.ErrNotFound
}

func (m *MockUserRepository) SetActive(ctx context.Context, id string, active bool) error {
	if m.SetActiveFunc != nil {
		return m.SetActiveFunc(ctx, id, active)
	}
	return nil
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, id, firstName, lastName string) (*models.User, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, id, firstName, lastName)
	}
	return nil, models.ErrNotFound
}

// MockRoleRepository implements RoleRepository for testing
type MockRoleRepository struct {
	GetByNameFunc    func(ctx context.Context, name string) (*models.Role, error)
	AssignToUserFunc func(ctx context.Context, userID string, roleID int) error
}

func (m *MockRoleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	if m.GetByNameFunc != nil {
		return m.GetByNameFunc(ctx, name)
	}
	return nil, models.ErrNotFound
}

func (m *MockRoleRepository) AssignToUser(ctx context.Context, userID string, roleID int) error {
	if m.AssignToUserFunc != nil {
		return m.AssignToUserFunc(ctx, userID, roleID)
	}
	return nil
}

// MockLoginAttemptRepository records attempts in memory
type MockLoginAttemptRepository struct {
	mu       sync.Mutex
	Attempts []*models.LoginAttempt
	Err      error
}

func (m *MockLoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempts = append(m.Attempts, attempt)
	return m.Err
}

func (m *MockLoginAttemptRepository) Last() *models.LoginAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Attempts) == 0 {
		return nil
	}
	return m.Attempts[len(m.Attempts)-1]
}

// MockAuditLogRepository records audit entries in memory
type MockAuditLogRepository struct {
	mu      sync.Mutex
	Entries []*models.AuditLog
	Err     error
}

func (m *MockAuditLogRepository) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.Entries = append(m.Entries, log)
	return log, nil
}

func (m *MockAuditLogRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AuditLog
	for _, e := range m.Entries {
		if (e.ActorID != nil && *e.ActorID == userID) || (e.TargetID != nil && *e.TargetID == userID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockAuditLogRepository) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, e.EventType)
	}
	return out
}

// MockTransactor runs fn directly and calls Rollback when fn fails
type MockTransactor struct {
	Calls    int
	Rollback func()
}

func (m *MockTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.Calls++
	if err := fn(ctx); err != nil {
		if m.Rollback != nil {
			m.Rollback()
		}
		return err
	}
	return nil
}

// MockNotifier captures delivered reset tokens
type MockNotifier struct {
	mu     sync.Mutex
	Tokens map[string]string
	Err    error
}

func (m *MockNotifier) SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Tokens == nil {
		m.Tokens = make(map[string]string)
	}
	m.Tokens[email] = token
	return m.Err
}

// ============================================================================
// In-memory stores
// ============================================================================

// memUsers is a stateful user store with the same lockout and reset
// semantics as the SQL repository.
type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*models.User)}
}

func (s *memUsers) put(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

func (s *memUsers) get(id string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (s *memUsers) find(match func(u *models.User) bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memUsers) mock() *MockUserRepository {
	return &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			if u := s.get(id); u != nil {
				return u, nil
			}
			return nil, models.ErrNotFound
		},
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return s.find(func(u *models.User) bool { return u.Email == email })
		},
		GetByIdentifierFunc: func(ctx context.Context, identifier string) (*models.User, error) {
			return s.find(func(u *models.User) bool {
				return u.Username == identifier || u.Email == strings.ToLower(identifier)
			})
		},
		ExistsByEmailOrUsernameFunc: func(ctx context.Context, email, username string) (bool, bool, error) {
			_, emailErr := s.find(func(u *models.User) bool { return u.Email == email })
			_, nameErr := s.find(func(u *models.User) bool { return u.Username == username })
			return emailErr == nil, nameErr == nil, nil
		},
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			created := *user
			created.ID = uuid.NewString()
			created.Roles = models.NewRoleSet()
			created.CreatedAt = time.Now()
			created.UpdatedAt = created.CreatedAt
			s.put(&created)
			return &created, nil
		},
		RecordLoginFailureFunc: func(ctx context.Context, id string, now time.Time, threshold int, lockUntil time.Time) (*repositories.LockoutState, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			u, ok := s.users[id]
			if !ok {
				return nil, models.ErrNotFound
			}
			if u.LockedUntil != nil && !u.LockedUntil.After(now) {
				u.FailedLoginCount = 0
				u.LockedUntil = nil
			}
			u.FailedLoginCount++
			if u.FailedLoginCount >= threshold {
				lock := lockUntil
				u.LockedUntil = &lock
			}
			return &repositories.LockoutState{FailedLoginCount: u.FailedLoginCount, LockedUntil: u.LockedUntil}, nil
		},
		RecordLoginSuccessFunc: func(ctx context.Context, id string, now time.Time) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			u, ok := s.users[id]
			if !ok {
				return models.ErrNotFound
			}
			u.FailedLoginCount = 0
			u.LockedUntil = nil
			last := now
			u.LastLogin = &last
			return nil
		},
		SetPasswordResetTokenFunc: func(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			u, ok := s.users[id]
			if !ok {
				return models.ErrNotFound
			}
			h := tokenHash
			exp := expiresAt
			u.PasswordResetToken = &h
			u.PasswordResetExpires = &exp
			return nil
		},
		ConsumePasswordResetTokenFunc: func(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, u := range s.users {
				if u.PasswordResetToken != nil && *u.PasswordResetToken == tokenHash &&
					u.PasswordResetExpires != nil && u.PasswordResetExpires.After(now) {
					u.PasswordHash = passwordHash
					u.PasswordResetToken = nil
					u.PasswordResetExpires = nil
					return u.ID, nil
				}
			}
			return "", models.ErrNotFound
		},
		SetActiveFunc: func(ctx context.Context, id string, active bool) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			u, ok := s.users[id]
			if !ok {
				return models.ErrNotFound
			}
			u.IsActive = active
			return nil
		},
		UpdateProfileFunc: func(ctx context.Context, id, firstName, lastName string) (*models.User, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			u, ok := s.users[id]
			if !ok {
				return nil, models.ErrNotFound
			}
			u.FirstName = firstName
			u.LastName = lastName
			cp := *u
			return &cp, nil
		},
	}
}

// memSessionStore implements auth.SessionStore and auth.Blacklist
type memSessionStore struct {
	mu        sync.Mutex
	sessions  map[string]models.Session
	blacklist map[string]models.BlacklistedToken
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{
		sessions:  make(map[string]models.Session),
		blacklist: make(map[string]models.BlacklistedToken),
	}
}

func (m *memSessionStore) Create(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	m.sessions[session.TokenHash] = *session
	return nil
}

func (m *memSessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenHash]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &s, nil
}

func (m *memSessionStore) Deactivate(ctx context.Context, tokenHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenHash]
	if !ok || !s.Active {
		return false, nil
	}
	s.Active = false
	m.sessions[tokenHash] = s
	return true, nil
}

func (m *memSessionStore) DeactivateAllForUser(ctx context.Context, userID string) ([]*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Session
	for hash, s := range m.sessions {
		if s.UserID == userID && s.Active {
			s.Active = false
			m.sessions[hash] = s
			cp := s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (m *memSessionStore) activeCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID && s.Active {
			n++
		}
	}
	return n
}

// memBlacklist adapts memSessionStore to auth.Blacklist
type memBlacklist struct{ *memSessionStore }

func (b memBlacklist) Add(ctx context.Context, entry *models.BlacklistedToken) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.blacklist[entry.TokenHash]; !ok {
		b.blacklist[entry.TokenHash] = *entry
	}
	return nil
}

func (b memBlacklist) IsBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blacklist[tokenHash]
	return ok, nil
}

func (b memBlacklist) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// ============================================================================
// Fixture
// ============================================================================

const testPassword = "P@ssw0rd1"

var testRoles = map[string]*models.Role{
	models.RoleAdmin:  {ID: 1, Name: models.RoleAdmin},
	models.RoleEditor: {ID: 2, Name: models.RoleEditor},
	models.RoleReader: {ID: 3, Name: models.RoleReader},
}

// authFixture wires an AuthService to in-memory stores and a real
// SessionManager
type authFixture struct {
	clock     *testClock
	users     *memUsers
	userRepo  *MockUserRepository
	roleRepo  *MockRoleRepository
	assigned  map[string][]int
	attempts  *MockLoginAttemptRepository
	auditRepo *MockAuditLogRepository
	store     *memSessionStore
	sessions  *auth.SessionManager
	tx        *MockTransactor
	notifier  *MockNotifier
	hasher    *pkgauth.PasswordHasher
	service   *AuthService
}

func newAuthFixture() *authFixture {
	f := &authFixture{
		clock:     newTestClock(),
		users:     newMemUsers(),
		assigned:  make(map[string][]int),
		attempts:  &MockLoginAttemptRepository{},
		auditRepo: &MockAuditLogRepository{},
		store:     newMemSessionStore(),
		tx:        &MockTransactor{},
		notifier:  &MockNotifier{},
	}
	f.userRepo = f.users.mock()
	f.roleRepo = &MockRoleRepository{
		GetByNameFunc: func(ctx context.Context, name string) (*models.Role, error) {
			if r, ok := testRoles[name]; ok {
				return r, nil
			}
			return nil, models.ErrNotFound
		},
		AssignToUserFunc: func(ctx context.Context, userID string, roleID int) error {
			f.assigned[userID] = append(f.assigned[userID], roleID)
			return nil
		},
	}

	logger := discardLogger()
	hasher, err := pkgauth.NewPasswordHasher(bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	f.hasher = hasher

	f.sessions = auth.NewSessionManager(f.store, memBlacklist{f.store},
		auth.SessionConfig{TTL: 24 * time.Hour, StoreTimeout: time.Second},
		logger, auth.WithClock(f.clock.Now))

	audit := NewAuditService(f.auditRepo, pkglogger.NewAuditLogger(logger), logger)

	f.service = NewAuthService(AuthServiceDeps{
		Users:    f.userRepo,
		Roles:    f.roleRepo,
		Attempts: f.attempts,
		Sessions: f.sessions,
		Tx:       f.tx,
		Hasher:   hasher,
		Notifier: f.notifier,
		Audit:    audit,
	}, AuthConfig{
		SessionTTL:       24 * time.Hour,
		PasswordResetTTL: 24 * time.Hour,
		LockoutThreshold: 5,
		LockoutDuration:  30 * time.Minute,
	}, logger, WithAuthClock(f.clock.Now))

	return f
}

// seedUser stores an active user with testPassword and the reader role
func (f *authFixture) seedUser(username, email string) *models.User {
	hash, err := f.hasher.Hash(testPassword)
	if err != nil {
		panic(err)
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		Roles:        models.NewRoleSet(models.RoleReader),
		CreatedAt:    f.clock.Now(),
	}
	f.users.put(u)
	return u
}
