package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/quill/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memSessions is an in-memory SessionStore.
type memSessions struct {
	mu   sync.Mutex
	rows map[string]models.Session
	err  error
	hook func(ctx context.Context) error
}

func newMemSessions() *memSessions {
	return &memSessions{rows: make(map[string]models.Session)}
}

func (m *memSessions) fail(ctx context.Context) error {
	if m.hook != nil {
		if err := m.hook(ctx); err != nil {
			return err
		}
	}
	return m.err
}

func (m *memSessions) Create(ctx context.Context, s *models.Session) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[s.TokenHash]; ok {
		return models.ErrConflict
	}
	m.rows[s.TokenHash] = *s
	return nil
}

func (m *memSessions) GetByTokenHash(ctx context.Context, hash string) (*models.Session, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[hash]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &s, nil
}

func (m *memSessions) Deactivate(ctx context.Context, hash string) (bool, error) {
	if err := m.fail(ctx); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[hash]
	if !ok || !s.Active {
		return false, nil
	}
	s.Active = false
	m.rows[hash] = s
	return true, nil
}

func (m *memSessions) DeactivateAllForUser(ctx context.Context, userID string) ([]*models.Session, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Session
	for hash, s := range m.rows {
		if s.UserID == userID && s.Active {
			copied := s
			out = append(out, &copied)
			s.Active = false
			m.rows[hash] = s
		}
	}
	return out, nil
}

func (m *memSessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := m.fail(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, s := range m.rows {
		if !now.Before(s.ExpiresAt) {
			delete(m.rows, hash)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) get(hash string) (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[hash]
	return s, ok
}

// memBlacklist is an in-memory Blacklist.
type memBlacklist struct {
	mu    sync.Mutex
	rows  map[string]models.BlacklistedToken
	err   error
	calls int
}

func newMemBlacklist() *memBlacklist {
	return &memBlacklist{rows: make(map[string]models.BlacklistedToken)}
}

func (b *memBlacklist) Add(_ context.Context, e *models.BlacklistedToken) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	if _, ok := b.rows[e.TokenHash]; !ok {
		b.rows[e.TokenHash] = *e
	}
	return nil
}

func (b *memBlacklist) IsBlacklisted(_ context.Context, hash string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return false, b.err
	}
	_, ok := b.rows[hash]
	return ok, nil
}

func (b *memBlacklist) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	var n int64
	for hash, e := range b.rows {
		if !now.Before(e.ExpiresAt) {
			delete(b.rows, hash)
			n++
		}
	}
	return n, nil
}

func (b *memBlacklist) get(hash string) (models.BlacklistedToken, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.rows[hash]
	return e, ok
}

func (b *memBlacklist) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}

// memUsers is an in-memory UserRepository.
type memUsers struct {
	users map[string]*models.User
	err   error
}

func (u *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	if u.err != nil {
		return nil, u.err
	}
	user, ok := u.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return user, nil
}

var errStoreDown = errors.New("connection refused")
