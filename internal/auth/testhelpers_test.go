package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/nomina/internal/rbac"
	"github.com/odyssey-erp/nomina/internal/shared"
)

const testSecret = "test-secret-with-enough-entropy"

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *manualClock) Clock() shared.Clock { return c.Now }

type stubRepo struct {
	mu       sync.Mutex
	users    map[string]*User
	sessions map[string]string
	findErr  error
}

func newStubRepo() *stubRepo {
	return &stubRepo{users: make(map[string]*User), sessions: make(map[string]string)}
}

func (r *stubRepo) addUser(id, email, password string, role rbac.Role) *User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	user := &User{ID: id, Email: email, Name: id, PasswordHash: string(hash), Role: role, Region: "NORTE", IsActive: true}
	r.mu.Lock()
	r.users[email] = user
	r.mu.Unlock()
	return user
}

func (r *stubRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (r *stubRepo) CreateSession(_ context.Context, id, userID string, _ time.Time, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = userID
	return nil
}

func (r *stubRepo) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *stubRepo) sessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

type fixture struct {
	clock   *manualClock
	repo    *stubRepo
	store   *MemoryStore
	issuer  *Issuer
	service *Service
	policy  *Policy
}

func newFixture(ttl time.Duration) *fixture {
	clock := newManualClock()
	repo := newStubRepo()
	issuer := NewIssuer(testSecret, ttl, clock.Clock())
	service := NewService(repo, issuer)
	store := NewMemoryStore()
	policy := NewPolicy(service, store, nil, PolicyConfig{Clock: clock.Clock()})
	return &fixture{clock: clock, repo: repo, store: store, issuer: issuer, service: service, policy: policy}
}
