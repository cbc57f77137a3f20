package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu      sync.Mutex
	users   map[string]User
	tokens  map[string]bool // token -> revoked
	nowFunc func() time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]User{}, tokens: map[string]bool{}, nowFunc: time.Now}
}

func (f *fakeStore) CreateUser(_ context.Context, u User) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return User{}, ErrUserExists
		}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = f.nowFunc()
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeStore) UserByUsername(_ context.Context, username string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (f *fakeStore) UserByID(_ context.Context, id string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeStore) ListByRole(_ context.Context, role Role) ([]User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []User{}
	for _, u := range f.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (f *fakeStore) SaveRefreshToken(_ context.Context, _, token string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = false
	return nil
}

func (f *fakeStore) ConsumeRefreshToken(_ context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	revoked, ok := f.tokens[token]
	if !ok || revoked {
		return false, nil
	}
	f.tokens[token] = true
	return true, nil
}
