package users

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type memState struct {
	nextID   int64
	users    map[int64]User
	hashes   map[int64]string
	profiles map[int64]Profile
}

func (s memState) clone() memState {
	out := memState{
		nextID:   s.nextID,
		users:    make(map[int64]User, len(s.users)),
		hashes:   make(map[int64]string, len(s.hashes)),
		profiles: make(map[int64]Profile, len(s.profiles)),
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.hashes {
		out.hashes[k] = v
	}
	for k, v := range s.profiles {
		out.profiles[k] = v
	}
	return out
}

type memStore struct {
	mu          sync.Mutex
	state       memState
	failProfile error
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		users:    map[int64]User{},
		hashes:   map[int64]string{},
		profiles: map[int64]Profile{},
	}}
}

type memTx struct {
	store *memStore
	state *memState
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	working := m.state.clone()
	if err := fn(ctx, &memTx{store: m, state: &working}); err != nil {
		return err
	}
	m.state = working
	return nil
}

func (m *memStore) ListUsers(ctx context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(m.state.users))
	for id := int64(1); id <= m.state.nextID; id++ {
		if u, ok := m.state.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memStore) GetUser(ctx context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.state.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memStore) GetProfile(ctx context.Context, userID int64) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.profiles[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (t *memTx) UsernameTaken(ctx context.Context, username string) (bool, error) {
	for _, u := range t.state.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) EmailTaken(ctx context.Context, email string) (bool, error) {
	for _, u := range t.state.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertUser(ctx context.Context, in NewUser) (User, error) {
	t.state.nextID++
	now := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)
	u := User{
		ID:          t.state.nextID,
		Username:    in.Username,
		Email:       in.Email,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		IsActive:    true,
		IsStaff:     in.IsStaff,
		IsSuperuser: in.IsSuperuser,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.state.users[u.ID] = u
	t.state.hashes[u.ID] = in.PasswordHash
	return u, nil
}

func (t *memTx) InsertProfile(ctx context.Context, p Profile) error {
	if t.store.failProfile != nil {
		return t.store.failProfile
	}
	if p.EmployeeID != "" {
		for _, existing := range t.state.profiles {
			if existing.EmployeeID == p.EmployeeID {
				return errors.Join(ErrDuplicate, errors.New("employee id taken"))
			}
		}
	}
	t.state.profiles[p.UserID] = p
	return nil
}
