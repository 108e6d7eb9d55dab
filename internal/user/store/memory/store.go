package memory

import (
	"context"
	"slices"
	"sync"

	"projectdesk/internal/platform/txscope"
	"projectdesk/internal/user/models"
	id "projectdesk/pkg/domain"
	"projectdesk/pkg/platform/sentinel"
)

// InMemoryStore keeps users in a map with a unique email index.
type InMemoryStore struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

// emailKey expects emails already normalized by models.NormalizeEmail.
func emailKey(email string) string {
	return email
}

func (s *InMemoryStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[emailKey(user.Email)]; taken {
		return sentinel.ErrConflict
	}
	if _, exists := s.users[user.ID]; exists {
		return sentinel.ErrConflict
	}
	stored := *user
	s.users[user.ID] = &stored
	s.byEmail[emailKey(user.Email)] = user.ID
	txscope.OnRollback(ctx, func() { s.restore(user.ID, nil) })
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *s.users[userID]
	return &copied, nil
}

// List returns matching users, newest first.
func (s *InMemoryStore) List(_ context.Context, filter models.ListFilter) ([]*models.User, error) {
	s.mu.RLock()
	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		if filter.Country != "" && u.Country != filter.Country {
			continue
		}
		if filter.ID != nil && u.ID != *filter.ID {
			continue
		}
		copied := *u
		out = append(out, &copied)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *models.User) int {
		return b.DateJoined.Compare(a.DateJoined)
	})
	return out, nil
}

func (s *InMemoryStore) Update(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.users[user.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if owner, taken := s.byEmail[emailKey(user.Email)]; taken && owner != user.ID {
		return sentinel.ErrConflict
	}
	delete(s.byEmail, emailKey(prev.Email))
	stored := *user
	s.users[user.ID] = &stored
	s.byEmail[emailKey(user.Email)] = user.ID
	txscope.OnRollback(ctx, func() { s.restore(user.ID, prev) })
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.users, userID)
	delete(s.byEmail, emailKey(prev.Email))
	txscope.OnRollback(ctx, func() { s.restore(userID, prev) })
	return nil
}

func (s *InMemoryStore) restore(userID id.UserID, prev *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.users[userID]; ok {
		delete(s.byEmail, emailKey(current.Email))
		delete(s.users, userID)
	}
	if prev != nil {
		s.users[userID] = prev
		s.byEmail[emailKey(prev.Email)] = userID
	}
}
