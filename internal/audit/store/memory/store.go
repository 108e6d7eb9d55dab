package memory

import (
	"context"
	"slices"
	"sync"

	"projectdesk/internal/audit/models"
	"projectdesk/internal/platform/txscope"
)

// EntityCountries resolves the country of a live entity. It reports false once the
// entity has been deleted.
type EntityCountries interface {
	EntityCountry(ctx context.Context, entityType, entityID string) (string, bool)
}

// InMemoryStore is an append-only audit log for tests and local runs. Appends made
// inside an in-memory transaction are withdrawn if that transaction fails.
type InMemoryStore struct {
	mu       sync.RWMutex
	entries  []*models.Entry
	seq      int64
	entities EntityCountries
}

func NewInMemoryStore(entities EntityCountries) *InMemoryStore {
	return &InMemoryStore{entities: entities}
}

func (s *InMemoryStore) Append(ctx context.Context, entry *models.Entry) error {
	s.mu.Lock()
	s.seq++
	entry.Seq = s.seq
	stored := *entry
	s.entries = append(s.entries, &stored)
	s.mu.Unlock()

	txscope.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.entries = slices.DeleteFunc(s.entries, func(e *models.Entry) bool {
			return e.ID == stored.ID
		})
	})
	return nil
}

func (s *InMemoryStore) List(ctx context.Context, query models.Query) ([]*models.Entry, error) {
	s.mu.RLock()
	candidates := make([]*models.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if query.Matches(e) {
			candidates = append(candidates, e)
		}
	}
	s.mu.RUnlock()

	out := make([]*models.Entry, 0, len(candidates))
	for _, e := range candidates {
		if query.Country != "" {
			if s.entities == nil {
				continue
			}
			country, ok := s.entities.EntityCountry(ctx, e.EntityType, e.EntityID)
			if !ok || country != query.Country {
				continue
			}
		}
		copied := *e
		out = append(out, &copied)
	}

	slices.SortStableFunc(out, func(a, b *models.Entry) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.Seq > b.Seq:
			return -1
		case a.Seq < b.Seq:
			return 1
		}
		return 0
	})

	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

// Len reports the number of stored entries.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
