package memory

import (
	"context"
	"slices"
	"sync"

	"projectdesk/internal/platform/txscope"
	"projectdesk/internal/project/models"
	id "projectdesk/pkg/domain"
	"projectdesk/pkg/platform/sentinel"
)

// InMemoryStore keeps projects in a map. Writes made inside an in-memory
// transaction register compensations so a failed transaction leaves no trace.
type InMemoryStore struct {
	mu       sync.RWMutex
	projects map[id.ProjectID]*models.Project
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{projects: make(map[id.ProjectID]*models.Project)}
}

func (s *InMemoryStore) Create(ctx context.Context, project *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[project.ID]; exists {
		return sentinel.ErrConflict
	}
	s.projects[project.ID] = project.Clone()
	txscope.OnRollback(ctx, func() { s.restore(project.ID, nil) })
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, projectID id.ProjectID) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

// FindForUpdate reads a project for mutation. Same-entity serialization comes from
// the in-memory transaction's per-key lock.
func (s *InMemoryStore) FindForUpdate(ctx context.Context, projectID id.ProjectID) (*models.Project, error) {
	return s.FindByID(ctx, projectID)
}

// List returns matching projects, newest first.
func (s *InMemoryStore) List(_ context.Context, filter models.ListFilter) ([]*models.Project, error) {
	s.mu.RLock()
	out := make([]*models.Project, 0, len(s.projects))
	for _, p := range s.projects {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Country != "" && p.Country != filter.Country {
			continue
		}
		if filter.CreatedBy != nil && (p.CreatedBy == nil || *p.CreatedBy != *filter.CreatedBy) {
			continue
		}
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *models.Project) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Update writes the mutable columns only. Creator and country stay as stored, so a
// creator cleared by a concurrent account removal is not brought back.
func (s *InMemoryStore) Update(ctx context.Context, project *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.projects[project.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	s.projects[project.ID] = withContent(prev, project)
	txscope.OnRollback(ctx, func() { s.restoreContent(project.ID, prev) })
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, projectID id.ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.projects[projectID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.projects, projectID)
	txscope.OnRollback(ctx, func() { s.restore(projectID, prev) })
	return nil
}

// ClearCreator detaches every project created by userID, mirroring ON DELETE SET NULL.
func (s *InMemoryStore) ClearCreator(ctx context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pid, p := range s.projects {
		if p.CreatedBy == nil || *p.CreatedBy != userID {
			continue
		}
		prev := p
		cleared := p.Clone()
		cleared.CreatedBy = nil
		cleared.CreatedByName = ""
		s.projects[pid] = cleared
		txscope.OnRollback(ctx, func() { s.restore(pid, prev) })
	}
	return nil
}

// EntityCountry resolves the country of a live project for audit visibility.
func (s *InMemoryStore) EntityCountry(_ context.Context, entityType, entityID string) (string, bool) {
	if entityType != models.EntityType {
		return "", false
	}
	projectID, err := id.ParseProjectID(entityID)
	if err != nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return "", false
	}
	return p.Country, true
}

// restoreContent undoes an Update without touching the creator columns, which may
// have been cleared since.
func (s *InMemoryStore) restoreContent(projectID id.ProjectID, prev *models.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.projects[projectID]; ok {
		s.projects[projectID] = withContent(current, prev)
	}
}

func withContent(stored, src *models.Project) *models.Project {
	next := stored.Clone()
	next.Title = src.Title
	next.Description = src.Description
	next.Status = src.Status
	next.UpdatedAt = src.UpdatedAt
	return next
}

func (s *InMemoryStore) restore(projectID id.ProjectID, prev *models.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev == nil {
		delete(s.projects, projectID)
		return
	}
	s.projects[projectID] = prev
}
