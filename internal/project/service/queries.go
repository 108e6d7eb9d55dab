package service

import (
	"context"
	"errors"

	"projectdesk/internal/identity"
	"projectdesk/internal/policy"
	"projectdesk/internal/project/models"
	id "projectdesk/pkg/domain"
	dErrors "projectdesk/pkg/domain-errors"
	"projectdesk/pkg/platform/sentinel"
)

// Get returns a project the caller may see. Projects outside the caller's
// visibility are reported as not found.
func (s *Service) Get(ctx context.Context, projectID id.ProjectID) (*models.Project, error) {
	actor := identity.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	project, err := s.store.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "project not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load project")
	}
	if !policy.CanRead(actor, policy.ResourceProjects, project) {
		return nil, dErrors.New(dErrors.CodeNotFound, "project not found")
	}
	return project, nil
}

// List returns the visible projects matching filter, newest first. An
// unauthenticated caller gets an empty list.
func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.Project, error) {
	visibility := policy.CanList(identity.FromContext(ctx), policy.ResourceProjects)
	if visibility.Denied() {
		return []*models.Project{}, nil
	}
	if country, ok := visibility.Country(); ok {
		if filter.Country != "" && filter.Country != country {
			return []*models.Project{}, nil
		}
		filter.Country = country
	}

	projects, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list projects")
	}

	visible := projects[:0]
	for _, p := range projects {
		if visibility.Matches(p) {
			visible = append(visible, p)
		}
	}
	return visible, nil
}
