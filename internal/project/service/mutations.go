package service

import (
	"context"
	"errors"

	auditmodels "projectdesk/internal/audit/models"
	"projectdesk/internal/changes"
	"projectdesk/internal/identity"
	identitymodels "projectdesk/internal/identity/models"
	"projectdesk/internal/policy"
	"projectdesk/internal/project/models"
	id "projectdesk/pkg/domain"
	dErrors "projectdesk/pkg/domain-errors"
	"projectdesk/pkg/platform/sentinel"
	"projectdesk/pkg/requestcontext"
)

// Create validates and authorizes a new project, then stores it together with a
// create entry holding the full snapshot and the creator's display name. The
// project's country is forced by policy for non super admins.
func (s *Service) Create(ctx context.Context, req *models.CreateProjectRequest) (*models.Project, error) {
	ctx, m := s.begin(ctx, "create", "")
	ctx = pinTime(ctx, nil)

	actor := identity.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, m.finish(ctx, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, m.finish(ctx, err)
	}

	country, ok := policy.ProjectCountry(actor, req.Country)
	if !ok {
		return nil, m.finish(ctx, dErrors.New(dErrors.CodeForbidden, "cannot create projects in this country"))
	}
	creatorID := actor.ID
	project, err := models.NewProject(id.NewProjectID(), req.Title, req.Description, req.Status,
		country, &creatorID, actor.DisplayName(), requestcontext.Now(ctx))
	if err != nil {
		return nil, m.finish(ctx, err)
	}
	if policy.CanWrite(actor, policy.ResourceProjects, project, policy.ActionCreate) != policy.Allow {
		return nil, m.finish(ctx, dErrors.New(dErrors.CodeForbidden, "not allowed to create projects"))
	}
	m.projectID = project.ID.String()

	err = s.tx.RunInTx(ctx, m.projectID, func(ctx context.Context) error {
		m.enter(ctx, StateMutating)
		if err := s.store.Create(ctx, project); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create project")
		}

		m.enter(ctx, StateRecording)
		snapshot := changes.Snapshot(project, models.TrackedFields)
		snapshot["created_by"] = creatorName(project)
		_, err := s.audit.Record(ctx, attribution(actor, project), auditmodels.ActionCreate,
			models.EntityType, m.projectID, snapshot)
		return err
	})
	if err != nil {
		return nil, m.finish(ctx, txError(err))
	}
	return project, m.finish(ctx, nil)
}

// Update applies a partial update. The project is locked and read inside the
// transaction, its before-state captured, and an update entry is recorded only
// when at least one tracked field actually changed. A project outside the actor's
// visibility is reported as not found.
func (s *Service) Update(ctx context.Context, projectID id.ProjectID, req *models.UpdateProjectRequest) (*models.Project, error) {
	ctx, m := s.begin(ctx, "update", projectID.String())

	actor := identity.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, m.finish(ctx, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, m.finish(ctx, err)
	}

	var updated *models.Project
	err := s.tx.RunInTx(ctx, m.projectID, func(ctx context.Context) error {
		existing, err := s.lockForWrite(ctx, actor, projectID, policy.ActionUpdate)
		if err != nil {
			return err
		}
		ctx = pinTime(ctx, existing)

		m.enter(ctx, StateCapturing)
		before := changes.Snapshot(existing, models.TrackedFields)

		m.enter(ctx, StateMutating)
		next := existing.Clone()
		if err := next.Apply(req, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := s.store.Update(ctx, next); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update project")
		}
		updated = next

		m.enter(ctx, StateDiffing)
		diff := changes.Diff(before, changes.Snapshot(next, models.TrackedFields), models.TrackedFields)
		if diff.IsEmpty() {
			if s.metrics != nil {
				s.metrics.IncNoopUpdates()
			}
			return nil
		}

		m.enter(ctx, StateRecording)
		_, err = s.audit.Record(ctx, attribution(actor, existing), auditmodels.ActionUpdate,
			models.EntityType, m.projectID, diff)
		return err
	})
	if err != nil {
		return nil, m.finish(ctx, txError(err))
	}
	return updated, m.finish(ctx, nil)
}

// Delete removes a project and records its final snapshot flagged as deleted.
func (s *Service) Delete(ctx context.Context, projectID id.ProjectID) error {
	ctx, m := s.begin(ctx, "delete", projectID.String())

	actor := identity.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return m.finish(ctx, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
	}

	err := s.tx.RunInTx(ctx, m.projectID, func(ctx context.Context) error {
		existing, err := s.lockForWrite(ctx, actor, projectID, policy.ActionDelete)
		if err != nil {
			return err
		}
		ctx = pinTime(ctx, existing)

		m.enter(ctx, StateCapturing)
		snapshot := changes.Snapshot(existing, models.TrackedFields)
		snapshot["deleted"] = true

		m.enter(ctx, StateMutating)
		if err := s.store.Delete(ctx, projectID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "project not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete project")
		}

		m.enter(ctx, StateRecording)
		_, err = s.audit.Record(ctx, attribution(actor, existing), auditmodels.ActionDelete,
			models.EntityType, m.projectID, snapshot)
		return err
	})
	return m.finish(ctx, txError(err))
}

// lockForWrite loads the project for mutation and applies the write policy. A
// hidden project and a missing one are indistinguishable to the caller.
func (s *Service) lockForWrite(ctx context.Context, actor *identitymodels.Identity, projectID id.ProjectID, action policy.Action) (*models.Project, error) {
	existing, err := s.store.FindForUpdate(ctx, projectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "project not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load project")
	}
	switch policy.CanWrite(actor, policy.ResourceProjects, existing, action) {
	case policy.Allow:
		return existing, nil
	case policy.Hidden:
		return nil, dErrors.New(dErrors.CodeNotFound, "project not found")
	default:
		return nil, dErrors.New(dErrors.CodeForbidden, "not allowed to "+string(action)+" this project")
	}
}

// attribution picks the actor recorded on an entry. When the request carries no
// identified actor, the project's creator is used so the entry is never anonymous
// while someone can still be named.
func attribution(actor *identitymodels.Identity, project *models.Project) *identitymodels.Identity {
	if actor != nil && !actor.ID.IsNil() {
		return actor
	}
	if project != nil && project.CreatedBy != nil {
		return &identitymodels.Identity{ID: *project.CreatedBy, Username: project.CreatedByName}
	}
	return actor
}

func creatorName(project *models.Project) any {
	if project.CreatedBy == nil || project.CreatedByName == "" {
		return nil
	}
	return project.CreatedByName
}
