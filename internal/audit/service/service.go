// Package service is the Audit Recorder: it appends entries for committed project
// mutations and answers audit queries under the viewer's visibility.
//
// Record is fail-closed. It runs inside the caller's transaction and any failure is
// returned as CodeAuditWriteFailed; the caller must abort so the mutation rolls back
// with it. Failures are never swallowed or retried here.
package service

import (
	"context"
	"log/slog"
	"time"

	auditmetrics "projectdesk/internal/audit/metrics"
	"projectdesk/internal/audit/models"
	"projectdesk/internal/changes"
	identitymodels "projectdesk/internal/identity/models"
	"projectdesk/internal/policy"
	projectmodels "projectdesk/internal/project/models"
	id "projectdesk/pkg/domain"
	dErrors "projectdesk/pkg/domain-errors"
	"projectdesk/pkg/requestcontext"
)

const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 100
)

// Store persists entries. Append assigns Seq and must use the transaction carried
// by ctx when there is one.
type Store interface {
	Append(ctx context.Context, entry *models.Entry) error
	List(ctx context.Context, query models.Query) ([]*models.Entry, error)
}

type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *auditmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *auditmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends one entry attributed to actor. An update with no changed fields is
// rejected with CodeValidation; callers skip recording instead. The timestamp is the
// request time from ctx.
func (s *Service) Record(ctx context.Context, actor *identitymodels.Identity, action models.Action, entityType, entityID string, cs changes.ChangeSet) (*models.Entry, error) {
	if !action.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid audit action")
	}
	if entityType == "" || entityID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "audit entity is required")
	}
	if action == models.ActionUpdate && cs.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "update entry requires at least one change")
	}

	entry := &models.Entry{
		ID:         id.NewAuditEntryID(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    cs,
		Timestamp:  requestcontext.Now(ctx),
	}
	if actor != nil && !actor.ID.IsNil() {
		actorID := actor.ID
		entry.ActorID = &actorID
		entry.ActorName = actor.DisplayName()
	} else if s.logger != nil {
		s.logger.WarnContext(ctx, "audit entry has no actor",
			"action", string(action),
			"entity_type", entityType,
			"entity_id", entityID,
		)
	}

	start := time.Now()
	if err := s.store.Append(ctx, entry); err != nil {
		if s.metrics != nil {
			s.metrics.IncWriteFailures()
		}
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "CRITICAL: audit write failed",
				"action", string(action),
				"entity_type", entityType,
				"entity_id", entityID,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeAuditWriteFailed, "failed to record audit entry")
	}

	if s.metrics != nil {
		s.metrics.ObserveWriteDuration(time.Since(start).Seconds())
		s.metrics.IncRecorded(string(action))
	}
	return entry, nil
}

// List returns the entries matching filter that viewer may see, newest first. A super
// admin sees everything; other roles see only entries for projects that still exist
// in their country. An unauthenticated viewer gets an empty result.
func (s *Service) List(ctx context.Context, viewer *identitymodels.Identity, filter models.Filter) ([]*models.Entry, error) {
	return s.query(ctx, viewer, filter, 0)
}

// Recent returns the latest visible entries. limit defaults to 20 and is clamped to
// 1..100.
func (s *Service) Recent(ctx context.Context, viewer *identitymodels.Identity, limit int) ([]*models.Entry, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecentLimit
	case limit > MaxRecentLimit:
		limit = MaxRecentLimit
	}
	return s.query(ctx, viewer, models.Filter{}, limit)
}

func (s *Service) query(ctx context.Context, viewer *identitymodels.Identity, filter models.Filter, limit int) ([]*models.Entry, error) {
	visibility := policy.CanList(viewer, policy.ResourceProjects)
	if visibility.Denied() {
		return []*models.Entry{}, nil
	}

	q := models.Query{Filter: filter, Limit: limit}
	if country, ok := visibility.Country(); ok {
		if filter.EntityType != "" && filter.EntityType != projectmodels.EntityType {
			return []*models.Entry{}, nil
		}
		q.EntityType = projectmodels.EntityType
		q.Country = country
	}

	entries, err := s.store.List(ctx, q)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit entries")
	}
	return entries, nil
}
