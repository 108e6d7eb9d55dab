// Package service is the Mutation Coordinator for projects.
//
// Every mutation walks the same states:
//
//	Authorizing -> Capturing -> Mutating -> Diffing -> Recording -> Committed
//
// with Denied and Failed as terminal alternatives. Capturing happens before the
// store is touched and the before-state is passed along explicitly. Mutating,
// Diffing and Recording run in one transaction, so a project change is never
// committed without its audit entry.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	auditmodels "projectdesk/internal/audit/models"
	"projectdesk/internal/changes"
	identitymodels "projectdesk/internal/identity/models"
	"projectdesk/internal/platform/txscope"
	projectmetrics "projectdesk/internal/project/metrics"
	"projectdesk/internal/project/models"
	id "projectdesk/pkg/domain"
	dErrors "projectdesk/pkg/domain-errors"
	"projectdesk/pkg/requestcontext"
)

// Store is the project persistence the coordinator drives. FindForUpdate must
// serialize concurrent mutations of the same project until the transaction ends.
type Store interface {
	Create(ctx context.Context, project *models.Project) error
	FindByID(ctx context.Context, projectID id.ProjectID) (*models.Project, error)
	FindForUpdate(ctx context.Context, projectID id.ProjectID) (*models.Project, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, projectID id.ProjectID) error
}

// AuditRecorder appends one entry inside the caller's transaction.
type AuditRecorder interface {
	Record(ctx context.Context, actor *identitymodels.Identity, action auditmodels.Action, entityType, entityID string, cs changes.ChangeSet) (*auditmodels.Entry, error)
}

// State is a step of the mutation state machine.
type State string

const (
	StateAuthorizing State = "authorizing"
	StateCapturing   State = "capturing"
	StateMutating    State = "mutating"
	StateDiffing     State = "diffing"
	StateRecording   State = "recording"
	StateCommitted   State = "committed"
	StateDenied      State = "denied"
	StateFailed      State = "failed"
)

type Service struct {
	store   Store
	audit   AuditRecorder
	tx      txscope.Scope
	logger  *slog.Logger
	metrics *projectmetrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *projectmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(store Store, audit AuditRecorder, tx txscope.Scope, opts ...Option) *Service {
	s := &Service{
		store:  store,
		audit:  audit,
		tx:     tx,
		tracer: otel.Tracer("projectdesk/project"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mutation tracks one pass through the state machine for logging, tracing and metrics.
type mutation struct {
	svc       *Service
	operation string
	projectID string
	state     State
	start     time.Time
	span      trace.Span
}

func (s *Service) begin(ctx context.Context, operation, projectID string) (context.Context, *mutation) {
	ctx, span := s.tracer.Start(ctx, "project."+operation)
	if projectID != "" {
		span.SetAttributes(attribute.String("project.id", projectID))
	}
	m := &mutation{svc: s, operation: operation, projectID: projectID, start: time.Now(), span: span}
	m.enter(ctx, StateAuthorizing)
	return ctx, m
}

// pinTime fixes the time every write of this mutation uses, so the project row and
// its audit entry agree. For an existing project it must be taken while the
// project is locked, and it never precedes the project's last write: entries of
// one project then sort in the order their mutations committed, ties broken by seq.
func pinTime(ctx context.Context, locked *models.Project) context.Context {
	at := requestcontext.Now(ctx)
	if locked != nil && locked.UpdatedAt.After(at) {
		at = locked.UpdatedAt
	}
	return requestcontext.WithTime(ctx, at)
}

func (m *mutation) enter(ctx context.Context, state State) {
	m.state = state
	m.span.AddEvent(string(state))
	if m.svc.logger != nil {
		m.svc.logger.DebugContext(ctx, "project mutation",
			"operation", m.operation,
			"project_id", m.projectID,
			"state", string(state),
		)
	}
}

// finish moves to a terminal state derived from err and returns err unchanged.
func (m *mutation) finish(ctx context.Context, err error) error {
	defer m.span.End()

	outcome := outcomeOf(err)
	switch {
	case err == nil:
		m.enter(ctx, StateCommitted)
		m.svc.logAudit(ctx, "project_"+m.operation+"d", "project_id", m.projectID)
	case outcome == "denied" || outcome == "not_found":
		m.enter(ctx, StateDenied)
	default:
		failedIn := m.state
		m.enter(ctx, StateFailed)
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
		if m.svc.logger != nil {
			m.svc.logger.ErrorContext(ctx, "project mutation failed",
				"operation", m.operation,
				"project_id", m.projectID,
				"failed_in", string(failedIn),
				"error", err,
			)
		}
	}
	if m.svc.metrics != nil {
		m.svc.metrics.ObserveMutation(m.operation, outcome, time.Since(m.start).Seconds())
	}
	return err
}

func outcomeOf(err error) string {
	switch dErrors.CodeOf(err) {
	case "":
		return "committed"
	case dErrors.CodeForbidden, dErrors.CodeUnauthorized:
		return "denied"
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeValidation:
		return "invalid"
	case dErrors.CodeAuditWriteFailed:
		return "audit_failed"
	case dErrors.CodeTimeout:
		return "timeout"
	default:
		return "failed"
	}
}

// txError classifies errors surfacing from RunInTx. Errors raised inside the
// transaction already carry a code; commit and deadline failures do not.
func txError(err error) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "transaction failed")
}

func (s *Service) logAudit(ctx context.Context, event string, attrs ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	args := append(attrs, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
}
