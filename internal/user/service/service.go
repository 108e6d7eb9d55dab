// Package service manages accounts under the same policy engine as projects.
//
// Country admins may only create country members in their own country; public
// registration always yields a country member. Identity cache entries are dropped
// whenever an account changes so demotions and deactivations apply immediately.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"projectdesk/internal/identity"
	identitymodels "projectdesk/internal/identity/models"
	"projectdesk/internal/platform/metrics"
	"projectdesk/internal/platform/txscope"
	"projectdesk/internal/policy"
	"projectdesk/internal/user/models"
	"projectdesk/internal/user/secrets"
	id "projectdesk/pkg/domain"
	dErrors "projectdesk/pkg/domain-errors"
	"projectdesk/pkg/platform/sentinel"
	"projectdesk/pkg/requestcontext"
)

const (
	invalidateAttempts = 3
	invalidateBackoff  = 50 * time.Millisecond
)

type Store interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, userID id.UserID) error
}

// CreatorDetacher nulls the creator reference on projects of a removed account.
type CreatorDetacher interface {
	ClearCreator(ctx context.Context, userID id.UserID) error
}

// IdentityInvalidator drops a cached identity.
type IdentityInvalidator interface {
	Invalidate(ctx context.Context, userID id.UserID) error
}

type Service struct {
	users    Store
	projects CreatorDetacher
	tx       txscope.Scope
	cache    IdentityInvalidator
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithIdentityCache(cache IdentityInvalidator) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func New(users Store, projects CreatorDetacher, tx txscope.Scope, opts ...Option) *Service {
	s := &Service{users: users, projects: projects, tx: tx}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the accounts the caller may see: all for a super admin, the
// caller's country for a country admin, and only their own record for a member.
func (s *Service) List(ctx context.Context) ([]*models.User, error) {
	visibility := policy.CanList(identity.FromContext(ctx), policy.ResourceUsers)
	if visibility.Denied() {
		return []*models.User{}, nil
	}
	var filter models.ListFilter
	if country, ok := visibility.Country(); ok {
		filter.Country = country
	}
	if owner, ok := visibility.Owner(); ok {
		filter.ID = &owner
	}
	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return users, nil
}

func (s *Service) Get(ctx context.Context, userID id.UserID) (*models.User, error) {
	actor := identity.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !policy.CanRead(actor, policy.ResourceUsers, user) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return user, nil
}

// Me returns the caller's own account.
func (s *Service) Me(ctx context.Context) (*models.User, error) {
	actor := identity.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return s.find(ctx, actor.ID)
}

// Create adds an account on behalf of an administrator.
func (s *Service) Create(ctx context.Context, req *models.CreateUserRequest) (*models.User, error) {
	actor := identity.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !policy.CanCreateUser(actor, req.Role, req.Country) {
		return nil, dErrors.New(dErrors.CodeForbidden, "not allowed to create this account")
	}
	return s.create(ctx, req.Username, req.Email, req.Password, req.Role, req.Country)
}

// Register creates a self-service account. The role is always country member.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.create(ctx, req.Username, req.Email, req.Password, identitymodels.RoleCountryMember, req.Country)
}

// Bootstrap creates the first super admin without an acting identity. It is meant
// for provisioning tools only.
func (s *Service) Bootstrap(ctx context.Context, req *models.CreateUserRequest) (*models.User, error) {
	req.Role = identitymodels.RoleSuperAdmin
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.create(ctx, req.Username, req.Email, req.Password, identitymodels.RoleSuperAdmin, req.Country)
}

func (s *Service) create(ctx context.Context, username, email, password string, role identitymodels.Role, country string) (*models.User, error) {
	hash, err := secrets.Hash(password)
	if err != nil {
		return nil, err
	}
	if username == "" {
		username = email
	}
	user := &models.User{
		ID:           id.NewUserID(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Country:      country,
		Active:       true,
		DateJoined:   requestcontext.Now(ctx),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "a user with this email already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	s.logAudit(ctx, "user_created", "user_id", user.ID.String(), "role", string(role), "country", country)
	if s.metrics != nil {
		s.metrics.IncrementUsersCreated(string(role))
	}
	return user, nil
}

// Update changes email, country or the active flag. A country admin may edit
// accounts in their country and may not move one elsewhere.
func (s *Service) Update(ctx context.Context, userID id.UserID, req *models.UpdateUserRequest) (*models.User, error) {
	actor := identity.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var updated *models.User
	err := s.tx.RunInTx(ctx, userID.String(), func(ctx context.Context) error {
		existing, err := s.authorizeWrite(ctx, actor, userID, policy.ActionUpdate)
		if err != nil {
			return err
		}
		existing.Apply(req)
		if !actor.IsSuperAdmin() && existing.Country != actor.Country {
			return dErrors.New(dErrors.CodeForbidden, "cannot move accounts to another country")
		}
		if err := s.users.Update(ctx, existing); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "a user with this email already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
		}
		updated = existing
		return nil
	})
	if err != nil {
		return nil, txError(err)
	}

	s.invalidate(ctx, userID)
	s.logAudit(ctx, "user_updated", "user_id", userID.String())
	return updated, nil
}

// Delete removes an account. Projects it created keep existing with no creator.
func (s *Service) Delete(ctx context.Context, userID id.UserID) error {
	actor := identity.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	err := s.tx.RunInTx(ctx, userID.String(), func(ctx context.Context) error {
		if _, err := s.authorizeWrite(ctx, actor, userID, policy.ActionDelete); err != nil {
			return err
		}
		if err := s.projects.ClearCreator(ctx, userID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to detach projects")
		}
		if err := s.users.Delete(ctx, userID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "user not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete user")
		}
		return nil
	})
	if err != nil {
		return txError(err)
	}

	s.invalidate(ctx, userID)
	s.logAudit(ctx, "user_deleted", "user_id", userID.String())
	if s.metrics != nil {
		s.metrics.IncrementUsersDeleted()
	}
	return nil
}

// VerifyCredentials checks an email and password pair against an active account.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.FindByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if err := secrets.Verify(password, user.PasswordHash); err != nil || !user.Active {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}
	return user, nil
}

func (s *Service) authorizeWrite(ctx context.Context, actor *identitymodels.Identity, userID id.UserID, action policy.Action) (*models.User, error) {
	existing, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch policy.CanWrite(actor, policy.ResourceUsers, existing, action) {
	case policy.Allow:
		return existing, nil
	case policy.Hidden:
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	default:
		return nil, dErrors.New(dErrors.CodeForbidden, "not allowed to "+string(action)+" this user")
	}
}

func (s *Service) find(ctx context.Context, userID id.UserID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

// invalidate runs after commit. The account change is already durable, so a caller
// cancelling must not skip it.
func (s *Service) invalidate(ctx context.Context, userID id.UserID) {
	if s.cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := range invalidateAttempts {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * invalidateBackoff)
		}
		if err = s.cache.Invalidate(ctx, userID); err == nil {
			return
		}
	}
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "identity cache invalidation failed; stale identity served until TTL",
			"user_id", userID.String(),
			"attempts", invalidateAttempts,
			"error", err,
		)
	}
}

func txError(err error) error {
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
