package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	auditmodels "projectdesk/internal/audit/models"
	auditservice "projectdesk/internal/audit/service"
	auditmemory "projectdesk/internal/audit/store/memory"
	"projectdesk/internal/identity"
	identitymodels "projectdesk/internal/identity/models"
	"projectdesk/internal/platform/metrics"
	"projectdesk/internal/platform/txscope"
	projectmodels "projectdesk/internal/project/models"
	projectservice "projectdesk/internal/project/service"
	projectmemory "projectdesk/internal/project/store/memory"
	"projectdesk/internal/user/models"
	usermemory "projectdesk/internal/user/store/memory"
	id "projectdesk/pkg/domain"
	dErrors "projectdesk/pkg/domain-errors"
)

type recordingInvalidator struct {
	invalidated []id.UserID
	failures    int
	calls       int
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID id.UserID) error {
	r.calls++
	if r.failures > 0 {
		r.failures--
		return errors.New("redis unavailable")
	}
	r.invalidated = append(r.invalidated, userID)
	return nil
}

type UserServiceSuite struct {
	suite.Suite
	users    *usermemory.InMemoryStore
	projects *projectmemory.InMemoryStore
	cache    *recordingInvalidator
	metrics  *metrics.Metrics
	service  *Service

	superAdmin *models.User
	usaAdmin   *models.User
	usaMember  *models.User
	caMember   *models.User
}

func TestUserServiceSuite(t *testing.T) {
	suite.Run(t, new(UserServiceSuite))
}

func (s *UserServiceSuite) SetupTest() {
	s.users = usermemory.NewInMemoryStore()
	s.projects = projectmemory.NewInMemoryStore()
	s.cache = &recordingInvalidator{}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.users, s.projects, txscope.NewInMemory(time.Second),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithIdentityCache(s.cache),
	)

	var err error
	s.superAdmin, err = s.service.Bootstrap(context.Background(), &models.CreateUserRequest{
		Username: "root", Email: "root@example.com", Password: "pw", PasswordConfirm: "pw", Country: "USA",
	})
	s.Require().NoError(err)
	s.usaAdmin = s.mustCreate(s.superAdmin, "usa-admin", identitymodels.RoleCountryAdmin, "USA")
	s.usaMember = s.mustCreate(s.usaAdmin, "usa-member", identitymodels.RoleCountryMember, "USA")
	s.caMember = s.mustCreate(s.superAdmin, "ca-member", identitymodels.RoleCountryMember, "Canada")
}

func as(u *models.User) context.Context {
	return identity.WithIdentity(context.Background(), u.Identity())
}

func (s *UserServiceSuite) mustCreate(actor *models.User, username string, role identitymodels.Role, country string) *models.User {
	u, err := s.service.Create(as(actor), &models.CreateUserRequest{
		Username:        username,
		Email:           username + "@Example.COM",
		Password:        "secret",
		PasswordConfirm: "secret",
		Role:            role,
		Country:         country,
	})
	s.Require().NoError(err)
	return u
}

func (s *UserServiceSuite) TestCreate() {
	s.Run("email domain is normalized and the password hashed", func() {
		s.Equal("usa-member@example.com", s.usaMember.Email)
		s.NotEqual("secret", s.usaMember.PasswordHash)
		s.Equal(2.0, testutil.ToFloat64(s.metrics.UsersCreated.WithLabelValues("COUNTRY_MEMBER")))
	})

	s.Run("country admin cannot create another country admin", func() {
		_, err := s.service.Create(as(s.usaAdmin), &models.CreateUserRequest{
			Email: "a2@example.com", Password: "x", PasswordConfirm: "x",
			Role: identitymodels.RoleCountryAdmin, Country: "USA",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("country admin cannot create outside their country", func() {
		_, err := s.service.Create(as(s.usaAdmin), &models.CreateUserRequest{
			Email: "m2@example.com", Password: "x", PasswordConfirm: "x",
			Role: identitymodels.RoleCountryMember, Country: "Canada",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("member cannot create accounts", func() {
		_, err := s.service.Create(as(s.usaMember), &models.CreateUserRequest{
			Email: "m3@example.com", Password: "x", PasswordConfirm: "x",
			Role: identitymodels.RoleCountryMember, Country: "USA",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("duplicate email conflicts", func() {
		_, err := s.service.Create(as(s.superAdmin), &models.CreateUserRequest{
			Email: "usa-member@example.com", Password: "x", PasswordConfirm: "x",
			Role: identitymodels.RoleCountryMember, Country: "USA",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("password mismatch fails validation", func() {
		_, err := s.service.Create(as(s.superAdmin), &models.CreateUserRequest{
			Email: "m4@example.com", Password: "x", PasswordConfirm: "y",
			Role: identitymodels.RoleCountryMember, Country: "USA",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *UserServiceSuite) TestRegister() {
	u, err := s.service.Register(context.Background(), &models.RegisterRequest{
		Username: "newbie", Email: "newbie@example.com", Password: "pw", PasswordConfirm: "pw", Country: "Canada",
	})
	s.Require().NoError(err)
	s.Equal(identitymodels.RoleCountryMember, u.Role)
	s.True(u.Active)

	verified, err := s.service.VerifyCredentials(context.Background(), "newbie@EXAMPLE.com", "pw")
	s.Require().NoError(err)
	s.Equal(u.ID, verified.ID)

	_, err = s.service.VerifyCredentials(context.Background(), "newbie@example.com", "wrong")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *UserServiceSuite) TestList() {
	s.Run("super admin sees everyone", func() {
		list, err := s.service.List(as(s.superAdmin))
		s.Require().NoError(err)
		s.Len(list, 4)
	})

	s.Run("country admin sees their country", func() {
		list, err := s.service.List(as(s.usaAdmin))
		s.Require().NoError(err)
		s.Len(list, 3)
		for _, u := range list {
			s.Equal("USA", u.Country)
		}
	})

	s.Run("member sees only themselves", func() {
		list, err := s.service.List(as(s.usaMember))
		s.Require().NoError(err)
		s.Require().Len(list, 1)
		s.Equal(s.usaMember.ID, list[0].ID)
	})

	s.Run("member reading a colleague is not found", func() {
		_, err := s.service.Get(as(s.usaMember), s.usaAdmin.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		me, err := s.service.Me(as(s.usaMember))
		s.Require().NoError(err)
		s.Equal(s.usaMember.ID, me.ID)
	})
}

func (s *UserServiceSuite) TestUpdate() {
	s.Run("country admin deactivates a member and the cache is dropped", func() {
		updated, err := s.service.Update(as(s.usaAdmin), s.usaMember.ID, &models.UpdateUserRequest{Active: ptr(false)})
		s.Require().NoError(err)
		s.False(updated.Active)
		s.Contains(s.cache.invalidated, s.usaMember.ID)
	})

	s.Run("country admin cannot move a member abroad", func() {
		_, err := s.service.Update(as(s.usaAdmin), s.usaMember.ID, &models.UpdateUserRequest{Country: ptr("Canada")})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		stored, err := s.users.FindByID(context.Background(), s.usaMember.ID)
		s.Require().NoError(err)
		s.Equal("USA", stored.Country)
	})

	s.Run("foreign account is not found", func() {
		_, err := s.service.Update(as(s.usaAdmin), s.caMember.ID, &models.UpdateUserRequest{Active: ptr(false)})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("email taken by another account conflicts", func() {
		_, err := s.service.Update(as(s.superAdmin), s.caMember.ID, &models.UpdateUserRequest{Email: ptr("root@example.com")})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *UserServiceSuite) TestInvalidationRetriesTransientFailure() {
	s.cache.failures = 2

	_, err := s.service.Update(as(s.usaAdmin), s.usaMember.ID, &models.UpdateUserRequest{Active: ptr(false)})
	s.Require().NoError(err)
	s.Equal(3, s.cache.calls)
	s.Contains(s.cache.invalidated, s.usaMember.ID)
}

// TestDeleteKeepsProjectsAndHistory checks that removing a creator detaches their
// projects while the audit trail keeps the creator's name.
func (s *UserServiceSuite) TestDeleteKeepsProjectsAndHistory() {
	audits := auditmemory.NewInMemoryStore(s.projects)
	recorder := auditservice.New(audits)
	projects := projectservice.New(s.projects, recorder, txscope.NewInMemory(time.Second))

	p, err := projects.Create(as(s.usaMember), &projectmodels.CreateProjectRequest{Title: "Legacy"})
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(as(s.usaAdmin), s.usaMember.ID))

	stored, err := s.projects.FindByID(context.Background(), p.ID)
	s.Require().NoError(err)
	s.Nil(stored.CreatedBy)

	entries, err := recorder.List(context.Background(), s.superAdmin.Identity(), auditmodels.Filter{EntityID: p.ID.String()})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("usa-member", entries[0].Changes["created_by"])

	_, err = s.users.FindByID(context.Background(), s.usaMember.ID)
	s.Error(err)
	s.Contains(s.cache.invalidated, s.usaMember.ID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.UsersDeleted))
}

func (s *UserServiceSuite) TestDeleteDenied() {
	err := s.service.Delete(as(s.usaMember), s.usaAdmin.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.service.Delete(as(s.usaAdmin), s.caMember.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.service.Delete(as(s.usaMember), s.usaMember.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func ptr[T any](v T) *T { return &v }
