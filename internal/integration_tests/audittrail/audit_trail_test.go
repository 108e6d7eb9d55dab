//go:build integration

package audittrail

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"projectdesk/internal/app"
	auditmodels "projectdesk/internal/audit/models"
	"projectdesk/internal/changes"
	identitymodels "projectdesk/internal/identity/models"
	"projectdesk/internal/platform/config"
	projectmodels "projectdesk/internal/project/models"
	usermodels "projectdesk/internal/user/models"
	dErrors "projectdesk/pkg/domain-errors"
	"projectdesk/pkg/testutil/containers"
)

type AuditTrailSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	redis *containers.RedisContainer
	app   *app.App
	ctx   context.Context

	root   *usermodels.User
	admin  *usermodels.User
	member *usermodels.User
}

func TestAuditTrailSuite(t *testing.T) {
	suite.Run(t, new(AuditTrailSuite))
}

func (s *AuditTrailSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.pg = mgr.GetPostgres(s.T())
	s.redis = mgr.GetRedis(s.T())
}

func (s *AuditTrailSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.pg.Truncate(s.ctx))
	s.Require().NoError(s.redis.Reset(s.ctx))

	cfg := config.FromEnv()
	cfg.DatabaseURL = s.pg.DSN
	cfg.Redis = s.redis.Config

	a, err := app.New(s.ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = a.Close() })
	s.app = a

	s.root, err = a.Users.Bootstrap(s.ctx, &usermodels.CreateUserRequest{
		Username: "root", Email: "root@example.com", Password: "pw", PasswordConfirm: "pw", Country: "USA",
	})
	s.Require().NoError(err)
	s.member, err = a.Users.Register(s.ctx, &usermodels.RegisterRequest{
		Username: "ana", Email: "ana@example.com", Password: "pw", PasswordConfirm: "pw", Country: "Canada",
	})
	s.Require().NoError(err)
	s.admin, err = a.Users.Create(s.as(s.root), &usermodels.CreateUserRequest{
		Username: "lee", Email: "lee@example.com", Password: "pw", PasswordConfirm: "pw",
		Role: identitymodels.RoleCountryAdmin, Country: "Canada",
	})
	s.Require().NoError(err)
}

func (s *AuditTrailSuite) as(user *usermodels.User) context.Context {
	token, err := s.app.Identity.Issue(user.ID)
	s.Require().NoError(err)
	ctx, err := s.app.Identity.Attach(s.ctx, token)
	s.Require().NoError(err)
	return ctx
}

func (s *AuditTrailSuite) TestLifecycleIsRecorded() {
	memberCtx := s.as(s.member)

	project, err := s.app.Projects.Create(memberCtx, &projectmodels.CreateProjectRequest{Title: "Bridge"})
	s.Require().NoError(err)
	s.Equal("Canada", project.Country)
	s.Equal("ana", project.CreatedByName)

	status := projectmodels.StatusActive
	_, err = s.app.Projects.Update(memberCtx, project.ID, &projectmodels.UpdateProjectRequest{Status: &status})
	s.Require().NoError(err)

	title := "Bridge"
	_, err = s.app.Projects.Update(memberCtx, project.ID, &projectmodels.UpdateProjectRequest{Title: &title})
	s.Require().NoError(err)

	entries, err := s.app.Audit.List(s.ctx, s.root.Identity(), auditmodels.Filter{EntityID: project.ID.String()})
	s.Require().NoError(err)
	s.Require().Len(entries, 2, "a no-op update leaves no entry")
	s.Equal(auditmodels.ActionUpdate, entries[0].Action)
	s.Equal(auditmodels.ActionCreate, entries[1].Action)
	s.Equal(changes.FieldChange{Old: "draft", New: "active"}, entries[0].Changes["status"])
}

func (s *AuditTrailSuite) TestCountryAdminSeesOnlyLiveProjectsOfTheirCountry() {
	memberCtx := s.as(s.member)
	kept, err := s.app.Projects.Create(memberCtx, &projectmodels.CreateProjectRequest{Title: "Kept"})
	s.Require().NoError(err)
	gone, err := s.app.Projects.Create(memberCtx, &projectmodels.CreateProjectRequest{Title: "Gone"})
	s.Require().NoError(err)
	_, err = s.app.Projects.Create(s.as(s.root), &projectmodels.CreateProjectRequest{Title: "Elsewhere"})
	s.Require().NoError(err)
	s.Require().NoError(s.app.Projects.Delete(s.as(s.admin), gone.ID))

	adminView, err := s.app.Audit.List(s.ctx, s.admin.Identity(), auditmodels.Filter{})
	s.Require().NoError(err)
	s.Require().Len(adminView, 1)
	s.Equal(kept.ID.String(), adminView[0].EntityID)

	rootView, err := s.app.Audit.Recent(s.ctx, s.root.Identity(), 0)
	s.Require().NoError(err)
	s.Len(rootView, 4)
	s.Equal(auditmodels.ActionDelete, rootView[0].Action)
}

func (s *AuditTrailSuite) TestRemovedCreatorKeepsHistory() {
	project, err := s.app.Projects.Create(s.as(s.member), &projectmodels.CreateProjectRequest{Title: "Orphan"})
	s.Require().NoError(err)

	s.Require().NoError(s.app.Users.Delete(s.as(s.admin), s.member.ID))

	got, err := s.app.Projects.Get(s.as(s.admin), project.ID)
	s.Require().NoError(err)
	s.Nil(got.CreatedBy)
	s.Empty(got.CreatedByName)

	entries, err := s.app.Audit.List(s.ctx, s.root.Identity(), auditmodels.Filter{EntityID: project.ID.String()})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Require().NotNil(entries[0].ActorID)
	s.Equal(s.member.ID, *entries[0].ActorID)
	s.Equal("ana", entries[0].ActorName)
}

func (s *AuditTrailSuite) TestForeignProjectIsHidden() {
	project, err := s.app.Projects.Create(s.as(s.root), &projectmodels.CreateProjectRequest{Title: "Dam", Country: "USA"})
	s.Require().NoError(err)

	title := "Renamed"
	_, err = s.app.Projects.Update(s.as(s.admin), project.ID, &projectmodels.UpdateProjectRequest{Title: &title})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *AuditTrailSuite) TestDeletedAccountTokenStopsWorking() {
	token, err := s.app.Identity.Issue(s.member.ID)
	s.Require().NoError(err)
	_, err = s.app.Identity.Authenticate(s.ctx, token)
	s.Require().NoError(err, "warms the identity cache")

	s.Require().NoError(s.app.Users.Delete(s.as(s.admin), s.member.ID))

	_, err = s.app.Identity.Authenticate(s.ctx, token)
	s.Require().Error(err)
}
