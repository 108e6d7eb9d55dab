package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	auditmodels "projectdesk/internal/audit/models"
	identitymodels "projectdesk/internal/identity/models"
	"projectdesk/internal/platform/config"
	projectmodels "projectdesk/internal/project/models"
	usermodels "projectdesk/internal/user/models"
)

// TestTokenToAuditTrail drives a request from a bearer token to the audit trail.
func TestTokenToAuditTrail(t *testing.T) {
	a := NewInMemory(config.FromEnv(), slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	ctx := context.Background()

	root, err := a.Users.Bootstrap(ctx, &usermodels.CreateUserRequest{
		Username: "root", Email: "root@example.com", Password: "pw", PasswordConfirm: "pw", Country: "USA",
	})
	require.NoError(t, err)
	member, err := a.Users.Register(ctx, &usermodels.RegisterRequest{
		Username: "kim", Email: "kim@example.com", Password: "pw", PasswordConfirm: "pw", Country: "Canada",
	})
	require.NoError(t, err)

	memberToken, err := a.Identity.Issue(member.ID)
	require.NoError(t, err)
	memberCtx, err := a.Identity.Attach(ctx, memberToken)
	require.NoError(t, err)

	project, err := a.Projects.Create(memberCtx, &projectmodels.CreateProjectRequest{Title: "Rink", Country: "USA"})
	require.NoError(t, err)
	require.Equal(t, "Canada", project.Country)

	rootToken, err := a.Identity.Issue(root.ID)
	require.NoError(t, err)
	rootIdentity, err := a.Identity.Authenticate(ctx, rootToken)
	require.NoError(t, err)
	require.Equal(t, identitymodels.RoleSuperAdmin, rootIdentity.Role)

	entries, err := a.Audit.Recent(ctx, rootIdentity, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, auditmodels.ActionCreate, entries[0].Action)
	require.Equal(t, "kim", entries[0].ActorName)

	usaAdminView, err := a.Audit.List(ctx, &identitymodels.Identity{
		ID: root.ID, Role: identitymodels.RoleCountryAdmin, Country: "USA", Active: true,
	}, auditmodels.Filter{})
	require.NoError(t, err)
	require.Empty(t, usaAdminView)
}

func TestAuthenticatedResolvesBearerToken(t *testing.T) {
	a := NewInMemory(config.FromEnv(), slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	ctx := context.Background()
	member, err := a.Users.Register(ctx, &usermodels.RegisterRequest{
		Username: "ivo", Email: "ivo@example.com", Password: "pw", PasswordConfirm: "pw", Country: "Chile",
	})
	require.NoError(t, err)
	token, err := a.Identity.Issue(member.ID)
	require.NoError(t, err)

	var me *usermodels.User
	handler := a.Authenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		me, err = a.Users.Me(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NoError(t, err)
	require.Equal(t, member.ID, me.ID)
}
