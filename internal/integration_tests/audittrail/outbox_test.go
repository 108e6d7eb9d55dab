//go:build integration

package audittrail

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"projectdesk/internal/app"
	auditmodels "projectdesk/internal/audit/models"
	"projectdesk/internal/audit/outbox"
	auditpostgres "projectdesk/internal/audit/store/postgres"
	"projectdesk/internal/platform/config"
	"projectdesk/internal/platform/kafka"
	"projectdesk/internal/platform/txscope"
	projectmodels "projectdesk/internal/project/models"
	usermodels "projectdesk/internal/user/models"
	"projectdesk/pkg/testutil/containers"
)

func TestOutboxRelayPublishesCommittedEntries(t *testing.T) {
	mgr := containers.GetManager()
	pg := mgr.GetPostgres(t)
	broker := mgr.GetRedpanda(t).Broker
	ctx := context.Background()
	require.NoError(t, pg.Truncate(ctx))

	cfg := config.FromEnv()
	cfg.DatabaseURL = pg.DSN
	cfg.Redis.URL = ""
	a, err := app.New(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	root, err := a.Users.Bootstrap(ctx, &usermodels.CreateUserRequest{
		Username: "root", Email: "root@example.com", Password: "pw", PasswordConfirm: "pw", Country: "USA",
	})
	require.NoError(t, err)
	token, err := a.Identity.Issue(root.ID)
	require.NoError(t, err)
	rootCtx, err := a.Identity.Attach(ctx, token)
	require.NoError(t, err)

	project, err := a.Projects.Create(rootCtx, &projectmodels.CreateProjectRequest{Title: "Canal"})
	require.NoError(t, err)
	require.NoError(t, a.Projects.Delete(rootCtx, project.ID))

	topic := "audit-" + uuid.NewString()
	producer, err := kafka.NewProducer([]string{broker}, topic)
	require.NoError(t, err)
	t.Cleanup(producer.Close)
	require.NoError(t, producer.EnsureTopic(ctx, 1, 1))

	relay := outbox.New(auditpostgres.New(pg.DB), producer, txscope.NewPostgres(pg.DB, 0))
	n, err := relay.DrainOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = relay.DrainOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "published rows are not sent twice")

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	pollCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	var records []*kgo.Record
	for len(records) < 2 {
		fetches := consumer.PollFetches(pollCtx)
		require.NoError(t, pollCtx.Err())
		fetches.EachRecord(func(r *kgo.Record) { records = append(records, r) })
	}

	eventTypes := make([]string, 0, len(records))
	for _, r := range records {
		require.Equal(t, project.ID.String(), string(r.Key))
		headers := map[string]string{}
		for _, h := range r.Headers {
			headers[h.Key] = string(h.Value)
		}
		eventTypes = append(eventTypes, headers["event_type"])

		var entry auditmodels.Entry
		require.NoError(t, json.Unmarshal(r.Value, &entry))
		require.Equal(t, headers["entry_id"], entry.ID.String())
		require.Equal(t, "root", entry.ActorName)
	}
	require.ElementsMatch(t, []string{"project.create", "project.delete"}, eventTypes)
}
