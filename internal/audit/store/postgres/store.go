// Package postgres stores audit entries in PostgreSQL.
//
// Append writes the entry and an outbox row through the transaction carried by the
// context, so an entry is visible (and later published) only if the surrounding
// mutation commits.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"projectdesk/internal/audit/models"
	"projectdesk/internal/changes"
	id "projectdesk/pkg/domain"
	txcontext "projectdesk/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, entry *models.Entry) error {
	changesJSON, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}

	var actorID *uuid.UUID
	if entry.ActorID != nil {
		uid := uuid.UUID(*entry.ActorID)
		actorID = &uid
	}

	exec := txcontext.Executor(ctx, s.db)
	err = exec.QueryRowContext(ctx, `
		INSERT INTO audit_entries (id, actor_id, actor_name, action, entity_type, entity_id, changes, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq
	`, uuid.UUID(entry.ID), actorID, entry.ActorName, string(entry.Action),
		entry.EntityType, entry.EntityID, changesJSON, entry.Timestamp,
	).Scan(&entry.Seq)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_outbox (id, entry_id, event_type, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), uuid.UUID(entry.ID), strings.ToLower(entry.EntityType)+"."+string(entry.Action),
		entry.EntityID, payload, time.Now())
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// List evaluates query. With a visibility country, entries are joined against the
// live projects table so entries of deleted projects drop out.
func (s *Store) List(ctx context.Context, query models.Query) ([]*models.Entry, error) {
	var (
		sb   strings.Builder
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sb.WriteString(`
		SELECT a.id, a.seq, a.actor_id, a.actor_name, a.action, a.entity_type, a.entity_id, a.changes, a.timestamp
		FROM audit_entries a`)
	if query.Country != "" {
		sb.WriteString(` JOIN projects p ON p.id::text = a.entity_id AND p.country = ` + arg(query.Country))
	}
	sb.WriteString(` WHERE TRUE`)
	if query.Action != "" {
		sb.WriteString(` AND a.action = ` + arg(string(query.Action)))
	}
	if query.EntityType != "" {
		sb.WriteString(` AND a.entity_type = ` + arg(query.EntityType))
	}
	if query.EntityID != "" {
		sb.WriteString(` AND a.entity_id = ` + arg(query.EntityID))
	}
	sb.WriteString(` ORDER BY a.timestamp DESC, a.seq DESC`)
	if query.Limit > 0 {
		sb.WriteString(` LIMIT ` + arg(query.Limit))
	}

	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*models.Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (*models.Entry, error) {
	var (
		entryID     uuid.UUID
		actorID     uuid.NullUUID
		action      string
		changesJSON []byte
		entry       models.Entry
	)
	if err := rows.Scan(&entryID, &entry.Seq, &actorID, &entry.ActorName, &action,
		&entry.EntityType, &entry.EntityID, &changesJSON, &entry.Timestamp); err != nil {
		return nil, fmt.Errorf("scan audit entry: %w", err)
	}
	entry.ID = id.AuditEntryID(entryID)
	entry.Action = models.Action(action)
	if actorID.Valid {
		uid := id.UserID(actorID.UUID)
		entry.ActorID = &uid
	}
	cs, err := decodeChanges(entry.Action, changesJSON)
	if err != nil {
		return nil, err
	}
	entry.Changes = cs
	return &entry, nil
}

// decodeChanges restores FieldChange values for update entries; create and delete
// snapshots hold raw values.
func decodeChanges(action models.Action, raw []byte) (changes.ChangeSet, error) {
	if action != models.ActionUpdate {
		var cs changes.ChangeSet
		if err := json.Unmarshal(raw, &cs); err != nil {
			return nil, fmt.Errorf("decode audit changes: %w", err)
		}
		return cs, nil
	}
	var fields map[string]changes.FieldChange
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode audit changes: %w", err)
	}
	cs := make(changes.ChangeSet, len(fields))
	for k, v := range fields {
		cs[k] = v
	}
	return cs, nil
}

// PendingOutbox locks up to limit unpublished messages, oldest first. It must run
// inside a transaction; concurrent relays skip rows another relay holds.
func (s *Store) PendingOutbox(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT id, entry_id, event_type, aggregate_id, payload, created_at
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select outbox: %w", err)
	}
	defer rows.Close()

	var msgs []models.OutboxMessage
	for rows.Next() {
		var m models.OutboxMessage
		if err := rows.Scan(&m.ID, &m.EntryID, &m.EventType, &m.Key, &m.Payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return msgs, nil
}

func (s *Store) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE audit_outbox SET published_at = $1 WHERE id::text = ANY($2)
	`, at, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
