package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"projectdesk/internal/project/models"
	id "projectdesk/pkg/domain"
	"projectdesk/pkg/platform/sentinel"
	txcontext "projectdesk/pkg/platform/tx"
)

const selectProject = `
	SELECT p.id, p.title, p.description, p.status, p.country, p.created_by,
		COALESCE(u.username, ''), p.created_at, p.updated_at
	FROM projects p
	LEFT JOIN users u ON u.id = p.created_by`

// Store persists projects. The creator's display name is read through the users
// table so it disappears together with the account.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, project *models.Project) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO projects (id, title, description, status, country, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.UUID(project.ID), project.Title, project.Description, string(project.Status),
		project.Country, nullableUser(project.CreatedBy), project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, projectID id.ProjectID) (*models.Project, error) {
	return s.findOne(ctx, selectProject+` WHERE p.id = $1`, projectID)
}

// FindForUpdate locks the project row until the surrounding transaction ends.
func (s *Store) FindForUpdate(ctx context.Context, projectID id.ProjectID) (*models.Project, error) {
	return s.findOne(ctx, selectProject+` WHERE p.id = $1 FOR UPDATE OF p`, projectID)
}

func (s *Store) findOne(ctx context.Context, query string, projectID id.ProjectID) (*models.Project, error) {
	row := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(projectID))
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find project: %w", err)
	}
	return p, nil
}

func (s *Store) List(ctx context.Context, filter models.ListFilter) ([]*models.Project, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("p.status = $%d", len(args)))
	}
	if filter.Country != "" {
		args = append(args, filter.Country)
		conds = append(conds, fmt.Sprintf("p.country = $%d", len(args)))
	}
	if filter.CreatedBy != nil {
		args = append(args, uuid.UUID(*filter.CreatedBy))
		conds = append(conds, fmt.Sprintf("p.created_by = $%d", len(args)))
	}
	query := selectProject
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY p.created_at DESC, p.id"

	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []*models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// Update writes the mutable fields. Country and creator are never rewritten here.
func (s *Store) Update(ctx context.Context, project *models.Project) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE projects SET title = $2, description = $3, status = $4, updated_at = $5
		WHERE id = $1
	`, uuid.UUID(project.ID), project.Title, project.Description, string(project.Status), project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) Delete(ctx context.Context, projectID id.ProjectID) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, uuid.UUID(projectID))
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return requireAffected(res)
}

// ClearCreator is normally handled by ON DELETE SET NULL; it is exposed so the user
// service can detach projects explicitly before removing the account.
func (s *Store) ClearCreator(ctx context.Context, userID id.UserID) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx,
		`UPDATE projects SET created_by = NULL WHERE created_by = $1`, uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("clear project creator: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*models.Project, error) {
	var (
		p         models.Project
		projectID uuid.UUID
		createdBy uuid.NullUUID
		status    string
	)
	if err := row.Scan(&projectID, &p.Title, &p.Description, &status, &p.Country, &createdBy,
		&p.CreatedByName, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ID = id.ProjectID(projectID)
	p.Status = models.Status(status)
	if createdBy.Valid {
		uid := id.UserID(createdBy.UUID)
		p.CreatedBy = &uid
	}
	return &p, nil
}

func nullableUser(userID *id.UserID) any {
	if userID == nil {
		return nil
	}
	return uuid.UUID(*userID)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
