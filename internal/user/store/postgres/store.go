package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	identitymodels "projectdesk/internal/identity/models"
	"projectdesk/internal/user/models"
	id "projectdesk/pkg/domain"
	"projectdesk/pkg/platform/sentinel"
	txcontext "projectdesk/pkg/platform/tx"
)

const (
	uniqueViolation = "23505"

	selectUser = `
		SELECT id, username, email, password_hash, role, country, is_active, date_joined
		FROM users`
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, user *models.User) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, country, is_active, date_joined)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.UUID(user.ID), user.Username, user.Email, user.PasswordHash, string(user.Role),
		user.Country, user.Active, user.DateJoined)
	if err != nil {
		return translate(err, "insert user")
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.findOne(ctx, selectUser+` WHERE id = $1`, uuid.UUID(userID))
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, selectUser+` WHERE email = $1`, email)
}

func (s *Store) findOne(ctx context.Context, query string, arg any) (*models.User, error) {
	u, err := scanUser(txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *Store) List(ctx context.Context, filter models.ListFilter) ([]*models.User, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Country != "" {
		args = append(args, filter.Country)
		conds = append(conds, fmt.Sprintf("country = $%d", len(args)))
	}
	if filter.ID != nil {
		args = append(args, uuid.UUID(*filter.ID))
		conds = append(conds, fmt.Sprintf("id = $%d", len(args)))
	}
	query := selectUser
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date_joined DESC, id"

	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *Store) Update(ctx context.Context, user *models.User) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE users SET email = $2, country = $3, is_active = $4, role = $5
		WHERE id = $1
	`, uuid.UUID(user.ID), user.Email, user.Country, user.Active, string(user.Role))
	if err != nil {
		return translate(err, "update user")
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Delete removes the account. projects.created_by is nulled by the foreign key.
func (s *Store) Delete(ctx context.Context, userID id.UserID) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	var (
		u      models.User
		userID uuid.UUID
		role   string
	)
	if err := row.Scan(&userID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.Country, &u.Active, &u.DateJoined); err != nil {
		return nil, err
	}
	u.ID = id.UserID(userID)
	u.Role = identitymodels.Role(role)
	return &u, nil
}

// translate maps a unique violation onto sentinel.ErrConflict.
func translate(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
