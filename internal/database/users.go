package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jason-s-yu/codincod/internal/models"
)

const uniqueViolation = "23505"

// CreateUser inserts user. The password must already be hashed.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id
	}

	q := `INSERT INTO users (id, nickname, email, password)
	      VALUES ($1, $2, $3, $4)
	      RETURNING created_at`
	err := s.pool.QueryRow(ctx, q, user.ID, user.Nickname, user.Email, user.Password).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: nickname or email already taken", models.ErrInvalidOperation)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

const userColumns = `id, nickname, email, password, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Nickname, &u.Email, &u.Password, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByLogin finds a user by nickname or email.
func (s *Store) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE nickname=$1 OR email=$1 LIMIT 1`, login))
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", login, err)
	}
	return u, nil
}

// User satisfies the room resolver and the user cache loader.
func (s *Store) User(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.GetUserByID(ctx, id)
}

// SearchUsersByNickname returns up to limit users whose nickname starts with
// prefix, case-insensitively, ordered by nickname.
func (s *Store) SearchUsersByNickname(ctx context.Context, prefix string, limit int) ([]*models.User, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE nickname ILIKE $1 ORDER BY nickname LIMIT $2`,
		escaped+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
