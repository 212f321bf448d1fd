package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for a duplicate key
const uniqueViolation = "23505"

const userColumns = `id, email, password_hash, created_at, updated_at`

// PostgresRepository stores analysts in the users table
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts user with a fresh ID. An email that is already registered
// yields ErrUserExists, including when a concurrent registration wins.
func (r *PostgresRepository) Create(ctx context.Context, user *User) error {
	id := uuid.New().String()

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query, id, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user %s: %w", user.Email, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Email, err)
	}
	if inserted == 0 {
		return ErrUserExists
	}

	user.ID = id
	return nil
}

// GetByID retrieves an analyst by ID
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getOne(ctx, "id", id)
}

// GetByEmail retrieves an analyst by normalized email address
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, "email", email)
}

// getOne reads the single user whose column equals value. column is
// always a literal from this file.
func (r *PostgresRepository) getOne(ctx context.Context, column, value string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`

	var user User
	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get user by %s: %w", column, err)
	}

	return &user, nil
}
