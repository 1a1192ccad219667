package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fastygo/segments/domain"
	"github.com/fastygo/segments/repository"
)

type userRepository struct {
	db *sql.DB
}

// NewUserRepository returns a SQLite-backed UserRepository.
func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, email, role, created_at, updated_at FROM users WHERE id = ?`, id)

	var (
		user                 domain.User
		createdAt, updatedAt string
	)
	if err := row.Scan(&user.ID, &user.Email, &user.Role, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	var err error
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("user %d: created_at: %w", user.ID, err)
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("user %d: updated_at: %w", user.ID, err)
	}
	return &user, nil
}

func (r *userRepository) Upsert(ctx context.Context, user *domain.User) error {
	if user == nil || user.ID <= 0 {
		return domain.ErrInvalidPayload
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO users (id, email, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET email = excluded.email, role = excluded.role, updated_at = excluded.updated_at`,
		user.ID, user.Email, user.Role, formatTime(user.CreatedAt), formatTime(user.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
