package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"shortlink/internal/dbpool"
	"shortlink/internal/models"
)

const (
	selectUserByGoogleIDSQL = `SELECT id, google_id, email, name, created_at FROM users WHERE google_id = $1`
	insertUserSQL           = `INSERT INTO users (google_id, email, name) VALUES ($1, $2, $3) RETURNING id, created_at`
	countUsersSQL           = `SELECT COUNT(*) FROM users`
)

type UserRepository struct {
	pool   *dbpool.Pool
	logger *zap.Logger
}

func NewUserRepository(pool *dbpool.Pool, logger *zap.Logger) *UserRepository {
	return &UserRepository{pool: pool, logger: logger}
}

// FindByGoogleID returns the user bound to a Google subject, or ErrNotFound.
func (r *UserRepository) FindByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	sess, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("users: acquire: %w", err)
	}
	defer r.pool.Release(sess)

	var user models.User
	row := sess.QueryRow(ctx, selectUserByGoogleIDSQL, googleID)
	if err := row.Scan(&user.ID, &user.GoogleID, &user.Email, &user.Name, &user.CreatedAt); err != nil {
		if errors.Is(err, dbpool.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users: select by google id: %w", err)
	}
	return &user, nil
}

// Create inserts a new user and fills in its generated fields.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	sess, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("users: acquire: %w", err)
	}
	defer r.pool.Release(sess)

	row := sess.QueryRow(ctx, insertUserSQL, user.GoogleID, user.Email, user.Name)
	if err := row.Scan(&user.ID, &user.CreatedAt); err != nil {
		return fmt.Errorf("users: insert: %w", err)
	}
	return nil
}

// Count returns the number of registered users.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	sess, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("users: acquire: %w", err)
	}
	defer r.pool.Release(sess)

	var n int64
	if err := sess.QueryRow(ctx, countUsersSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("users: count: %w", err)
	}
	return n, nil
}
