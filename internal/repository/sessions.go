package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"shortlink/internal/dbpool"
	"shortlink/internal/models"
)

const (
	insertSessionSQL = `INSERT INTO sessions (user_id, session_token, expires_at) VALUES ($1, $2, $3) RETURNING id`
	deleteSessionSQL = `DELETE FROM sessions WHERE session_token = $1`
)

type SessionRepository struct {
	pool   *dbpool.Pool
	logger *zap.Logger
}

func NewSessionRepository(pool *dbpool.Pool, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{pool: pool, logger: logger}
}

// Create persists a freshly minted login session.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	sess, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("sessions: acquire: %w", err)
	}
	defer r.pool.Release(sess)

	row := sess.QueryRow(ctx, insertSessionSQL, session.UserID, session.Token, session.ExpiresAt)
	if err := row.Scan(&session.ID); err != nil {
		return fmt.Errorf("sessions: insert: %w", err)
	}
	return nil
}

// Delete removes a session by its token.
func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	sess, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("sessions: acquire: %w", err)
	}
	defer r.pool.Release(sess)

	if _, err := sess.Exec(ctx, deleteSessionSQL, token); err != nil {
		return fmt.Errorf("sessions: delete: %w", err)
	}
	return nil
}
