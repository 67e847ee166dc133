package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"shortlink/internal/dbpool"
	"shortlink/internal/models"
)

const (
	insertLinkSQL = `
		INSERT INTO shortened_links (original_url, short_code, user_id, guest_identifier, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	selectLinkByCodeSQL = `
		SELECT id, original_url, short_code, user_id, guest_identifier,
		       is_favourite, clicks, expires_at, created_at
		FROM shortened_links
		WHERE short_code = $1 AND expires_at > NOW()`

	incrementClicksSQL = `UPDATE shortened_links SET clicks = clicks + 1 WHERE short_code = $1`

	listLinksByUserSQL = `
		SELECT id, original_url, short_code, user_id, guest_identifier,
		       is_favourite, clicks, expires_at, created_at
		FROM shortened_links
		WHERE user_id = $1
		ORDER BY created_at DESC`

	setFavouriteSQL = `
		UPDATE shortened_links SET is_favourite = $3
		WHERE short_code = $1 AND user_id = $2`

	deleteLinkSQL = `DELETE FROM shortened_links WHERE short_code = $1 AND user_id = $2`

	countLinksSQL = `SELECT COUNT(*), COALESCE(SUM(clicks), 0) FROM shortened_links`
)

const pgUniqueViolation = "23505"

type LinkRepository struct {
	pool   *dbpool.Pool
	logger *zap.Logger
}

func NewLinkRepository(pool *dbpool.Pool, logger *zap.Logger) *LinkRepository {
	return &LinkRepository{pool: pool, logger: logger}
}

// Create inserts a new link and fills in its generated fields. Returns
// ErrDuplicate when the short code is already taken.
func (r *LinkRepository) Create(ctx context.Context, link *models.Link) error {
	sess, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("links: acquire: %w", err)
	}
	defer r.pool.Release(sess)

	row := sess.QueryRow(ctx, insertLinkSQL,
		link.OriginalURL, link.ShortCode, link.UserID, link.GuestIdentifier, link.ExpiresAt)
	if err := row.Scan(&link.ID, &link.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("links: insert: %w", err)
	}
	return nil
}

// GetByShortCode returns a live (non-expired) link or ErrNotFound.
func (r *LinkRepository) GetByShortCode(ctx context.Context, shortCode string) (*models.Link, error) {
	sess, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("links: acquire: %w", err)
	}
	defer r.pool.Release(sess)

	var link models.Link
	row := sess.QueryRow(ctx, selectLinkByCodeSQL, shortCode)
	err = row.Scan(&link.ID, &link.OriginalURL, &link.ShortCode, &link.UserID,
		&link.GuestIdentifier, &link.IsFavourite, &link.Clicks, &link.ExpiresAt, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, dbpool.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("links: select by code: %w", err)
	}
	return &link, nil
}

// IncrementClicks bumps the click counter for a short code.
func (r *LinkRepository) IncrementClicks(ctx context.Context, shortCode string) error {
	sess, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("links: acquire: %w", err)
	}
	defer r.pool.Release(sess)

	if _, err := sess.Exec(ctx, incrementClicksSQL, shortCode); err != nil {
		return fmt.Errorf("links: increment clicks: %w", err)
	}
	return nil
}

// ListByUser returns all links owned by a user, newest first.
func (r *LinkRepository) ListByUser(ctx context.Context, userID int64) ([]models.Link, error) {
	sess, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("links: acquire: %w", err)
	}
	defer r.pool.Release(sess)

	rows, err := sess.Query(ctx, listLinksByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("links: list by user: %w", err)
	}
	defer rows.Close()

	links := make([]models.Link, 0)
	for rows.Next() {
		var link models.Link
		err := rows.Scan(&link.ID, &link.OriginalURL, &link.ShortCode, &link.UserID,
			&link.GuestIdentifier, &link.IsFavourite, &link.Clicks, &link.ExpiresAt, &link.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("links: scan: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("links: list by user: %w", err)
	}
	return links, nil
}

// SetFavourite flips the favourite flag on a link the user owns. Returns
// false when no owned link matched.
func (r *LinkRepository) SetFavourite(ctx context.Context, shortCode string, userID int64, favourite bool) (bool, error) {
	sess, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("links: acquire: %w", err)
	}
	defer r.pool.Release(sess)

	affected, err := sess.Exec(ctx, setFavouriteSQL, shortCode, userID, favourite)
	if err != nil {
		return false, fmt.Errorf("links: set favourite: %w", err)
	}
	return affected > 0, nil
}

// Delete removes a link the user owns. Returns false when no owned link
// matched.
func (r *LinkRepository) Delete(ctx context.Context, shortCode string, userID int64) (bool, error) {
	sess, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("links: acquire: %w", err)
	}
	defer r.pool.Release(sess)

	affected, err := sess.Exec(ctx, deleteLinkSQL, shortCode, userID)
	if err != nil {
		return false, fmt.Errorf("links: delete: %w", err)
	}
	return affected > 0, nil
}

// Totals returns the link count and accumulated click count.
func (r *LinkRepository) Totals(ctx context.Context) (links, clicks int64, err error) {
	sess, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("links: acquire: %w", err)
	}
	defer r.pool.Release(sess)

	if err := sess.QueryRow(ctx, countLinksSQL).Scan(&links, &clicks); err != nil {
		return 0, 0, fmt.Errorf("links: totals: %w", err)
	}
	return links, clicks, nil
}
