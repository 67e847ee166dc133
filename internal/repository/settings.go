package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"shortlink/internal/dbpool"
)

const selectSettingSQL = `SELECT setting_value FROM global_settings WHERE setting_key = $1`

// SettingsRepository reads string-typed configuration rows.
type SettingsRepository struct {
	pool   *dbpool.Pool
	logger *zap.Logger
}

func NewSettingsRepository(pool *dbpool.Pool, logger *zap.Logger) *SettingsRepository {
	return &SettingsRepository{pool: pool, logger: logger}
}

// Setting returns the value for a settings key, or ErrNotFound.
func (r *SettingsRepository) Setting(ctx context.Context, key string) (string, error) {
	sess, err := r.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("settings: acquire: %w", err)
	}
	defer r.pool.Release(sess)

	var value string
	if err := sess.QueryRow(ctx, selectSettingSQL, key).Scan(&value); err != nil {
		if errors.Is(err, dbpool.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("settings: select %q: %w", key, err)
	}
	return value, nil
}
