package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"shortlink/internal/dbpool"
)

const (
	upsertEndpointHitSQL = `
		INSERT INTO endpoint_stats (endpoint, endpoint_type, hit_count, last_hit_at, last_client_ip)
		VALUES ($1, $2, 1, NOW(), $3)
		ON CONFLICT (endpoint, endpoint_type)
		DO UPDATE SET hit_count = endpoint_stats.hit_count + 1,
		              last_hit_at = NOW(),
		              last_client_ip = $3`

	listEndpointStatsSQL = `
		SELECT endpoint, endpoint_type, hit_count, last_hit_at
		FROM endpoint_stats
		ORDER BY hit_count DESC`
)

// EndpointStat is one aggregated per-endpoint usage row.
type EndpointStat struct {
	Endpoint  string    `json:"endpoint"`
	Method    string    `json:"method"`
	HitCount  int64     `json:"hit_count"`
	LastHitAt time.Time `json:"last_hit_at"`
}

// StatsRepository persists per-endpoint usage counters.
type StatsRepository struct {
	pool   *dbpool.Pool
	logger *zap.Logger
}

func NewStatsRepository(pool *dbpool.Pool, logger *zap.Logger) *StatsRepository {
	return &StatsRepository{pool: pool, logger: logger}
}

// RecordEndpointHit bumps the counter for one endpoint/method pair.
func (r *StatsRepository) RecordEndpointHit(ctx context.Context, endpoint, method, clientIP string) error {
	sess, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("stats: acquire: %w", err)
	}
	defer r.pool.Release(sess)

	if _, err := sess.Exec(ctx, upsertEndpointHitSQL, endpoint, method, clientIP); err != nil {
		return fmt.Errorf("stats: upsert endpoint hit: %w", err)
	}
	return nil
}

// ListEndpointStats returns all usage counters, busiest first.
func (r *StatsRepository) ListEndpointStats(ctx context.Context) ([]EndpointStat, error) {
	sess, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: acquire: %w", err)
	}
	defer r.pool.Release(sess)

	rows, err := sess.Query(ctx, listEndpointStatsSQL)
	if err != nil {
		return nil, fmt.Errorf("stats: list: %w", err)
	}
	defer rows.Close()

	out := make([]EndpointStat, 0)
	for rows.Next() {
		var st EndpointStat
		if err := rows.Scan(&st.Endpoint, &st.Method, &st.HitCount, &st.LastHitAt); err != nil {
			return nil, fmt.Errorf("stats: scan: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stats: list: %w", err)
	}
	return out, nil
}
