package stats

import (
	"context"
	"time"

	"go.uber.org/zap"

	"shortlink/internal/client"
)

const clickInsertSQL = `INSERT INTO link_clicks (short_code, client_ip, clicked_at) VALUES (?, ?, ?)`

// ClickRecorder writes per-redirect click events into ClickHouse for
// analytics. Writes are fire-and-forget; a failed insert never affects
// the redirect itself.
type ClickRecorder struct {
	clickhouse *client.ClickHouseClient
	logger     *zap.Logger
}

func NewClickRecorder(clickhouse *client.ClickHouseClient, logger *zap.Logger) *ClickRecorder {
	return &ClickRecorder{
		clickhouse: clickhouse,
		logger:     logger,
	}
}

func (r *ClickRecorder) RecordClick(shortCode, clientIP string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := r.clickhouse.Exec(ctx, clickInsertSQL, shortCode, clientIP, time.Now().UTC()); err != nil {
			r.logger.Warn("failed to record click event",
				zap.String("short_code", shortCode),
				zap.Error(err))
		}
	}()
}
