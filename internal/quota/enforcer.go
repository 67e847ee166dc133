package quota

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"shortlink/internal/dbpool"
	"shortlink/internal/util"
)

const (
	// DefaultGuestDailyCap applies when the settings lookup fails.
	DefaultGuestDailyCap = 5

	capSettingKey     = "MAX_GUEST_LINKS_PER_DAY"
	enabledSettingKey = "MAX_LINK_LIMIT_ENABLED"
)

// The read and the conditional increment are one statement: the insert
// admits the day's first consumption, the conditional update admits
// later ones only while the counter is still under the cap. Zero rows
// affected means the cap was reached before this caller got there, so
// concurrent requests can never over-admit.
const consumeSQL = `
	INSERT INTO guest_daily_quotas (guest_identifier, quota_date, links_created, created_at, updated_at)
	VALUES ($1, $2, 1, NOW(), NOW())
	ON CONFLICT (guest_identifier, quota_date)
	DO UPDATE SET links_created = guest_daily_quotas.links_created + 1, updated_at = NOW()
	WHERE guest_daily_quotas.links_created < $3`

// SettingsReader looks up string settings by key.
type SettingsReader interface {
	Setting(ctx context.Context, key string) (string, error)
}

// Enforcer applies the per-identifier daily creation cap. Database
// failures fail open: the action is permitted and the anomaly logged.
type Enforcer struct {
	pool        *dbpool.Pool
	settings    SettingsReader
	fallbackCap int
	logger      *zap.Logger
}

// NewEnforcer wires the enforcer to the database and the settings table.
// fallbackCap is the cap to apply when the setting is unavailable or
// malformed; a non-positive value selects DefaultGuestDailyCap.
func NewEnforcer(pool *dbpool.Pool, settings SettingsReader, fallbackCap int, logger *zap.Logger) *Enforcer {
	if fallbackCap <= 0 {
		fallbackCap = DefaultGuestDailyCap
	}
	return &Enforcer{pool: pool, settings: settings, fallbackCap: fallbackCap, logger: logger}
}

// TryConsume records one consumption for (identifier, date) unless the
// cap is already reached. At most cap calls return true per pair, under
// any interleaving of concurrent callers.
func (e *Enforcer) TryConsume(ctx context.Context, identifier, date string, cap int) bool {
	if cap <= 0 {
		return false
	}

	sess, err := e.pool.Acquire(ctx)
	if err != nil {
		e.logger.Warn("quota check failed open: no database session",
			util.String("identifier", identifier),
			util.ErrorField(err),
		)
		return true
	}
	defer e.pool.Release(sess)

	affected, err := sess.Exec(ctx, consumeSQL, identifier, date, cap)
	if err != nil {
		e.logger.Warn("quota check failed open: upsert failed",
			util.String("identifier", identifier),
			util.String("date", date),
			util.ErrorField(err),
		)
		return true
	}
	return affected > 0
}

// Allow is the full guest admission check: the global limit toggle, the
// configured cap and one TryConsume for today.
func (e *Enforcer) Allow(ctx context.Context, identifier string) bool {
	if !e.limitEnabled(ctx) {
		return true
	}
	return e.TryConsume(ctx, identifier, Today(), e.DailyCap(ctx))
}

// DailyCap reads the configured cap, falling back to the constructor's
// fallback cap when the lookup fails.
func (e *Enforcer) DailyCap(ctx context.Context) int {
	raw, err := e.settings.Setting(ctx, capSettingKey)
	if err != nil {
		e.logger.Warn("guest cap setting unavailable, using fallback",
			util.Int("fallback", e.fallbackCap),
			util.ErrorField(err),
		)
		return e.fallbackCap
	}
	cap, err := strconv.Atoi(raw)
	if err != nil {
		e.logger.Warn("guest cap setting malformed, using fallback",
			util.String("value", raw),
			util.Int("fallback", e.fallbackCap),
		)
		return e.fallbackCap
	}
	return cap
}

func (e *Enforcer) limitEnabled(ctx context.Context) bool {
	raw, err := e.settings.Setting(ctx, enabledSettingKey)
	if err != nil {
		// Enforcing with the fallback cap is the safer default.
		return true
	}
	return raw != "false"
}

// Today returns the quota date key for the current day.
func Today() string {
	return time.Now().Format("2006-01-02")
}
