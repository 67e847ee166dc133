package auth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"shortlink/internal/admission"
	"shortlink/internal/dbpool"
	"shortlink/internal/util"
)

// adminUserID is the reserved primary key whose sessions resolve to the
// admin role.
const adminUserID = 1

const sessionLookupSQL = `
	SELECT user_id FROM sessions
	WHERE session_token = $1 AND expires_at > NOW()`

// SessionDeleter removes a session row by token. The session repository
// satisfies it.
type SessionDeleter interface {
	Delete(ctx context.Context, token string) error
}

// SessionAuthenticator resolves bearer tokens against the sessions table.
// Database failures degrade to the guest context: the policy is
// availability over strictness, and it can only ever remove privileges.
type SessionAuthenticator struct {
	pool     *dbpool.Pool
	sessions SessionDeleter
	logger   *zap.Logger
}

func NewSessionAuthenticator(pool *dbpool.Pool, sessions SessionDeleter, logger *zap.Logger) *SessionAuthenticator {
	return &SessionAuthenticator{pool: pool, sessions: sessions, logger: logger}
}

// Resolve maps a bearer token to a request identity. An empty token short
// circuits to the guest context without touching the database. A token
// that no longer matches a live session triggers a best-effort async
// cleanup of the stale row.
func (a *SessionAuthenticator) Resolve(ctx context.Context, token string) admission.RequestContext {
	if token == "" {
		return admission.Guest()
	}

	sess, err := a.pool.Acquire(ctx)
	if err != nil {
		a.logger.Warn("auth lookup degraded to guest: no database session",
			util.ErrorField(err),
		)
		return admission.Guest()
	}
	defer a.pool.Release(sess)

	var userID int64
	err = sess.QueryRow(ctx, sessionLookupSQL, token).Scan(&userID)
	switch {
	case err == nil:
		role := admission.RoleUser
		if userID == adminUserID {
			role = admission.RoleAdmin
		}
		return admission.RequestContext{IsAuthenticated: true, UserID: userID, Role: role}
	case errors.Is(err, dbpool.ErrNoRows):
		go a.deleteStaleSession(token)
		return admission.Guest()
	default:
		a.logger.Warn("auth lookup degraded to guest: query failed",
			util.ErrorField(err),
		)
		return admission.Guest()
	}
}

// deleteStaleSession removes an invalid or expired session row so it is
// not looked up again. Failures are only logged; the request that
// triggered the cleanup has already been answered.
func (a *SessionAuthenticator) deleteStaleSession(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.sessions.Delete(ctx, token); err != nil {
		a.logger.Debug("stale session cleanup failed", util.ErrorField(err))
	}
}
