package dbpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shortlink/internal/util"
)

// ErrPoolTimeout is returned by Acquire when every session stayed borrowed
// for the whole acquire window. Callers must treat it as a transient
// service-unavailable condition, not a permanent failure.
var ErrPoolTimeout = errors.New("dbpool: acquire timed out waiting for a free session")

// Row is the single-row scan result of a query.
type Row interface {
	Scan(dest ...any) error
}

// Rows is a multi-row result set.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Session is one live database connection. A Session is owned by exactly
// one caller between Acquire and Release and must never be shared.
type Session interface {
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Factory establishes one new live Session.
type Factory func(ctx context.Context) (Session, error)

// Pool is a bounded blocking pool of database sessions. At every instant
// idle + borrowed == size; a session handle lives either in the idle
// channel or with exactly one caller.
type Pool struct {
	idle           chan Session
	size           int
	acquireTimeout time.Duration
	borrowed       atomic.Int64
	logger         *zap.Logger
}

// New establishes size sessions up front. If any of them fails the pool is
// not usable and every already-established session is closed again.
func New(ctx context.Context, connect Factory, size int, acquireTimeout time.Duration, logger *zap.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("dbpool: pool size must be positive, got %d", size)
	}
	if acquireTimeout <= 0 {
		acquireTimeout = 5 * time.Second
	}

	p := &Pool{
		idle:           make(chan Session, size),
		size:           size,
		acquireTimeout: acquireTimeout,
		logger:         logger,
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < size; i++ {
		g.Go(func() error {
			sess, err := connect(gctx)
			if err != nil {
				return fmt.Errorf("dbpool: establishing session: %w", err)
			}
			p.idle <- sess
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.drainAndClose(context.Background())
		return nil, err
	}

	logger.Info("connection pool ready",
		util.Int("size", size),
		util.Duration("acquire_timeout", acquireTimeout),
	)
	return p, nil
}

// Acquire hands out an idle session, blocking up to the configured acquire
// timeout when all of them are borrowed.
func (p *Pool) Acquire(ctx context.Context) (Session, error) {
	select {
	case sess := <-p.idle:
		p.borrowed.Add(1)
		return sess, nil
	default:
	}

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case sess := <-p.idle:
		p.borrowed.Add(1)
		return sess, nil
	case <-timer.C:
		return nil, ErrPoolTimeout
	case <-ctx.Done():
		return nil, fmt.Errorf("dbpool: acquire canceled: %w", ctx.Err())
	}
}

// Release returns a borrowed session. Releasing nil is a no-op so cleanup
// paths may call it unconditionally.
func (p *Pool) Release(sess Session) {
	if sess == nil {
		return
	}
	p.borrowed.Add(-1)
	select {
	case p.idle <- sess:
	default:
		// A handle the pool does not have room for was never ours.
		p.logger.Warn("release of a session the pool did not hand out; closing it")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sess.Close(ctx)
	}
}

// Size returns the fixed pool capacity.
func (p *Pool) Size() int {
	return p.size
}

// Idle returns the number of sessions currently available.
func (p *Pool) Idle() int {
	return len(p.idle)
}

// Borrowed returns the number of sessions currently checked out.
func (p *Pool) Borrowed() int {
	return int(p.borrowed.Load())
}

// HealthCheck pings the database through one pooled session.
func (p *Pool) HealthCheck(ctx context.Context) error {
	sess, err := p.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("dbpool: health check acquire: %w", err)
	}
	defer p.Release(sess)

	if err := sess.Ping(ctx); err != nil {
		return fmt.Errorf("dbpool: health check ping: %w", err)
	}
	return nil
}

// Close closes every idle session. Sessions still borrowed when Close is
// called are closed by their holders' Release once the pool drains.
func (p *Pool) Close(ctx context.Context) {
	p.drainAndClose(ctx)
	p.logger.Info("connection pool closed", util.Int("still_borrowed", p.Borrowed()))
}

func (p *Pool) drainAndClose(ctx context.Context) {
	for {
		select {
		case sess := <-p.idle:
			if err := sess.Close(ctx); err != nil {
				p.logger.Warn("failed to close pooled session", util.ErrorField(err))
			}
		default:
			return
		}
	}
}
