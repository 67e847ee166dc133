package dbpool

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNoRows is the no-result sentinel surfaced by QueryRow scans.
var ErrNoRows = pgx.ErrNoRows

type pgxSession struct {
	conn *pgx.Conn
}

// PgxFactory returns a Factory dialing one Postgres connection per session.
// A *pgx.Conn is not safe for concurrent use, which is exactly why it is
// pooled here instead of shared.
func PgxFactory(connString string) Factory {
	return func(ctx context.Context) (Session, error) {
		conn, err := pgx.Connect(ctx, connString)
		if err != nil {
			return nil, fmt.Errorf("dbpool: connect postgres: %w", err)
		}
		return &pgxSession{conn: conn}, nil
	}
}

func (s *pgxSession) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := s.conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *pgxSession) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return s.conn.QueryRow(ctx, sql, args...)
}

func (s *pgxSession) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *pgxSession) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *pgxSession) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}
