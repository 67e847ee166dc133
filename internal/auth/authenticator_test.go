package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"shortlink/internal/admission"
	"shortlink/internal/dbpool"
)

// sessionTable is shared backing state for every pooled fake session.
type sessionTable struct {
	mu       sync.Mutex
	byToken  map[string]int64
	queryErr error
	queries  int
	deleted  []string
}

func (tb *sessionTable) queryCount() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.queries
}

func (tb *sessionTable) deletedTokens() []string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return append([]string(nil), tb.deleted...)
}

type fakeRow struct {
	userID int64
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.userID
	return nil
}

type fakeDBSession struct {
	table *sessionTable
}

func (s *fakeDBSession) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	return 0, errors.New("not implemented")
}

func (s *fakeDBSession) QueryRow(ctx context.Context, sql string, args ...any) dbpool.Row {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()
	s.table.queries++
	if s.table.queryErr != nil {
		return fakeRow{err: s.table.queryErr}
	}
	if uid, ok := s.table.byToken[args[0].(string)]; ok {
		return fakeRow{userID: uid}
	}
	return fakeRow{err: dbpool.ErrNoRows}
}

func (s *fakeDBSession) Query(ctx context.Context, sql string, args ...any) (dbpool.Rows, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeDBSession) Ping(ctx context.Context) error { return nil }

func (s *fakeDBSession) Close(ctx context.Context) error { return nil }

// tableDeleter removes session rows from the shared table the way the
// session repository removes them from postgres.
type tableDeleter struct {
	table *sessionTable
}

func (d *tableDeleter) Delete(ctx context.Context, token string) error {
	d.table.mu.Lock()
	defer d.table.mu.Unlock()
	d.table.deleted = append(d.table.deleted, token)
	delete(d.table.byToken, token)
	return nil
}

func newAuthFixture(t *testing.T, table *sessionTable) *SessionAuthenticator {
	t.Helper()
	factory := func(ctx context.Context) (dbpool.Session, error) {
		return &fakeDBSession{table: table}, nil
	}
	pool, err := dbpool.New(context.Background(), factory, 2, 50*time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return NewSessionAuthenticator(pool, &tableDeleter{table: table}, zap.NewNop())
}

func TestResolveEmptyToken(t *testing.T) {
	table := &sessionTable{byToken: map[string]int64{}}
	a := newAuthFixture(t, table)

	rc := a.Resolve(context.Background(), "")
	if rc != admission.Guest() {
		t.Fatalf("expected guest context, got %+v", rc)
	}
	if table.queryCount() != 0 {
		t.Fatal("empty token must not hit the database")
	}
}

func TestResolveValidSession(t *testing.T) {
	table := &sessionTable{byToken: map[string]int64{"tok-user": 42}}
	a := newAuthFixture(t, table)

	rc := a.Resolve(context.Background(), "tok-user")
	want := admission.RequestContext{IsAuthenticated: true, UserID: 42, Role: admission.RoleUser}
	if rc != want {
		t.Fatalf("got %+v, want %+v", rc, want)
	}
}

func TestResolveAdminSession(t *testing.T) {
	table := &sessionTable{byToken: map[string]int64{"tok-admin": 1}}
	a := newAuthFixture(t, table)

	rc := a.Resolve(context.Background(), "tok-admin")
	if rc.Role != admission.RoleAdmin {
		t.Fatalf("user id 1 must resolve to admin, got %+v", rc)
	}
}

func TestResolveUnknownTokenCleansUp(t *testing.T) {
	table := &sessionTable{byToken: map[string]int64{}}
	a := newAuthFixture(t, table)

	rc := a.Resolve(context.Background(), "tok-stale")
	if rc != admission.Guest() {
		t.Fatalf("expected guest context, got %+v", rc)
	}

	// The stale row delete runs async; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		deleted := table.deletedTokens()
		if len(deleted) == 1 && deleted[0] == "tok-stale" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("stale session was never cleaned up")
}

func TestResolveQueryErrorFailsOpen(t *testing.T) {
	table := &sessionTable{
		byToken:  map[string]int64{"tok-user": 42},
		queryErr: errors.New("connection reset"),
	}
	a := newAuthFixture(t, table)

	rc := a.Resolve(context.Background(), "tok-user")
	if rc != admission.Guest() {
		t.Fatalf("database failure must degrade to guest, got %+v", rc)
	}
}

func TestResolvePoolExhaustedFailsOpen(t *testing.T) {
	table := &sessionTable{byToken: map[string]int64{"tok-user": 42}}
	factory := func(ctx context.Context) (dbpool.Session, error) {
		return &fakeDBSession{table: table}, nil
	}
	pool, err := dbpool.New(context.Background(), factory, 1, 50*time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	a := NewSessionAuthenticator(pool, &tableDeleter{table: table}, zap.NewNop())

	held, _ := pool.Acquire(context.Background())
	defer pool.Release(held)

	rc := a.Resolve(context.Background(), "tok-user")
	if rc != admission.Guest() {
		t.Fatalf("pool exhaustion must degrade to guest, got %+v", rc)
	}
}
