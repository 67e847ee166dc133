package dbpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeSession struct {
	id     int
	closed atomic.Bool
}

func (s *fakeSession) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	return 0, nil
}

func (s *fakeSession) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return nil
}

func (s *fakeSession) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return nil, nil
}

func (s *fakeSession) Ping(ctx context.Context) error {
	return nil
}

func (s *fakeSession) Close(ctx context.Context) error {
	s.closed.Store(true)
	return nil
}

func fakeFactory() Factory {
	var next atomic.Int64
	return func(ctx context.Context) (Session, error) {
		return &fakeSession{id: int(next.Add(1))}, nil
	}
}

func newTestPool(t *testing.T, size int, timeout time.Duration) *Pool {
	t.Helper()
	p, err := New(context.Background(), fakeFactory(), size, timeout, zap.NewNop())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return p
}

func TestNewPrepopulates(t *testing.T) {
	p := newTestPool(t, 10, time.Second)
	if p.Idle() != 10 {
		t.Fatalf("expected 10 idle sessions, got %d", p.Idle())
	}
	if p.Borrowed() != 0 {
		t.Fatalf("expected 0 borrowed, got %d", p.Borrowed())
	}
}

func TestNewFailsWhenFactoryFails(t *testing.T) {
	boom := errors.New("dial refused")
	var calls atomic.Int64
	factory := func(ctx context.Context) (Session, error) {
		if calls.Add(1) == 3 {
			return nil, boom
		}
		return &fakeSession{}, nil
	}

	if _, err := New(context.Background(), factory, 5, time.Second, zap.NewNop()); !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
}

func TestAcquireReleaseInvariant(t *testing.T) {
	p := newTestPool(t, 4, time.Second)

	s1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	s2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if s1 == s2 {
		t.Fatal("two acquires returned the same session")
	}
	if got := p.Idle() + p.Borrowed(); got != 4 {
		t.Fatalf("idle+borrowed = %d, want 4", got)
	}

	p.Release(s1)
	p.Release(s2)
	if p.Idle() != 4 || p.Borrowed() != 0 {
		t.Fatalf("after release: idle=%d borrowed=%d", p.Idle(), p.Borrowed())
	}
}

func TestAcquireTimesOutWhenExhausted(t *testing.T) {
	p := newTestPool(t, 2, 100*time.Millisecond)

	a, _ := p.Acquire(context.Background())
	b, _ := p.Acquire(context.Background())
	if a == nil || b == nil {
		t.Fatal("expected two successful acquires")
	}

	start := time.Now()
	_, err := p.Acquire(context.Background())
	elapsed := time.Since(start)

	if !errors.Is(err, ErrPoolTimeout) {
		t.Fatalf("expected ErrPoolTimeout, got %v", err)
	}
	if elapsed < 80*time.Millisecond {
		t.Fatalf("acquire failed too early: %v", elapsed)
	}
	if elapsed > time.Second {
		t.Fatalf("acquire blocked too long: %v", elapsed)
	}
}

func TestAcquireUnblocksOnRelease(t *testing.T) {
	p := newTestPool(t, 1, time.Second)

	held, _ := p.Acquire(context.Background())

	done := make(chan Session)
	go func() {
		s, err := p.Acquire(context.Background())
		if err != nil {
			t.Errorf("waiting acquire failed: %v", err)
		}
		done <- s
	}()

	time.Sleep(20 * time.Millisecond)
	p.Release(held)

	select {
	case s := <-done:
		p.Release(s)
	case <-time.After(time.Second):
		t.Fatal("waiter was never woken by release")
	}
}

func TestReleaseNilIsNoop(t *testing.T) {
	p := newTestPool(t, 2, time.Second)
	p.Release(nil)
	if p.Idle() != 2 || p.Borrowed() != 0 {
		t.Fatalf("nil release changed pool state: idle=%d borrowed=%d", p.Idle(), p.Borrowed())
	}
}

func TestNoHandleDuplicationUnderLoad(t *testing.T) {
	const size = 5
	p := newTestPool(t, size, time.Second)

	var mu sync.Mutex
	inUse := make(map[Session]bool)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				s, err := p.Acquire(context.Background())
				if err != nil {
					t.Errorf("acquire: %v", err)
					return
				}
				mu.Lock()
				if inUse[s] {
					t.Error("session handed to two concurrent callers")
				}
				inUse[s] = true
				mu.Unlock()

				mu.Lock()
				delete(inUse, s)
				mu.Unlock()
				p.Release(s)
			}
		}()
	}
	wg.Wait()

	if got := p.Idle() + p.Borrowed(); got != size {
		t.Fatalf("idle+borrowed = %d, want %d", got, size)
	}
}

func TestCloseClosesIdleSessions(t *testing.T) {
	p := newTestPool(t, 3, time.Second)

	var held []Session
	s, _ := p.Acquire(context.Background())
	held = append(held, s)

	p.Close(context.Background())
	if p.Idle() != 0 {
		t.Fatalf("expected no idle sessions after close, got %d", p.Idle())
	}
	for _, h := range held {
		p.Release(h)
	}
}
