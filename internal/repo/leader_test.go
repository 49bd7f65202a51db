package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeLockRow struct {
	granted bool
	err     error
}

func (r fakeLockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*bool)) = r.granted
	return nil
}

type fakeLeaderConn struct {
	granted  bool
	scanErr  error
	queries  []string
	released bool
}

func (c *fakeLeaderConn) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	c.queries = append(c.queries, sql)
	return fakeLockRow{granted: c.granted, err: c.scanErr}
}

func (c *fakeLeaderConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.queries = append(c.queries, sql)
	return pgconn.CommandTag{}, nil
}

func (c *fakeLeaderConn) Release() {
	c.released = true
}

func newTestLock(conn *fakeLeaderConn, acquireErr error) *LeaderLock {
	return &LeaderLock{
		key: 42,
		acquire: func(_ context.Context) (leaderConn, error) {
			if acquireErr != nil {
				return nil, acquireErr
			}
			return conn, nil
		},
	}
}

func TestLeaderLock_AcquireHoldsConnection(t *testing.T) {
	conn := &fakeLeaderConn{granted: true}
	l := newTestLock(conn, nil)

	ok, err := l.TryAcquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected leadership, got ok=%v err=%v", ok, err)
	}

	// Соединение удерживается: advisory lock привязан к сессии
	if conn.released {
		t.Error("connection must stay pinned while leading")
	}

	// Повторный вызов не переигрывает выборы
	ok, err = l.TryAcquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("repeated TryAcquire should stay leader, got ok=%v err=%v", ok, err)
	}
	if len(conn.queries) != 1 {
		t.Errorf("expected a single lock query, got %v", conn.queries)
	}
}

func TestLeaderLock_DeniedReleasesConnection(t *testing.T) {
	conn := &fakeLeaderConn{granted: false}
	l := newTestLock(conn, nil)

	ok, err := l.TryAcquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("lock held elsewhere should not grant leadership")
	}
	if !conn.released {
		t.Error("denied attempt must return the connection to the pool")
	}
}

func TestLeaderLock_ScanErrorReleasesConnection(t *testing.T) {
	conn := &fakeLeaderConn{scanErr: errors.New("db down")}
	l := newTestLock(conn, nil)

	if _, err := l.TryAcquire(context.Background()); err == nil {
		t.Fatal("expected error from failed lock query")
	}
	if !conn.released {
		t.Error("failed attempt must return the connection to the pool")
	}
}

func TestLeaderLock_AcquireConnError(t *testing.T) {
	l := newTestLock(nil, errors.New("pool exhausted"))

	if _, err := l.TryAcquire(context.Background()); err == nil {
		t.Fatal("expected error when no connection is available")
	}
}

func TestLeaderLock_ReleaseUnlocksOnSameConnection(t *testing.T) {
	conn := &fakeLeaderConn{granted: true}
	l := newTestLock(conn, nil)

	if _, err := l.TryAcquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.Release(context.Background())

	// Unlock выполнен на том же соединении, затем оно отпущено
	if len(conn.queries) != 2 || conn.queries[1] != "select pg_advisory_unlock($1)" {
		t.Errorf("expected unlock on the pinned connection, got %v", conn.queries)
	}
	if !conn.released {
		t.Error("connection should be released after unlock")
	}

	// Повторный Release — no-op
	l.Release(context.Background())
	if len(conn.queries) != 2 {
		t.Error("repeated release must not re-run unlock")
	}
}
