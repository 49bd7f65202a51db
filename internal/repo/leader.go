package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// leaderConn — соединение, на котором живёт advisory lock. Блокировка
// session-scoped: unlock обязан выполниться в той же сессии, поэтому
// соединение закреплено за лидером на всё время лидерства, а не
// возвращается в пул после каждого запроса.
type leaderConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Release()
}

// LeaderLock — выборы лидера через pg_try_advisory_lock по фиксированному
// ключу. Экземпляров процесса может быть несколько; лидером становится
// тот, кто первым взял блокировку, остальные периодически переспрашивают.
type LeaderLock struct {
	acquire func(ctx context.Context) (leaderConn, error)
	key     int64
	conn    leaderConn
}

// NewLeaderLock создаёт LeaderLock поверх пула.
func NewLeaderLock(pool *pgxpool.Pool, key int64) *LeaderLock {
	return &LeaderLock{
		acquire: func(ctx context.Context) (leaderConn, error) {
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		key: key,
	}
}

// TryAcquire пытается стать лидером. Возвращает true, если блокировка
// взята (или уже была взята ранее). При отказе соединение сразу
// возвращается в пул.
func (l *LeaderLock) TryAcquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return true, nil
	}

	conn, err := l.acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, "select pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

// Release снимает блокировку на том же соединении и возвращает его в пул.
// Повторный вызов безопасен.
func (l *LeaderLock) Release(ctx context.Context) {
	if l.conn == nil {
		return
	}
	_, _ = l.conn.Exec(ctx, "select pg_advisory_unlock($1)", l.key)
	l.conn.Release()
	l.conn = nil
}
