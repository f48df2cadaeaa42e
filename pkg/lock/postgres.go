package lock

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Locker with session-level advisory locks. The lock is
// tied to a pooled connection held until release; ttl is not enforced by
// PostgreSQL, the lock ends with the session instead.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates an advisory-lock locker on pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (l *Postgres) TryAcquire(ctx context.Context, key string, _ time.Duration) (func(context.Context) error, bool, error) {
	id := advisoryKey(key)

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock connection for %s: %w", key, err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock %s: %w", key, err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	var once sync.Once
	release := func(ctx context.Context) error {
		err := ErrNotHeld
		once.Do(func() {
			defer conn.Release()
			var unlocked bool
			if qErr := conn.QueryRow(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", id).Scan(&unlocked); qErr != nil {
				err = fmt.Errorf("advisory unlock %s: %w", key, qErr)
				return
			}
			if unlocked {
				err = nil
			}
		})
		return err
	}
	return release, true, nil
}

// advisoryKey hashes key into the non-negative int64 space with FNV-1a.
func advisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF) //nolint:gosec // masked to non-negative range
}
