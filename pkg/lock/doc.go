// Package lock provides non-blocking mutual exclusion across instances.
//
// The expiration sweeper takes a lock before each run so that only one
// replica downgrades lapsed subscriptions at a time. Three backends implement
// Locker:
//
//   - Memory for single-process deployments and tests
//   - Redis using SET NX with a token-checked release script
//   - Postgres using pg_try_advisory_lock on a dedicated pooled connection
//
// A lost lock is not a correctness problem for the sweeper since every
// downgrade re-checks its predicate under a row lock; the lock only avoids
// duplicate work.
//
//	release, ok, err := locker.TryAcquire(ctx, "sweeper", 10*time.Minute)
//	if err != nil || !ok {
//		return err
//	}
//	defer release(ctx)
package lock
