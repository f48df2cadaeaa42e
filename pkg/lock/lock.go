package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotHeld is returned by a release when the lock expired or was taken over.
var ErrNotHeld = errors.New("lock not held")

// Locker guards work that must run on one instance at a time.
type Locker interface {
	// TryAcquire takes the lock for key without blocking. acquired is false
	// when another holder owns it. The lock expires after ttl even if release
	// is never called, so a crashed holder cannot block others forever.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}
