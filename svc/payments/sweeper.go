package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
	"github.com/dmitrymomot/lifecoach/pkg/lock"
	"github.com/dmitrymomot/lifecoach/pkg/logger"
)

// DefaultSweeperLockKey guards sweeps across instances.
const DefaultSweeperLockKey = "lifecoach:sweeper"

var errNotExpired = errors.New("account no longer expired")

// Sweeper downgrades accounts whose canceled subscription ran past its
// grace period.
type Sweeper struct {
	store    Store
	catalog  entitlement.Catalog
	schedule Schedule
	locker   lock.Locker
	lockKey  string
	lockTTL  time.Duration
	metrics  *Metrics
	log      *slog.Logger
	now      func() time.Time
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSchedule sets when Run sweeps. Defaults to daily at 03:00 UTC.
func WithSchedule(s Schedule) SweeperOption {
	return func(sw *Sweeper) {
		if s != nil {
			sw.schedule = s
		}
	}
}

// WithSweeperLock makes each sweep take key on l first and skip when
// another instance holds it.
func WithSweeperLock(l lock.Locker, key string, ttl time.Duration) SweeperOption {
	return func(sw *Sweeper) {
		sw.locker = l
		if key != "" {
			sw.lockKey = key
		}
		if ttl > 0 {
			sw.lockTTL = ttl
		}
	}
}

// WithSweeperLogger sets the logger.
func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(sw *Sweeper) {
		if l != nil {
			sw.log = l
		}
	}
}

// WithSweeperMetrics records sweeps into m.
func WithSweeperMetrics(m *Metrics) SweeperOption {
	return func(sw *Sweeper) { sw.metrics = m }
}

// WithSweeperClock overrides the time source.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(sw *Sweeper) {
		if now != nil {
			sw.now = now
		}
	}
}

// NewSweeper creates a sweeper over store.
func NewSweeper(store Store, catalog entitlement.Catalog, opts ...SweeperOption) *Sweeper {
	if store == nil {
		panic("payments: store is required")
	}
	sw := &Sweeper{
		store:    store,
		catalog:  catalog,
		schedule: DailyAt(3, 0),
		lockKey:  DefaultSweeperLockKey,
		lockTTL:  10 * time.Minute,
		log:      slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(sw)
	}
	sw.log = sw.log.With(logger.Component("sweeper"))
	return sw
}

// SweepResult reports one sweep.
type SweepResult struct {
	Found      int  `json:"found"`
	Downgraded int  `json:"users_downgraded"`
	Skipped    int  `json:"skipped"`
	Failed     int  `json:"failed"`
	Locked     bool `json:"locked"` // another instance was sweeping
}

// Sweep downgrades every expired account, each in its own transaction.
// Each candidate is re-checked under its row lock, so an account renewed
// after the query is left alone. A failure on one account does not stop the
// others; rerunning picks up whatever is still expired.
func (sw *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	if sw.locker != nil {
		release, acquired, err := sw.locker.TryAcquire(ctx, sw.lockKey, sw.lockTTL)
		if err != nil {
			return res, err
		}
		if !acquired {
			sw.log.InfoContext(ctx, "sweep skipped, lock held elsewhere")
			res.Locked = true
			return res, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				sw.log.WarnContext(ctx, "sweeper lock release failed", logger.Error(err))
			}
		}()
	}

	now := sw.now().UTC()
	ids, err := sw.store.ListExpired(ctx, now)
	if err != nil {
		return res, err
	}
	res.Found = len(ids)

	var errs []error
	for _, id := range ids {
		if err := sw.downgrade(ctx, id, now); err != nil {
			switch {
			case errors.Is(err, errNotExpired), errors.Is(err, ErrAccountNotFound):
				res.Skipped++
			default:
				res.Failed++
				errs = append(errs, err)
				sw.log.ErrorContext(ctx, "downgrade failed", logger.AccountID(id), logger.Error(err))
			}
			continue
		}
		res.Downgraded++
	}

	sw.metrics.swept(res.Downgraded, res.Failed)
	sw.log.InfoContext(ctx, "sweep finished",
		slog.Int("found", res.Found),
		slog.Int("downgraded", res.Downgraded),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed))
	return res, errors.Join(errs...)
}

func (sw *Sweeper) downgrade(ctx context.Context, id uuid.UUID, now time.Time) error {
	subTier := sw.catalog.SubscriptionTier().Tier
	acc, err := sw.store.Update(ctx, id, func(tx Tx) error {
		a := tx.Account()
		if !expired(*a, now) {
			return errNotExpired
		}
		downgrade(a, subTier, now)
		return nil
	})
	if err != nil {
		return err
	}
	sw.log.InfoContext(ctx, "grace period ended, account downgraded",
		logger.AccountID(id),
		logger.Tier(acc.Tier))
	return nil
}

// Summary counts subscribed accounts by status and publishes the gauges.
func (sw *Sweeper) Summary(ctx context.Context) (Summary, error) {
	s, err := sw.store.Summary(ctx, sw.now().UTC())
	if err != nil {
		return Summary{}, err
	}
	sw.metrics.summary(s)
	return s, nil
}

// Run sweeps on the schedule until ctx is done and returns ctx.Err().
func (sw *Sweeper) Run(ctx context.Context) error {
	sw.log.InfoContext(ctx, "sweeper started", slog.String("schedule", sw.schedule.String()))

	for {
		now := sw.now()
		timer := time.NewTimer(sw.schedule.Next(now).Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			sw.log.InfoContext(ctx, "sweeper shutting down")
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := sw.Sweep(ctx); err != nil {
			sw.log.ErrorContext(ctx, "sweep failed", logger.Error(err))
		}
		if _, err := sw.Summary(ctx); err != nil {
			sw.log.ErrorContext(ctx, "subscription summary failed", logger.Error(err))
		}
	}
}
