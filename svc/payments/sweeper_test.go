package payments_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
	"github.com/dmitrymomot/lifecoach/pkg/lock"
	"github.com/dmitrymomot/lifecoach/svc/payments"
)

func newSweeper(store payments.Store, now time.Time, opts ...payments.SweeperOption) *payments.Sweeper {
	catalog := entitlement.NewCatalog(entitlement.Prices{Plan: "price_plan", Subscription: "price_sub"})
	opts = append([]payments.SweeperOption{payments.WithSweeperClock(func() time.Time { return now })}, opts...)
	return payments.NewSweeper(store, catalog, opts...)
}

func TestSweep(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	expired := f.account(t, canceledSubscriber("sub_old", testNow.Add(-time.Hour)))
	inGrace := f.account(t, canceledSubscriber("sub_grace", testNow.Add(time.Hour)))
	active := f.account(t, activeSubscriber("sub_live"))

	sw := newSweeper(f.store, testNow)

	res, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Found)
	assert.Equal(t, 1, res.Downgraded)

	acc := f.get(t, expired)
	assert.Equal(t, entitlement.TierPlan, acc.Tier)
	assert.False(t, acc.HasSubscription())
	assert.Equal(t, entitlement.StatusNone, acc.SubscriptionStatus)
	assert.Nil(t, acc.GraceUntil)

	assert.Equal(t, entitlement.StatusCanceled, f.get(t, inGrace).SubscriptionStatus)
	assert.Equal(t, entitlement.StatusActive, f.get(t, active).SubscriptionStatus)

	// A second pass finds nothing and changes nothing.
	snapshot := f.store.Snapshot()
	res, err = sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payments.SweepResult{}, res)
	assert.Equal(t, snapshot, f.store.Snapshot())
}

func TestSweep_LockHeldElsewhere(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.account(t, canceledSubscriber("sub_old", testNow.Add(-time.Hour)))

	locker := lock.NewMemory()
	release, ok, err := locker.TryAcquire(context.Background(), payments.DefaultSweeperLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	sw := newSweeper(f.store, testNow, payments.WithSweeperLock(locker, "", time.Minute))

	res, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Locked)
	assert.Equal(t, entitlement.TierPursuit, f.get(t, id).Tier)

	require.NoError(t, release(context.Background()))
	res, err = sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Locked)
	assert.Equal(t, 1, res.Downgraded)
}

func TestSweeper_Summary(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.account(t, activeSubscriber("sub_1"))
	f.account(t, activeSubscriber("sub_2"))
	f.account(t, canceledSubscriber("sub_3", testNow.Add(time.Hour)))
	f.account(t, canceledSubscriber("sub_4", testNow.Add(-time.Hour)))
	f.account(t, func(a *entitlement.Account) {
		a.Tier = entitlement.TierPursuit
		a.SubscriptionRef = "sub_5"
		a.SubscriptionStatus = entitlement.StatusPastDue
	})
	f.account(t, func(a *entitlement.Account) { a.Tier = entitlement.TierPlan })

	s, err := newSweeper(f.store, testNow, payments.WithSweeperMetrics(payments.NewMetrics(nil))).Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payments.Summary{Total: 5, Active: 2, Canceled: 1, Expired: 1, Other: 1}, s)
}

func TestSweeper_Run(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.account(t, canceledSubscriber("sub_old", testNow.Add(-time.Hour)))

	sw := newSweeper(f.store, testNow, payments.WithSchedule(payments.EveryInterval(10*time.Millisecond)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	assert.Eventually(t, func() bool {
		acc, err := f.store.Get(context.Background(), id)
		return err == nil && !acc.HasSubscription()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
