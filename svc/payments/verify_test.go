package payments_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/lifecoach/pkg/billing"
	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
	"github.com/dmitrymomot/lifecoach/svc/payments"
)

// Webhook and redirect for the same checkout converge on one state.
func TestWebhookThenVerify_SameSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.account(t, nil)
	sess := subscriptionSession("cs_1", id, "sub_1", nil)

	f.proc.On("ParseWebhook", []byte("payload"), "sig").
		Return(&billing.Event{ID: "evt_1", Kind: billing.EventCheckoutCompleted, Session: sess}, nil).Once()
	f.proc.On("GetCheckoutSession", mock.Anything, "cs_1").Return(sess, nil).Once()
	f.proc.On("GetSubscription", mock.Anything, "sub_1").
		Return(&billing.Subscription{Ref: "sub_1", Status: entitlement.StatusActive}, nil).Twice()

	require.NoError(t, f.svc.HandleWebhook(context.Background(), []byte("payload"), "sig"))
	afterWebhook := f.get(t, id)

	v, err := f.svc.VerifyPayment(context.Background(), payments.VerifyRequest{
		AccountID: id, SessionID: "cs_1", Tier: entitlement.TierPursuit,
	})
	require.NoError(t, err)
	assert.True(t, v.Verified)
	assert.True(t, v.Subscription)
	assert.Equal(t, entitlement.TierPursuit, v.Tier)

	acc := f.get(t, id)
	assert.Equal(t, entitlement.TierPursuit, acc.Tier)
	assert.Equal(t, entitlement.StatusActive, acc.SubscriptionStatus)
	assert.Equal(t, "sub_1", acc.SubscriptionRef)
	assert.Nil(t, acc.GraceUntil)
	assert.True(t, entitlement.HasPremiumAccess(acc, testNow))
	assert.Equal(t, afterWebhook, acc)
}

func TestVerifyPayment_NotPaid(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.account(t, nil)
	before := f.store.Snapshot()

	sess := subscriptionSession("cs_1", id, "", nil)
	sess.PaymentStatus = billing.PaymentUnpaid
	f.proc.On("GetCheckoutSession", mock.Anything, "cs_1").Return(sess, nil).Once()

	v, err := f.svc.VerifyPayment(context.Background(), payments.VerifyRequest{
		AccountID: id, SessionID: "cs_1", Tier: entitlement.TierPursuit,
	})
	require.NoError(t, err)
	assert.False(t, v.Verified)
	assert.Equal(t, before, f.store.Snapshot())
}

func TestVerifyPayment_OneTime(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.account(t, nil)

	f.proc.On("GetCheckoutSession", mock.Anything, "cs_plan").Return(&billing.CheckoutSession{
		ID:              "cs_plan",
		PaymentStatus:   billing.PaymentPaid,
		Mode:            entitlement.ModeOneTime,
		ClientReference: billing.ClientReference(id, entitlement.TierPlan),
	}, nil).Once()

	v, err := f.svc.VerifyPayment(context.Background(), payments.VerifyRequest{
		AccountID: id, SessionID: "cs_plan", Tier: entitlement.TierPlan,
	})
	require.NoError(t, err)
	assert.True(t, v.Verified)
	assert.False(t, v.Subscription)

	acc := f.get(t, id)
	assert.Equal(t, entitlement.TierPlan, acc.Tier)
	assert.False(t, acc.HasSubscription())
	assert.True(t, entitlement.HasPaid(acc))
	assert.False(t, entitlement.HasPremiumAccess(acc, testNow))
}

func TestVerifyPayment_OneTimeNeverDowngrades(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.account(t, activeSubscriber("sub_1"))

	f.proc.On("GetCheckoutSession", mock.Anything, "cs_plan").Return(&billing.CheckoutSession{
		ID:            "cs_plan",
		PaymentStatus: billing.PaymentPaid,
		Mode:          entitlement.ModeOneTime,
		Metadata:      billing.Metadata{AccountID: id, Tier: entitlement.TierPlan, Regeneration: true},
	}, nil).Once()

	_, err := f.svc.VerifyPayment(context.Background(), payments.VerifyRequest{
		AccountID: id, SessionID: "cs_plan", Tier: entitlement.TierPlan,
	})
	require.NoError(t, err)

	acc := f.get(t, id)
	assert.Equal(t, entitlement.TierPursuit, acc.Tier)
	assert.Equal(t, "sub_1", acc.SubscriptionRef)
	assert.Equal(t, entitlement.StatusActive, acc.SubscriptionStatus)
}

func TestVerifyPayment_Regeneration(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.account(t, func(a *entitlement.Account) { a.Tier = entitlement.TierPlan })
	require.NoError(t, f.store.PutResult(context.Background(), entitlement.Result{AccountID: id, RegenerationCount: 2}))

	regen := func(sessionID string) *billing.CheckoutSession {
		return &billing.CheckoutSession{
			ID:            sessionID,
			PaymentStatus: billing.PaymentPaid,
			Mode:          entitlement.ModeOneTime,
			Metadata:      billing.Metadata{AccountID: id, Tier: entitlement.TierPlan, Regeneration: true},
		}
	}
	f.proc.On("GetCheckoutSession", mock.Anything, "cs_a").Return(regen("cs_a"), nil).Twice()
	f.proc.On("GetCheckoutSession", mock.Anything, "cs_b").Return(regen("cs_b"), nil).Once()
	f.proc.On("ParseWebhook", mock.Anything, mock.Anything).
		Return(&billing.Event{Kind: billing.EventCheckoutCompleted, Session: regen("cs_a")}, nil).Once()

	verify := func(sessionID string) {
		v, err := f.svc.VerifyPayment(context.Background(), payments.VerifyRequest{
			AccountID: id, SessionID: sessionID, Tier: entitlement.TierPlan,
		})
		require.NoError(t, err)
		assert.True(t, v.Regeneration)
	}

	verify("cs_a")
	verify("cs_a")
	require.NoError(t, f.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))

	res, ok := f.store.GetResult(context.Background(), id)
	require.True(t, ok)
	assert.Equal(t, 3, res.RegenerationCount)
	assert.Equal(t, testNow, res.LastGeneratedAt)

	verify("cs_b")
	res, _ = f.store.GetResult(context.Background(), id)
	assert.Equal(t, 4, res.RegenerationCount)
}

func TestVerifyPayment_RegenerationRace(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.account(t, nil)
	require.NoError(t, f.store.PutResult(context.Background(), entitlement.Result{AccountID: id}))

	sess := subscriptionSession("cs_1", id, "sub_1", func(m *billing.Metadata) { m.Regeneration = true })
	f.proc.On("GetCheckoutSession", mock.Anything, "cs_1").Return(sess, nil)
	f.proc.On("ParseWebhook", mock.Anything, mock.Anything).
		Return(&billing.Event{Kind: billing.EventCheckoutCompleted, Session: sess}, nil)
	f.proc.On("GetSubscription", mock.Anything, "sub_1").
		Return(&billing.Subscription{Ref: "sub_1", Status: entitlement.StatusActive}, nil)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, err := f.svc.VerifyPayment(context.Background(), payments.VerifyRequest{
					AccountID: id, SessionID: "cs_1", Tier: entitlement.TierPursuit,
				})
				assert.NoError(t, err)
				return
			}
			assert.NoError(t, f.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
		}()
	}
	wg.Wait()

	res, _ := f.store.GetResult(context.Background(), id)
	assert.Equal(t, 1, res.RegenerationCount)
	assert.Equal(t, entitlement.StatusActive, f.get(t, id).SubscriptionStatus)
}

func TestVerifyPayment_NonRenewingFallback(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.account(t, nil)

	f.proc.On("GetCheckoutSession", mock.Anything, "cs_1").
		Return(subscriptionSession("cs_1", id, "sub_1", nil), nil).Once()
	f.proc.On("GetSubscription", mock.Anything, "sub_1").Return(&billing.Subscription{
		Ref:               "sub_1",
		Status:            entitlement.StatusActive,
		CancelAtPeriodEnd: true,
	}, nil).Once()

	_, err := f.svc.VerifyPayment(context.Background(), payments.VerifyRequest{
		AccountID: id, SessionID: "cs_1", Tier: entitlement.TierPursuit,
	})
	require.NoError(t, err)

	acc := f.get(t, id)
	assert.Equal(t, entitlement.StatusCanceled, acc.SubscriptionStatus)
	require.NotNil(t, acc.GraceUntil)
	assert.Equal(t, testNow.Add(30*24*time.Hour), *acc.GraceUntil)
	assert.Equal(t, entitlement.TierPursuit, acc.Tier)
	assert.True(t, entitlement.HasPremiumAccess(acc, testNow))
}

func TestVerifyPayment_Sentinels(t *testing.T) {
	t.Parallel()

	t.Run("free tier", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		id := f.account(t, nil)

		v, err := f.svc.VerifyPayment(context.Background(), payments.VerifyRequest{
			AccountID: id, SessionID: payments.SessionFreeTier, Tier: entitlement.TierPursuit,
		})
		require.NoError(t, err)
		assert.True(t, v.Verified)
		assert.True(t, v.DirectUpdate)
		assert.Equal(t, entitlement.TierPurpose, v.Tier)
		assert.Equal(t, entitlement.TierPurpose, f.get(t, id).Tier)
	})

	t.Run("force active without reference mints one", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		id := f.account(t, nil)

		v, err := f.svc.VerifyPayment(context.Background(), payments.VerifyRequest{
			AccountID: id, SessionID: payments.SessionDirectUpdate, Tier: entitlement.TierPursuit, ForceActive: true,
		})
		require.NoError(t, err)
		assert.True(t, v.Subscription)

		acc := f.get(t, id)
		assert.Equal(t, "subscription-"+id.String(), acc.SubscriptionRef)
		assert.Equal(t, entitlement.StatusActive, acc.SubscriptionStatus)
		assert.True(t, entitlement.HasPremiumAccess(acc, testNow))
	})

	t.Run("refreshes from the stored subscription", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		id := f.account(t, activeSubscriber("sub_1"))
		f.proc.On("GetSubscription", mock.Anything, "sub_1").
			Return(&billing.Subscription{Ref: "sub_1", Status: entitlement.StatusPastDue}, nil).Once()

		_, err := f.svc.VerifyPayment(context.Background(), payments.VerifyRequest{
			AccountID: id, SessionID: payments.SessionDirectUpdate, Tier: entitlement.TierPursuit,
		})
		require.NoError(t, err)
		assert.Equal(t, entitlement.StatusPastDue, f.get(t, id).SubscriptionStatus)
	})

	t.Run("processor failure without force changes nothing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		id := f.account(t, canceledSubscriber("sub_1", testNow.Add(time.Hour)))
		before := f.store.Snapshot()
		f.proc.On("GetSubscription", mock.Anything, "sub_1").Return(nil, errors.New("timeout")).Once()

		_, err := f.svc.VerifyPayment(context.Background(), payments.VerifyRequest{
			AccountID: id, SessionID: payments.SessionDirectUpdate, Tier: entitlement.TierPursuit,
		})
		assert.ErrorIs(t, err, payments.ErrProcessorUnavailable)
		assert.Equal(t, before, f.store.Snapshot())
	})

	t.Run("processor failure with force still activates", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		id := f.account(t, canceledSubscriber("sub_1", testNow.Add(time.Hour)))
		f.proc.On("GetSubscription", mock.Anything, "sub_1").Return(nil, errors.New("timeout")).Once()

		_, err := f.svc.VerifyPayment(context.Background(), payments.VerifyRequest{
			AccountID: id, SessionID: payments.SessionDirectUpdate, Tier: entitlement.TierPursuit, ForceActive: true,
		})
		require.NoError(t, err)

		acc := f.get(t, id)
		assert.Equal(t, "sub_1", acc.SubscriptionRef)
		assert.Equal(t, entitlement.StatusActive, acc.SubscriptionStatus)
		assert.Nil(t, acc.GraceUntil)
	})
}

func TestVerifyPayment_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.account(t, nil)
	ctx := context.Background()

	_, err := f.svc.VerifyPayment(ctx, payments.VerifyRequest{AccountID: id, Tier: entitlement.TierPlan})
	assert.ErrorIs(t, err, payments.ErrMissingSessionID)

	_, err = f.svc.VerifyPayment(ctx, payments.VerifyRequest{AccountID: id, SessionID: "cs_1", Tier: entitlement.TierNone})
	assert.ErrorIs(t, err, payments.ErrUnknownTier)

	f.proc.On("GetCheckoutSession", mock.Anything, "cs_other").
		Return(subscriptionSession("cs_other", uuid.New(), "", nil), nil).Once()
	_, err = f.svc.VerifyPayment(ctx, payments.VerifyRequest{AccountID: id, SessionID: "cs_other", Tier: entitlement.TierPursuit})
	assert.ErrorIs(t, err, payments.ErrSessionMismatch)

	f.proc.On("GetCheckoutSession", mock.Anything, "cs_down").Return(nil, errors.New("503")).Once()
	_, err = f.svc.VerifyPayment(ctx, payments.VerifyRequest{AccountID: id, SessionID: "cs_down", Tier: entitlement.TierPlan})
	assert.ErrorIs(t, err, payments.ErrProcessorUnavailable)

	f.proc.On("GetCheckoutSession", mock.Anything, "cs_sub").
		Return(subscriptionSession("cs_sub", id, "sub_9", nil), nil).Once()
	f.proc.On("GetSubscription", mock.Anything, "sub_9").Return(nil, errors.New("503")).Once()
	_, err = f.svc.VerifyPayment(ctx, payments.VerifyRequest{AccountID: id, SessionID: "cs_sub", Tier: entitlement.TierPursuit})
	assert.ErrorIs(t, err, payments.ErrProcessorUnavailable)
	assert.Equal(t, entitlement.TierNone, f.get(t, id).Tier)
}

func TestVerifyPayment_SessionWithoutTier(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.account(t, nil)

	f.proc.On("GetCheckoutSession", mock.Anything, "cs_bare").Return(&billing.CheckoutSession{
		ID:            "cs_bare",
		PaymentStatus: billing.PaymentPaid,
		Mode:          entitlement.ModeOneTime,
		Metadata:      billing.Metadata{AccountID: id},
	}, nil).Once()

	v, err := f.svc.VerifyPayment(context.Background(), payments.VerifyRequest{
		AccountID: id, SessionID: "cs_bare", Tier: entitlement.TierPlan,
	})
	require.NoError(t, err)
	assert.True(t, v.Verified)
	assert.Equal(t, entitlement.TierPlan, v.Tier)
	assert.Equal(t, entitlement.TierPlan, f.get(t, id).Tier)
}

// An old checkout revisited after cancel and resubscribe must not replace
// the newer subscription, and the sweeper must leave the account alone.
func TestVerifyPayment_StaleSessionAfterResubscribe(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := f.account(t, activeSubscriber("sub_1"))
	oldEnd := testNow.Add(5 * 24 * time.Hour)
	oldSub := &billing.Subscription{Ref: "sub_1", Status: entitlement.StatusActive, CancelAtPeriodEnd: true, PeriodEnd: &oldEnd}

	f.proc.On("CancelAtPeriodEnd", mock.Anything, "sub_1").Return(oldSub, nil).Once()
	_, err := f.svc.Cancel(ctx, id)
	require.NoError(t, err)

	f.proc.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(&billing.CheckoutSession{ID: "cs_2", URL: "https://checkout.example/cs_2"}, nil).Once()
	_, err = f.svc.Resubscribe(ctx, id)
	require.NoError(t, err)

	f.proc.On("GetCheckoutSession", mock.Anything, "cs_2").
		Return(subscriptionSession("cs_2", id, "sub_2", func(m *billing.Metadata) { m.Resubscription = true }), nil).Once()
	f.proc.On("GetSubscription", mock.Anything, "sub_2").
		Return(&billing.Subscription{Ref: "sub_2", Status: entitlement.StatusActive}, nil).Once()
	_, err = f.svc.VerifyPayment(ctx, payments.VerifyRequest{AccountID: id, SessionID: "cs_2", Tier: entitlement.TierPursuit})
	require.NoError(t, err)
	resubscribed := f.get(t, id)
	assert.Equal(t, "sub_2", resubscribed.SubscriptionRef)
	assert.Equal(t, entitlement.StatusActive, resubscribed.SubscriptionStatus)

	f.proc.On("GetCheckoutSession", mock.Anything, "cs_1").Return(subscriptionSession("cs_1", id, "sub_1", nil), nil).Once()
	f.proc.On("GetSubscription", mock.Anything, "sub_1").Return(oldSub, nil).Once()
	v, err := f.svc.VerifyPayment(ctx, payments.VerifyRequest{AccountID: id, SessionID: "cs_1", Tier: entitlement.TierPursuit})
	require.NoError(t, err)
	assert.True(t, v.Verified)

	acc := f.get(t, id)
	assert.Equal(t, "sub_2", acc.SubscriptionRef)
	assert.Equal(t, entitlement.StatusActive, acc.SubscriptionStatus)
	assert.Nil(t, acc.GraceUntil)
	assert.Equal(t, resubscribed, acc)

	_, err = newSweeper(f.store, oldEnd.Add(time.Hour)).Sweep(ctx)
	require.NoError(t, err)
	acc = f.get(t, id)
	assert.Equal(t, entitlement.TierPursuit, acc.Tier)
	assert.Equal(t, "sub_2", acc.SubscriptionRef)
	assert.True(t, entitlement.HasPremiumAccess(acc, oldEnd.Add(time.Hour)))
}
