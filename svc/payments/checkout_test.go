package payments_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/lifecoach/pkg/billing"
	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
	"github.com/dmitrymomot/lifecoach/svc/payments"
)

func TestCreateCheckout_FreeTier(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.account(t, nil)

	out, err := f.svc.CreateCheckout(context.Background(), id, entitlement.TierPurpose, payments.CheckoutFlags{})
	require.NoError(t, err)

	assert.Equal(t, "https://app.example.com/success?session_id=free-tier&tier=purpose&user_id="+id.String(), out.URL)
	assert.Empty(t, out.SessionID)

	acc := f.get(t, id)
	assert.Equal(t, entitlement.TierPurpose, acc.Tier)
	assert.False(t, entitlement.HasPremiumAccess(acc, testNow))
	f.proc.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
}

func TestCreateCheckout_FreeTierMatchesVerify(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	viaCheckout := f.account(t, nil)
	viaVerify := f.account(t, nil)

	_, err := f.svc.CreateCheckout(context.Background(), viaCheckout, entitlement.TierPurpose, payments.CheckoutFlags{})
	require.NoError(t, err)
	_, err = f.svc.VerifyPayment(context.Background(), payments.VerifyRequest{
		AccountID: viaVerify,
		SessionID: payments.SessionFreeTier,
		Tier:      entitlement.TierPurpose,
	})
	require.NoError(t, err)

	a, b := f.get(t, viaCheckout), f.get(t, viaVerify)
	assert.Equal(t, a.Tier, b.Tier)
	assert.Equal(t, a.SubscriptionRef, b.SubscriptionRef)
	assert.Equal(t, a.SubscriptionStatus, b.SubscriptionStatus)
	assert.Equal(t, a.GraceUntil, b.GraceUntil)
}

func TestCreateCheckout_Subscription(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.account(t, nil)

	f.proc.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req billing.CheckoutRequest) bool {
		return req.PriceRef == "price_sub" &&
			req.Mode == entitlement.ModeSubscription &&
			req.ClientReference == id.String()+":pursuit" &&
			req.CustomerEmail == "coachee@example.com" &&
			req.Metadata.AccountID == id &&
			req.Metadata.Tier == entitlement.TierPursuit &&
			req.Metadata.Subscription &&
			req.Metadata.Regeneration &&
			strings.HasPrefix(req.SuccessURL, "https://app.example.com/success?session_id={CHECKOUT_SESSION_ID}&") &&
			req.CancelURL == "https://app.example.com/cancel?user_id="+id.String()
	})).Return(&billing.CheckoutSession{ID: "cs_1", URL: "https://checkout.example/cs_1"}, nil).Once()

	out, err := f.svc.CreateCheckout(context.Background(), id, entitlement.TierPursuit, payments.CheckoutFlags{Regeneration: true})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/cs_1", out.URL)
	assert.Equal(t, "cs_1", out.SessionID)

	// Nothing changes until the payment is verified.
	assert.Equal(t, entitlement.TierNone, f.get(t, id).Tier)
}

func TestCreateCheckout_OneTimeAndDeferredEmail(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.account(t, nil)

	f.proc.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req billing.CheckoutRequest) bool {
		return req.PriceRef == "price_plan" &&
			req.Mode == entitlement.ModeOneTime &&
			!req.Metadata.Subscription &&
			req.Metadata.DeferredEmail &&
			strings.HasPrefix(req.SuccessURL, "https://app.example.com/payment-success?") &&
			strings.Contains(req.SuccessURL, "email=coachee%40example.com")
	})).Return(&billing.CheckoutSession{ID: "cs_2", URL: "https://checkout.example/cs_2"}, nil).Once()

	_, err := f.svc.CreateCheckout(context.Background(), id, entitlement.TierPlan, payments.CheckoutFlags{DeferredEmail: true})
	require.NoError(t, err)
}

func TestCreateCheckout_Guard(t *testing.T) {
	t.Parallel()

	t.Run("active subscriber is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		id := f.account(t, activeSubscriber("sub_1"))

		_, err := f.svc.CreateCheckout(context.Background(), id, entitlement.TierPursuit, payments.CheckoutFlags{})
		assert.ErrorIs(t, err, payments.ErrAlreadyEntitled)

		_, err = f.svc.CreateCheckout(context.Background(), id, entitlement.TierPlan, payments.CheckoutFlags{})
		assert.ErrorIs(t, err, payments.ErrAlreadyEntitled)
	})

	t.Run("regeneration bypasses the guard", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		id := f.account(t, activeSubscriber("sub_1"))
		f.proc.On("CreateCheckoutSession", mock.Anything, mock.Anything).
			Return(&billing.CheckoutSession{ID: "cs_1", URL: "https://checkout.example/cs_1"}, nil).Once()

		_, err := f.svc.CreateCheckout(context.Background(), id, entitlement.TierPursuit, payments.CheckoutFlags{Regeneration: true})
		assert.NoError(t, err)
	})

	t.Run("resubscription bypasses the guard", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		id := f.account(t, activeSubscriber("sub_1"))
		f.proc.On("CreateCheckoutSession", mock.Anything, mock.Anything).
			Return(&billing.CheckoutSession{ID: "cs_1", URL: "https://checkout.example/cs_1"}, nil).Once()

		_, err := f.svc.CreateCheckout(context.Background(), id, entitlement.TierPursuit, payments.CheckoutFlags{Resubscription: true})
		assert.NoError(t, err)
	})

	t.Run("one-time buyer may buy again", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		id := f.account(t, func(a *entitlement.Account) { a.Tier = entitlement.TierPlan })
		f.proc.On("CreateCheckoutSession", mock.Anything, mock.Anything).
			Return(&billing.CheckoutSession{ID: "cs_1", URL: "https://checkout.example/cs_1"}, nil).Once()

		_, err := f.svc.CreateCheckout(context.Background(), id, entitlement.TierPlan, payments.CheckoutFlags{})
		assert.NoError(t, err)
	})
}

func TestCreateCheckout_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.account(t, nil)

	_, err := f.svc.CreateCheckout(context.Background(), id, entitlement.TierNone, payments.CheckoutFlags{})
	assert.ErrorIs(t, err, payments.ErrUnknownTier)

	_, err = f.svc.CreateCheckout(context.Background(), id, entitlement.Tier("gold"), payments.CheckoutFlags{})
	assert.ErrorIs(t, err, payments.ErrUnknownTier)

	_, err = f.svc.CreateCheckout(context.Background(), uuid.New(), entitlement.TierPlan, payments.CheckoutFlags{})
	assert.ErrorIs(t, err, payments.ErrAccountNotFound)
}

func TestCreateCheckout_ProcessorFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.account(t, nil)
	before := f.store.Snapshot()

	f.proc.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset")).Once()

	_, err := f.svc.CreateCheckout(context.Background(), id, entitlement.TierPlan, payments.CheckoutFlags{})
	assert.ErrorIs(t, err, payments.ErrProcessorUnavailable)
	assert.Equal(t, before, f.store.Snapshot())
}
