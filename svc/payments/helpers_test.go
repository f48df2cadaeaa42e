package payments_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/lifecoach/pkg/billing"
	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
	"github.com/dmitrymomot/lifecoach/svc/payments"
)

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutSession), args.Error(1)
}

func (m *mockProcessor) GetCheckoutSession(ctx context.Context, sessionID string) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutSession), args.Error(1)
}

func (m *mockProcessor) GetSubscription(ctx context.Context, ref string) (*billing.Subscription, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// Hand out a copy so callers cannot mutate the fixture.
	sub := *args.Get(0).(*billing.Subscription)
	return &sub, args.Error(1)
}

func (m *mockProcessor) CancelAtPeriodEnd(ctx context.Context, ref string) (*billing.Subscription, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	sub := *args.Get(0).(*billing.Subscription)
	return &sub, args.Error(1)
}

func (m *mockProcessor) ParseWebhook(payload []byte, signature string) (*billing.Event, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Event), args.Error(1)
}

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *payments.Service
	store *payments.MemoryStore
	proc  *mockProcessor
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: payments.NewMemoryStore(),
		proc:  &mockProcessor{},
		now:   testNow,
	}
	cfg := payments.Config{
		Domain:        "https://app.example.com/",
		GraceFallback: 30 * 24 * time.Hour,
	}
	catalog := entitlement.NewCatalog(entitlement.Prices{Plan: "price_plan", Subscription: "price_sub"})
	f.svc = payments.NewService(cfg, catalog, f.proc, f.store,
		payments.WithClock(func() time.Time { return f.now }))

	t.Cleanup(func() { f.proc.AssertExpectations(t) })
	return f
}

// account seeds an account and returns its id.
func (f *fixture) account(t *testing.T, mutate func(a *entitlement.Account)) uuid.UUID {
	t.Helper()
	a := entitlement.Account{
		ID:        uuid.New(),
		Email:     "coachee@example.com",
		Tier:      entitlement.TierNone,
		CreatedAt: testNow.Add(-24 * time.Hour),
	}
	if mutate != nil {
		mutate(&a)
	}
	require.NoError(t, f.store.CreateAccount(context.Background(), a))
	return a.ID
}

func (f *fixture) get(t *testing.T, id uuid.UUID) entitlement.Account {
	t.Helper()
	a, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return a
}

func activeSubscriber(ref string) func(a *entitlement.Account) {
	return func(a *entitlement.Account) {
		a.Tier = entitlement.TierPursuit
		a.SubscriptionRef = ref
		a.SubscriptionStatus = entitlement.StatusActive
	}
}

func canceledSubscriber(ref string, graceUntil time.Time) func(a *entitlement.Account) {
	return func(a *entitlement.Account) {
		a.Tier = entitlement.TierPursuit
		a.SubscriptionRef = ref
		a.MarkCanceled(graceUntil)
	}
}

func subscriptionSession(id string, accountID uuid.UUID, ref string, meta func(m *billing.Metadata)) *billing.CheckoutSession {
	m := billing.Metadata{
		AccountID:    accountID,
		Tier:         entitlement.TierPursuit,
		Subscription: true,
	}
	if meta != nil {
		meta(&m)
	}
	return &billing.CheckoutSession{
		ID:              id,
		PaymentStatus:   billing.PaymentPaid,
		Mode:            entitlement.ModeSubscription,
		SubscriptionRef: ref,
		ClientReference: billing.ClientReference(accountID, entitlement.TierPursuit),
		Metadata:        m,
	}
}

func ptr[T any](v T) *T { return &v }
