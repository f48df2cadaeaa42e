package billing

import (
	"context"
	"time"

	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
)

// Processor is the payment processor boundary.
// Implementations must be safe for concurrent use and must not keep any
// process-global client state.
type Processor interface {
	// CreateCheckoutSession creates a hosted checkout session.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// GetCheckoutSession retrieves the authoritative state of a checkout session.
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// GetSubscription retrieves a subscription by its processor reference.
	GetSubscription(ctx context.Context, ref string) (*Subscription, error)

	// CancelAtPeriodEnd stops auto-renewal; the subscription stays live until its period end.
	CancelAtPeriodEnd(ctx context.Context, ref string) (*Subscription, error)

	// ParseWebhook verifies the signature and decodes the event envelope.
	// Returns an error wrapping ErrWebhookSignature or ErrWebhookPayload on rejection.
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// CheckoutRequest contains data needed to create a checkout session.
type CheckoutRequest struct {
	PriceRef        string
	Mode            entitlement.BillingMode
	SuccessURL      string
	CancelURL       string
	ClientReference string // "<account>:<tier>" correlation token
	CustomerEmail   string
	Metadata        Metadata
}

// PaymentStatus is the payment state of a checkout session.
type PaymentStatus string

const (
	PaymentPaid              PaymentStatus = "paid"
	PaymentUnpaid            PaymentStatus = "unpaid"
	PaymentNoPaymentRequired PaymentStatus = "no_payment_required"
)

// CheckoutSession is a processor-hosted purchase attempt.
type CheckoutSession struct {
	ID              string
	URL             string
	PaymentStatus   PaymentStatus
	Mode            entitlement.BillingMode
	SubscriptionRef string
	ClientReference string
	Metadata        Metadata
}

// Paid reports whether the processor settled the session.
func (s *CheckoutSession) Paid() bool { return s.PaymentStatus == PaymentPaid }

// Subscription is the processor's view of a recurring charge.
type Subscription struct {
	Ref               string
	Status            entitlement.SubscriptionStatus
	PeriodEnd         *time.Time // nil when the processor omits it
	CancelAtPeriodEnd bool
}

// NonRenewing reports whether the subscription ends instead of renewing.
func (s *Subscription) NonRenewing() bool {
	return s.Status == entitlement.StatusCanceled || s.CancelAtPeriodEnd
}

// Live reports whether the subscription renews in good standing.
func (s *Subscription) Live() bool {
	if s.NonRenewing() {
		return false
	}
	return s.Status == entitlement.StatusActive || s.Status == entitlement.StatusTrialing
}

// EventKind is the closed set of webhook events this system reacts to.
type EventKind string

const (
	EventCheckoutCompleted   EventKind = "checkout_completed"
	EventSubscriptionUpdated EventKind = "subscription_updated"
	EventSubscriptionDeleted EventKind = "subscription_deleted"
	EventUnhandled           EventKind = "unhandled"
)

// Event is a verified webhook delivery.
// Session is set for EventCheckoutCompleted, Subscription for the subscription kinds.
type Event struct {
	ID           string
	Kind         EventKind
	ProviderType string // original processor event name
	Session      *CheckoutSession
	Subscription *Subscription
}
