package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
)

// StripeConfig holds configuration for the Stripe processor.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	Environment   string `env:"STRIPE_ENVIRONMENT" envDefault:"test"` // test or live
}

// StripeProcessor implements Processor on top of a per-instance Stripe client.
type StripeProcessor struct {
	api           *client.API
	webhookSecret string
}

// StripeOption configures a StripeProcessor.
type StripeOption func(*stripeOptions)

type stripeOptions struct {
	backends *stripe.Backends
}

// WithStripeBackends overrides the HTTP backends, e.g. to point the client at a test server.
func WithStripeBackends(b *stripe.Backends) StripeOption {
	return func(o *stripeOptions) {
		if b != nil {
			o.backends = b
		}
	}
}

// NewStripeProcessor creates a Stripe processor.
// The key prefix must match the configured environment so a live secret is
// never used from a test deployment and vice versa.
func NewStripeProcessor(cfg StripeConfig, opts ...StripeOption) (*StripeProcessor, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookKey
	}
	if err := checkKeyEnvironment(cfg.SecretKey, cfg.Environment); err != nil {
		return nil, err
	}

	o := &stripeOptions{}
	for _, opt := range opts {
		opt(o)
	}

	return &StripeProcessor{
		api:           client.New(cfg.SecretKey, o.backends),
		webhookSecret: cfg.WebhookSecret,
	}, nil
}

func checkKeyEnvironment(key, env string) error {
	var marker string
	switch strings.ToLower(env) {
	case "live", "production":
		marker = "_live_"
	case "test", "":
		marker = "_test_"
	default:
		return fmt.Errorf("%w: unknown environment %q", ErrEnvironmentKey, env)
	}
	if !strings.Contains(key, marker) {
		return fmt.Errorf("%w: expected a %s key", ErrEnvironmentKey, strings.Trim(marker, "_"))
	}
	return nil
}

// CreateCheckoutSession creates a hosted Stripe Checkout session.
func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.PriceRef == "" {
		return nil, ErrMissingPriceRef
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(req.Mode)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceRef),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.ClientReference),
	}
	params.Context = ctx
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	meta := req.Metadata.Map()
	for k, v := range meta {
		params.AddMetadata(k, v)
	}
	// Subscription events carry no session metadata, so copy it onto the subscription too.
	if req.Mode == entitlement.ModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: meta}
	}

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create checkout session: %w", ErrProcessor, err)
	}
	if sess.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return sessionFromStripe(sess)
}

// GetCheckoutSession retrieves a checkout session.
func (p *StripeProcessor) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if sessionID == "" {
		return nil, ErrMissingReference
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("%w: get checkout session %s: %w", ErrProcessor, sessionID, err)
	}
	return sessionFromStripe(sess)
}

// GetSubscription retrieves a subscription.
func (p *StripeProcessor) GetSubscription(ctx context.Context, ref string) (*Subscription, error) {
	if ref == "" {
		return nil, ErrMissingReference
	}

	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := p.api.Subscriptions.Get(ref, params)
	if err != nil {
		return nil, fmt.Errorf("%w: get subscription %s: %w", ErrProcessor, ref, err)
	}
	return subscriptionFromStripe(sub), nil
}

// CancelAtPeriodEnd flags the subscription to end at its current period end.
func (p *StripeProcessor) CancelAtPeriodEnd(ctx context.Context, ref string) (*Subscription, error) {
	if ref == "" {
		return nil, ErrMissingReference
	}

	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx

	sub, err := p.api.Subscriptions.Update(ref, params)
	if err != nil {
		return nil, fmt.Errorf("%w: cancel subscription %s: %w", ErrProcessor, ref, err)
	}
	return subscriptionFromStripe(sub), nil
}

// ParseWebhook validates the Stripe-Signature header and decodes the event.
// API version mismatches are tolerated: only the fields mapped below are read.
func (p *StripeProcessor) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if isSignatureError(err) {
			return nil, errors.Join(ErrWebhookSignature, err)
		}
		return nil, errors.Join(ErrWebhookPayload, err)
	}

	out := &Event{
		ID:           event.ID,
		Kind:         EventUnhandled,
		ProviderType: string(event.Type),
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var cs stripe.CheckoutSession
		if err := decodeEventObject(event, &cs); err != nil {
			return nil, err
		}
		sess, err := sessionFromStripe(&cs)
		if err != nil {
			return nil, errors.Join(ErrWebhookPayload, err)
		}
		out.Kind = EventCheckoutCompleted
		out.Session = sess

	case stripe.EventTypeCustomerSubscriptionUpdated, stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := decodeEventObject(event, &sub); err != nil {
			return nil, err
		}
		out.Kind = EventSubscriptionUpdated
		if event.Type == stripe.EventTypeCustomerSubscriptionDeleted {
			out.Kind = EventSubscriptionDeleted
		}
		out.Subscription = subscriptionFromStripe(&sub)
	}

	return out, nil
}

func decodeEventObject(event stripe.Event, v any) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("%w: event %s has no data", ErrWebhookPayload, event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, v); err != nil {
		return errors.Join(ErrWebhookPayload, err)
	}
	return nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func sessionFromStripe(s *stripe.CheckoutSession) (*CheckoutSession, error) {
	meta, err := ParseMetadata(s.Metadata)
	if err != nil {
		return nil, err
	}

	out := &CheckoutSession{
		ID:              s.ID,
		URL:             s.URL,
		PaymentStatus:   PaymentStatus(s.PaymentStatus),
		Mode:            entitlement.BillingMode(s.Mode),
		ClientReference: s.ClientReferenceID,
		Metadata:        meta,
	}
	if s.Subscription != nil {
		out.SubscriptionRef = s.Subscription.ID
	}
	return out, nil
}

// subscriptionFromStripe maps a Stripe subscription. Since API version
// 2025-03-31 the billing period lives on subscription items, so the latest
// item period end is used, then cancel_at as a fallback.
func subscriptionFromStripe(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		Ref:               s.ID,
		Status:            entitlement.SubscriptionStatus(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}

	var end int64
	if s.Items != nil {
		for _, item := range s.Items.Data {
			if item != nil && item.CurrentPeriodEnd > end {
				end = item.CurrentPeriodEnd
			}
		}
	}
	if end == 0 && s.CancelAt > 0 {
		end = s.CancelAt
	}
	if end > 0 {
		t := time.Unix(end, 0).UTC()
		out.PeriodEnd = &t
	}
	return out
}
