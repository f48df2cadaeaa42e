// Package billing defines the payment processor boundary used by the
// payments service and ships a Stripe implementation.
//
// The processor is the source of truth for payment and subscription state.
// Everything this package returns is a snapshot of that state; the payments
// service decides how it is applied to the local entitlement record.
//
// # Processor
//
// Processor covers the five calls the entitlement subsystem needs: create and
// fetch checkout sessions, fetch a subscription, stop auto-renewal, and
// verify an inbound webhook. Implementations keep their client inside the
// instance, so several processors (for example test and live keys in one
// binary) can coexist:
//
//	p, err := billing.NewStripeProcessor(billing.StripeConfig{
//		SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
//		WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
//		Environment:   "test",
//	})
//
// # Metadata
//
// Checkout intent (account, tier, regeneration and resubscription flags) is
// written into the session metadata and a "<account>:<tier>" client
// reference. Both are echoed by the redirect and by webhooks, and are the
// only way to reconstruct intent after checkout. Use Metadata.Map and
// ParseMetadata rather than building the map by hand.
//
// # Webhooks
//
// ParseWebhook returns an error wrapping ErrWebhookSignature for a missing or
// invalid signature and ErrWebhookPayload for a signed but undecodable body.
// Events this system does not react to come back with Kind EventUnhandled
// and must be acknowledged.
package billing
