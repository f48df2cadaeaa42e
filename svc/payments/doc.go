// Package payments reconciles local entitlement records with the payment
// processor.
//
// Service turns checkouts, redirect callbacks and webhooks into account
// state. The redirect (VerifyPayment) and the webhook (HandleWebhook) race
// for the same checkout; both go through one transition that writes the
// processor's current status, so whichever runs last re-asserts the same
// record. Paid regenerations are counted once per checkout session through a
// claim recorded in the same transaction.
//
// Sweeper downgrades accounts whose canceled subscription is past its grace
// period. It is safe to run next to the service and to rerun after a
// partial failure.
//
// Every write locks the account row and commits all fields together. The
// processor is always called before the transaction opens; a processor
// failure therefore leaves the record untouched and is reported as
// ErrProcessorUnavailable.
package payments
