package billing

import "errors"

var (
	ErrProcessor         = errors.New("payment processor error")
	ErrWebhookSignature  = errors.New("webhook signature verification failed")
	ErrWebhookPayload    = errors.New("malformed webhook payload")
	ErrNoCheckoutURL     = errors.New("no checkout URL returned from processor")
	ErrMissingPriceRef   = errors.New("price reference is required")
	ErrMissingReference  = errors.New("processor reference is required")
	ErrInvalidMetadata   = errors.New("invalid checkout metadata")
	ErrInvalidReference  = errors.New("invalid client reference")
	ErrMissingAPIKey     = errors.New("payment processor API key is required")
	ErrMissingWebhookKey = errors.New("payment processor webhook secret is required")
	ErrEnvironmentKey    = errors.New("payment processor key does not match environment")
)
