package payments

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/lifecoach/handler"
	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
	"github.com/dmitrymomot/lifecoach/pkg/logger"
	"github.com/dmitrymomot/lifecoach/pkg/ratelimiter"
	svc "github.com/dmitrymomot/lifecoach/svc/payments"
)

// Service is the entitlement surface the HTTP module drives.
type Service interface {
	CreateCheckout(ctx context.Context, accountID uuid.UUID, tier entitlement.Tier, flags svc.CheckoutFlags) (svc.Checkout, error)
	VerifyPayment(ctx context.Context, req svc.VerifyRequest) (svc.Verification, error)
	PaymentStatus(ctx context.Context, accountID uuid.UUID) (svc.PaymentState, error)
	SubscriptionStatus(ctx context.Context, accountID uuid.UUID) (svc.SubscriptionState, error)
	Cancel(ctx context.Context, accountID uuid.UUID) (svc.Cancellation, error)
	Resubscribe(ctx context.Context, accountID uuid.UUID) (svc.Checkout, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// SummaryReporter reports subscription counts. *svc.Sweeper satisfies it.
type SummaryReporter interface {
	Summary(ctx context.Context) (svc.Summary, error)
}

// MaxWebhookBodySize caps inbound webhook payloads.
const MaxWebhookBodySize = 64 << 10

// Module exposes the payments HTTP routes.
type Module struct {
	service Service
	summary SummaryReporter
	limiter ratelimiter.Limiter
	log     *slog.Logger
}

// Option configures a Module.
type Option func(*Module)

// WithLogger sets the module logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Module) {
		if log != nil {
			m.log = log
		}
	}
}

// WithSummary mounts GET /subscriptions/summary backed by r.
func WithSummary(r SummaryReporter) Option {
	return func(m *Module) {
		m.summary = r
	}
}

// WithRateLimit throttles the per-account routes, which call the processor,
// keyed by account id. The webhook route is never throttled.
func WithRateLimit(l ratelimiter.Limiter) Option {
	return func(m *Module) {
		m.limiter = l
	}
}

// New creates the payments module.
func New(service Service, opts ...Option) *Module {
	if service == nil {
		panic("payments: service is required")
	}
	m := &Module{
		service: service,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle returns the module router. Mount it under /payments:
//
//	r := chi.NewRouter()
//	r.Mount("/payments", payments.New(service, payments.WithSummary(sweeper)).Handle())
func (m *Module) Handle() http.Handler {
	r := chi.NewRouter()

	r.Post("/webhook", m.webhook())
	if m.summary != nil {
		r.Get("/subscriptions/summary", m.subscriptionsSummary())
	}

	r.Route("/{account_id}", func(r chi.Router) {
		if m.limiter != nil {
			r.Use(m.rateLimit())
		}
		r.Post("/checkout/{tier}", m.createCheckout())
		r.Post("/verify", m.verify())
		r.Get("/payment-status", m.paymentStatus())
		r.Get("/subscription-status", m.subscriptionStatus())
		r.Post("/cancel-subscription", m.cancel())
		r.Post("/resubscribe", m.resubscribe())
	})

	return r
}

func (m *Module) rateLimit() func(http.Handler) http.Handler {
	return ratelimiter.Middleware(m.limiter,
		func(r *http.Request) string {
			if id := chi.URLParam(r, "account_id"); id != "" {
				return "account:" + id
			}
			return ""
		},
		ratelimiter.WithDeniedHandler(func(w http.ResponseWriter, r *http.Request, _ ratelimiter.Result) {
			m.log.WarnContext(r.Context(), "payments request throttled",
				slog.String("path", r.URL.Path),
				logger.Component("payments_http"),
			)
			_ = handler.JSONError(ErrRateLimited).Render(w, r)
		}),
		ratelimiter.WithStoreErrorHandler(func(r *http.Request, err error) {
			m.log.ErrorContext(r.Context(), "rate limit store failed", logger.Error(err), logger.Component("payments_http"))
		}),
	)
}
