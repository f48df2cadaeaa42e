package payments

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/lifecoach/handler"
	"github.com/dmitrymomot/lifecoach/pkg/binder"
	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
	svc "github.com/dmitrymomot/lifecoach/svc/payments"
)

// CheckoutRequest starts a checkout for a tier.
type CheckoutRequest struct {
	AccountID      uuid.UUID        `path:"account_id"`
	Tier           entitlement.Tier `path:"tier"`
	Regeneration   bool             `query:"is_regeneration"`
	DeferredEmail  bool             `query:"is_magic_link_sent"`
	Resubscription bool             `query:"is_resubscription"`
}

func (m *Module) createCheckout() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, req CheckoutRequest) handler.Response {
		out, err := m.service.CreateCheckout(ctx, req.AccountID, req.Tier, svc.CheckoutFlags{
			Regeneration:   req.Regeneration,
			Resubscription: req.Resubscription,
			DeferredEmail:  req.DeferredEmail,
		})
		if err != nil {
			return m.fail(ctx, err)
		}
		return handler.JSON(out)
	},
		handler.WithBinders[handler.Context, CheckoutRequest](binder.Path(chi.URLParam), binder.Query()),
		handler.WithErrorHandler[handler.Context, CheckoutRequest](handler.NewErrorHandler(m.log)),
	)
}

// VerifyRequest confirms a checkout after the redirect. Fields may come from
// the JSON body or the query string; the body wins.
type VerifyRequest struct {
	AccountID   uuid.UUID        `path:"account_id" json:"-"`
	SessionID   string           `query:"session_id" json:"session_id"`
	Tier        entitlement.Tier `query:"tier" json:"tier"`
	ForceActive bool             `query:"force_active" json:"force_active"`
}

func (m *Module) verify() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, req VerifyRequest) handler.Response {
		out, err := m.service.VerifyPayment(ctx, svc.VerifyRequest{
			AccountID:   req.AccountID,
			SessionID:   req.SessionID,
			Tier:        req.Tier,
			ForceActive: req.ForceActive,
		})
		if err != nil {
			return m.fail(ctx, err)
		}
		return handler.JSON(out)
	},
		handler.WithBinders[handler.Context, VerifyRequest](binder.Path(chi.URLParam), binder.Query(), binder.JSON()),
		handler.WithErrorHandler[handler.Context, VerifyRequest](handler.NewErrorHandler(m.log)),
	)
}

// AccountRequest addresses a single account.
type AccountRequest struct {
	AccountID uuid.UUID `path:"account_id"`
}

func (m *Module) paymentStatus() http.HandlerFunc {
	return m.accountRoute(func(ctx handler.Context, id uuid.UUID) (any, error) {
		return m.service.PaymentStatus(ctx, id)
	})
}

func (m *Module) subscriptionStatus() http.HandlerFunc {
	return m.accountRoute(func(ctx handler.Context, id uuid.UUID) (any, error) {
		return m.service.SubscriptionStatus(ctx, id)
	})
}

func (m *Module) cancel() http.HandlerFunc {
	return m.accountRoute(func(ctx handler.Context, id uuid.UUID) (any, error) {
		return m.service.Cancel(ctx, id)
	})
}

func (m *Module) resubscribe() http.HandlerFunc {
	return m.accountRoute(func(ctx handler.Context, id uuid.UUID) (any, error) {
		return m.service.Resubscribe(ctx, id)
	})
}

func (m *Module) accountRoute(fn func(ctx handler.Context, id uuid.UUID) (any, error)) http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, req AccountRequest) handler.Response {
		out, err := fn(ctx, req.AccountID)
		if err != nil {
			return m.fail(ctx, err)
		}
		return handler.JSON(out)
	},
		handler.WithBinders[handler.Context, AccountRequest](binder.Path(chi.URLParam)),
		handler.WithErrorHandler[handler.Context, AccountRequest](handler.NewErrorHandler(m.log)),
	)
}

// WebhookRequest is the raw signed processor notification.
type WebhookRequest struct {
	Payload   []byte
	Signature string
}

// rawWebhook keeps the body byte-for-byte; signature checks fail on re-encoded JSON.
func rawWebhook(r *http.Request, v any) error {
	req, ok := v.(*WebhookRequest)
	if !ok {
		return fmt.Errorf("%w: expected *WebhookRequest", binder.ErrFailedToParseJSON)
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxWebhookBodySize+1))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", binder.ErrFailedToParseJSON, err)
	}
	if len(body) > MaxWebhookBodySize {
		return fmt.Errorf("%w: webhook body too large (max %d bytes)", binder.ErrFailedToParseJSON, MaxWebhookBodySize)
	}
	req.Payload = body
	req.Signature = r.Header.Get("Stripe-Signature")
	return nil
}

// WebhookAck is returned for every handled or deliberately ignored event.
type WebhookAck struct {
	Status string `json:"status"`
}

func (m *Module) webhook() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, req WebhookRequest) handler.Response {
		if err := m.service.HandleWebhook(ctx, req.Payload, req.Signature); err != nil {
			return m.fail(ctx, err)
		}
		return handler.JSON(WebhookAck{Status: "success"})
	},
		handler.WithBinders[handler.Context, WebhookRequest](rawWebhook),
		handler.WithErrorHandler[handler.Context, WebhookRequest](handler.NewErrorHandler(m.log)),
	)
}

func (m *Module) subscriptionsSummary() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, _ struct{}) handler.Response {
		out, err := m.summary.Summary(ctx)
		if err != nil {
			return m.fail(ctx, err)
		}
		return handler.JSON(out)
	})
}
