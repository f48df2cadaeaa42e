package payments

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/lifecoach/pkg/billing"
	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
	"github.com/dmitrymomot/lifecoach/pkg/logger"
)

// Service reconciles local entitlement records with the payment processor.
// It covers checkout creation, payment verification, webhook handling and
// the subscription lifecycle. Every write funnels through apply.
type Service struct {
	cfg       Config
	catalog   entitlement.Catalog
	processor billing.Processor
	store     Store
	metrics   *Metrics
	log       *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records transitions into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a payments service.
// Panics if processor or store is nil so misconfiguration fails at startup.
func NewService(cfg Config, catalog entitlement.Catalog, processor billing.Processor, store Store, opts ...Option) *Service {
	if processor == nil {
		panic("payments: processor is required")
	}
	if store == nil {
		panic("payments: store is required")
	}
	if cfg.GraceFallback <= 0 {
		cfg.GraceFallback = 30 * 24 * time.Hour
	}

	s := &Service{
		cfg:       cfg,
		catalog:   catalog,
		processor: processor,
		store:     store,
		log:       slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("payments"))
	return s
}

func (s *Service) clock() time.Time { return s.now().UTC() }
