package payments

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
)

// Config holds payments service settings.
type Config struct {
	Domain        string        `env:"APP_DOMAIN" envDefault:"http://localhost:3000"`
	GraceFallback time.Duration `env:"PAYMENTS_GRACE_FALLBACK" envDefault:"720h"`

	SweeperDailyAt string        `env:"SWEEPER_DAILY_AT" envDefault:"03:00"` // HH:MM, UTC
	SweeperLockTTL time.Duration `env:"SWEEPER_LOCK_TTL" envDefault:"10m"`

	Prices entitlement.Prices
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	var errs []error
	if _, err := url.ParseRequestURI(c.Domain); err != nil || c.Domain == "" {
		errs = append(errs, fmt.Errorf("APP_DOMAIN must be an absolute URL, got %q", c.Domain))
	}
	if c.GraceFallback <= 0 {
		errs = append(errs, errors.New("PAYMENTS_GRACE_FALLBACK must be positive"))
	}
	if _, err := ParseDailyAt(c.SweeperDailyAt); err != nil {
		errs = append(errs, err)
	}
	if c.SweeperLockTTL <= 0 {
		errs = append(errs, errors.New("SWEEPER_LOCK_TTL must be positive"))
	}
	if err := entitlement.NewCatalog(c.Prices).Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) domain() string { return strings.TrimRight(c.Domain, "/") }
