package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/partner-storefront/api/internal/domain"
	"github.com/partner-storefront/api/internal/repositories"
)

// Logger defines the logging contract for gateway operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

// ErrUnsupportedProvider is returned when no gateway is registered for the
// configured payment provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// ErrPaymentNotCompleted signals the provider callback did not report success.
var ErrPaymentNotCompleted = errors.New("payments: payment not completed")

// Callback query parameter values used by the pre-approval bypass. The
// redirect is decorated so it is indistinguishable from a provider return.
const (
	PreApprovedPaymentID = "PreApproved"
	PreApprovedPayerID   = "PayId"
)

// CallbackParams carries the query parameters the provider appends to the
// return redirect.
type CallbackParams struct {
	PaymentID  string
	PayerID    string
	OrderID    string
	CustomerID string
}

// Authorization identifies an executed payment so it can later be captured
// or voided.
type Authorization struct {
	Code       string
	PaymentID  string
	OrderID    string
	CustomerID string
	Amount     int64
}

// Gateway abstracts a payment provider for the storefront checkout flow.
//
// GeneratePaymentURI registers the normalized order with the provider and
// returns the URL the customer is redirected to. OrderFromPayment rebuilds
// the order from the provider callback, discarding any client-supplied
// amounts. ExecutePayment turns an approved payment into an authorization;
// Capture settles it and Void releases it.
type Gateway interface {
	GeneratePaymentURI(ctx context.Context, returnURL string, order domain.Order) (string, error)
	OrderFromPayment(ctx context.Context, params CallbackParams) (domain.Order, error)
	ExecutePayment(ctx context.Context, params CallbackParams) (Authorization, error)
	Capture(ctx context.Context, auth Authorization) error
	Void(ctx context.Context, auth Authorization) error
}

// Selector picks the gateway for a customer: pre-approved customers bypass
// the configured provider entirely.
type Selector struct {
	gateways    map[string]Gateway
	preApproval Gateway
	preApproved repositories.PreApprovedCustomerRepository
	config      repositories.PaymentConfigRepository
	logger      Logger
}

// SelectorDeps carries the dependencies for NewSelector.
type SelectorDeps struct {
	// Gateways maps provider names (lowercase) to their adapters.
	Gateways map[string]Gateway
	// PreApproval handles customers that bypass payment capture.
	PreApproval Gateway
	PreApproved repositories.PreApprovedCustomerRepository
	Config      repositories.PaymentConfigRepository
	Logger      Logger
}

// NewSelector constructs a gateway selector.
func NewSelector(deps SelectorDeps) (*Selector, error) {
	if len(deps.Gateways) == 0 {
		return nil, errors.New("payments: at least one gateway is required")
	}
	if deps.PreApproval == nil {
		return nil, errors.New("payments: pre-approval gateway is required")
	}
	if deps.PreApproved == nil {
		return nil, errors.New("payments: pre-approved customer repository is required")
	}
	if deps.Config == nil {
		return nil, errors.New("payments: payment config repository is required")
	}

	gateways := make(map[string]Gateway, len(deps.Gateways))
	for name, gateway := range deps.Gateways {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || gateway == nil {
			return nil, fmt.Errorf("payments: invalid gateway registration %q", name)
		}
		gateways[key] = gateway
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Selector{
		gateways:    gateways,
		preApproval: deps.PreApproval,
		preApproved: deps.PreApproved,
		config:      deps.Config,
		logger:      logger,
	}, nil
}

// Select returns the gateway to use for the given customer. An unknown
// customer id selects the configured provider.
func (s *Selector) Select(ctx context.Context, customerID string) (Gateway, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID != "" {
		approved, err := s.preApproved.IsPreApproved(ctx, customerID)
		if err != nil {
			return nil, fmt.Errorf("payments: pre-approval lookup: %w", err)
		}
		if approved {
			s.logger(ctx, "payments.gateway.preapproved", map[string]any{"customerId": customerID})
			return s.preApproval, nil
		}
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("payments: load payment config: %w", err)
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	gateway, ok := s.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	return gateway, nil
}

// formatAmount renders a minor-unit amount as the decimal string providers
// expect, e.g. 1050 with 2 decimals becomes "10.50".
func formatAmount(minor int64, decimals int) string {
	if decimals <= 0 {
		return fmt.Sprintf("%d", minor)
	}
	divisor := int64(1)
	for i := 0; i < decimals; i++ {
		divisor *= 10
	}
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%0*d", sign, minor/divisor, decimals, minor%divisor)
}

// parseAmount reverses formatAmount, tolerating missing fractional digits.
func parseAmount(value string, decimals int) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, errors.New("payments: empty amount")
	}
	negative := strings.HasPrefix(value, "-")
	value = strings.TrimPrefix(value, "-")

	whole, frac := value, ""
	if idx := strings.IndexByte(value, '.'); idx >= 0 {
		whole, frac = value[:idx], value[idx+1:]
	}
	if len(frac) > decimals {
		return 0, fmt.Errorf("payments: amount %q exceeds %d decimals", value, decimals)
	}
	for len(frac) < decimals {
		frac += "0"
	}

	var minor int64
	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("payments: malformed amount %q", value)
		}
		minor = minor*10 + int64(r-'0')
	}
	if negative {
		minor = -minor
	}
	return minor, nil
}

// utcClock wraps a clock so gateway timestamps are always UTC.
func utcClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time { return clock().UTC() }
}
