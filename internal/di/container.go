package di

import (
	"context"
	"errors"
	"strings"

	"github.com/partner-storefront/api/internal/partnercenter"
	"github.com/partner-storefront/api/internal/payments"
	"github.com/partner-storefront/api/internal/platform/config"
	"github.com/partner-storefront/api/internal/platform/events"
	"github.com/partner-storefront/api/internal/repositories"
	"github.com/partner-storefront/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog   services.CatalogService
	Checkout  services.CheckoutService
	Commerce  services.CommerceService
	Customers services.CustomerService
	Summary   services.SummaryService
	System    services.SystemService
}

// Container wires repositories, the platform client, payment gateways, and
// services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Platform     *partnercenter.Client
	Selector     *payments.Selector
	Services     Services
}

// ContainerDeps carries the externally constructed collaborators. Tests can
// supply in-memory registries and a nil publisher.
type ContainerDeps struct {
	Registry  repositories.Registry
	Platform  *partnercenter.Client
	Publisher events.Publisher
	Logger    services.Logger
}

// NewContainer constructs the runtime dependency graph.
func NewContainer(ctx context.Context, cfg config.Config, deps ContainerDeps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("di: repositories registry is required")
	}
	if deps.Platform == nil {
		return nil, errors.New("di: partner platform client is required")
	}

	selector, err := buildSelector(cfg, deps)
	if err != nil {
		return nil, err
	}
	svc, err := buildServices(cfg, deps, selector)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Platform:     deps.Platform,
		Selector:     selector,
		Services:     svc,
	}, nil
}

// Close releases repository clients and any other held resources.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildSelector(cfg config.Config, deps ContainerDeps) (*payments.Selector, error) {
	reg := deps.Registry
	logger := payments.Logger(deps.Logger)

	preApproval, err := payments.NewPreApprovalGateway(reg.PendingOrders(), logger)
	if err != nil {
		return nil, err
	}

	gateways := make(map[string]payments.Gateway)
	paypal, err := payments.NewPayPalGateway(payments.PayPalGatewayConfig{
		Config:   reg.PaymentConfig(),
		Currency: cfg.Portal.Currency,
		Decimals: cfg.Portal.CurrencyDecimals,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	gateways["paypal"] = paypal

	payumoney, err := payments.NewPayUMoneyGateway(payments.PayUMoneyGatewayConfig{
		Config:   reg.PaymentConfig(),
		Orders:   reg.PendingOrders(),
		Decimals: cfg.Portal.CurrencyDecimals,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	gateways["payumoney"] = payumoney

	// Stripe only joins the selector when a key is configured; the other
	// gateways read their credentials from the payment config store at call
	// time instead.
	if strings.TrimSpace(cfg.Stripe.APIKey) != "" {
		stripeGateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
			APIKey:   cfg.Stripe.APIKey,
			Currency: cfg.Portal.Currency,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		gateways["stripe"] = stripeGateway
	}

	return payments.NewSelector(payments.SelectorDeps{
		Gateways:    gateways,
		PreApproval: preApproval,
		PreApproved: reg.PreApprovedCustomers(),
		Config:      reg.PaymentConfig(),
		Logger:      logger,
	})
}

func buildServices(cfg config.Config, deps ContainerDeps, selector *payments.Selector) (Services, error) {
	var svc Services
	reg := deps.Registry

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Offers:        reg.PartnerOffers(),
		Platform:      deps.Platform,
		PaymentConfig: reg.PaymentConfig(),
		Logger:        deps.Logger,
	})
	if err != nil {
		return svc, err
	}
	svc.Catalog = catalog

	normalizer, err := services.NewOrderNormalizer(services.OrderNormalizerDeps{
		Offers:        reg.PartnerOffers(),
		Subscriptions: reg.Subscriptions(),
		TermDays:      cfg.Portal.TermDays,
		GraceDays:     cfg.Portal.RenewalGraceDays,
		Logger:        deps.Logger,
	})
	if err != nil {
		return svc, err
	}

	commerce, err := services.NewCommerceService(services.CommerceServiceDeps{
		Subscriptions: reg.Subscriptions(),
		History:       reg.SubscriptionHistory(),
		TermDays:      cfg.Portal.TermDays,
		WindowDays:    cfg.Portal.RenewalWindowDays,
		GraceDays:     cfg.Portal.RenewalGraceDays,
		Logger:        deps.Logger,
	})
	if err != nil {
		return svc, err
	}
	svc.Commerce = commerce

	customers, err := services.NewCustomerService(services.CustomerServiceDeps{
		Registrations: reg.CustomerRegistrations(),
		Subscriptions: reg.Subscriptions(),
		Offers:        reg.PartnerOffers(),
		Platform:      deps.Platform,
		WindowDays:    cfg.Portal.RenewalWindowDays,
		GraceDays:     cfg.Portal.RenewalGraceDays,
		Logger:        deps.Logger,
	})
	if err != nil {
		return svc, err
	}
	svc.Customers = customers

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Normalizer:    normalizer,
		Commerce:      commerce,
		Selector:      selector,
		Registrations: reg.CustomerRegistrations(),
		Completer:     customers,
		Publisher:     deps.Publisher,
		ReturnBaseURL: cfg.Portal.BaseURL,
		Currency:      cfg.Portal.Currency,
		Logger:        deps.Logger,
	})
	if err != nil {
		return svc, err
	}
	svc.Checkout = checkout

	summary, err := services.NewSummaryService(services.SummaryServiceDeps{
		Subscriptions: reg.Subscriptions(),
		History:       reg.SubscriptionHistory(),
		Offers:        reg.PartnerOffers(),
		Platform:      deps.Platform,
		Currency:      cfg.Portal.Currency,
		Locale:        cfg.Portal.Locale,
		Decimals:      cfg.Portal.CurrencyDecimals,
		TermDays:      cfg.Portal.TermDays,
		WindowDays:    cfg.Portal.RenewalWindowDays,
		GraceDays:     cfg.Portal.RenewalGraceDays,
		Logger:        deps.Logger,
	})
	if err != nil {
		return svc, err
	}
	svc.Summary = summary

	system, err := services.NewSystemService(services.SystemServiceDeps{
		Health: reg.Health(),
		Logger: deps.Logger,
	})
	if err != nil {
		return svc, err
	}
	svc.System = system

	return svc, nil
}
