package services

import (
	"context"

	domain "github.com/partner-storefront/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order                 = domain.Order
	OrderLineItem         = domain.OrderLineItem
	Subscription          = domain.Subscription
	SubscriptionHistory   = domain.SubscriptionHistory
	PartnerOffer          = domain.PartnerOffer
	PlatformOffer         = domain.PlatformOffer
	CustomerRegistration  = domain.CustomerRegistration
	TransactionResult     = domain.TransactionResult
	CommerceOperationType = domain.CommerceOperationType
	SystemHealthReport    = domain.SystemHealthReport
)

// CatalogService exposes the displayable offer catalog.
type CatalogService interface {
	Offers(ctx context.Context) ([]OfferView, error)
	Offer(ctx context.Context, offerID string) (OfferView, error)
	IsConfigured(ctx context.Context) (bool, error)
}

// OrderNormalizer validates a client-submitted order and re-prices it from
// the catalog before anything is persisted or charged.
type OrderNormalizer interface {
	Normalize(ctx context.Context, customerID string, draft OrderDraft) (Order, error)
}

// CheckoutService prepares orders for payment and processes provider callbacks.
type CheckoutService interface {
	PrepareOrder(ctx context.Context, customerID string, draft OrderDraft) (CheckoutRedirect, error)
	ProcessOrder(ctx context.Context, customerID string, callback ProcessCallback) (TransactionResult, error)
	PrepareNewCustomerOrder(ctx context.Context, registrationID string, draft OrderDraft) (CheckoutRedirect, error)
	ProcessNewCustomerOrder(ctx context.Context, registrationID string, callback ProcessCallback) (TransactionResult, error)
}

// CommerceService runs the reversible purchase sequences against storage
// and the payment gateway.
type CommerceService interface {
	Purchase(ctx context.Context, order Order, gatewayCallback GatewayCallback) (TransactionResult, error)
	PurchaseAdditionalSeats(ctx context.Context, order Order, gatewayCallback GatewayCallback) (TransactionResult, error)
	RenewSubscription(ctx context.Context, order Order, gatewayCallback GatewayCallback) (TransactionResult, error)
}

// CustomerService manages storefront sign-ups and customer subscription views.
type CustomerService interface {
	Register(ctx context.Context, registration CustomerRegistration) (CustomerRegistration, error)
	CompleteRegistration(ctx context.Context, registrationID string) (CompletedRegistration, error)
	ManagedSubscriptions(ctx context.Context, customerID string) ([]ManagedSubscription, error)
}

// SummaryService aggregates a customer's subscriptions, history, and pricing
// into the account summary view.
type SummaryService interface {
	SubscriptionSummary(ctx context.Context, customerID string) (SubscriptionsSummary, error)
}

// SystemService reports dependency health for liveness and readiness probes.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}
