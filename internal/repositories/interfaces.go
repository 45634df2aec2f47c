package repositories

import (
	"context"

	domain "github.com/partner-storefront/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	PartnerOffers() PartnerOfferRepository
	Subscriptions() SubscriptionRepository
	SubscriptionHistory() SubscriptionHistoryRepository
	PendingOrders() PendingOrderRepository
	CustomerRegistrations() CustomerRegistrationRepository
	PreApprovedCustomers() PreApprovedCustomerRepository
	PaymentConfig() PaymentConfigRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// PartnerOfferRepository serves the curated partner offer catalog.
type PartnerOfferRepository interface {
	List(ctx context.Context) ([]domain.PartnerOffer, error)
	FindByID(ctx context.Context, offerID string) (domain.PartnerOffer, error)
}

// SubscriptionRepository persists customer subscription rows.
type SubscriptionRepository interface {
	Insert(ctx context.Context, sub domain.Subscription) error
	// Replace overwrites the stored row only when its UpdatedAt still matches
	// expected; a stale expectation reports a conflict.
	Replace(ctx context.Context, sub domain.Subscription, expected domain.Subscription) error
	FindByID(ctx context.Context, customerID, subscriptionID string) (domain.Subscription, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Subscription, error)
	Delete(ctx context.Context, customerID, subscriptionID string) error
}

// SubscriptionHistoryRepository appends immutable purchase records.
type SubscriptionHistoryRepository interface {
	Append(ctx context.Context, record domain.SubscriptionHistory) error
	ListByCustomer(ctx context.Context, customerID string) ([]domain.SubscriptionHistory, error)
	Delete(ctx context.Context, customerID, recordID string) error
}

// PendingOrderRepository holds normalized orders awaiting payment completion.
type PendingOrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// Delete removes the pending order. Deleting an absent order is not an error.
	Delete(ctx context.Context, orderID string) error
}

// CustomerRegistrationRepository stores in-progress storefront sign-ups.
type CustomerRegistrationRepository interface {
	Insert(ctx context.Context, registration domain.CustomerRegistration) error
	FindByID(ctx context.Context, registrationID string) (domain.CustomerRegistration, error)
	Delete(ctx context.Context, registrationID string) error
}

// PreApprovedCustomerRepository tracks customers allowed to bypass payment capture.
type PreApprovedCustomerRepository interface {
	IsPreApproved(ctx context.Context, customerID string) (bool, error)
	Add(ctx context.Context, customerID string) error
	Remove(ctx context.Context, customerID string) error
}

// PaymentConfigRepository stores the active payment provider configuration.
type PaymentConfigRepository interface {
	Get(ctx context.Context) (domain.PaymentConfiguration, error)
	Save(ctx context.Context, cfg domain.PaymentConfiguration) error
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
