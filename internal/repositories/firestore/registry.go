package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/partner-storefront/api/internal/platform/firestore"
	"github.com/partner-storefront/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories together with the
// externally supplied offer catalog and health repositories.
type Registry struct {
	provider *pfirestore.Provider

	offers        repositories.PartnerOfferRepository
	subscriptions *SubscriptionRepository
	history       *SubscriptionHistoryRepository
	pendingOrders *PendingOrderRepository
	registrations *CustomerRegistrationRepository
	preApproved   *PreApprovedCustomerRepository
	paymentConfig *PaymentConfigRepository
	health        repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryDeps carries the dependencies needed to assemble the registry.
type RegistryDeps struct {
	Provider *pfirestore.Provider
	// Offers is the catalog repository, typically blob-backed.
	Offers repositories.PartnerOfferRepository
	Health repositories.HealthRepository
}

// NewRegistry constructs the production repository registry.
func NewRegistry(deps RegistryDeps) (*Registry, error) {
	if deps.Provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	if deps.Offers == nil {
		return nil, errors.New("registry requires partner offer repository")
	}

	subscriptions, err := NewSubscriptionRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	history, err := NewSubscriptionHistoryRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	pendingOrders, err := NewPendingOrderRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	registrations, err := NewCustomerRegistrationRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	preApproved, err := NewPreApprovedCustomerRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	paymentConfig, err := NewPaymentConfigRepository(deps.Provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:      deps.Provider,
		offers:        deps.Offers,
		subscriptions: subscriptions,
		history:       history,
		pendingOrders: pendingOrders,
		registrations: registrations,
		preApproved:   preApproved,
		paymentConfig: paymentConfig,
		health:        deps.Health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

// PartnerOffers returns the offer catalog repository.
func (r *Registry) PartnerOffers() repositories.PartnerOfferRepository { return r.offers }

// Subscriptions returns the subscription repository.
func (r *Registry) Subscriptions() repositories.SubscriptionRepository { return r.subscriptions }

// SubscriptionHistory returns the history repository.
func (r *Registry) SubscriptionHistory() repositories.SubscriptionHistoryRepository {
	return r.history
}

// PendingOrders returns the pending order repository.
func (r *Registry) PendingOrders() repositories.PendingOrderRepository { return r.pendingOrders }

// CustomerRegistrations returns the registration repository.
func (r *Registry) CustomerRegistrations() repositories.CustomerRegistrationRepository {
	return r.registrations
}

// PreApprovedCustomers returns the pre-approval repository.
func (r *Registry) PreApprovedCustomers() repositories.PreApprovedCustomerRepository {
	return r.preApproved
}

// PaymentConfig returns the payment configuration repository.
func (r *Registry) PaymentConfig() repositories.PaymentConfigRepository { return r.paymentConfig }

// Health returns the dependency health repository.
func (r *Registry) Health() repositories.HealthRepository { return r.health }
