package services

import (
	"context"
	"fmt"

	domain "github.com/partner-storefront/api/internal/domain"
	"github.com/partner-storefront/api/internal/partnercenter"
)

// stubRepoError satisfies repositories.RepositoryError for tests.
type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return e.msg }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(msg string) error { return &stubRepoError{msg: msg, notFound: true} }

type stubOfferRepo struct {
	listFn func(ctx context.Context) ([]domain.PartnerOffer, error)
}

func (s *stubOfferRepo) List(ctx context.Context) ([]domain.PartnerOffer, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx)
}

func (s *stubOfferRepo) FindByID(ctx context.Context, offerID string) (domain.PartnerOffer, error) {
	offers, err := s.List(ctx)
	if err != nil {
		return domain.PartnerOffer{}, err
	}
	for _, offer := range offers {
		if offer.ID == offerID {
			return offer, nil
		}
	}
	return domain.PartnerOffer{}, notFoundErr("offer not found")
}

type stubSubscriptionRepo struct {
	insertFn  func(ctx context.Context, sub domain.Subscription) error
	replaceFn func(ctx context.Context, sub, expected domain.Subscription) error
	findFn    func(ctx context.Context, customerID, subscriptionID string) (domain.Subscription, error)
	listFn    func(ctx context.Context, customerID string) ([]domain.Subscription, error)
	deleteFn  func(ctx context.Context, customerID, subscriptionID string) error
}

func (s *stubSubscriptionRepo) Insert(ctx context.Context, sub domain.Subscription) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, sub)
}

func (s *stubSubscriptionRepo) Replace(ctx context.Context, sub, expected domain.Subscription) error {
	if s.replaceFn == nil {
		return nil
	}
	return s.replaceFn(ctx, sub, expected)
}

func (s *stubSubscriptionRepo) FindByID(ctx context.Context, customerID, subscriptionID string) (domain.Subscription, error) {
	if s.findFn == nil {
		return domain.Subscription{}, notFoundErr("subscription not found")
	}
	return s.findFn(ctx, customerID, subscriptionID)
}

func (s *stubSubscriptionRepo) ListByCustomer(ctx context.Context, customerID string) ([]domain.Subscription, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, customerID)
}

func (s *stubSubscriptionRepo) Delete(ctx context.Context, customerID, subscriptionID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, customerID, subscriptionID)
}

type stubHistoryRepo struct {
	appendFn func(ctx context.Context, record domain.SubscriptionHistory) error
	listFn   func(ctx context.Context, customerID string) ([]domain.SubscriptionHistory, error)
	deleteFn func(ctx context.Context, customerID, recordID string) error
}

func (s *stubHistoryRepo) Append(ctx context.Context, record domain.SubscriptionHistory) error {
	if s.appendFn == nil {
		return nil
	}
	return s.appendFn(ctx, record)
}

func (s *stubHistoryRepo) ListByCustomer(ctx context.Context, customerID string) ([]domain.SubscriptionHistory, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, customerID)
}

func (s *stubHistoryRepo) Delete(ctx context.Context, customerID, recordID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, customerID, recordID)
}

type stubPendingOrderRepo struct {
	orders map[string]domain.Order
}

func newStubPendingOrderRepo() *stubPendingOrderRepo {
	return &stubPendingOrderRepo{orders: make(map[string]domain.Order)}
}

func (s *stubPendingOrderRepo) Insert(_ context.Context, order domain.Order) error {
	s.orders[order.ID] = order
	return nil
}

func (s *stubPendingOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundErr("pending order not found")
	}
	return order, nil
}

func (s *stubPendingOrderRepo) Delete(_ context.Context, orderID string) error {
	delete(s.orders, orderID)
	return nil
}

type stubRegistrationRepo struct {
	insertFn func(ctx context.Context, registration domain.CustomerRegistration) error
	findFn   func(ctx context.Context, registrationID string) (domain.CustomerRegistration, error)
	deleteFn func(ctx context.Context, registrationID string) error
}

func (s *stubRegistrationRepo) Insert(ctx context.Context, registration domain.CustomerRegistration) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, registration)
}

func (s *stubRegistrationRepo) FindByID(ctx context.Context, registrationID string) (domain.CustomerRegistration, error) {
	if s.findFn == nil {
		return domain.CustomerRegistration{}, notFoundErr("registration not found")
	}
	return s.findFn(ctx, registrationID)
}

func (s *stubRegistrationRepo) Delete(ctx context.Context, registrationID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, registrationID)
}

type stubPreApprovedRepo struct {
	approved map[string]bool
}

func (s *stubPreApprovedRepo) IsPreApproved(_ context.Context, customerID string) (bool, error) {
	return s.approved[customerID], nil
}

func (s *stubPreApprovedRepo) Add(_ context.Context, customerID string) error {
	if s.approved == nil {
		s.approved = make(map[string]bool)
	}
	s.approved[customerID] = true
	return nil
}

func (s *stubPreApprovedRepo) Remove(_ context.Context, customerID string) error {
	delete(s.approved, customerID)
	return nil
}

type stubPaymentConfigRepo struct {
	cfg domain.PaymentConfiguration
	err error
}

func (s *stubPaymentConfigRepo) Get(context.Context) (domain.PaymentConfiguration, error) {
	if s.err != nil {
		return domain.PaymentConfiguration{}, s.err
	}
	return s.cfg, nil
}

func (s *stubPaymentConfigRepo) Save(_ context.Context, cfg domain.PaymentConfiguration) error {
	s.cfg = cfg
	return nil
}

type stubPlatform struct {
	listOffersFn        func(ctx context.Context) ([]domain.PlatformOffer, error)
	listSubscriptionsFn func(ctx context.Context, customerID string) ([]partnercenter.PlatformSubscription, error)
	createFn            func(ctx context.Context, registration domain.CustomerRegistration) (partnercenter.CustomerAccount, error)
	domainFn            func(ctx context.Context, domainPrefix string) (bool, error)
	countryRulesFn      func(ctx context.Context, country string) (partnercenter.CountryRules, error)
}

func (s *stubPlatform) ListOffers(ctx context.Context) ([]domain.PlatformOffer, error) {
	if s.listOffersFn == nil {
		return nil, nil
	}
	return s.listOffersFn(ctx)
}

func (s *stubPlatform) ListSubscriptions(ctx context.Context, customerID string) ([]partnercenter.PlatformSubscription, error) {
	if s.listSubscriptionsFn == nil {
		return nil, nil
	}
	return s.listSubscriptionsFn(ctx, customerID)
}

func (s *stubPlatform) CreateCustomer(ctx context.Context, registration domain.CustomerRegistration) (partnercenter.CustomerAccount, error) {
	if s.createFn == nil {
		return partnercenter.CustomerAccount{}, nil
	}
	return s.createFn(ctx, registration)
}

func (s *stubPlatform) CheckDomainAvailability(ctx context.Context, domainPrefix string) (bool, error) {
	if s.domainFn == nil {
		return true, nil
	}
	return s.domainFn(ctx, domainPrefix)
}

func (s *stubPlatform) CountryValidationRules(ctx context.Context, country string) (partnercenter.CountryRules, error) {
	if s.countryRulesFn == nil {
		return partnercenter.CountryRules{Country: country}, nil
	}
	return s.countryRulesFn(ctx, country)
}

// sequentialIDs returns an id generator yielding id-1, id-2, ...
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}
