package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/partner-storefront/api/internal/domain"
	"github.com/partner-storefront/api/internal/partnercenter"
	"github.com/partner-storefront/api/internal/repositories"
)

// PlatformDirectory covers the platform calls needed for customer sign-up
// and subscription management.
type PlatformDirectory interface {
	CreateCustomer(ctx context.Context, registration domain.CustomerRegistration) (partnercenter.CustomerAccount, error)
	CheckDomainAvailability(ctx context.Context, domainPrefix string) (bool, error)
	CountryValidationRules(ctx context.Context, country string) (partnercenter.CountryRules, error)
	ListOffers(ctx context.Context) ([]domain.PlatformOffer, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]partnercenter.PlatformSubscription, error)
}

// CustomerServiceDeps wires the customer service's collaborators.
type CustomerServiceDeps struct {
	Registrations repositories.CustomerRegistrationRepository
	Subscriptions repositories.SubscriptionRepository
	Offers        repositories.PartnerOfferRepository
	Platform      PlatformDirectory
	WindowDays    int
	GraceDays     int
	Clock         func() time.Time
	IDGen         func() string
	Logger        Logger
}

type customerService struct {
	registrations repositories.CustomerRegistrationRepository
	subscriptions repositories.SubscriptionRepository
	offers        repositories.PartnerOfferRepository
	platform      PlatformDirectory
	windowDays    int
	graceDays     int
	clock         func() time.Time
	idGen         func() string
	logger        Logger
}

// NewCustomerService builds the sign-up and subscription management service.
func NewCustomerService(deps CustomerServiceDeps) (CustomerService, error) {
	if deps.Registrations == nil {
		return nil, errors.New("services: customer service requires a registration repository")
	}
	if deps.Subscriptions == nil {
		return nil, errors.New("services: customer service requires a subscription repository")
	}
	if deps.Offers == nil {
		return nil, errors.New("services: customer service requires an offer repository")
	}
	if deps.Platform == nil {
		return nil, errors.New("services: customer service requires a platform directory")
	}
	if deps.WindowDays < 0 || deps.GraceDays < 0 {
		return nil, errors.New("services: customer service requires non-negative renewal windows")
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &customerService{
		registrations: deps.Registrations,
		subscriptions: deps.Subscriptions,
		offers:        deps.Offers,
		platform:      deps.Platform,
		windowDays:    deps.WindowDays,
		graceDays:     deps.GraceDays,
		clock:         utcNow(deps.Clock),
		idGen:         idGen,
		logger:        ensureLogger(deps.Logger),
	}, nil
}

// Register validates a sign-up against the platform's per-country rules,
// confirms the requested domain prefix is free, and parks the registration
// until its first order is paid. No platform account exists yet.
func (s *customerService) Register(ctx context.Context, registration CustomerRegistration) (CustomerRegistration, error) {
	normalizeRegistration(&registration)

	violations := requiredRegistrationFields(registration)
	if err := domain.ValidationError(violations); err != nil {
		return CustomerRegistration{}, err
	}

	rules, err := s.platform.CountryValidationRules(ctx, registration.Country)
	if err != nil {
		return CustomerRegistration{}, domain.WrapError(domain.ErrorGatewayFailure, "loading country validation rules", err)
	}
	violations = append(violations, applyCountryRules(registration, rules)...)

	available, err := s.platform.CheckDomainAvailability(ctx, registration.DomainPrefix)
	if err != nil {
		return CustomerRegistration{}, domain.WrapError(domain.ErrorGatewayFailure, "checking domain availability", err)
	}
	if !available {
		violations = append(violations, domain.FieldViolation{
			Field:  "domainPrefix",
			Reason: "domain prefix is already taken",
		})
	}
	if err := domain.ValidationError(violations); err != nil {
		return CustomerRegistration{}, err
	}

	registration.CustomerID = s.idGen()
	registration.CreatedAt = s.clock()
	if err := s.registrations.Insert(ctx, registration); err != nil {
		return CustomerRegistration{}, domain.WrapError(domain.ErrorPersistenceFailure, "storing registration", err)
	}
	s.logger(ctx, "customer.registered", map[string]any{
		"customer_id": registration.CustomerID,
		"country":     registration.Country,
	})
	return registration, nil
}

// CompleteRegistration provisions the platform account for a parked sign-up
// and removes the registration row. Called once the first order's payment
// has been approved.
func (s *customerService) CompleteRegistration(ctx context.Context, registrationID string) (CompletedRegistration, error) {
	registrationID = strings.TrimSpace(registrationID)
	if registrationID == "" {
		return CompletedRegistration{}, domain.NewError(domain.ErrorInvalidInput, "registration id is required")
	}
	registration, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		if isRepoNotFound(err) {
			return CompletedRegistration{}, domain.NewError(domain.ErrorNotFound, "registration not found").
				WithDetail("registration_id", registrationID)
		}
		return CompletedRegistration{}, domain.WrapError(domain.ErrorPersistenceFailure, "loading registration", err)
	}

	account, err := s.platform.CreateCustomer(ctx, registration)
	if err != nil {
		return CompletedRegistration{}, domain.WrapError(domain.ErrorGatewayFailure, "provisioning platform customer", err)
	}
	// The registration row is scaffolding. If the delete fails the account
	// still exists, so log and move on rather than failing the checkout.
	if err := s.registrations.Delete(ctx, registrationID); err != nil {
		s.logger(ctx, "customer.registration.cleanup_failed", map[string]any{
			"registration_id": registrationID,
			"error":           err.Error(),
		})
	}
	s.logger(ctx, "customer.provisioned", map[string]any{
		"customer_id": registration.CustomerID,
		"account_id":  account.ID,
	})
	return CompletedRegistration{CustomerID: registration.CustomerID, Account: account}, nil
}

// ManagedSubscriptions merges the customer's storefront subscriptions with
// the platform's view of their account. Storefront rows are partner managed:
// their license totals and status come from the aligned platform row when one
// exists, and both manage actions shut off once the aligned platform offer is
// gone. Platform rows the storefront never sold appear as customer managed.
func (s *customerService) ManagedSubscriptions(ctx context.Context, customerID string) ([]ManagedSubscription, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.NewError(domain.ErrorInvalidInput, "customer id is required")
	}
	subs, err := s.subscriptions.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorPersistenceFailure, "listing subscriptions", err)
	}
	offers, err := s.offers.List(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorPersistenceFailure, "loading offer catalog", err)
	}
	platformSubs, err := s.platform.ListSubscriptions(ctx, customerID)
	if err != nil {
		// A customer registered locally may not exist upstream until the
		// first paid order provisions them.
		if errors.Is(err, partnercenter.ErrCustomerNotFound) {
			platformSubs = nil
		} else {
			return nil, domain.WrapError(domain.ErrorGatewayFailure, "listing platform subscriptions", err)
		}
	}
	platformOffers, err := s.platform.ListOffers(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorGatewayFailure, "loading platform offers", err)
	}

	offerByID := make(map[string]domain.PartnerOffer, len(offers))
	for _, offer := range offers {
		offerByID[offer.ID] = offer
	}
	upstream := make(map[string]bool, len(platformOffers))
	for _, po := range platformOffers {
		upstream[po.ID] = true
	}
	pool := make(map[string][]partnercenter.PlatformSubscription)
	for _, ps := range platformSubs {
		pool[ps.OfferID] = append(pool[ps.OfferID], ps)
	}

	now := s.clock()
	claimed := make(map[string]bool, len(platformSubs))
	managed := make([]ManagedSubscription, 0, len(subs)+len(platformSubs))
	for _, sub := range subs {
		offer, inCatalog := offerByID[sub.PartnerOfferID]
		row := ManagedSubscription{
			SubscriptionID: sub.ID,
			OfferID:        sub.PartnerOfferID,
			OfferTitle:     offer.Title,
			Management:     ManagementPartner,
			Seats:          sub.Seats,
			LicensesTotal:  sub.Seats,
			Status:         string(sub.Status),
			ExpiryDate:     sub.ExpiryDate,
			Renewable:      domain.RenewalEligible(sub.ExpiryDate, now, s.windowDays, s.graceDays),
			Editable:       sub.Status == domain.SubscriptionStatusActive && !sub.Expired(now),
		}
		if rows := pool[offer.PlatformOfferID]; offer.PlatformOfferID != "" && len(rows) > 0 {
			ps := rows[0]
			pool[offer.PlatformOfferID] = rows[1:]
			claimed[ps.ID] = true
			row.LicensesTotal = ps.Quantity
			row.Status = ps.Status
		}
		if !inCatalog || offer.Inactive || (offer.PlatformOfferID != "" && !upstream[offer.PlatformOfferID]) {
			// End of life upstream: the term can neither extend nor grow.
			row.Renewable = false
			row.Editable = false
		}
		managed = append(managed, row)
	}
	for _, ps := range platformSubs {
		if claimed[ps.ID] {
			continue
		}
		managed = append(managed, ManagedSubscription{
			SubscriptionID: ps.ID,
			OfferID:        ps.OfferID,
			OfferTitle:     ps.FriendlyName,
			Management:     ManagementCustomer,
			Seats:          ps.Quantity,
			LicensesTotal:  ps.Quantity,
			Status:         ps.Status,
		})
	}
	return managed, nil
}

func normalizeRegistration(r *CustomerRegistration) {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)
	r.CompanyName = strings.TrimSpace(r.CompanyName)
	r.AddressLine1 = strings.TrimSpace(r.AddressLine1)
	r.AddressLine2 = strings.TrimSpace(r.AddressLine2)
	r.City = strings.TrimSpace(r.City)
	r.State = strings.TrimSpace(r.State)
	r.ZipCode = strings.TrimSpace(r.ZipCode)
	r.Country = strings.ToUpper(strings.TrimSpace(r.Country))
	r.Phone = strings.TrimSpace(r.Phone)
	r.DomainPrefix = strings.ToLower(strings.TrimSpace(r.DomainPrefix))
}

func requiredRegistrationFields(r CustomerRegistration) []domain.FieldViolation {
	var violations []domain.FieldViolation
	require := func(field, value string) {
		if value == "" {
			violations = append(violations, domain.FieldViolation{Field: field, Reason: "required"})
		}
	}
	require("firstName", r.FirstName)
	require("lastName", r.LastName)
	require("email", r.Email)
	require("companyName", r.CompanyName)
	require("addressLine1", r.AddressLine1)
	require("city", r.City)
	require("country", r.Country)
	require("phone", r.Phone)
	require("domainPrefix", r.DomainPrefix)
	if r.Email != "" && !strings.Contains(r.Email, "@") {
		violations = append(violations, domain.FieldViolation{Field: "email", Reason: "not a valid email address"})
	}
	return violations
}

// applyCountryRules checks phone, postal code, and state against the
// platform's per-country metadata. An unparsable platform regex is skipped;
// the platform revalidates on account creation anyway.
func applyCountryRules(r CustomerRegistration, rules partnercenter.CountryRules) []domain.FieldViolation {
	var violations []domain.FieldViolation
	if rules.PhoneNumberRegex != "" {
		if re, err := regexp.Compile(rules.PhoneNumberRegex); err == nil && !re.MatchString(r.Phone) {
			violations = append(violations, domain.FieldViolation{
				Field:  "phone",
				Reason: "not a valid phone number for " + rules.Country,
			})
		}
	}
	if rules.PostalCodeRegex != "" && r.ZipCode != "" {
		if re, err := regexp.Compile(rules.PostalCodeRegex); err == nil && !re.MatchString(r.ZipCode) {
			violations = append(violations, domain.FieldViolation{
				Field:  "zipCode",
				Reason: "not a valid postal code for " + rules.Country,
			})
		}
	}
	if rules.IsStateRequired {
		if r.State == "" {
			violations = append(violations, domain.FieldViolation{Field: "state", Reason: "required for " + rules.Country})
		} else if len(rules.SupportedStatesList) > 0 {
			supported := false
			for _, state := range rules.SupportedStatesList {
				if strings.EqualFold(state, r.State) {
					supported = true
					break
				}
			}
			if !supported {
				violations = append(violations, domain.FieldViolation{
					Field:  "state",
					Reason: "not a recognized state for " + rules.Country,
				})
			}
		}
	}
	return violations
}
