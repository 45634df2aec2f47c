package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/partner-storefront/api/internal/domain"
	"github.com/partner-storefront/api/internal/partnercenter"
)

func validRegistration() domain.CustomerRegistration {
	return domain.CustomerRegistration{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        "ada@example.com",
		CompanyName:  "Analytical Engines Ltd",
		AddressLine1: "1 Machine Row",
		City:         "London",
		State:        "LDN",
		ZipCode:      "12345",
		Country:      "us",
		Phone:        "2025550147",
		DomainPrefix: "AnalyticalEngines",
	}
}

func newTestCustomerService(t *testing.T, registrations *stubRegistrationRepo, subs *stubSubscriptionRepo, platform *stubPlatform) CustomerService {
	t.Helper()
	if registrations == nil {
		registrations = &stubRegistrationRepo{}
	}
	if subs == nil {
		subs = &stubSubscriptionRepo{}
	}
	if platform == nil {
		platform = &stubPlatform{}
	}
	svc, err := NewCustomerService(CustomerServiceDeps{
		Registrations: registrations,
		Subscriptions: subs,
		Offers:        &stubOfferRepo{listFn: func(context.Context) ([]domain.PartnerOffer, error) {
			return []domain.PartnerOffer{{ID: "offer-basic", Title: "Basic", Price: 1000}}, nil
		}},
		Platform:   platform,
		WindowDays: 30,
		GraceDays:  30,
		Clock:      func() time.Time { return testNow },
		IDGen:      sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("NewCustomerService: %v", err)
	}
	return svc
}

func TestRegisterNormalizesAndStores(t *testing.T) {
	var stored []domain.CustomerRegistration
	registrations := &stubRegistrationRepo{
		insertFn: func(_ context.Context, registration domain.CustomerRegistration) error {
			stored = append(stored, registration)
			return nil
		},
	}
	svc := newTestCustomerService(t, registrations, nil, nil)

	in := validRegistration()
	in.Email = "  ada@example.com "
	registered, err := svc.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored %d registrations, want 1", len(stored))
	}
	if registered.CustomerID == "" {
		t.Fatal("registered customer has no id")
	}
	if registered.Email != "ada@example.com" || registered.Country != "US" || registered.DomainPrefix != "analyticalengines" {
		t.Fatalf("registration not normalized: %+v", registered)
	}
	if !registered.CreatedAt.Equal(testNow) {
		t.Fatalf("CreatedAt = %v, want %v", registered.CreatedAt, testNow)
	}
}

func TestRegisterCollectsMissingFields(t *testing.T) {
	svc := newTestCustomerService(t, nil, nil, nil)
	_, err := svc.Register(context.Background(), domain.CustomerRegistration{Email: "no-at-sign"})
	fields := violationFields(t, err)
	for _, field := range []string{"firstName", "lastName", "companyName", "addressLine1", "city", "country", "phone", "domainPrefix", "email"} {
		if _, ok := fields[field]; !ok {
			t.Fatalf("missing violation for %s in %v", field, fields)
		}
	}
}

func TestRegisterAppliesCountryRules(t *testing.T) {
	platform := &stubPlatform{
		countryRulesFn: func(_ context.Context, country string) (partnercenter.CountryRules, error) {
			return partnercenter.CountryRules{
				Country:             country,
				PhoneNumberRegex:    `^\d{10}$`,
				PostalCodeRegex:     `^\d{5}$`,
				IsStateRequired:     true,
				SupportedStatesList: []string{"CA", "NY"},
			}, nil
		},
	}
	svc := newTestCustomerService(t, nil, nil, platform)

	in := validRegistration()
	in.Phone = "123"
	in.ZipCode = "ABC"
	in.State = "ZZ"
	_, err := svc.Register(context.Background(), in)
	fields := violationFields(t, err)
	for _, field := range []string{"phone", "zipCode", "state"} {
		if _, ok := fields[field]; !ok {
			t.Fatalf("missing violation for %s in %v", field, fields)
		}
	}

	ok := validRegistration()
	ok.State = "ca"
	if _, err := svc.Register(context.Background(), ok); err != nil {
		t.Fatalf("state comparison must ignore case: %v", err)
	}
}

func TestRegisterRejectsTakenDomainPrefix(t *testing.T) {
	platform := &stubPlatform{
		domainFn: func(context.Context, string) (bool, error) { return false, nil },
	}
	svc := newTestCustomerService(t, nil, nil, platform)
	_, err := svc.Register(context.Background(), validRegistration())
	fields := violationFields(t, err)
	if fields["domainPrefix"] != "domain prefix is already taken" {
		t.Fatalf("violations = %v, want taken domain prefix", fields)
	}
}

func TestRegisterPlatformOutageSurfacesGatewayFailure(t *testing.T) {
	platform := &stubPlatform{
		countryRulesFn: func(context.Context, string) (partnercenter.CountryRules, error) {
			return partnercenter.CountryRules{}, errors.New("platform down")
		},
	}
	svc := newTestCustomerService(t, nil, nil, platform)
	_, err := svc.Register(context.Background(), validRegistration())
	if domain.CodeOf(err) != domain.ErrorGatewayFailure {
		t.Fatalf("error = %v, want gateway_failure", err)
	}
}

func TestCompleteRegistrationProvisionsAndCleansUp(t *testing.T) {
	parked := validRegistration()
	parked.CustomerID = "cust-1"
	var deleted []string
	registrations := &stubRegistrationRepo{
		findFn: func(context.Context, string) (domain.CustomerRegistration, error) {
			return parked, nil
		},
		deleteFn: func(_ context.Context, registrationID string) error {
			deleted = append(deleted, registrationID)
			return nil
		},
	}
	var created []domain.CustomerRegistration
	platform := &stubPlatform{
		createFn: func(_ context.Context, registration domain.CustomerRegistration) (partnercenter.CustomerAccount, error) {
			created = append(created, registration)
			return partnercenter.CustomerAccount{ID: "acct-1", Domain: "analyticalengines.example.com"}, nil
		},
	}
	svc := newTestCustomerService(t, registrations, nil, platform)

	completed, err := svc.CompleteRegistration(context.Background(), "reg-1")
	if err != nil {
		t.Fatalf("CompleteRegistration: %v", err)
	}
	if completed.CustomerID != "cust-1" || completed.Account.ID != "acct-1" {
		t.Fatalf("unexpected completion: %+v", completed)
	}
	if len(created) != 1 {
		t.Fatalf("platform account created %d times, want 1", len(created))
	}
	if len(deleted) != 1 || deleted[0] != "reg-1" {
		t.Fatalf("registration cleanup %v, want [reg-1]", deleted)
	}
}

func TestCompleteRegistrationSurvivesCleanupFailure(t *testing.T) {
	registrations := &stubRegistrationRepo{
		findFn: func(context.Context, string) (domain.CustomerRegistration, error) {
			reg := validRegistration()
			reg.CustomerID = "cust-1"
			return reg, nil
		},
		deleteFn: func(context.Context, string) error {
			return errors.New("delete failed")
		},
	}
	svc := newTestCustomerService(t, registrations, nil, nil)
	if _, err := svc.CompleteRegistration(context.Background(), "reg-1"); err != nil {
		t.Fatalf("cleanup failure must not fail the completion: %v", err)
	}
}

func TestCompleteRegistrationUnknownID(t *testing.T) {
	registrations := &stubRegistrationRepo{
		findFn: func(context.Context, string) (domain.CustomerRegistration, error) {
			return domain.CustomerRegistration{}, notFoundErr("registration not found")
		},
	}
	svc := newTestCustomerService(t, registrations, nil, nil)
	if _, err := svc.CompleteRegistration(context.Background(), "reg-missing"); domain.CodeOf(err) != domain.ErrorNotFound {
		t.Fatalf("error = %v, want not_found", err)
	}
}

func TestManagedSubscriptionsFlags(t *testing.T) {
	subs := &stubSubscriptionRepo{
		listFn: func(context.Context, string) ([]domain.Subscription, error) {
			return []domain.Subscription{
				{
					ID:             "sub-current",
					PartnerOfferID: "offer-basic",
					Seats:          5,
					ExpiryDate:     testNow.AddDate(0, 0, 200),
					Status:         domain.SubscriptionStatusActive,
				},
				{
					ID:             "sub-closing",
					PartnerOfferID: "offer-basic",
					Seats:          2,
					ExpiryDate:     testNow.AddDate(0, 0, 5),
					Status:         domain.SubscriptionStatusActive,
				},
			}, nil
		},
	}
	svc := newTestCustomerService(t, nil, subs, nil)

	managed, err := svc.ManagedSubscriptions(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("ManagedSubscriptions: %v", err)
	}
	if len(managed) != 2 {
		t.Fatalf("got %d subscriptions, want 2", len(managed))
	}
	if managed[0].OfferTitle != "Basic" {
		t.Fatalf("offer title not joined: %+v", managed[0])
	}
	if managed[0].Renewable || !managed[0].Editable {
		t.Fatalf("unexpected flags on current subscription: %+v", managed[0])
	}
	if !managed[1].Renewable {
		t.Fatalf("subscription 5 days from expiry must be renewable: %+v", managed[1])
	}
	for _, row := range managed {
		if row.Management != ManagementPartner {
			t.Fatalf("storefront subscription %s management = %q, want partner", row.SubscriptionID, row.Management)
		}
	}
}

// newManagedViewService builds a customer service over an explicit offer
// catalog so tests can exercise platform-linked offers.
func newManagedViewService(t *testing.T, offers []domain.PartnerOffer, subs *stubSubscriptionRepo, platform *stubPlatform) CustomerService {
	t.Helper()
	svc, err := NewCustomerService(CustomerServiceDeps{
		Registrations: &stubRegistrationRepo{},
		Subscriptions: subs,
		Offers: &stubOfferRepo{listFn: func(context.Context) ([]domain.PartnerOffer, error) {
			return offers, nil
		}},
		Platform:   platform,
		WindowDays: 30,
		GraceDays:  30,
		Clock:      func() time.Time { return testNow },
		IDGen:      sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("NewCustomerService: %v", err)
	}
	return svc
}

func TestManagedSubscriptionsMergesPlatformRows(t *testing.T) {
	offers := []domain.PartnerOffer{
		{ID: "offer-pro", Title: "Pro", Price: 2500, PlatformOfferID: "plat-2"},
	}
	subs := &stubSubscriptionRepo{
		listFn: func(context.Context, string) ([]domain.Subscription, error) {
			return []domain.Subscription{{
				ID:             "sub-1",
				PartnerOfferID: "offer-pro",
				Seats:          5,
				ExpiryDate:     testNow.AddDate(0, 0, 200),
				Status:         domain.SubscriptionStatusActive,
			}}, nil
		},
	}
	platform := &stubPlatform{
		listOffersFn: func(context.Context) ([]domain.PlatformOffer, error) {
			return []domain.PlatformOffer{{ID: "plat-2", Title: "Pro"}}, nil
		},
		listSubscriptionsFn: func(context.Context, string) ([]partnercenter.PlatformSubscription, error) {
			return []partnercenter.PlatformSubscription{
				{ID: "ps-1", OfferID: "plat-2", FriendlyName: "Pro", Quantity: 8, Status: "suspended"},
				{ID: "ps-2", OfferID: "plat-9", FriendlyName: "Sheets", Quantity: 3, Status: "active"},
			}, nil
		},
	}
	svc := newManagedViewService(t, offers, subs, platform)

	managed, err := svc.ManagedSubscriptions(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("ManagedSubscriptions: %v", err)
	}
	if len(managed) != 2 {
		t.Fatalf("got %d rows, want 2", len(managed))
	}
	partnerRow := managed[0]
	if partnerRow.Management != ManagementPartner || partnerRow.SubscriptionID != "sub-1" {
		t.Fatalf("first row must be the storefront subscription: %+v", partnerRow)
	}
	if partnerRow.Seats != 5 {
		t.Fatalf("seats = %d, want the storefront count 5", partnerRow.Seats)
	}
	if partnerRow.LicensesTotal != 8 || partnerRow.Status != "suspended" {
		t.Fatalf("licenses and status must come from the platform row: %+v", partnerRow)
	}
	customerRow := managed[1]
	if customerRow.Management != ManagementCustomer || customerRow.SubscriptionID != "ps-2" {
		t.Fatalf("unmatched platform row must appear customer managed: %+v", customerRow)
	}
	if customerRow.OfferTitle != "Sheets" || customerRow.LicensesTotal != 3 || customerRow.Status != "active" {
		t.Fatalf("customer row not filled from the platform: %+v", customerRow)
	}
	if customerRow.Renewable || customerRow.Editable {
		t.Fatalf("customer-managed rows are read only: %+v", customerRow)
	}
}

func TestManagedSubscriptionsEndOfLifeOffer(t *testing.T) {
	offers := []domain.PartnerOffer{
		{ID: "offer-pro", Title: "Pro", Price: 2500, PlatformOfferID: "plat-gone"},
	}
	subs := &stubSubscriptionRepo{
		listFn: func(context.Context, string) ([]domain.Subscription, error) {
			return []domain.Subscription{{
				ID:             "sub-1",
				PartnerOfferID: "offer-pro",
				Seats:          5,
				ExpiryDate:     testNow.AddDate(0, 0, 5),
				Status:         domain.SubscriptionStatusActive,
			}}, nil
		},
	}
	platform := &stubPlatform{
		listOffersFn: func(context.Context) ([]domain.PlatformOffer, error) {
			return []domain.PlatformOffer{{ID: "plat-other", Title: "Other"}}, nil
		},
	}
	svc := newManagedViewService(t, offers, subs, platform)

	managed, err := svc.ManagedSubscriptions(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("ManagedSubscriptions: %v", err)
	}
	if len(managed) != 1 {
		t.Fatalf("got %d rows, want 1", len(managed))
	}
	if managed[0].Renewable || managed[0].Editable {
		t.Fatalf("a subscription whose platform offer is gone must be frozen: %+v", managed[0])
	}
}

func TestManagedSubscriptionsUnknownPlatformCustomer(t *testing.T) {
	subs := &stubSubscriptionRepo{
		listFn: func(context.Context, string) ([]domain.Subscription, error) {
			return []domain.Subscription{{
				ID:             "sub-1",
				PartnerOfferID: "offer-basic",
				Seats:          2,
				ExpiryDate:     testNow.AddDate(0, 0, 200),
				Status:         domain.SubscriptionStatusActive,
			}}, nil
		},
	}
	platform := &stubPlatform{
		listSubscriptionsFn: func(context.Context, string) ([]partnercenter.PlatformSubscription, error) {
			return nil, partnercenter.ErrCustomerNotFound
		},
	}
	svc := newTestCustomerService(t, nil, subs, platform)

	managed, err := svc.ManagedSubscriptions(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("a customer not yet provisioned upstream must still see local rows: %v", err)
	}
	if len(managed) != 1 || managed[0].SubscriptionID != "sub-1" {
		t.Fatalf("unexpected rows: %+v", managed)
	}
}

func TestManagedSubscriptionsPlatformOutage(t *testing.T) {
	subs := &stubSubscriptionRepo{
		listFn: func(context.Context, string) ([]domain.Subscription, error) {
			return []domain.Subscription{{ID: "sub-1", PartnerOfferID: "offer-basic"}}, nil
		},
	}
	platform := &stubPlatform{
		listSubscriptionsFn: func(context.Context, string) ([]partnercenter.PlatformSubscription, error) {
			return nil, errors.New("platform down")
		},
	}
	svc := newTestCustomerService(t, nil, subs, platform)

	if _, err := svc.ManagedSubscriptions(context.Background(), "cust-1"); domain.CodeOf(err) != domain.ErrorGatewayFailure {
		t.Fatalf("error = %v, want gateway_failure", err)
	}
}
