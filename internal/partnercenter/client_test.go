package partnercenter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/partner-storefront/api/internal/domain"
	"github.com/partner-storefront/api/internal/platform/config"
)

// platformServer fakes the commerce platform's token and REST endpoints.
type platformServer struct {
	*httptest.Server

	tokenRequests   int
	createdCustomer map[string]any
	domainStatus    int
}

func newPlatformServer(t *testing.T) *platformServer {
	t.Helper()

	srv := &platformServer{domainStatus: http.StatusNotFound}
	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			http.Error(w, "bad grant type", http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("client_id") != "partner-id" || r.PostForm.Get("client_secret") != "partner-secret" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		srv.tokenRequests++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"token-1","expires_in":"3600"}`)
	})

	requireAuth := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "Bearer token-1" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return false
		}
		return true
	}

	mux.HandleFunc("/v1/customers", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r) {
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		srv.createdCustomer = payload
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"acct-1","companyName":"Analytical Engines","domain":"analyticalengines.example.cloud","userName":"admin@analyticalengines.example.cloud","password":"s3cret","billingEmail":"ada@example.com"}`)
	})

	mux.HandleFunc("/v1/domains/", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r) {
			return
		}
		w.WriteHeader(srv.domainStatus)
	})

	mux.HandleFunc("/v1/countryvalidationrules/US", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"country":"US","phoneNumberRegex":"^\\d{10}$","postalCodeRegex":"^\\d{5}$","isStateRequired":true,"supportedStatesList":["CA","NY"]}`)
	})

	mux.HandleFunc("/v1/offers", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[{"id":"plat-1","name":"Business Essentials","thumbnailUri":"https://cdn.example.com/plat-1.png"},{"id":"plat-2","name":"Business Premium"}]}`)
	})

	mux.HandleFunc("/v1/customers/cust-1/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[{"id":"sub-1","offerId":"plat-1","friendlyName":"Business Essentials","quantity":5,"status":"active"}]}`)
	})

	srv.Server = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *platformServer, opts ...ClientOption) *Client {
	t.Helper()

	client, err := NewClient(config.PartnerCenterConfig{
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/token",
		ClientID:     "partner-id",
		ClientSecret: "partner-secret",
	}, opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientValidatesConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.PartnerCenterConfig
	}{
		{name: "missing base url", cfg: config.PartnerCenterConfig{TokenURL: "https://login.example.com/token", ClientID: "id", ClientSecret: "secret"}},
		{name: "missing token url", cfg: config.PartnerCenterConfig{BaseURL: "https://api.example.com", ClientID: "id", ClientSecret: "secret"}},
		{name: "missing credentials", cfg: config.PartnerCenterConfig{BaseURL: "https://api.example.com", TokenURL: "https://login.example.com/token"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewClient(tc.cfg); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}

func TestCreateCustomerSendsProfilePayload(t *testing.T) {
	srv := newPlatformServer(t)
	client := newTestClient(t, srv)

	registration := domain.CustomerRegistration{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Email:           "ada@example.com",
		CompanyName:     "Analytical Engines",
		AddressLine1:    "1 Engine Way",
		City:            "London",
		State:           "CA",
		ZipCode:         "12345",
		Country:         "US",
		Phone:           "2025550147",
		DomainPrefix:    "analyticalengines",
		DomainName:      "example.cloud",
		BillingCulture:  "en-US",
		BillingLanguage: "en",
	}

	account, err := client.CreateCustomer(context.Background(), registration)
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	if account.ID != "acct-1" {
		t.Fatalf("account id = %q, want acct-1", account.ID)
	}
	if account.UserName != "admin@analyticalengines.example.cloud" {
		t.Fatalf("account user = %q", account.UserName)
	}

	company, ok := srv.createdCustomer["companyProfile"].(map[string]any)
	if !ok {
		t.Fatalf("companyProfile missing from payload: %v", srv.createdCustomer)
	}
	if company["domain"] != "analyticalengines.example.cloud" {
		t.Fatalf("companyProfile.domain = %v", company["domain"])
	}
	billing, ok := srv.createdCustomer["billingProfile"].(map[string]any)
	if !ok {
		t.Fatalf("billingProfile missing from payload: %v", srv.createdCustomer)
	}
	if billing["email"] != "ada@example.com" {
		t.Fatalf("billingProfile.email = %v", billing["email"])
	}
	if billing["phoneNumber"] != "2025550147" {
		t.Fatalf("billingProfile.phoneNumber = %v", billing["phoneNumber"])
	}
}

func TestCheckDomainAvailability(t *testing.T) {
	srv := newPlatformServer(t)
	client := newTestClient(t, srv)

	srv.domainStatus = http.StatusNotFound
	available, err := client.CheckDomainAvailability(context.Background(), "freshprefix")
	if err != nil {
		t.Fatalf("CheckDomainAvailability: %v", err)
	}
	if !available {
		t.Fatal("expected 404 to mean the prefix is available")
	}

	srv.domainStatus = http.StatusOK
	available, err = client.CheckDomainAvailability(context.Background(), "takenprefix")
	if err != nil {
		t.Fatalf("CheckDomainAvailability: %v", err)
	}
	if available {
		t.Fatal("expected 200 to mean the prefix is taken")
	}

	srv.domainStatus = http.StatusInternalServerError
	if _, err = client.CheckDomainAvailability(context.Background(), "brokenprefix"); !errors.Is(err, ErrGateway) {
		t.Fatalf("err = %v, want ErrGateway", err)
	}

	if _, err = client.CheckDomainAvailability(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank prefix")
	}
}

func TestCountryValidationRules(t *testing.T) {
	srv := newPlatformServer(t)
	client := newTestClient(t, srv)

	rules, err := client.CountryValidationRules(context.Background(), "US")
	if err != nil {
		t.Fatalf("CountryValidationRules: %v", err)
	}
	if rules.PhoneNumberRegex != `^\d{10}$` {
		t.Fatalf("phone regex = %q", rules.PhoneNumberRegex)
	}
	if !rules.IsStateRequired || len(rules.SupportedStatesList) != 2 {
		t.Fatalf("unexpected state rules: %+v", rules)
	}
}

func TestListOffersMapsEnvelope(t *testing.T) {
	srv := newPlatformServer(t)
	client := newTestClient(t, srv)

	offers, err := client.ListOffers(context.Background())
	if err != nil {
		t.Fatalf("ListOffers: %v", err)
	}
	if len(offers) != 2 {
		t.Fatalf("got %d offers, want 2", len(offers))
	}
	if offers[0].ID != "plat-1" || offers[0].Title != "Business Essentials" {
		t.Fatalf("first offer = %+v", offers[0])
	}
	if offers[0].Thumbnail != "https://cdn.example.com/plat-1.png" {
		t.Fatalf("first offer thumbnail = %q", offers[0].Thumbnail)
	}
	if offers[1].Thumbnail != "" {
		t.Fatalf("second offer thumbnail = %q, want empty", offers[1].Thumbnail)
	}
}

func TestListSubscriptions(t *testing.T) {
	srv := newPlatformServer(t)
	client := newTestClient(t, srv)

	subs, err := client.ListSubscriptions(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("ListSubscriptions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("got %d subscriptions, want 1", len(subs))
	}
	if subs[0].ID != "sub-1" || subs[0].Quantity != 5 || subs[0].Status != "active" {
		t.Fatalf("subscription = %+v", subs[0])
	}
}

func TestListSubscriptionsUnknownCustomer(t *testing.T) {
	srv := newPlatformServer(t)
	client := newTestClient(t, srv)

	if _, err := client.ListSubscriptions(context.Background(), "cust-missing"); !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("err = %v, want ErrCustomerNotFound", err)
	}
}

func TestAccessTokenCachedAcrossCalls(t *testing.T) {
	srv := newPlatformServer(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, srv, WithClock(func() time.Time { return now }))

	if _, err := client.ListOffers(context.Background()); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := client.ListOffers(context.Background()); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if srv.tokenRequests != 1 {
		t.Fatalf("token requests = %d, want 1", srv.tokenRequests)
	}

	// Move past the cached expiry and the client must re-authenticate.
	now = now.Add(2 * time.Hour)
	if _, err := client.ListOffers(context.Background()); err != nil {
		t.Fatalf("third call: %v", err)
	}
	if srv.tokenRequests != 2 {
		t.Fatalf("token requests = %d, want 2", srv.tokenRequests)
	}
}
