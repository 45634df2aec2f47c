package partnercenter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	domain "github.com/partner-storefront/api/internal/domain"
	"github.com/partner-storefront/api/internal/platform/config"
)

var (
	// ErrGateway wraps transport and upstream failures talking to the platform.
	ErrGateway = errors.New("partnercenter: platform request failed")
	// ErrCustomerNotFound is returned when the platform does not know the customer.
	ErrCustomerNotFound = errors.New("partnercenter: customer not found")
)

const tokenExpirySkew = 30 * time.Second

// CustomerAccount is the platform's view of a provisioned customer.
type CustomerAccount struct {
	ID           string `json:"id"`
	CompanyName  string `json:"companyName"`
	Domain       string `json:"domain"`
	UserName     string `json:"userName"`
	Password     string `json:"password"`
	BillingEmail string `json:"billingEmail"`
}

// CountryRules carries per-country validation metadata used during signup.
type CountryRules struct {
	Country             string   `json:"country"`
	PhoneNumberRegex    string   `json:"phoneNumberRegex"`
	PostalCodeRegex     string   `json:"postalCodeRegex"`
	IsStateRequired     bool     `json:"isStateRequired"`
	SupportedStatesList []string `json:"supportedStatesList"`
}

// PlatformSubscription is a subscription row as the commerce platform sees it.
type PlatformSubscription struct {
	ID           string `json:"id"`
	OfferID      string `json:"offerId"`
	FriendlyName string `json:"friendlyName"`
	Quantity     int    `json:"quantity"`
	Status       string `json:"status"`
}

// Client talks to the partner commerce platform over its REST surface.
// Calls are single-shot; the caller decides whether a failure is retriable.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokenURL   string
	clientID   string
	secret     string

	now func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// ClientOption customises the platform client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for platform calls.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithClock injects a custom time source (useful for tests).
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient constructs a platform client from configuration.
func NewClient(cfg config.PartnerCenterConfig, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("partnercenter: base url is required")
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, errors.New("partnercenter: token url is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("partnercenter: client credentials are required")
	}

	client := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		tokenURL:   strings.TrimSpace(cfg.TokenURL),
		clientID:   strings.TrimSpace(cfg.ClientID),
		secret:     cfg.ClientSecret,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// CreateCustomer provisions the registered customer on the platform and
// returns the platform-assigned account.
func (c *Client) CreateCustomer(ctx context.Context, registration domain.CustomerRegistration) (CustomerAccount, error) {
	payload := map[string]any{
		"companyProfile": map[string]any{
			"companyName": registration.CompanyName,
			"domain":      registration.DomainPrefix + "." + registration.DomainName,
		},
		"billingProfile": map[string]any{
			"firstName":    registration.FirstName,
			"lastName":     registration.LastName,
			"email":        registration.Email,
			"culture":      registration.BillingCulture,
			"language":     registration.BillingLanguage,
			"companyName":  registration.CompanyName,
			"addressLine1": registration.AddressLine1,
			"addressLine2": registration.AddressLine2,
			"city":         registration.City,
			"state":        registration.State,
			"postalCode":   registration.ZipCode,
			"country":      registration.Country,
			"phoneNumber":  registration.Phone,
		},
	}

	var account CustomerAccount
	if err := c.do(ctx, http.MethodPost, "/v1/customers", payload, &account); err != nil {
		return CustomerAccount{}, err
	}
	return account, nil
}

// CheckDomainAvailability reports whether the requested domain prefix is free.
func (c *Client) CheckDomainAvailability(ctx context.Context, domainPrefix string) (bool, error) {
	domainPrefix = strings.TrimSpace(domainPrefix)
	if domainPrefix == "" {
		return false, errors.New("partnercenter: domain prefix is required")
	}

	path := "/v1/domains/" + url.PathEscape(domainPrefix)
	req, err := c.newRequest(ctx, http.MethodHead, path, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer drain(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		// The platform answers OK when the domain already exists.
		return false, nil
	case http.StatusNotFound:
		return true, nil
	default:
		return false, fmt.Errorf("%w: domain check returned %d", ErrGateway, resp.StatusCode)
	}
}

// CountryValidationRules fetches per-country signup validation metadata.
func (c *Client) CountryValidationRules(ctx context.Context, country string) (CountryRules, error) {
	country = strings.TrimSpace(country)
	if country == "" {
		return CountryRules{}, errors.New("partnercenter: country is required")
	}

	var rules CountryRules
	if err := c.do(ctx, http.MethodGet, "/v1/countryvalidationrules/"+url.PathEscape(country), nil, &rules); err != nil {
		return CountryRules{}, err
	}
	return rules, nil
}

// ListOffers returns the platform's offer catalog for the partner region.
func (c *Client) ListOffers(ctx context.Context) ([]domain.PlatformOffer, error) {
	var envelope struct {
		Items []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Thumbnail string `json:"thumbnailUri"`
		} `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/offers", nil, &envelope); err != nil {
		return nil, err
	}

	offers := make([]domain.PlatformOffer, 0, len(envelope.Items))
	for _, item := range envelope.Items {
		offers = append(offers, domain.PlatformOffer{
			ID:        item.ID,
			Title:     item.Name,
			Thumbnail: item.Thumbnail,
		})
	}
	return offers, nil
}

// ListSubscriptions returns the customer's subscriptions as the platform sees them.
func (c *Client) ListSubscriptions(ctx context.Context, customerID string) ([]PlatformSubscription, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, errors.New("partnercenter: customer id is required")
	}

	var envelope struct {
		Items []PlatformSubscription `json:"items"`
	}
	path := "/v1/customers/" + url.PathEscape(customerID) + "/subscriptions"
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Items, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer drain(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", ErrCustomerNotFound, method, path)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrGateway, method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("partnercenter: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("partnercenter: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.secret)
	form.Set("resource", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("partnercenter: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", ErrGateway, err)
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token exchange returned %d", ErrGateway, resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in,string"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", ErrGateway, err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("%w: token exchange returned empty token", ErrGateway)
	}

	ttl := time.Duration(tokenResp.ExpiresIn) * time.Second
	if ttl <= tokenExpirySkew {
		ttl = time.Minute
	}
	c.token = tokenResp.AccessToken
	c.tokenExpiry = c.now().Add(ttl - tokenExpirySkew)
	return c.token, nil
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
