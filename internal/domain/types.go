package domain

import (
	"time"
)

// CommerceOperationType enumerates the order operations the storefront supports.
type CommerceOperationType string

const (
	// OperationNewPurchase purchases one or more new subscriptions.
	OperationNewPurchase CommerceOperationType = "new_purchase"
	// OperationAddSeats purchases additional seats for an existing subscription.
	OperationAddSeats CommerceOperationType = "add_seats"
	// OperationRenewal renews an existing subscription for one more term.
	OperationRenewal CommerceOperationType = "renewal"
)

// SubscriptionStatus describes lifecycle states for customer subscriptions.
type SubscriptionStatus string

const (
	// SubscriptionStatusActive indicates the subscription is active and billable.
	SubscriptionStatusActive SubscriptionStatus = "active"
	// SubscriptionStatusSuspended indicates the subscription is suspended upstream.
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
	// SubscriptionStatusDeleted indicates the subscription was removed upstream.
	SubscriptionStatusDeleted SubscriptionStatus = "deleted"
	// SubscriptionStatusNone indicates no status information is available.
	SubscriptionStatusNone SubscriptionStatus = "none"
)

// OrderLineItem is one subscription entry within an order. For new purchases
// OfferID references the partner offer being bought; for seat additions and
// renewals SubscriptionID references the subscription being changed.
type OrderLineItem struct {
	OfferID        string `json:"offerId"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	Quantity       int    `json:"quantity"`
	// SeatPrice is the catalog per-seat price in minor currency units,
	// stamped by the normalizer. Client-submitted values are discarded.
	SeatPrice int64 `json:"seatPrice"`
}

// Order captures a customer's purchase request as it moves from the client
// through normalization, payment, and commerce execution.
type Order struct {
	ID            string                `json:"orderId"`
	CustomerID    string                `json:"customerId"`
	OperationType CommerceOperationType `json:"operationType"`
	Items         []OrderLineItem       `json:"items"`
	// PaymentReference holds the provider-issued identifier once payment
	// has been authorized. Empty until then.
	PaymentReference string    `json:"paymentReference,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Total returns the order amount in minor currency units.
func (o Order) Total() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.SeatPrice * int64(item.Quantity)
	}
	return total
}

// Subscription identifies a purchased offer instance for a customer.
// Exactly one row exists per subscription id.
type Subscription struct {
	ID             string             `json:"subscriptionId"`
	CustomerID     string             `json:"customerId"`
	PartnerOfferID string             `json:"partnerOfferId"`
	Seats          int                `json:"seats"`
	ExpiryDate     time.Time          `json:"expiryDate"`
	Status         SubscriptionStatus `json:"status"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// Expired reports whether the subscription has lapsed relative to now.
// Comparison is date-granular, matching how expiry is extended.
func (s Subscription) Expired(now time.Time) bool {
	return s.ExpiryDate.UTC().Truncate(24 * time.Hour).Before(now.UTC().Truncate(24 * time.Hour))
}

// SubscriptionHistory is an immutable record of one commerce transaction
// against a subscription. Entries are append-only.
type SubscriptionHistory struct {
	ID              string                `json:"id"`
	SubscriptionID  string                `json:"subscriptionId"`
	CustomerID      string                `json:"customerId"`
	SeatsBought     int                   `json:"seatsBought"`
	SeatPrice       int64                 `json:"seatPrice"`
	OperationType   CommerceOperationType `json:"operationType"`
	TransactionDate time.Time             `json:"transactionDate"`
}

// PartnerOffer is a partner-curated catalog entry sold through the storefront.
type PartnerOffer struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Subtitle        string   `json:"subtitle,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	Features        []string `json:"features,omitempty"`
	Price           int64    `json:"price"`
	PlatformOfferID string   `json:"platformOfferId"`
	Inactive        bool     `json:"inactive"`
	Thumbnail       string   `json:"thumbnail,omitempty"`
}

// PlatformOffer is the upstream commerce platform's catalog entry a partner
// offer must still align with to remain displayable.
type PlatformOffer struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// CustomerRegistration holds the profile captured at signup, persisted until
// the customer completes their first purchase and is created on the platform.
type CustomerRegistration struct {
	CustomerID      string    `json:"customerId"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	Email           string    `json:"email"`
	CompanyName     string    `json:"companyName"`
	AddressLine1    string    `json:"addressLine1"`
	AddressLine2    string    `json:"addressLine2,omitempty"`
	City            string    `json:"city"`
	State           string    `json:"state,omitempty"`
	ZipCode         string    `json:"zipCode"`
	Country         string    `json:"country"`
	Phone           string    `json:"phone,omitempty"`
	Language        string    `json:"language,omitempty"`
	DomainPrefix    string    `json:"domainPrefix"`
	DomainName      string    `json:"domainName"`
	BillingCulture  string    `json:"billingCulture,omitempty"`
	BillingLanguage string    `json:"billingLanguage,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// PaymentConfiguration stores the credentials and endpoint for the active
// payment provider, maintained by the partner in the configuration store.
type PaymentConfiguration struct {
	Provider     string `json:"provider"`
	BaseURL      string `json:"baseUrl"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	// MerchantAuthHeader is the pre-issued Authorization header value used
	// by providers that do not use OAuth token exchange.
	MerchantAuthHeader string    `json:"merchantAuthHeader,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// TransactionResult reports the outcome of a completed commerce operation.
type TransactionResult struct {
	CustomerID      string                `json:"customerId"`
	OperationType   CommerceOperationType `json:"operationType"`
	Subscriptions   []Subscription        `json:"subscriptions"`
	History         []SubscriptionHistory `json:"history"`
	AmountCharged   int64                 `json:"amountCharged"`
	TransactionDate time.Time             `json:"transactionDate"`
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck captures the outcome of a single dependency probe.
type SystemHealthCheck struct {
	Status    string        `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string                       `json:"status"`
	Checks      map[string]SystemHealthCheck `json:"checks"`
	GeneratedAt time.Time                    `json:"generatedAt"`
}
