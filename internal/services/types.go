package services

import (
	"time"

	"github.com/partner-storefront/api/internal/partnercenter"
	"github.com/partner-storefront/api/internal/payments"
)

// OfferView is a catalog entry merged with its live platform counterpart.
type OfferView struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Subtitle        string   `json:"subtitle,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	Features        []string `json:"features,omitempty"`
	Price           int64    `json:"price"`
	PlatformOfferID string   `json:"platformOfferId"`
	Thumbnail       string   `json:"thumbnail,omitempty"`
}

// OrderDraftItem is a single client-submitted order line before normalization.
type OrderDraftItem struct {
	OfferID        string `json:"offerId"`
	SubscriptionID string `json:"subscriptionId"`
	Quantity       int    `json:"quantity"`
}

// OrderDraft is the raw order a client submits. Prices are never taken from
// the client; the normalizer re-prices every line from the catalog.
type OrderDraft struct {
	OperationType CommerceOperationType `json:"operationType"`
	Items         []OrderDraftItem      `json:"items"`
}

// CheckoutRedirect carries the provider URI the customer must visit to pay.
type CheckoutRedirect struct {
	OrderID    string `json:"orderId"`
	PaymentURI string `json:"paymentUri"`
}

// ProcessCallback is the set of query parameters a payment provider appends
// when it redirects the customer back to the storefront.
type ProcessCallback struct {
	PaymentID string `json:"paymentId"`
	PayerID   string `json:"payerId"`
	OrderID   string `json:"orderId"`
}

// GatewayCallback binds a selected gateway to the callback parameters of a
// returning payment so commerce sequences can authorize and capture it.
type GatewayCallback struct {
	Gateway payments.Gateway
	Params  payments.CallbackParams
}

// CompletedRegistration is the outcome of provisioning a stored sign-up on
// the commerce platform.
type CompletedRegistration struct {
	CustomerID string                        `json:"customerId"`
	Account    partnercenter.CustomerAccount `json:"account"`
}

// Management classifies who administers a subscription: rows sold through
// the storefront are partner managed, rows created directly on the commerce
// platform are customer managed.
const (
	ManagementPartner  = "partner"
	ManagementCustomer = "customer"
)

// ManagedSubscription is one row of the manage screen: a storefront
// subscription joined with its offer and the platform's view of it, or a
// platform-only subscription the storefront never sold.
type ManagedSubscription struct {
	SubscriptionID string    `json:"subscriptionId"`
	OfferID        string    `json:"offerId"`
	OfferTitle     string    `json:"offerTitle"`
	Management     string    `json:"management"`
	Seats          int       `json:"seats"`
	LicensesTotal  int       `json:"licensesTotal"`
	Status         string    `json:"status"`
	ExpiryDate     time.Time `json:"expiryDate"`
	Renewable      bool      `json:"renewable"`
	Editable       bool      `json:"editable"`
}

// SummaryLineItem is one subscription row in the account summary with the
// price a single additional seat would cost today.
type SummaryLineItem struct {
	SubscriptionID   string    `json:"subscriptionId"`
	OfferID          string    `json:"offerId"`
	OfferTitle       string    `json:"offerTitle"`
	Seats            int       `json:"seats"`
	Status           string    `json:"status"`
	ExpiryDate       time.Time `json:"expiryDate"`
	RemainingDays    int       `json:"remainingDays"`
	SeatPriceToday   int64     `json:"seatPriceToday"`
	SeatPriceDisplay string    `json:"seatPriceDisplay"`
	Renewable        bool      `json:"renewable"`
	Editable         bool      `json:"editable"`
}

// SummaryHistoryItem is one purchase record in the account summary.
type SummaryHistoryItem struct {
	SubscriptionID  string    `json:"subscriptionId"`
	OperationType   string    `json:"operationType"`
	SeatsBought     int       `json:"seatsBought"`
	AmountPaid      int64     `json:"amountPaid"`
	AmountDisplay   string    `json:"amountDisplay"`
	TransactionDate time.Time `json:"transactionDate"`
}

// SubscriptionsSummary is the aggregated account view for one customer.
type SubscriptionsSummary struct {
	CustomerID    string               `json:"customerId"`
	Subscriptions []SummaryLineItem    `json:"subscriptions"`
	History       []SummaryHistoryItem `json:"history"`
	TotalPaid     int64                `json:"totalPaid"`
	GeneratedAt   time.Time            `json:"generatedAt"`
}
