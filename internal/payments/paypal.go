package payments

import (
	"bytes"
	"context"
	"encoding/base64"
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
	"github.com/partner-storefront/api/internal/repositories"
)

// ErrPayPal wraps transport and API failures from the PayPal REST surface.
var ErrPayPal = errors.New("payments: paypal request failed")

const paypalTokenSkew = 30 * time.Second

// PayPalGateway drives the redirect checkout flow against the PayPal REST
// v1 payments API. Payments are created with authorize intent, executed on
// callback, then captured or voided by the commerce transaction.
type PayPalGateway struct {
	config     repositories.PaymentConfigRepository
	httpClient *http.Client
	currency   string
	decimals   int
	clock      func() time.Time
	logger     Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

var _ Gateway = (*PayPalGateway)(nil)

// PayPalGatewayConfig configures the PayPal gateway.
type PayPalGatewayConfig struct {
	Config     repositories.PaymentConfigRepository
	HTTPClient *http.Client
	Currency   string
	// Decimals is the number of fractional digits in the portal currency.
	Decimals int
	Clock    func() time.Time
	Logger   Logger
}

// NewPayPalGateway constructs the PayPal redirect gateway.
func NewPayPalGateway(cfg PayPalGatewayConfig) (*PayPalGateway, error) {
	if cfg.Config == nil {
		return nil, errors.New("payments: payment config repository is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		return nil, errors.New("payments: currency is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PayPalGateway{
		config:     cfg.Config,
		httpClient: httpClient,
		currency:   currency,
		decimals:   cfg.Decimals,
		clock:      utcClock(cfg.Clock),
		logger:     logger,
	}, nil
}

type paypalAmount struct {
	Total    string `json:"total"`
	Currency string `json:"currency"`
}

type paypalItem struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price"`
	Currency    string `json:"currency"`
	Quantity    int    `json:"quantity"`
}

type paypalTransaction struct {
	Amount        paypalAmount `json:"amount"`
	Description   string       `json:"description,omitempty"`
	InvoiceNumber string       `json:"invoice_number"`
	Custom        string       `json:"custom"`
	ItemList      struct {
		Items []paypalItem `json:"items"`
	} `json:"item_list"`
	RelatedResources []struct {
		Authorization struct {
			ID string `json:"id"`
		} `json:"authorization"`
	} `json:"related_resources,omitempty"`
}

type paypalPayment struct {
	ID           string              `json:"id,omitempty"`
	Intent       string              `json:"intent"`
	State        string              `json:"state,omitempty"`
	Payer        map[string]any      `json:"payer"`
	Transactions []paypalTransaction `json:"transactions"`
	RedirectURLs *struct {
		ReturnURL string `json:"return_url"`
		CancelURL string `json:"cancel_url"`
	} `json:"redirect_urls,omitempty"`
	Links []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links,omitempty"`
}

// GeneratePaymentURI creates an authorize-intent payment carrying the order
// lines and returns PayPal's approval URL.
func (g *PayPalGateway) GeneratePaymentURI(ctx context.Context, returnURL string, order domain.Order) (string, error) {
	returnURL = strings.TrimSpace(returnURL)
	if returnURL == "" {
		return "", errors.New("payments: return url is required")
	}
	if len(order.Items) == 0 {
		return "", errors.New("payments: order has no line items")
	}

	payment := paypalPayment{
		Intent: "authorize",
		Payer:  map[string]any{"payment_method": "paypal"},
	}
	separator := "?"
	if strings.Contains(returnURL, "?") {
		separator = "&"
	}
	payment.RedirectURLs = &struct {
		ReturnURL string `json:"return_url"`
		CancelURL string `json:"cancel_url"`
	}{
		ReturnURL: returnURL + separator + "payment=success",
		CancelURL: returnURL + separator + "payment=failure",
	}

	tx := paypalTransaction{
		Amount:        paypalAmount{Total: formatAmount(order.Total(), g.decimals), Currency: g.currency},
		InvoiceNumber: order.ID,
		Custom:        encodeOrderCustom(order),
	}
	for _, item := range order.Items {
		tx.ItemList.Items = append(tx.ItemList.Items, paypalItem{
			SKU:         item.OfferID,
			Name:        item.OfferID,
			Description: item.SubscriptionID,
			Price:       formatAmount(item.SeatPrice, g.decimals),
			Currency:    g.currency,
			Quantity:    item.Quantity,
		})
	}
	payment.Transactions = []paypalTransaction{tx}

	var created paypalPayment
	if err := g.do(ctx, http.MethodPost, "/v1/payments/payment", payment, &created); err != nil {
		return "", err
	}

	for _, link := range created.Links {
		if strings.EqualFold(link.Rel, "approval_url") {
			g.logger(ctx, "payments.paypal.payment.created", map[string]any{
				"paymentId": created.ID,
				"orderId":   order.ID,
			})
			return link.Href, nil
		}
	}
	return "", fmt.Errorf("%w: no approval url on payment %s", ErrPayPal, created.ID)
}

// OrderFromPayment rebuilds the normalized order from the created payment.
// Amounts come from the payment PayPal holds, never from the callback.
func (g *PayPalGateway) OrderFromPayment(ctx context.Context, params CallbackParams) (domain.Order, error) {
	paymentID := strings.TrimSpace(params.PaymentID)
	if paymentID == "" {
		return domain.Order{}, errors.New("payments: payment id is required")
	}

	var payment paypalPayment
	path := "/v1/payments/payment/" + url.PathEscape(paymentID)
	if err := g.do(ctx, http.MethodGet, path, nil, &payment); err != nil {
		return domain.Order{}, err
	}
	if len(payment.Transactions) == 0 {
		return domain.Order{}, fmt.Errorf("%w: payment %s has no transactions", ErrPayPal, paymentID)
	}

	tx := payment.Transactions[0]
	customerID, operationType, err := decodeOrderCustom(tx.Custom)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:               tx.InvoiceNumber,
		CustomerID:       customerID,
		OperationType:    operationType,
		PaymentReference: payment.ID,
		CreatedAt:        g.clock(),
	}
	for _, item := range tx.ItemList.Items {
		price, err := parseAmount(item.Price, g.decimals)
		if err != nil {
			return domain.Order{}, fmt.Errorf("%w: item %s: %v", ErrPayPal, item.SKU, err)
		}
		order.Items = append(order.Items, domain.OrderLineItem{
			OfferID:        item.SKU,
			SubscriptionID: item.Description,
			Quantity:       item.Quantity,
			SeatPrice:      price,
		})
	}
	return order, nil
}

// ExecutePayment executes the approved payment and returns the resulting
// authorization.
func (g *PayPalGateway) ExecutePayment(ctx context.Context, params CallbackParams) (Authorization, error) {
	paymentID := strings.TrimSpace(params.PaymentID)
	payerID := strings.TrimSpace(params.PayerID)
	if paymentID == "" || payerID == "" {
		return Authorization{}, errors.New("payments: payment id and payer id are required")
	}

	var executed paypalPayment
	path := "/v1/payments/payment/" + url.PathEscape(paymentID) + "/execute"
	if err := g.do(ctx, http.MethodPost, path, map[string]string{"payer_id": payerID}, &executed); err != nil {
		return Authorization{}, err
	}

	if len(executed.Transactions) == 0 || len(executed.Transactions[0].RelatedResources) == 0 {
		return Authorization{}, fmt.Errorf("%w: payment %s execution returned no authorization", ErrPayPal, paymentID)
	}
	authID := executed.Transactions[0].RelatedResources[0].Authorization.ID
	if authID == "" {
		return Authorization{}, fmt.Errorf("%w: payment %s execution returned empty authorization id", ErrPayPal, paymentID)
	}

	amount, err := parseAmount(executed.Transactions[0].Amount.Total, g.decimals)
	if err != nil {
		return Authorization{}, fmt.Errorf("%w: %v", ErrPayPal, err)
	}

	g.logger(ctx, "payments.paypal.payment.executed", map[string]any{
		"paymentId":     paymentID,
		"authorization": authID,
	})
	return Authorization{
		Code:       authID,
		PaymentID:  paymentID,
		OrderID:    executed.Transactions[0].InvoiceNumber,
		CustomerID: params.CustomerID,
		Amount:     amount,
	}, nil
}

// Capture settles the authorization as a final capture.
func (g *PayPalGateway) Capture(ctx context.Context, auth Authorization) error {
	if strings.TrimSpace(auth.Code) == "" {
		return errors.New("payments: authorization code is required")
	}

	payload := map[string]any{
		"amount":           paypalAmount{Total: formatAmount(auth.Amount, g.decimals), Currency: g.currency},
		"is_final_capture": true,
	}
	path := "/v1/payments/authorization/" + url.PathEscape(auth.Code) + "/capture"
	if err := g.do(ctx, http.MethodPost, path, payload, nil); err != nil {
		return err
	}
	g.logger(ctx, "payments.paypal.authorization.captured", map[string]any{
		"authorization": auth.Code,
		"orderId":       auth.OrderID,
	})
	return nil
}

// Void releases the authorization without charging the customer.
func (g *PayPalGateway) Void(ctx context.Context, auth Authorization) error {
	if strings.TrimSpace(auth.Code) == "" {
		return errors.New("payments: authorization code is required")
	}

	path := "/v1/payments/authorization/" + url.PathEscape(auth.Code) + "/void"
	if err := g.do(ctx, http.MethodPost, path, struct{}{}, nil); err != nil {
		return err
	}
	g.logger(ctx, "payments.paypal.authorization.voided", map[string]any{
		"authorization": auth.Code,
		"orderId":       auth.OrderID,
	})
	return nil
}

func (g *PayPalGateway) do(ctx context.Context, method, path string, payload, out any) error {
	cfg, err := g.config.Get(ctx)
	if err != nil {
		return fmt.Errorf("payments: load payment config: %w", err)
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return fmt.Errorf("%w: base url not configured", ErrPayPal)
	}

	token, err := g.accessToken(ctx, cfg)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("payments: encode paypal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return fmt.Errorf("payments: build paypal request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPayPal, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrPayPal, method, path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrPayPal, err)
	}
	return nil
}

func (g *PayPalGateway) accessToken(ctx context.Context, cfg domain.PaymentConfiguration) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && g.clock().Before(g.tokenExpiry) {
		return g.token, nil
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	basic := base64.StdEncoding.EncodeToString([]byte(cfg.ClientID + ":" + cfg.ClientSecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("payments: build paypal token request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", ErrPayPal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token exchange returned %d", ErrPayPal, resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", ErrPayPal, err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrPayPal)
	}

	ttl := time.Duration(tokenResp.ExpiresIn) * time.Second
	if ttl <= paypalTokenSkew {
		ttl = time.Minute
	}
	g.token = tokenResp.AccessToken
	g.tokenExpiry = g.clock().Add(ttl - paypalTokenSkew)
	return g.token, nil
}

// encodeOrderCustom packs the customer id and operation type into the
// transaction custom field so the callback can rebuild the order.
func encodeOrderCustom(order domain.Order) string {
	return order.CustomerID + "|" + string(order.OperationType)
}

func decodeOrderCustom(custom string) (string, domain.CommerceOperationType, error) {
	parts := strings.SplitN(custom, "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("%w: malformed custom field %q", ErrPayPal, custom)
	}
	return parts[0], domain.CommerceOperationType(parts[1]), nil
}
