package payments

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domain "github.com/partner-storefront/api/internal/domain"
	"github.com/partner-storefront/api/internal/repositories"
)

// ErrPayUMoney wraps transport and API failures from the PayUMoney surface.
var ErrPayUMoney = errors.New("payments: payumoney request failed")

const (
	payumoneyPaymentPath = "/payment/op/getPaymentResponse"
	payumoneyRefundPath  = "/treasury/ext/merchant/refundPayment"
	payumoneyRedirect    = "/transact"
)

// PayUMoneyGateway integrates the regional PayUMoney provider. The provider
// cannot hold order lines server side, so the normalized order is parked in
// the pending order store and the redirect carries a salted hash of the
// transaction fields. Status and refund calls authenticate with the
// merchant's pre-issued Authorization header rather than a token exchange.
type PayUMoneyGateway struct {
	config     repositories.PaymentConfigRepository
	orders     repositories.PendingOrderRepository
	httpClient *http.Client
	decimals   int
	clock      func() time.Time
	logger     Logger
}

var _ Gateway = (*PayUMoneyGateway)(nil)

// PayUMoneyGatewayConfig configures the PayUMoney gateway.
type PayUMoneyGatewayConfig struct {
	Config     repositories.PaymentConfigRepository
	Orders     repositories.PendingOrderRepository
	HTTPClient *http.Client
	Decimals   int
	Clock      func() time.Time
	Logger     Logger
}

// NewPayUMoneyGateway constructs the PayUMoney gateway.
func NewPayUMoneyGateway(cfg PayUMoneyGatewayConfig) (*PayUMoneyGateway, error) {
	if cfg.Config == nil {
		return nil, errors.New("payments: payment config repository is required")
	}
	if cfg.Orders == nil {
		return nil, errors.New("payments: pending order repository is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PayUMoneyGateway{
		config:     cfg.Config,
		orders:     cfg.Orders,
		httpClient: httpClient,
		decimals:   cfg.Decimals,
		clock:      utcClock(cfg.Clock),
		logger:     logger,
	}, nil
}

// GeneratePaymentURI parks the order and returns the hosted payment URL with
// the merchant hash over the transaction fields.
func (g *PayUMoneyGateway) GeneratePaymentURI(ctx context.Context, returnURL string, order domain.Order) (string, error) {
	returnURL = strings.TrimSpace(returnURL)
	if returnURL == "" {
		return "", errors.New("payments: return url is required")
	}
	if strings.TrimSpace(order.ID) == "" {
		return "", errors.New("payments: order id is required")
	}

	cfg, err := g.config.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("payments: load payment config: %w", err)
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" || strings.TrimSpace(cfg.ClientID) == "" {
		return "", fmt.Errorf("%w: merchant key or base url not configured", ErrPayUMoney)
	}

	if err := g.orders.Insert(ctx, order); err != nil {
		return "", fmt.Errorf("payments: persist pending order: %w", err)
	}

	amount := formatAmount(order.Total(), g.decimals)
	productInfo := string(order.OperationType)
	hash := payumoneyHash(cfg.ClientID, order.ID, amount, productInfo, cfg.ClientSecret)

	params := url.Values{}
	params.Set("key", cfg.ClientID)
	params.Set("txnid", order.ID)
	params.Set("amount", amount)
	params.Set("productinfo", productInfo)
	separator := "?"
	if strings.Contains(returnURL, "?") {
		separator = "&"
	}
	params.Set("surl", returnURL+separator+"payment=success&oid="+url.QueryEscape(order.ID))
	params.Set("furl", returnURL+separator+"payment=failure&oid="+url.QueryEscape(order.ID))
	params.Set("hash", hash)

	g.logger(ctx, "payments.payumoney.redirect", map[string]any{
		"orderId":    order.ID,
		"customerId": order.CustomerID,
	})
	return base + payumoneyRedirect + "?" + params.Encode(), nil
}

// OrderFromPayment loads the parked order; PayUMoney callbacks carry only
// identifiers, never amounts the storefront would trust.
func (g *PayUMoneyGateway) OrderFromPayment(ctx context.Context, params CallbackParams) (domain.Order, error) {
	orderID := strings.TrimSpace(params.OrderID)
	if orderID == "" {
		return domain.Order{}, errors.New("payments: order id is required")
	}

	order, err := g.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("payments: load pending order: %w", err)
	}
	return order, nil
}

// ExecutePayment verifies the payment with PayUMoney's status API. The money
// has already moved by the time the customer returns, so execution is a
// confirmation, not a charge.
func (g *PayUMoneyGateway) ExecutePayment(ctx context.Context, params CallbackParams) (Authorization, error) {
	paymentID := strings.TrimSpace(params.PaymentID)
	if paymentID == "" {
		return Authorization{}, errors.New("payments: payment id is required")
	}

	cfg, err := g.config.Get(ctx)
	if err != nil {
		return Authorization{}, fmt.Errorf("payments: load payment config: %w", err)
	}

	query := url.Values{}
	query.Set("merchantKey", cfg.ClientID)
	query.Set("paymentId", paymentID)

	var status struct {
		Status int `json:"status"`
		Result []struct {
			Amount string `json:"amount"`
			Status string `json:"status"`
		} `json:"result"`
	}
	if err := g.post(ctx, cfg, payumoneyPaymentPath+"?"+query.Encode(), &status); err != nil {
		return Authorization{}, err
	}
	if len(status.Result) == 0 || !strings.EqualFold(status.Result[0].Status, "success") {
		return Authorization{}, fmt.Errorf("%w: payment %s", ErrPaymentNotCompleted, paymentID)
	}

	amount, err := parseAmount(status.Result[0].Amount, g.decimals)
	if err != nil {
		return Authorization{}, fmt.Errorf("%w: %v", ErrPayUMoney, err)
	}

	g.logger(ctx, "payments.payumoney.payment.verified", map[string]any{
		"paymentId": paymentID,
		"orderId":   params.OrderID,
	})
	return Authorization{
		Code:       paymentID,
		PaymentID:  paymentID,
		OrderID:    strings.TrimSpace(params.OrderID),
		CustomerID: strings.TrimSpace(params.CustomerID),
		Amount:     amount,
	}, nil
}

// Capture finishes bookkeeping by dropping the parked order; settlement is
// automatic on the provider side.
func (g *PayUMoneyGateway) Capture(ctx context.Context, auth Authorization) error {
	if err := g.discardOrder(ctx, auth.OrderID); err != nil {
		return err
	}
	g.logger(ctx, "payments.payumoney.captured", map[string]any{
		"paymentId": auth.PaymentID,
		"orderId":   auth.OrderID,
	})
	return nil
}

// Void refunds the already-settled payment and drops the parked order.
func (g *PayUMoneyGateway) Void(ctx context.Context, auth Authorization) error {
	if strings.TrimSpace(auth.PaymentID) == "" {
		return errors.New("payments: payment id is required")
	}

	cfg, err := g.config.Get(ctx)
	if err != nil {
		return fmt.Errorf("payments: load payment config: %w", err)
	}

	query := url.Values{}
	query.Set("merchantKey", cfg.ClientID)
	query.Set("paymentId", auth.PaymentID)
	query.Set("refundAmount", formatAmount(auth.Amount, g.decimals))

	var refund struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	}
	if err := g.post(ctx, cfg, payumoneyRefundPath+"?"+query.Encode(), &refund); err != nil {
		return err
	}

	if err := g.discardOrder(ctx, auth.OrderID); err != nil {
		return err
	}
	g.logger(ctx, "payments.payumoney.refunded", map[string]any{
		"paymentId": auth.PaymentID,
		"orderId":   auth.OrderID,
	})
	return nil
}

func (g *PayUMoneyGateway) discardOrder(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil
	}
	if err := g.orders.Delete(ctx, orderID); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil
		}
		return fmt.Errorf("payments: discard pending order: %w", err)
	}
	return nil
}

func (g *PayUMoneyGateway) post(ctx context.Context, cfg domain.PaymentConfiguration, path string, out any) error {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return fmt.Errorf("%w: base url not configured", ErrPayUMoney)
	}
	if strings.TrimSpace(cfg.MerchantAuthHeader) == "" {
		return fmt.Errorf("%w: merchant authorization not configured", ErrPayUMoney)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, nil)
	if err != nil {
		return fmt.Errorf("payments: build payumoney request: %w", err)
	}
	req.Header.Set("Authorization", cfg.MerchantAuthHeader)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPayUMoney, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrPayUMoney, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrPayUMoney, err)
	}
	return nil
}

// payumoneyHash computes the merchant request hash: sha512 over the
// pipe-joined transaction fields padded with the empty user-defined slots,
// ending with the merchant salt.
func payumoneyHash(key, txnID, amount, productInfo, salt string) string {
	payload := strings.Join([]string{
		key, txnID, amount, productInfo,
		"", "", "", "", "", "", "", "", "", "", "",
		salt,
	}, "|")
	sum := sha512.Sum512([]byte(payload))
	return hex.EncodeToString(sum[:])
}
