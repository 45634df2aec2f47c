package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	domain "github.com/partner-storefront/api/internal/domain"
)

const orderMetadataKey = "storefront_order"

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeIntentAPI interface {
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type stripeClients struct {
	sessions stripeSessionAPI
	intents  stripeIntentAPI
}

// StripeGateway drives checkout through Stripe Checkout sessions created
// with manual capture, so the commerce transaction decides whether money
// moves. The normalized order rides along in session metadata.
type StripeGateway struct {
	api      stripeClients
	currency string
	clock    func() time.Time
	logger   Logger
}

var _ Gateway = (*StripeGateway)(nil)

// StripeGatewayConfig configures the Stripe gateway.
type StripeGatewayConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Currency string
	Clock    func() time.Time
	Logger   Logger

	// Clients overrides the Stripe API surface (used by tests).
	Clients *stripeClients
}

// NewStripeGateway constructs a Stripe-backed gateway.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		return nil, errors.New("payments: currency is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("payments: stripe api key is required")
		}
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			sessions: sc.CheckoutSessions,
			intents:  sc.PaymentIntents,
		}
	}
	if clients.sessions == nil || clients.intents == nil {
		return nil, errors.New("payments: incomplete stripe client configuration")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeGateway{
		api:      clients,
		currency: currency,
		clock:    utcClock(cfg.Clock),
		logger:   logger,
	}, nil
}

// GeneratePaymentURI creates a manual-capture checkout session carrying the
// order in its metadata and returns the hosted payment page URL.
func (g *StripeGateway) GeneratePaymentURI(ctx context.Context, returnURL string, order domain.Order) (string, error) {
	returnURL = strings.TrimSpace(returnURL)
	if returnURL == "" {
		return "", errors.New("payments: return url is required")
	}
	if len(order.Items) == 0 {
		return "", errors.New("payments: order has no line items")
	}

	encoded, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("payments: encode order metadata: %w", err)
	}

	separator := "?"
	if strings.Contains(returnURL, "?") {
		separator = "&"
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(returnURL + separator + "payment=success&paymentId={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(returnURL + separator + "payment=failure"),
		Metadata:   map[string]string{orderMetadataKey: string(encoded)},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(order.ID)

	for _, item := range order.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(item.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.currency),
				UnitAmount: stripe.Int64(item.SeatPrice),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:     stripe.String(item.OfferID),
					Metadata: map[string]string{"offerId": item.OfferID},
				},
			},
		})
	}

	session, err := g.api.sessions.New(params)
	if err != nil {
		return "", fmt.Errorf("payments: create checkout session: %w", err)
	}

	g.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"orderId":   order.ID,
	})
	return session.URL, nil
}

// OrderFromPayment rebuilds the order from the checkout session metadata.
func (g *StripeGateway) OrderFromPayment(ctx context.Context, params CallbackParams) (domain.Order, error) {
	session, err := g.session(ctx, params.PaymentID)
	if err != nil {
		return domain.Order{}, err
	}

	encoded, ok := session.Metadata[orderMetadataKey]
	if !ok || encoded == "" {
		return domain.Order{}, fmt.Errorf("payments: session %s missing order metadata", session.ID)
	}
	var order domain.Order
	if err := json.Unmarshal([]byte(encoded), &order); err != nil {
		return domain.Order{}, fmt.Errorf("payments: decode order metadata: %w", err)
	}
	if session.PaymentIntent != nil {
		order.PaymentReference = session.PaymentIntent.ID
	}
	return order, nil
}

// ExecutePayment confirms the checkout completed and returns the uncaptured
// payment intent as the authorization.
func (g *StripeGateway) ExecutePayment(ctx context.Context, params CallbackParams) (Authorization, error) {
	session, err := g.session(ctx, params.PaymentID)
	if err != nil {
		return Authorization{}, err
	}
	if session.PaymentIntent == nil {
		return Authorization{}, fmt.Errorf("%w: session %s has no payment intent", ErrPaymentNotCompleted, session.ID)
	}
	if session.Status != stripe.CheckoutSessionStatusComplete {
		return Authorization{}, fmt.Errorf("%w: session %s is %s", ErrPaymentNotCompleted, session.ID, session.Status)
	}

	orderID := ""
	if encoded, ok := session.Metadata[orderMetadataKey]; ok {
		var order domain.Order
		if err := json.Unmarshal([]byte(encoded), &order); err == nil {
			orderID = order.ID
		}
	}

	return Authorization{
		Code:       session.PaymentIntent.ID,
		PaymentID:  session.ID,
		OrderID:    orderID,
		CustomerID: strings.TrimSpace(params.CustomerID),
		Amount:     session.AmountTotal,
	}, nil
}

// Capture settles the authorized payment intent.
func (g *StripeGateway) Capture(ctx context.Context, auth Authorization) error {
	if strings.TrimSpace(auth.Code) == "" {
		return errors.New("payments: authorization code is required")
	}

	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if _, err := g.api.intents.Capture(auth.Code, params); err != nil {
		return fmt.Errorf("payments: capture payment intent: %w", err)
	}
	g.logger(ctx, "payments.stripe.intent.captured", map[string]any{
		"paymentIntent": auth.Code,
		"orderId":       auth.OrderID,
	})
	return nil
}

// Void cancels the uncaptured payment intent, releasing the hold.
func (g *StripeGateway) Void(ctx context.Context, auth Authorization) error {
	if strings.TrimSpace(auth.Code) == "" {
		return errors.New("payments: authorization code is required")
	}

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := g.api.intents.Cancel(auth.Code, params); err != nil {
		return fmt.Errorf("payments: cancel payment intent: %w", err)
	}
	g.logger(ctx, "payments.stripe.intent.cancelled", map[string]any{
		"paymentIntent": auth.Code,
		"orderId":       auth.OrderID,
	})
	return nil
}

func (g *StripeGateway) session(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("payments: session id is required")
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	session, err := g.api.sessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("payments: load checkout session: %w", err)
	}
	return session, nil
}
