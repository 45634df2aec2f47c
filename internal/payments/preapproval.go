package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	domain "github.com/partner-storefront/api/internal/domain"
	"github.com/partner-storefront/api/internal/repositories"
)

const preApprovedAuthorizationCode = "pre-approved-transaction"

// PreApprovalGateway lets whitelisted customers complete checkout without a
// payment provider. The order is parked in the pending order store and the
// customer is bounced straight back to the processing URL with synthetic
// callback parameters shaped like a real provider return.
type PreApprovalGateway struct {
	orders repositories.PendingOrderRepository
	logger Logger
}

var _ Gateway = (*PreApprovalGateway)(nil)

// NewPreApprovalGateway constructs the bypass gateway.
func NewPreApprovalGateway(orders repositories.PendingOrderRepository, logger Logger) (*PreApprovalGateway, error) {
	if orders == nil {
		return nil, errors.New("payments: pending order repository is required")
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PreApprovalGateway{orders: orders, logger: logger}, nil
}

// GeneratePaymentURI persists the order and decorates the return URL so the
// processing endpoint treats it exactly like a successful provider redirect.
func (g *PreApprovalGateway) GeneratePaymentURI(ctx context.Context, returnURL string, order domain.Order) (string, error) {
	returnURL = strings.TrimSpace(returnURL)
	if returnURL == "" {
		return "", errors.New("payments: return url is required")
	}
	if strings.TrimSpace(order.ID) == "" {
		return "", errors.New("payments: order id is required")
	}

	if err := g.orders.Insert(ctx, order); err != nil {
		return "", fmt.Errorf("payments: persist pending order: %w", err)
	}

	separator := "?"
	if strings.Contains(returnURL, "?") {
		separator = "&"
	}
	decorated := fmt.Sprintf("%s%soid=%s&payment=success&PayerID=%s&paymentId=%s",
		returnURL, separator, url.QueryEscape(order.ID), PreApprovedPayerID, PreApprovedPaymentID)

	g.logger(ctx, "payments.preapproval.redirect", map[string]any{
		"orderId":    order.ID,
		"customerId": order.CustomerID,
	})
	return decorated, nil
}

// OrderFromPayment retrieves the parked order. Payer and payment ids are
// synthetic and ignored.
func (g *PreApprovalGateway) OrderFromPayment(ctx context.Context, params CallbackParams) (domain.Order, error) {
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

// ExecutePayment issues a synthetic authorization; nothing is charged.
func (g *PreApprovalGateway) ExecutePayment(ctx context.Context, params CallbackParams) (Authorization, error) {
	orderID := strings.TrimSpace(params.OrderID)
	if orderID == "" {
		return Authorization{}, errors.New("payments: order id is required")
	}
	return Authorization{
		Code:       preApprovedAuthorizationCode,
		PaymentID:  PreApprovedPaymentID,
		OrderID:    orderID,
		CustomerID: strings.TrimSpace(params.CustomerID),
	}, nil
}

// Capture finalizes the bypass by discarding the parked order. Capturing an
// already-consumed order is a no-op.
func (g *PreApprovalGateway) Capture(ctx context.Context, auth Authorization) error {
	return g.discard(ctx, "payments.preapproval.captured", auth)
}

// Void releases the bypass the same way capture does; the parked order is
// simply dropped. Voiding twice is a no-op.
func (g *PreApprovalGateway) Void(ctx context.Context, auth Authorization) error {
	return g.discard(ctx, "payments.preapproval.voided", auth)
}

func (g *PreApprovalGateway) discard(ctx context.Context, event string, auth Authorization) error {
	orderID := strings.TrimSpace(auth.OrderID)
	if orderID == "" {
		return errors.New("payments: order id is required")
	}
	if err := g.orders.Delete(ctx, orderID); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil
		}
		return fmt.Errorf("payments: discard pending order: %w", err)
	}
	g.logger(ctx, event, map[string]any{"orderId": orderID, "customerId": auth.CustomerID})
	return nil
}
