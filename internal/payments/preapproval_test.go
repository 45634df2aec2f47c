package payments

import (
	"context"
	"net/url"
	"strings"
	"testing"
)

func TestPreApprovalRedirectShapedLikeProviderReturn(t *testing.T) {
	orders := newMemoryPendingOrders()
	gateway, err := NewPreApprovalGateway(orders, nil)
	if err != nil {
		t.Fatalf("NewPreApprovalGateway: %v", err)
	}

	uri, err := gateway.GeneratePaymentURI(context.Background(), "https://store.example.com/api/orders/process", testOrder())
	if err != nil {
		t.Fatalf("GeneratePaymentURI: %v", err)
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		t.Fatalf("redirect is not a valid URL: %v", err)
	}
	query := parsed.Query()
	if query.Get("oid") != "order-1" || query.Get("payment") != "success" {
		t.Fatalf("redirect missing success decoration: %q", uri)
	}
	if query.Get("paymentId") != PreApprovedPaymentID || query.Get("PayerID") != PreApprovedPayerID {
		t.Fatalf("redirect missing synthetic callback ids: %q", uri)
	}
	if _, ok := orders.orders["order-1"]; !ok {
		t.Fatal("order was not parked")
	}
}

func TestPreApprovalKeepsExistingQuery(t *testing.T) {
	gateway, err := NewPreApprovalGateway(newMemoryPendingOrders(), nil)
	if err != nil {
		t.Fatalf("NewPreApprovalGateway: %v", err)
	}
	uri, err := gateway.GeneratePaymentURI(context.Background(),
		"https://store.example.com/api/orders/new-customer/process?registrationId=reg-1", testOrder())
	if err != nil {
		t.Fatalf("GeneratePaymentURI: %v", err)
	}
	if strings.Count(uri, "?") != 1 {
		t.Fatalf("redirect has malformed query separators: %q", uri)
	}
	parsed, _ := url.Parse(uri)
	if parsed.Query().Get("registrationId") != "reg-1" {
		t.Fatalf("existing query parameter lost: %q", uri)
	}
}

func TestPreApprovalRoundTrip(t *testing.T) {
	orders := newMemoryPendingOrders()
	gateway, err := NewPreApprovalGateway(orders, nil)
	if err != nil {
		t.Fatalf("NewPreApprovalGateway: %v", err)
	}
	ctx := context.Background()
	want := testOrder()
	if _, err := gateway.GeneratePaymentURI(ctx, "https://store.example.com/return", want); err != nil {
		t.Fatalf("GeneratePaymentURI: %v", err)
	}

	order, err := gateway.OrderFromPayment(ctx, CallbackParams{OrderID: "order-1"})
	if err != nil {
		t.Fatalf("OrderFromPayment: %v", err)
	}
	if order.CustomerID != want.CustomerID || order.Total() != want.Total() {
		t.Fatalf("parked order mangled: %+v", order)
	}

	auth, err := gateway.ExecutePayment(ctx, CallbackParams{OrderID: "order-1", CustomerID: "cust-1"})
	if err != nil {
		t.Fatalf("ExecutePayment: %v", err)
	}
	if auth.PaymentID != PreApprovedPaymentID || auth.OrderID != "order-1" {
		t.Fatalf("unexpected authorization: %+v", auth)
	}

	if err := gateway.Capture(ctx, auth); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(orders.orders) != 0 {
		t.Fatal("capture did not consume the parked order")
	}
	// Discarding again is a no-op, not an error.
	if err := gateway.Void(ctx, auth); err != nil {
		t.Fatalf("second discard: %v", err)
	}
}

func TestPreApprovalUnknownOrder(t *testing.T) {
	gateway, err := NewPreApprovalGateway(newMemoryPendingOrders(), nil)
	if err != nil {
		t.Fatalf("NewPreApprovalGateway: %v", err)
	}
	if _, err := gateway.OrderFromPayment(context.Background(), CallbackParams{OrderID: "order-gone"}); err == nil {
		t.Fatal("expected error for unknown order")
	}
}
