package payments

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	domain "github.com/partner-storefront/api/internal/domain"
)

func payumoneyConfig(baseURL string) *configRepoStub {
	return &configRepoStub{cfg: domain.PaymentConfiguration{
		Provider:           "payumoney",
		BaseURL:            baseURL,
		ClientID:           "merchant-key",
		ClientSecret:       "merchant-salt",
		MerchantAuthHeader: "Basic bWVyY2hhbnQ=",
	}}
}

func newTestPayUMoney(t *testing.T, config *configRepoStub, orders *memoryPendingOrders) *PayUMoneyGateway {
	t.Helper()
	gateway, err := NewPayUMoneyGateway(PayUMoneyGatewayConfig{
		Config:   config,
		Orders:   orders,
		Decimals: 2,
	})
	if err != nil {
		t.Fatalf("NewPayUMoneyGateway: %v", err)
	}
	return gateway
}

func TestPayUMoneyRedirectCarriesMerchantHash(t *testing.T) {
	orders := newMemoryPendingOrders()
	gateway := newTestPayUMoney(t, payumoneyConfig("https://pay.example.com"), orders)

	uri, err := gateway.GeneratePaymentURI(context.Background(), "https://store.example.com/api/orders/process", testOrder())
	if err != nil {
		t.Fatalf("GeneratePaymentURI: %v", err)
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		t.Fatalf("redirect is not a valid URL: %v", err)
	}
	if parsed.Host != "pay.example.com" || parsed.Path != "/transact" {
		t.Fatalf("unexpected redirect target: %q", uri)
	}
	query := parsed.Query()
	if query.Get("key") != "merchant-key" || query.Get("txnid") != "order-1" || query.Get("amount") != "21.00" {
		t.Fatalf("transaction fields wrong: %q", uri)
	}

	payload := strings.Join([]string{
		"merchant-key", "order-1", "21.00", string(domain.OperationNewPurchase),
		"", "", "", "", "", "", "", "", "", "", "",
		"merchant-salt",
	}, "|")
	sum := sha512.Sum512([]byte(payload))
	if query.Get("hash") != hex.EncodeToString(sum[:]) {
		t.Fatalf("merchant hash mismatch: %q", query.Get("hash"))
	}

	surl, err := url.Parse(query.Get("surl"))
	if err != nil {
		t.Fatalf("success url malformed: %v", err)
	}
	if surl.Query().Get("payment") != "success" || surl.Query().Get("oid") != "order-1" {
		t.Fatalf("success url not decorated: %q", query.Get("surl"))
	}
	if _, ok := orders.orders["order-1"]; !ok {
		t.Fatal("order was not parked")
	}
}

func TestPayUMoneyExecutePaymentVerifiesStatus(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != payumoneyPaymentPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"status":0,"result":[{"amount":"21.00","status":"success"}]}`)
	}))
	defer server.Close()

	gateway := newTestPayUMoney(t, payumoneyConfig(server.URL), newMemoryPendingOrders())
	auth, err := gateway.ExecutePayment(context.Background(), CallbackParams{
		PaymentID:  "pay-55",
		OrderID:    "order-1",
		CustomerID: "cust-1",
	})
	if err != nil {
		t.Fatalf("ExecutePayment: %v", err)
	}
	if auth.Amount != 2100 || auth.PaymentID != "pay-55" || auth.OrderID != "order-1" {
		t.Fatalf("unexpected authorization: %+v", auth)
	}
	if gotAuth != "Basic bWVyY2hhbnQ=" {
		t.Fatalf("merchant authorization header = %q", gotAuth)
	}
}

func TestPayUMoneyExecutePaymentFailedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":0,"result":[{"amount":"21.00","status":"failure"}]}`)
	}))
	defer server.Close()

	gateway := newTestPayUMoney(t, payumoneyConfig(server.URL), newMemoryPendingOrders())
	_, err := gateway.ExecutePayment(context.Background(), CallbackParams{PaymentID: "pay-55"})
	if !errors.Is(err, ErrPaymentNotCompleted) {
		t.Fatalf("error = %v, want ErrPaymentNotCompleted", err)
	}
}

func TestPayUMoneyVoidRefundsPayment(t *testing.T) {
	var refundQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != payumoneyRefundPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		refundQuery = r.URL.Query()
		fmt.Fprint(w, `{"status":0,"message":"Refund Initiated"}`)
	}))
	defer server.Close()

	orders := newMemoryPendingOrders()
	orders.orders["order-1"] = testOrder()
	gateway := newTestPayUMoney(t, payumoneyConfig(server.URL), orders)

	err := gateway.Void(context.Background(), Authorization{
		Code:      "pay-55",
		PaymentID: "pay-55",
		OrderID:   "order-1",
		Amount:    2100,
	})
	if err != nil {
		t.Fatalf("Void: %v", err)
	}
	if refundQuery.Get("paymentId") != "pay-55" || refundQuery.Get("refundAmount") != "21.00" {
		t.Fatalf("unexpected refund call: %v", refundQuery)
	}
	if len(orders.orders) != 0 {
		t.Fatal("void did not discard the parked order")
	}
}

func TestPayUMoneyCaptureDiscardsOrder(t *testing.T) {
	orders := newMemoryPendingOrders()
	orders.orders["order-1"] = testOrder()
	gateway := newTestPayUMoney(t, payumoneyConfig("https://pay.example.com"), orders)

	auth := Authorization{Code: "pay-55", PaymentID: "pay-55", OrderID: "order-1"}
	if err := gateway.Capture(context.Background(), auth); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(orders.orders) != 0 {
		t.Fatal("capture did not discard the parked order")
	}
	// Capturing again is a no-op once the order is gone.
	if err := gateway.Capture(context.Background(), auth); err != nil {
		t.Fatalf("second capture: %v", err)
	}
}
