package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "github.com/partner-storefront/api/internal/domain"
)

// paypalServer fakes the slice of the PayPal REST surface the gateway uses.
type paypalServer struct {
	*httptest.Server
	tokenRequests int
	created       []paypalPayment
}

func newPayPalServer(t *testing.T) *paypalServer {
	t.Helper()
	fake := &paypalServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		fake.tokenRequests++
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"access_token":"token-1","expires_in":3600}`)
	})

	mux.HandleFunc("/v1/payments/payment", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var payment paypalPayment
		if err := json.NewDecoder(r.Body).Decode(&payment); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payment.ID = "PAY-123"
		payment.Links = []struct {
			Href string `json:"href"`
			Rel  string `json:"rel"`
		}{
			{Href: "https://paypal.example.com/self", Rel: "self"},
			{Href: "https://paypal.example.com/approve?token=abc", Rel: "approval_url"},
		}
		fake.created = append(fake.created, payment)
		_ = json.NewEncoder(w).Encode(payment)
	})

	mux.HandleFunc("/v1/payments/payment/PAY-123", func(w http.ResponseWriter, _ *http.Request) {
		if len(fake.created) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(fake.created[0])
	})

	mux.HandleFunc("/v1/payments/payment/PAY-123/execute", func(w http.ResponseWriter, _ *http.Request) {
		if len(fake.created) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		executed := fake.created[0]
		executed.State = "approved"
		executed.Transactions[0].RelatedResources = []struct {
			Authorization struct {
				ID string `json:"id"`
			} `json:"authorization"`
		}{{}}
		executed.Transactions[0].RelatedResources[0].Authorization.ID = "AUTH-9"
		_ = json.NewEncoder(w).Encode(executed)
	})

	mux.HandleFunc("/v1/payments/authorization/AUTH-9/capture", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id":"CAP-1","state":"completed"}`)
	})
	mux.HandleFunc("/v1/payments/authorization/AUTH-9/void", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id":"AUTH-9","state":"voided"}`)
	})

	fake.Server = httptest.NewServer(mux)
	t.Cleanup(fake.Close)
	return fake
}

func newTestPayPal(t *testing.T, baseURL string) *PayPalGateway {
	t.Helper()
	gateway, err := NewPayPalGateway(PayPalGatewayConfig{
		Config: &configRepoStub{cfg: domain.PaymentConfiguration{
			Provider:     "paypal",
			BaseURL:      baseURL,
			ClientID:     "client-id",
			ClientSecret: "client-secret",
		}},
		Currency: "USD",
		Decimals: 2,
	})
	if err != nil {
		t.Fatalf("NewPayPalGateway: %v", err)
	}
	return gateway
}

func TestPayPalGeneratePaymentURI(t *testing.T) {
	server := newPayPalServer(t)
	gateway := newTestPayPal(t, server.URL)

	uri, err := gateway.GeneratePaymentURI(context.Background(), "https://store.example.com/api/orders/process", testOrder())
	if err != nil {
		t.Fatalf("GeneratePaymentURI: %v", err)
	}
	if uri != "https://paypal.example.com/approve?token=abc" {
		t.Fatalf("uri = %q, want approval url", uri)
	}

	if len(server.created) != 1 {
		t.Fatalf("created %d payments, want 1", len(server.created))
	}
	payment := server.created[0]
	if payment.Intent != "authorize" {
		t.Fatalf("intent = %q, want authorize", payment.Intent)
	}
	tx := payment.Transactions[0]
	if tx.Amount.Total != "21.00" || tx.Amount.Currency != "USD" || tx.InvoiceNumber != "order-1" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if tx.Custom != "cust-1|new_purchase" {
		t.Fatalf("custom field = %q", tx.Custom)
	}
	if !strings.Contains(payment.RedirectURLs.ReturnURL, "payment=success") {
		t.Fatalf("return url not decorated: %q", payment.RedirectURLs.ReturnURL)
	}
}

func TestPayPalOrderFromPaymentRebuildsOrder(t *testing.T) {
	server := newPayPalServer(t)
	gateway := newTestPayPal(t, server.URL)

	want := testOrder()
	if _, err := gateway.GeneratePaymentURI(context.Background(), "https://store.example.com/return", want); err != nil {
		t.Fatalf("GeneratePaymentURI: %v", err)
	}

	order, err := gateway.OrderFromPayment(context.Background(), CallbackParams{PaymentID: "PAY-123"})
	if err != nil {
		t.Fatalf("OrderFromPayment: %v", err)
	}
	if order.ID != "order-1" || order.CustomerID != "cust-1" || order.OperationType != domain.OperationNewPurchase {
		t.Fatalf("unexpected order: %+v", order)
	}
	if order.Total() != want.Total() {
		t.Fatalf("Total = %d, want %d", order.Total(), want.Total())
	}
	if order.PaymentReference != "PAY-123" {
		t.Fatalf("PaymentReference = %q", order.PaymentReference)
	}
}

func TestPayPalExecuteCaptureVoid(t *testing.T) {
	server := newPayPalServer(t)
	gateway := newTestPayPal(t, server.URL)
	ctx := context.Background()

	if _, err := gateway.GeneratePaymentURI(ctx, "https://store.example.com/return", testOrder()); err != nil {
		t.Fatalf("GeneratePaymentURI: %v", err)
	}

	auth, err := gateway.ExecutePayment(ctx, CallbackParams{PaymentID: "PAY-123", PayerID: "PAYER-7"})
	if err != nil {
		t.Fatalf("ExecutePayment: %v", err)
	}
	if auth.Code != "AUTH-9" || auth.OrderID != "order-1" || auth.Amount != 2100 {
		t.Fatalf("unexpected authorization: %+v", auth)
	}

	if err := gateway.Capture(ctx, auth); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := gateway.Void(ctx, auth); err != nil {
		t.Fatalf("Void: %v", err)
	}
}

func TestPayPalExecuteRequiresPayerID(t *testing.T) {
	gateway := newTestPayPal(t, "https://paypal.example.com")
	if _, err := gateway.ExecutePayment(context.Background(), CallbackParams{PaymentID: "PAY-123"}); err == nil {
		t.Fatal("expected error without payer id")
	}
}

func TestPayPalTokenCachedAcrossCalls(t *testing.T) {
	server := newPayPalServer(t)
	gateway := newTestPayPal(t, server.URL)
	ctx := context.Background()

	if _, err := gateway.GeneratePaymentURI(ctx, "https://store.example.com/return", testOrder()); err != nil {
		t.Fatalf("GeneratePaymentURI: %v", err)
	}
	if _, err := gateway.OrderFromPayment(ctx, CallbackParams{PaymentID: "PAY-123"}); err != nil {
		t.Fatalf("OrderFromPayment: %v", err)
	}
	if server.tokenRequests != 1 {
		t.Fatalf("token requested %d times, want 1", server.tokenRequests)
	}
}

func TestPayPalAPIErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			fmt.Fprint(w, `{"access_token":"token-1","expires_in":3600}`)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	gateway := newTestPayPal(t, server.URL)
	_, err := gateway.GeneratePaymentURI(context.Background(), "https://store.example.com/return", testOrder())
	if !errors.Is(err, ErrPayPal) {
		t.Fatalf("error = %v, want ErrPayPal", err)
	}
}
