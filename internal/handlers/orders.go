package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/partner-storefront/api/internal/platform/auth"
	"github.com/partner-storefront/api/internal/platform/httpx"
	"github.com/partner-storefront/api/internal/platform/requestctx"
	"github.com/partner-storefront/api/internal/services"
)

const maxOrderBodySize = 16 * 1024

// OrderHandlers exposes checkout preparation, payment callbacks, and the
// account summary.
type OrderHandlers struct {
	verifier *auth.Verifier
	checkout services.CheckoutService
	summary  services.SummaryService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(verifier *auth.Verifier, checkout services.CheckoutService, summary services.SummaryService) *OrderHandlers {
	return &OrderHandlers{
		verifier: verifier,
		checkout: checkout,
		summary:  summary,
	}
}

// Routes registers the /orders endpoints. The new-customer pair is
// unauthenticated; the customer does not exist until their first order pays.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.verifier != nil {
			g.Use(h.verifier.RequireCustomer())
		}
		g.Post("/prepare", h.prepareOrder)
		g.Get("/process", h.processOrder)
		g.Get("/summary", h.subscriptionSummary)
	})
	r.Post("/new-customer/prepare", h.prepareNewCustomerOrder)
	r.Get("/new-customer/process", h.processNewCustomerOrder)
}

func (h *OrderHandlers) prepareOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	principal, ok := requestctx.PrincipalFrom(ctx)
	if !ok || strings.TrimSpace(principal.CustomerID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	draft, ok := decodeOrderDraft(w, r)
	if !ok {
		return
	}
	redirect, err := h.checkout.PrepareOrder(ctx, principal.CustomerID, draft)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.FromDomainError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, redirect)
}

func (h *OrderHandlers) processOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	principal, ok := requestctx.PrincipalFrom(ctx)
	if !ok || strings.TrimSpace(principal.CustomerID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	result, err := h.checkout.ProcessOrder(ctx, principal.CustomerID, callbackFromQuery(r))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.FromDomainError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *OrderHandlers) subscriptionSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.summary == nil {
		httpx.WriteError(ctx, w, httpx.NewError("summary_unavailable", "summary service unavailable", http.StatusServiceUnavailable))
		return
	}
	principal, ok := requestctx.PrincipalFrom(ctx)
	if !ok || strings.TrimSpace(principal.CustomerID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	summary, err := h.summary.SubscriptionSummary(ctx, principal.CustomerID)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.FromDomainError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}

type newCustomerOrderRequest struct {
	RegistrationID string              `json:"registrationId"`
	Order          services.OrderDraft `json:"order"`
}

func (h *OrderHandlers) prepareNewCustomerOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	defer drainBody(r)
	var payload newCustomerOrderRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxOrderBodySize)).Decode(&payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	redirect, err := h.checkout.PrepareNewCustomerOrder(ctx, payload.RegistrationID, payload.Order)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.FromDomainError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, redirect)
}

func (h *OrderHandlers) processNewCustomerOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	registrationID := strings.TrimSpace(r.URL.Query().Get("registrationId"))
	result, err := h.checkout.ProcessNewCustomerOrder(ctx, registrationID, callbackFromQuery(r))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.FromDomainError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func decodeOrderDraft(w http.ResponseWriter, r *http.Request) (services.OrderDraft, bool) {
	ctx := r.Context()
	defer drainBody(r)
	var draft services.OrderDraft
	if err := json.NewDecoder(io.LimitReader(r.Body, maxOrderBodySize)).Decode(&draft); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return services.OrderDraft{}, false
	}
	return draft, true
}

// callbackFromQuery collects the parameters providers append on redirect.
// PayPal names the payer parameter PayerID; the order id travels as oid on
// the decorated return URL.
func callbackFromQuery(r *http.Request) services.ProcessCallback {
	query := r.URL.Query()
	orderID := strings.TrimSpace(query.Get("oid"))
	if orderID == "" {
		orderID = strings.TrimSpace(query.Get("orderId"))
	}
	return services.ProcessCallback{
		PaymentID: strings.TrimSpace(query.Get("paymentId")),
		PayerID:   strings.TrimSpace(query.Get("PayerID")),
		OrderID:   orderID,
	}
}

func drainBody(r *http.Request) {
	if r.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, maxOrderBodySize))
	_ = r.Body.Close()
}
