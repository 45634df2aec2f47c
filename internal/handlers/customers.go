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

const maxRegistrationBodySize = 32 * 1024

// CustomerHandlers exposes sign-up and subscription management.
type CustomerHandlers struct {
	verifier  *auth.Verifier
	customers services.CustomerService
}

// NewCustomerHandlers constructs a new CustomerHandlers instance.
func NewCustomerHandlers(verifier *auth.Verifier, customers services.CustomerService) *CustomerHandlers {
	return &CustomerHandlers{
		verifier:  verifier,
		customers: customers,
	}
}

// Routes registers the /customers endpoints. Registration is open; the
// subscription view requires a bearer token.
func (h *CustomerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.register)
	r.Group(func(g chi.Router) {
		if h.verifier != nil {
			g.Use(h.verifier.RequireCustomer())
		}
		g.Get("/subscriptions", h.subscriptions)
	})
}

func (h *CustomerHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}
	var registration services.CustomerRegistration
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRegistrationBodySize)).Decode(&registration); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	stored, err := h.customers.Register(ctx, registration)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.FromDomainError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, stored)
}

func (h *CustomerHandlers) subscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}
	principal, ok := requestctx.PrincipalFrom(ctx)
	if !ok || strings.TrimSpace(principal.CustomerID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	managed, err := h.customers.ManagedSubscriptions(ctx, principal.CustomerID)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.FromDomainError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"subscriptions": managed})
}
