package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/partner-storefront/api/internal/platform/httpx"
	"github.com/partner-storefront/api/internal/services"
)

// OfferHandlers exposes the public offer catalog.
type OfferHandlers struct {
	catalog services.CatalogService
}

// NewOfferHandlers constructs a new OfferHandlers instance.
func NewOfferHandlers(catalog services.CatalogService) *OfferHandlers {
	return &OfferHandlers{catalog: catalog}
}

// Routes registers the /offers endpoints. The catalog is public; no auth.
func (h *OfferHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listOffers)
	r.Get("/configured", h.configured)
	r.Get("/{offerID}", h.getOffer)
}

func (h *OfferHandlers) listOffers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	offers, err := h.catalog.Offers(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.FromDomainError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

func (h *OfferHandlers) getOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	offer, err := h.catalog.Offer(ctx, chi.URLParam(r, "offerID"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.FromDomainError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, offer)
}

// configured reports whether the storefront is ready to sell. The landing
// page uses it to switch between the catalog and a setup notice.
func (h *OfferHandlers) configured(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	configured, err := h.catalog.IsConfigured(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.FromDomainError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"configured": configured})
}
