package services

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	domain "github.com/partner-storefront/api/internal/domain"
	"github.com/partner-storefront/api/internal/repositories"
)

// PlatformCatalog lists the upstream offers partner offers must align with.
type PlatformCatalog interface {
	ListOffers(ctx context.Context) ([]domain.PlatformOffer, error)
}

// CatalogServiceDeps wires the catalog service's collaborators.
type CatalogServiceDeps struct {
	Offers        repositories.PartnerOfferRepository
	Platform      PlatformCatalog
	PaymentConfig repositories.PaymentConfigRepository
	Logger        Logger
}

type catalogService struct {
	offers        repositories.PartnerOfferRepository
	platform      PlatformCatalog
	paymentConfig repositories.PaymentConfigRepository
	logger        Logger
}

// NewCatalogService builds the displayable-offer service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Offers == nil {
		return nil, errors.New("services: catalog service requires an offer repository")
	}
	if deps.Platform == nil {
		return nil, errors.New("services: catalog service requires a platform catalog")
	}
	if deps.PaymentConfig == nil {
		return nil, errors.New("services: catalog service requires a payment config repository")
	}
	return &catalogService{
		offers:        deps.Offers,
		platform:      deps.Platform,
		paymentConfig: deps.PaymentConfig,
		logger:        ensureLogger(deps.Logger),
	}, nil
}

// Offers returns the partner offers that are active and still backed by a
// live platform offer. Partner and platform catalogs are fetched
// concurrently and joined on the platform offer id.
func (s *catalogService) Offers(ctx context.Context) ([]OfferView, error) {
	partner, platform, err := s.fetchCatalogs(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]OfferView, 0, len(partner))
	for _, offer := range partner {
		view, ok := mergeOffer(offer, platform)
		if !ok {
			continue
		}
		views = append(views, view)
	}
	s.logger(ctx, "catalog.offers.listed", map[string]any{
		"partner_offers": len(partner),
		"displayable":    len(views),
	})
	return views, nil
}

// Offer returns a single displayable offer by its partner offer id.
func (s *catalogService) Offer(ctx context.Context, offerID string) (OfferView, error) {
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return OfferView{}, domain.NewError(domain.ErrorInvalidInput, "offer id is required")
	}
	partner, platform, err := s.fetchCatalogs(ctx)
	if err != nil {
		return OfferView{}, err
	}
	for _, offer := range partner {
		if offer.ID != offerID {
			continue
		}
		view, ok := mergeOffer(offer, platform)
		if !ok {
			break
		}
		return view, nil
	}
	return OfferView{}, domain.NewError(domain.ErrorNotFound, "offer not found").WithDetail("offer_id", offerID)
}

// IsConfigured reports whether the storefront has everything it needs to
// sell: a non-empty catalog and a payment provider configuration.
func (s *catalogService) IsConfigured(ctx context.Context) (bool, error) {
	offers, err := s.offers.List(ctx)
	if err != nil {
		return false, domain.WrapError(domain.ErrorPersistenceFailure, "loading offer catalog", err)
	}
	if len(offers) == 0 {
		return false, nil
	}
	cfg, err := s.paymentConfig.Get(ctx)
	if err != nil {
		if isRepoNotFound(err) {
			return false, nil
		}
		return false, domain.WrapError(domain.ErrorPersistenceFailure, "loading payment configuration", err)
	}
	return strings.TrimSpace(cfg.Provider) != "", nil
}

func (s *catalogService) fetchCatalogs(ctx context.Context) ([]PartnerOffer, map[string]PlatformOffer, error) {
	var (
		partner  []PartnerOffer
		platform []PlatformOffer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		offers, err := s.offers.List(gctx)
		if err != nil {
			return domain.WrapError(domain.ErrorPersistenceFailure, "loading offer catalog", err)
		}
		partner = offers
		return nil
	})
	g.Go(func() error {
		offers, err := s.platform.ListOffers(gctx)
		if err != nil {
			return domain.WrapError(domain.ErrorGatewayFailure, "loading platform offers", err)
		}
		platform = offers
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	byID := make(map[string]PlatformOffer, len(platform))
	for _, offer := range platform {
		byID[offer.ID] = offer
	}
	return partner, byID, nil
}

// mergeOffer joins a partner offer with its platform counterpart. Offers that
// are inactive or whose platform offer disappeared upstream are not displayable.
func mergeOffer(offer PartnerOffer, platform map[string]PlatformOffer) (OfferView, bool) {
	if offer.Inactive {
		return OfferView{}, false
	}
	upstream, ok := platform[offer.PlatformOfferID]
	if !ok {
		return OfferView{}, false
	}
	thumbnail := offer.Thumbnail
	if thumbnail == "" {
		thumbnail = upstream.Thumbnail
	}
	return OfferView{
		ID:              offer.ID,
		Title:           offer.Title,
		Subtitle:        offer.Subtitle,
		Summary:         offer.Summary,
		Features:        offer.Features,
		Price:           offer.Price,
		PlatformOfferID: offer.PlatformOfferID,
		Thumbnail:       thumbnail,
	}, true
}
