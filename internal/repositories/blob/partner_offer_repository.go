package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/partner-storefront/api/internal/domain"
	pblob "github.com/partner-storefront/api/internal/platform/blob"
)

const defaultCatalogObject = "partner-offers.json"

// catalogError categorises offer catalog failures for the service layer.
type catalogError struct {
	op       string
	err      error
	notFound bool
}

func (e *catalogError) Error() string { return fmt.Sprintf("%s: %v", e.op, e.err) }
func (e *catalogError) Unwrap() error { return e.err }

// IsNotFound reports whether the offer or catalog object was absent.
func (e *catalogError) IsNotFound() bool { return e.notFound }

// IsConflict always reports false; the catalog has no conditional writes.
func (e *catalogError) IsConflict() bool { return false }

// IsUnavailable reports whether the backing store could not be reached.
func (e *catalogError) IsUnavailable() bool { return !e.notFound }

type catalogCache struct {
	offers    []domain.PartnerOffer
	fetchedAt time.Time
}

// PartnerOfferRepository serves the partner offer catalog from a single
// JSON object in blob storage, cached in process for a short TTL.
type PartnerOfferRepository struct {
	store  *pblob.Store
	object string
	ttl    time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	cache *catalogCache
}

// OfferOption customises the repository.
type OfferOption func(*PartnerOfferRepository)

// WithCatalogObject overrides the object name holding the catalog.
func WithCatalogObject(object string) OfferOption {
	return func(r *PartnerOfferRepository) {
		object = strings.TrimSpace(object)
		if object != "" {
			r.object = object
		}
	}
}

// WithCacheTTL overrides how long a fetched catalog is served from memory.
func WithCacheTTL(ttl time.Duration) OfferOption {
	return func(r *PartnerOfferRepository) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithClock injects a custom time source (useful for tests).
func WithClock(now func() time.Time) OfferOption {
	return func(r *PartnerOfferRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewPartnerOfferRepository constructs a blob-backed offer repository.
func NewPartnerOfferRepository(store *pblob.Store, opts ...OfferOption) (*PartnerOfferRepository, error) {
	if store == nil {
		return nil, errors.New("partner offer repository requires blob store")
	}
	repo := &PartnerOfferRepository{
		store:  store,
		object: defaultCatalogObject,
		ttl:    5 * time.Minute,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// List returns every catalog entry, including inactive ones. Callers decide
// what is displayable.
func (r *PartnerOfferRepository) List(ctx context.Context) ([]domain.PartnerOffer, error) {
	offers, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PartnerOffer, len(offers))
	copy(out, offers)
	return out, nil
}

// FindByID returns a single catalog entry.
func (r *PartnerOfferRepository) FindByID(ctx context.Context, offerID string) (domain.PartnerOffer, error) {
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return domain.PartnerOffer{}, errors.New("partner offer repository: offer id is required")
	}

	offers, err := r.load(ctx)
	if err != nil {
		return domain.PartnerOffer{}, err
	}
	for _, offer := range offers {
		if offer.ID == offerID {
			return offer, nil
		}
	}
	return domain.PartnerOffer{}, &catalogError{
		op:       "partner_offers.find",
		err:      fmt.Errorf("offer %s not in catalog", offerID),
		notFound: true,
	}
}

func (r *PartnerOfferRepository) load(ctx context.Context) ([]domain.PartnerOffer, error) {
	r.mu.RLock()
	cached := r.cache
	r.mu.RUnlock()
	if cached != nil && r.now().Sub(cached.fetchedAt) < r.ttl {
		return cached.offers, nil
	}

	data, err := r.store.Read(ctx, r.object)
	if err != nil {
		if errors.Is(err, pblob.ErrObjectNotFound) {
			// Missing catalog object means an empty catalog, not a failure.
			return nil, nil
		}
		return nil, &catalogError{op: "partner_offers.load", err: err}
	}

	var offers []domain.PartnerOffer
	if err := json.Unmarshal(data, &offers); err != nil {
		return nil, &catalogError{op: "partner_offers.load", err: fmt.Errorf("decode catalog: %w", err)}
	}

	r.mu.Lock()
	r.cache = &catalogCache{offers: offers, fetchedAt: r.now()}
	r.mu.Unlock()
	return offers, nil
}
