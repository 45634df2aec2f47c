package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/partner-storefront/api/internal/domain"
	"github.com/partner-storefront/api/internal/repositories"
)

// OrderNormalizerDeps wires the normalizer's collaborators.
type OrderNormalizerDeps struct {
	Offers        repositories.PartnerOfferRepository
	Subscriptions repositories.SubscriptionRepository
	TermDays      int
	GraceDays     int
	Clock         func() time.Time
	IDGen         func() string
	Logger        Logger
}

type orderNormalizer struct {
	offers        repositories.PartnerOfferRepository
	subscriptions repositories.SubscriptionRepository
	termDays      int
	graceDays     int
	clock         func() time.Time
	idGen         func() string
	logger        Logger
}

// NewOrderNormalizer builds the re-pricing validator for client-submitted orders.
func NewOrderNormalizer(deps OrderNormalizerDeps) (OrderNormalizer, error) {
	if deps.Offers == nil {
		return nil, errors.New("services: order normalizer requires an offer repository")
	}
	if deps.Subscriptions == nil {
		return nil, errors.New("services: order normalizer requires a subscription repository")
	}
	if deps.TermDays <= 0 {
		return nil, errors.New("services: order normalizer requires a positive term length")
	}
	if deps.GraceDays < 0 {
		return nil, errors.New("services: order normalizer requires a non-negative grace window")
	}
	clock := utcNow(deps.Clock)
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &orderNormalizer{
		offers:        deps.Offers,
		subscriptions: deps.Subscriptions,
		termDays:      deps.TermDays,
		graceDays:     deps.GraceDays,
		clock:         clock,
		idGen:         idGen,
		logger:        ensureLogger(deps.Logger),
	}, nil
}

// Normalize validates a draft against the catalog and the customer's
// subscriptions, then rebuilds the order with server-side prices and a fresh
// order id. Client prices are never trusted. All violations are collected
// into a single invalid_input error.
func (n *orderNormalizer) Normalize(ctx context.Context, customerID string, draft OrderDraft) (Order, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Order{}, domain.NewError(domain.ErrorInvalidInput, "customer id is required")
	}

	var violations []domain.FieldViolation
	switch draft.OperationType {
	case domain.OperationNewPurchase, domain.OperationAddSeats, domain.OperationRenewal:
	default:
		violations = append(violations, domain.FieldViolation{
			Field:  "operationType",
			Reason: fmt.Sprintf("unsupported operation %q", draft.OperationType),
		})
	}
	if len(draft.Items) == 0 {
		violations = append(violations, domain.FieldViolation{Field: "items", Reason: "order has no line items"})
	}
	if err := domain.ValidationError(violations); err != nil {
		return Order{}, err
	}

	catalog, err := n.catalogByID(ctx)
	if err != nil {
		return Order{}, err
	}
	now := n.clock()

	items := make([]OrderLineItem, 0, len(draft.Items))
	for i, draftItem := range draft.Items {
		item, itemViolations := n.normalizeItem(ctx, customerID, draft.OperationType, i, draftItem, catalog, now)
		if len(itemViolations) > 0 {
			violations = append(violations, itemViolations...)
			continue
		}
		items = append(items, item)
	}
	if err := domain.ValidationError(violations); err != nil {
		n.logger(ctx, "order.normalize.rejected", map[string]any{
			"customer_id": customerID,
			"operation":   string(draft.OperationType),
			"violations":  len(err.Violations),
		})
		return Order{}, err
	}

	order := Order{
		ID:            n.idGen(),
		CustomerID:    customerID,
		OperationType: draft.OperationType,
		Items:         items,
		CreatedAt:     now,
	}
	n.logger(ctx, "order.normalize.accepted", map[string]any{
		"customer_id": customerID,
		"order_id":    order.ID,
		"operation":   string(order.OperationType),
		"items":       len(order.Items),
		"total":       order.Total(),
	})
	return order, nil
}

func (n *orderNormalizer) normalizeItem(
	ctx context.Context,
	customerID string,
	opType CommerceOperationType,
	index int,
	draftItem OrderDraftItem,
	catalog map[string]PartnerOffer,
	now time.Time,
) (OrderLineItem, []domain.FieldViolation) {
	var violations []domain.FieldViolation
	field := func(name string) string { return fmt.Sprintf("items[%d].%s", index, name) }

	// Renewal quantities are server-owned, so only the other operations
	// validate what the client submitted.
	if opType != domain.OperationRenewal && draftItem.Quantity <= 0 {
		violations = append(violations, domain.FieldViolation{
			Field:  field("quantity"),
			Reason: "quantity must be positive",
		})
	}

	switch opType {
	case domain.OperationNewPurchase:
		offerID := strings.TrimSpace(draftItem.OfferID)
		if offerID == "" {
			violations = append(violations, domain.FieldViolation{Field: field("offerId"), Reason: "offer id is required"})
			return OrderLineItem{}, violations
		}
		offer, ok := catalog[offerID]
		if !ok {
			violations = append(violations, domain.FieldViolation{Field: field("offerId"), Reason: "offer does not exist"})
			return OrderLineItem{}, violations
		}
		if offer.Inactive {
			violations = append(violations, domain.FieldViolation{Field: field("offerId"), Reason: "offer is no longer for sale"})
			return OrderLineItem{}, violations
		}
		if len(violations) > 0 {
			return OrderLineItem{}, violations
		}
		return OrderLineItem{
			OfferID:   offer.ID,
			Quantity:  draftItem.Quantity,
			SeatPrice: offer.Price,
		}, nil

	case domain.OperationAddSeats, domain.OperationRenewal:
		subscriptionID := strings.TrimSpace(draftItem.SubscriptionID)
		if subscriptionID == "" {
			violations = append(violations, domain.FieldViolation{Field: field("subscriptionId"), Reason: "subscription id is required"})
			return OrderLineItem{}, violations
		}
		sub, err := n.subscriptions.FindByID(ctx, customerID, subscriptionID)
		if err != nil {
			if isRepoNotFound(err) {
				violations = append(violations, domain.FieldViolation{
					Field:  field("subscriptionId"),
					Reason: "subscription does not exist for this customer",
				})
				return OrderLineItem{}, violations
			}
			violations = append(violations, domain.FieldViolation{
				Field:  field("subscriptionId"),
				Reason: "subscription could not be loaded",
			})
			return OrderLineItem{}, violations
		}
		offer, ok := catalog[sub.PartnerOfferID]
		if !ok {
			violations = append(violations, domain.FieldViolation{
				Field:  field("subscriptionId"),
				Reason: "subscription references an offer that is no longer in the catalog",
			})
			return OrderLineItem{}, violations
		}
		if domain.DaysUntil(sub.ExpiryDate, now) < -n.graceDays {
			violations = append(violations, domain.FieldViolation{
				Field:  field("subscriptionId"),
				Reason: "subscription expired past the grace window",
			})
			return OrderLineItem{}, violations
		}
		if len(violations) > 0 {
			return OrderLineItem{}, violations
		}

		quantity := draftItem.Quantity
		seatPrice := offer.Price
		if opType == domain.OperationAddSeats {
			// Added seats ride the existing term, so they cost only the
			// remaining fraction of it.
			seatPrice = domain.ProratedSeatPrice(offer.Price, domain.RemainingDays(sub.ExpiryDate, now), n.termDays)
		}
		if opType == domain.OperationRenewal {
			// A renewal covers every seat on the subscription at full price.
			// The submitted quantity is replaced, like the submitted price.
			quantity = sub.Seats
		}
		return OrderLineItem{
			OfferID:        offer.ID,
			SubscriptionID: sub.ID,
			Quantity:       quantity,
			SeatPrice:      seatPrice,
		}, nil
	}

	return OrderLineItem{}, violations
}

func (n *orderNormalizer) catalogByID(ctx context.Context) (map[string]PartnerOffer, error) {
	offers, err := n.offers.List(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorPersistenceFailure, "loading offer catalog", err)
	}
	catalog := make(map[string]PartnerOffer, len(offers))
	for _, offer := range offers {
		catalog[offer.ID] = offer
	}
	return catalog, nil
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
