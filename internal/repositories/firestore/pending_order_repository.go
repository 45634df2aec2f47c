package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/partner-storefront/api/internal/domain"
	pfirestore "github.com/partner-storefront/api/internal/platform/firestore"
)

const pendingOrderCollection = "pendingOrders"

type pendingOrderDocument struct {
	CustomerID       string                 `firestore:"customerId"`
	OperationType    string                 `firestore:"operationType"`
	Items            []pendingOrderLineItem `firestore:"items"`
	PaymentReference string                 `firestore:"paymentReference"`
	CreatedAt        time.Time              `firestore:"createdAt"`
}

type pendingOrderLineItem struct {
	OfferID        string `firestore:"offerId"`
	SubscriptionID string `firestore:"subscriptionId"`
	Quantity       int    `firestore:"quantity"`
	SeatPrice      int64  `firestore:"seatPrice"`
}

func (d pendingOrderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderLineItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderLineItem{
			OfferID:        item.OfferID,
			SubscriptionID: item.SubscriptionID,
			Quantity:       item.Quantity,
			SeatPrice:      item.SeatPrice,
		})
	}
	return domain.Order{
		ID:               id,
		CustomerID:       d.CustomerID,
		OperationType:    domain.CommerceOperationType(d.OperationType),
		Items:            items,
		PaymentReference: d.PaymentReference,
		CreatedAt:        d.CreatedAt.UTC(),
	}
}

// PendingOrderRepository holds normalized orders awaiting payment completion.
type PendingOrderRepository struct {
	provider *pfirestore.Provider
}

// NewPendingOrderRepository constructs a Firestore-backed pending order repository.
func NewPendingOrderRepository(provider *pfirestore.Provider) (*PendingOrderRepository, error) {
	if provider == nil {
		return nil, errors.New("pending order repository requires firestore provider")
	}
	return &PendingOrderRepository{provider: provider}, nil
}

func (r *PendingOrderRepository) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(pendingOrderCollection), nil
}

// Insert stores a normalized order keyed by its order id.
func (r *PendingOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("pending order repository: order id is required")
	}

	items := make([]pendingOrderLineItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, pendingOrderLineItem{
			OfferID:        strings.TrimSpace(item.OfferID),
			SubscriptionID: strings.TrimSpace(item.SubscriptionID),
			Quantity:       item.Quantity,
			SeatPrice:      item.SeatPrice,
		})
	}
	doc := pendingOrderDocument{
		CustomerID:       strings.TrimSpace(order.CustomerID),
		OperationType:    string(order.OperationType),
		Items:            items,
		PaymentReference: strings.TrimSpace(order.PaymentReference),
		CreatedAt:        order.CreatedAt.UTC(),
	}
	if _, err := coll.Doc(id).Create(ctx, doc); err != nil {
		return pfirestore.WrapError("pending_orders.insert", err)
	}
	return nil
}

// FindByID loads a pending order.
func (r *PendingOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("pending order repository: order id is required")
	}

	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("pending_orders.find", err)
	}
	var doc pendingOrderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode pending order %s: %w", id, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// Delete removes a pending order. Firestore deletes are idempotent, so
// removing an already-consumed order succeeds silently.
func (r *PendingOrderRepository) Delete(ctx context.Context, orderID string) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return errors.New("pending order repository: order id is required")
	}
	if _, err := coll.Doc(id).Delete(ctx); err != nil {
		return pfirestore.WrapError("pending_orders.delete", err)
	}
	return nil
}

// PurgeOlderThan removes stale pending orders abandoned mid-checkout.
func (r *PendingOrderRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return 0, err
	}

	iter := coll.Where("createdAt", "<", cutoff.UTC()).Documents(ctx)
	defer iter.Stop()

	purged := 0
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return purged, pfirestore.WrapError("pending_orders.purge", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return purged, pfirestore.WrapError("pending_orders.purge", err)
		}
		purged++
	}
	return purged, nil
}
