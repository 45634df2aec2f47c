package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/partner-storefront/api/internal/domain"
	pfirestore "github.com/partner-storefront/api/internal/platform/firestore"
)

const subscriptionCollectionPattern = "customers/%s/subscriptions"

type subscriptionDocument struct {
	CustomerID     string    `firestore:"customerId"`
	PartnerOfferID string    `firestore:"partnerOfferId"`
	Seats          int       `firestore:"seats"`
	ExpiryDate     time.Time `firestore:"expiryDate"`
	Status         string    `firestore:"status"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func (d subscriptionDocument) toDomain(id string) domain.Subscription {
	return domain.Subscription{
		ID:             id,
		CustomerID:     d.CustomerID,
		PartnerOfferID: d.PartnerOfferID,
		Seats:          d.Seats,
		ExpiryDate:     d.ExpiryDate.UTC(),
		Status:         domain.SubscriptionStatus(d.Status),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
}

func subscriptionToDocument(sub domain.Subscription) subscriptionDocument {
	return subscriptionDocument{
		CustomerID:     strings.TrimSpace(sub.CustomerID),
		PartnerOfferID: strings.TrimSpace(sub.PartnerOfferID),
		Seats:          sub.Seats,
		ExpiryDate:     sub.ExpiryDate.UTC(),
		Status:         string(sub.Status),
		UpdatedAt:      sub.UpdatedAt.UTC(),
	}
}

// SubscriptionRepository persists subscription rows in Firestore.
type SubscriptionRepository struct {
	provider *pfirestore.Provider
}

// NewSubscriptionRepository constructs a Firestore-backed subscription repository.
func NewSubscriptionRepository(provider *pfirestore.Provider) (*SubscriptionRepository, error) {
	if provider == nil {
		return nil, errors.New("subscription repository requires firestore provider")
	}
	return &SubscriptionRepository{provider: provider}, nil
}

func (r *SubscriptionRepository) collection(ctx context.Context, customerID string) (*firestore.CollectionRef, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, errors.New("subscription repository: customer id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(subscriptionCollectionPattern, customerID)), nil
}

// Insert stores a new subscription row. An existing row with the same id is a conflict.
func (r *SubscriptionRepository) Insert(ctx context.Context, sub domain.Subscription) error {
	coll, err := r.collection(ctx, sub.CustomerID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(sub.ID)
	if id == "" {
		return errors.New("subscription repository: subscription id is required")
	}
	if _, err := coll.Doc(id).Create(ctx, subscriptionToDocument(sub)); err != nil {
		return pfirestore.WrapError("subscriptions.insert", err)
	}
	return nil
}

// Replace overwrites the stored row only while its updatedAt matches expected.
// The check and the write share one transaction so concurrent mutations of the
// same subscription cannot interleave.
func (r *SubscriptionRepository) Replace(ctx context.Context, sub domain.Subscription, expected domain.Subscription) error {
	coll, err := r.collection(ctx, sub.CustomerID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(sub.ID)
	if id == "" {
		return errors.New("subscription repository: subscription id is required")
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef := coll.Doc(id)
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var stored subscriptionDocument
		if err := snap.DataTo(&stored); err != nil {
			return fmt.Errorf("decode subscription %s: %w", id, err)
		}
		if !stored.UpdatedAt.UTC().Equal(expected.UpdatedAt.UTC()) {
			return status.Error(codes.FailedPrecondition, "subscription modified concurrently")
		}
		return tx.Set(docRef, subscriptionToDocument(sub))
	})
	if err != nil {
		return pfirestore.WrapError("subscriptions.replace", err)
	}
	return nil
}

// FindByID loads a single subscription row.
func (r *SubscriptionRepository) FindByID(ctx context.Context, customerID, subscriptionID string) (domain.Subscription, error) {
	coll, err := r.collection(ctx, customerID)
	if err != nil {
		return domain.Subscription{}, err
	}
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return domain.Subscription{}, errors.New("subscription repository: subscription id is required")
	}

	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Subscription{}, pfirestore.WrapError("subscriptions.find", err)
	}
	var doc subscriptionDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Subscription{}, fmt.Errorf("decode subscription %s: %w", id, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// ListByCustomer returns all subscription rows for the customer ordered by expiry date.
func (r *SubscriptionRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Subscription, error) {
	coll, err := r.collection(ctx, customerID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy("expiryDate", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var subs []domain.Subscription
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("subscriptions.list", err)
		}
		var doc subscriptionDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode subscription %s: %w", snap.Ref.ID, err)
		}
		subs = append(subs, doc.toDomain(snap.Ref.ID))
	}
	return subs, nil
}

// Delete removes the subscription row.
func (r *SubscriptionRepository) Delete(ctx context.Context, customerID, subscriptionID string) error {
	coll, err := r.collection(ctx, customerID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return errors.New("subscription repository: subscription id is required")
	}
	if _, err := coll.Doc(id).Delete(ctx); err != nil {
		return pfirestore.WrapError("subscriptions.delete", err)
	}
	return nil
}
