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

const historyCollectionPattern = "customers/%s/subscriptionHistory"

type historyDocument struct {
	SubscriptionID  string    `firestore:"subscriptionId"`
	CustomerID      string    `firestore:"customerId"`
	SeatsBought     int       `firestore:"seatsBought"`
	SeatPrice       int64     `firestore:"seatPrice"`
	OperationType   string    `firestore:"operationType"`
	TransactionDate time.Time `firestore:"transactionDate"`
}

func (d historyDocument) toDomain(id string) domain.SubscriptionHistory {
	return domain.SubscriptionHistory{
		ID:              id,
		SubscriptionID:  d.SubscriptionID,
		CustomerID:      d.CustomerID,
		SeatsBought:     d.SeatsBought,
		SeatPrice:       d.SeatPrice,
		OperationType:   domain.CommerceOperationType(d.OperationType),
		TransactionDate: d.TransactionDate.UTC(),
	}
}

// SubscriptionHistoryRepository appends purchase records in Firestore.
type SubscriptionHistoryRepository struct {
	provider *pfirestore.Provider
}

// NewSubscriptionHistoryRepository constructs a Firestore-backed history repository.
func NewSubscriptionHistoryRepository(provider *pfirestore.Provider) (*SubscriptionHistoryRepository, error) {
	if provider == nil {
		return nil, errors.New("subscription history repository requires firestore provider")
	}
	return &SubscriptionHistoryRepository{provider: provider}, nil
}

func (r *SubscriptionHistoryRepository) collection(ctx context.Context, customerID string) (*firestore.CollectionRef, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, errors.New("subscription history repository: customer id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(historyCollectionPattern, customerID)), nil
}

// Append stores a new history record.
func (r *SubscriptionHistoryRepository) Append(ctx context.Context, record domain.SubscriptionHistory) error {
	coll, err := r.collection(ctx, record.CustomerID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(record.ID)
	if id == "" {
		return errors.New("subscription history repository: record id is required")
	}

	doc := historyDocument{
		SubscriptionID:  strings.TrimSpace(record.SubscriptionID),
		CustomerID:      strings.TrimSpace(record.CustomerID),
		SeatsBought:     record.SeatsBought,
		SeatPrice:       record.SeatPrice,
		OperationType:   string(record.OperationType),
		TransactionDate: record.TransactionDate.UTC(),
	}
	if _, err := coll.Doc(id).Create(ctx, doc); err != nil {
		return pfirestore.WrapError("subscription_history.append", err)
	}
	return nil
}

// ListByCustomer returns all history records for the customer, newest first.
func (r *SubscriptionHistoryRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.SubscriptionHistory, error) {
	coll, err := r.collection(ctx, customerID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy("transactionDate", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var records []domain.SubscriptionHistory
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("subscription_history.list", err)
		}
		var doc historyDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode history record %s: %w", snap.Ref.ID, err)
		}
		records = append(records, doc.toDomain(snap.Ref.ID))
	}
	return records, nil
}

// Delete removes a history record. Used only to unwind a failed transaction.
func (r *SubscriptionHistoryRepository) Delete(ctx context.Context, customerID, recordID string) error {
	coll, err := r.collection(ctx, customerID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(recordID)
	if id == "" {
		return errors.New("subscription history repository: record id is required")
	}
	if _, err := coll.Doc(id).Delete(ctx); err != nil {
		return pfirestore.WrapError("subscription_history.delete", err)
	}
	return nil
}
