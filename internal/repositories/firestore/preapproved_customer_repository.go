package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/partner-storefront/api/internal/platform/firestore"
)

const preApprovedCollection = "preApprovedCustomers"

type preApprovedDocument struct {
	AddedAt time.Time `firestore:"addedAt"`
}

// PreApprovedCustomerRepository tracks customers allowed to bypass payment capture.
type PreApprovedCustomerRepository struct {
	provider *pfirestore.Provider
}

// NewPreApprovedCustomerRepository constructs a Firestore-backed pre-approval repository.
func NewPreApprovedCustomerRepository(provider *pfirestore.Provider) (*PreApprovedCustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("pre-approved customer repository requires firestore provider")
	}
	return &PreApprovedCustomerRepository{provider: provider}, nil
}

func (r *PreApprovedCustomerRepository) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(preApprovedCollection), nil
}

// IsPreApproved reports whether the customer may bypass payment capture.
func (r *PreApprovedCustomerRepository) IsPreApproved(ctx context.Context, customerID string) (bool, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return false, err
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return false, errors.New("pre-approved customer repository: customer id is required")
	}

	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		wrapped := pfirestore.WrapError("pre_approved.lookup", err)
		var repoErr interface{ IsNotFound() bool }
		if errors.As(wrapped, &repoErr) && repoErr.IsNotFound() {
			return false, nil
		}
		return false, wrapped
	}
	return snap.Exists(), nil
}

// Add marks a customer as pre-approved.
func (r *PreApprovedCustomerRepository) Add(ctx context.Context, customerID string) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return errors.New("pre-approved customer repository: customer id is required")
	}
	if _, err := coll.Doc(id).Set(ctx, preApprovedDocument{AddedAt: time.Now().UTC()}); err != nil {
		return pfirestore.WrapError("pre_approved.add", err)
	}
	return nil
}

// Remove revokes pre-approval.
func (r *PreApprovedCustomerRepository) Remove(ctx context.Context, customerID string) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return errors.New("pre-approved customer repository: customer id is required")
	}
	if _, err := coll.Doc(id).Delete(ctx); err != nil {
		return pfirestore.WrapError("pre_approved.remove", err)
	}
	return nil
}
