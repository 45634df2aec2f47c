package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/partner-storefront/api/internal/domain"
	pfirestore "github.com/partner-storefront/api/internal/platform/firestore"
)

const (
	configCollection = "storefrontConfig"
	paymentConfigDoc = "payment"
)

type paymentConfigDocument struct {
	Provider           string    `firestore:"provider"`
	BaseURL            string    `firestore:"baseUrl"`
	ClientID           string    `firestore:"clientId"`
	ClientSecret       string    `firestore:"clientSecret"`
	MerchantAuthHeader string    `firestore:"merchantAuthHeader"`
	UpdatedAt          time.Time `firestore:"updatedAt"`
}

// PaymentConfigRepository stores the active payment provider configuration
// as a single well-known document.
type PaymentConfigRepository struct {
	provider *pfirestore.Provider
}

// NewPaymentConfigRepository constructs a Firestore-backed payment config repository.
func NewPaymentConfigRepository(provider *pfirestore.Provider) (*PaymentConfigRepository, error) {
	if provider == nil {
		return nil, errors.New("payment config repository requires firestore provider")
	}
	return &PaymentConfigRepository{provider: provider}, nil
}

func (r *PaymentConfigRepository) doc(ctx context.Context) (*firestore.DocumentRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(configCollection).Doc(paymentConfigDoc), nil
}

// Get loads the active payment configuration.
func (r *PaymentConfigRepository) Get(ctx context.Context) (domain.PaymentConfiguration, error) {
	docRef, err := r.doc(ctx)
	if err != nil {
		return domain.PaymentConfiguration{}, err
	}

	snap, err := docRef.Get(ctx)
	if err != nil {
		return domain.PaymentConfiguration{}, pfirestore.WrapError("payment_config.get", err)
	}
	var doc paymentConfigDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.PaymentConfiguration{}, fmt.Errorf("decode payment config: %w", err)
	}
	return domain.PaymentConfiguration{
		Provider:           doc.Provider,
		BaseURL:            doc.BaseURL,
		ClientID:           doc.ClientID,
		ClientSecret:       doc.ClientSecret,
		MerchantAuthHeader: doc.MerchantAuthHeader,
		UpdatedAt:          doc.UpdatedAt.UTC(),
	}, nil
}

// Save replaces the active payment configuration.
func (r *PaymentConfigRepository) Save(ctx context.Context, cfg domain.PaymentConfiguration) error {
	docRef, err := r.doc(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Provider) == "" {
		return errors.New("payment config repository: provider is required")
	}

	doc := paymentConfigDocument{
		Provider:           strings.TrimSpace(cfg.Provider),
		BaseURL:            strings.TrimSpace(cfg.BaseURL),
		ClientID:           strings.TrimSpace(cfg.ClientID),
		ClientSecret:       cfg.ClientSecret,
		MerchantAuthHeader: cfg.MerchantAuthHeader,
		UpdatedAt:          time.Now().UTC(),
	}
	if _, err := docRef.Set(ctx, doc); err != nil {
		return pfirestore.WrapError("payment_config.save", err)
	}
	return nil
}
