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

const registrationCollection = "customerRegistrations"

type registrationDocument struct {
	FirstName       string    `firestore:"firstName"`
	LastName        string    `firestore:"lastName"`
	Email           string    `firestore:"email"`
	CompanyName     string    `firestore:"companyName"`
	AddressLine1    string    `firestore:"addressLine1"`
	AddressLine2    string    `firestore:"addressLine2"`
	City            string    `firestore:"city"`
	State           string    `firestore:"state"`
	ZipCode         string    `firestore:"zipCode"`
	Country         string    `firestore:"country"`
	Phone           string    `firestore:"phone"`
	Language        string    `firestore:"language"`
	DomainPrefix    string    `firestore:"domainPrefix"`
	DomainName      string    `firestore:"domainName"`
	BillingCulture  string    `firestore:"billingCulture"`
	BillingLanguage string    `firestore:"billingLanguage"`
	CreatedAt       time.Time `firestore:"createdAt"`
}

func (d registrationDocument) toDomain(id string) domain.CustomerRegistration {
	return domain.CustomerRegistration{
		CustomerID:      id,
		FirstName:       d.FirstName,
		LastName:        d.LastName,
		Email:           d.Email,
		CompanyName:     d.CompanyName,
		AddressLine1:    d.AddressLine1,
		AddressLine2:    d.AddressLine2,
		City:            d.City,
		State:           d.State,
		ZipCode:         d.ZipCode,
		Country:         d.Country,
		Phone:           d.Phone,
		Language:        d.Language,
		DomainPrefix:    d.DomainPrefix,
		DomainName:      d.DomainName,
		BillingCulture:  d.BillingCulture,
		BillingLanguage: d.BillingLanguage,
		CreatedAt:       d.CreatedAt.UTC(),
	}
}

// CustomerRegistrationRepository stores in-progress storefront sign-ups.
type CustomerRegistrationRepository struct {
	provider *pfirestore.Provider
}

// NewCustomerRegistrationRepository constructs a Firestore-backed registration repository.
func NewCustomerRegistrationRepository(provider *pfirestore.Provider) (*CustomerRegistrationRepository, error) {
	if provider == nil {
		return nil, errors.New("customer registration repository requires firestore provider")
	}
	return &CustomerRegistrationRepository{provider: provider}, nil
}

func (r *CustomerRegistrationRepository) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(registrationCollection), nil
}

// Insert stores a registration keyed by the provisional customer id.
func (r *CustomerRegistrationRepository) Insert(ctx context.Context, registration domain.CustomerRegistration) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(registration.CustomerID)
	if id == "" {
		return errors.New("customer registration repository: customer id is required")
	}

	doc := registrationDocument{
		FirstName:       strings.TrimSpace(registration.FirstName),
		LastName:        strings.TrimSpace(registration.LastName),
		Email:           strings.TrimSpace(registration.Email),
		CompanyName:     strings.TrimSpace(registration.CompanyName),
		AddressLine1:    strings.TrimSpace(registration.AddressLine1),
		AddressLine2:    strings.TrimSpace(registration.AddressLine2),
		City:            strings.TrimSpace(registration.City),
		State:           strings.TrimSpace(registration.State),
		ZipCode:         strings.TrimSpace(registration.ZipCode),
		Country:         strings.TrimSpace(registration.Country),
		Phone:           strings.TrimSpace(registration.Phone),
		Language:        strings.TrimSpace(registration.Language),
		DomainPrefix:    strings.TrimSpace(registration.DomainPrefix),
		DomainName:      strings.TrimSpace(registration.DomainName),
		BillingCulture:  strings.TrimSpace(registration.BillingCulture),
		BillingLanguage: strings.TrimSpace(registration.BillingLanguage),
		CreatedAt:       registration.CreatedAt.UTC(),
	}
	if _, err := coll.Doc(id).Create(ctx, doc); err != nil {
		return pfirestore.WrapError("customer_registrations.insert", err)
	}
	return nil
}

// FindByID loads a registration by the provisional customer id.
func (r *CustomerRegistrationRepository) FindByID(ctx context.Context, registrationID string) (domain.CustomerRegistration, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.CustomerRegistration{}, err
	}
	id := strings.TrimSpace(registrationID)
	if id == "" {
		return domain.CustomerRegistration{}, errors.New("customer registration repository: id is required")
	}

	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.CustomerRegistration{}, pfirestore.WrapError("customer_registrations.find", err)
	}
	var doc registrationDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.CustomerRegistration{}, fmt.Errorf("decode registration %s: %w", id, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// Delete removes a completed registration.
func (r *CustomerRegistrationRepository) Delete(ctx context.Context, registrationID string) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(registrationID)
	if id == "" {
		return errors.New("customer registration repository: id is required")
	}
	if _, err := coll.Doc(id).Delete(ctx); err != nil {
		return pfirestore.WrapError("customer_registrations.delete", err)
	}
	return nil
}
