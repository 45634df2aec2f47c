package commerce

import (
	"context"
	"errors"

	domain "github.com/partner-storefront/api/internal/domain"
	"github.com/partner-storefront/api/internal/payments"
	"github.com/partner-storefront/api/internal/repositories"
)

// RecordSubscription inserts a new subscription row; rollback deletes it.
type RecordSubscription struct {
	repository   repositories.SubscriptionRepository
	subscription domain.Subscription

	recorded bool
}

// NewRecordSubscription builds the unit.
func NewRecordSubscription(repository repositories.SubscriptionRepository, subscription domain.Subscription) (*RecordSubscription, error) {
	if repository == nil {
		return nil, errors.New("commerce: subscription repository is required")
	}
	if subscription.ID == "" || subscription.CustomerID == "" {
		return nil, errors.New("commerce: subscription id and customer id are required")
	}
	return &RecordSubscription{repository: repository, subscription: subscription}, nil
}

// Result returns the recorded subscription.
func (t *RecordSubscription) Result() domain.Subscription { return t.subscription }

// Execute persists the subscription row.
func (t *RecordSubscription) Execute(ctx context.Context) error {
	if err := t.repository.Insert(ctx, t.subscription); err != nil {
		return err
	}
	t.recorded = true
	return nil
}

// Rollback removes the inserted row.
func (t *RecordSubscription) Rollback(ctx context.Context) error {
	if !t.recorded {
		return nil
	}
	if err := t.repository.Delete(ctx, t.subscription.CustomerID, t.subscription.ID); err != nil {
		return err
	}
	t.recorded = false
	return nil
}

// UpdateSubscription replaces an existing subscription row; rollback
// restores the prior row. Both directions use the conditional replace so a
// concurrent mutation of the same subscription surfaces as a conflict
// instead of silently losing an update.
type UpdateSubscription struct {
	repository repositories.SubscriptionRepository
	prior      domain.Subscription
	updated    domain.Subscription

	applied bool
}

// NewUpdateSubscription builds the unit. prior must be the row as read
// before the mutation was computed.
func NewUpdateSubscription(repository repositories.SubscriptionRepository, prior, updated domain.Subscription) (*UpdateSubscription, error) {
	if repository == nil {
		return nil, errors.New("commerce: subscription repository is required")
	}
	if prior.ID == "" || prior.ID != updated.ID || prior.CustomerID != updated.CustomerID {
		return nil, errors.New("commerce: prior and updated rows must address the same subscription")
	}
	return &UpdateSubscription{repository: repository, prior: prior, updated: updated}, nil
}

// Result returns the updated subscription.
func (t *UpdateSubscription) Result() domain.Subscription { return t.updated }

// Execute applies the replacement.
func (t *UpdateSubscription) Execute(ctx context.Context) error {
	if err := t.repository.Replace(ctx, t.updated, t.prior); err != nil {
		return err
	}
	t.applied = true
	return nil
}

// Rollback restores the prior row.
func (t *UpdateSubscription) Rollback(ctx context.Context) error {
	if !t.applied {
		return nil
	}
	if err := t.repository.Replace(ctx, t.prior, t.updated); err != nil {
		return err
	}
	t.applied = false
	return nil
}

// AppendHistory appends a purchase record; rollback deletes it.
type AppendHistory struct {
	repository repositories.SubscriptionHistoryRepository
	record     domain.SubscriptionHistory

	appended bool
}

// NewAppendHistory builds the unit.
func NewAppendHistory(repository repositories.SubscriptionHistoryRepository, record domain.SubscriptionHistory) (*AppendHistory, error) {
	if repository == nil {
		return nil, errors.New("commerce: subscription history repository is required")
	}
	if record.ID == "" || record.CustomerID == "" {
		return nil, errors.New("commerce: history record id and customer id are required")
	}
	return &AppendHistory{repository: repository, record: record}, nil
}

// Result returns the appended record.
func (t *AppendHistory) Result() domain.SubscriptionHistory { return t.record }

// Execute appends the record.
func (t *AppendHistory) Execute(ctx context.Context) error {
	if err := t.repository.Append(ctx, t.record); err != nil {
		return err
	}
	t.appended = true
	return nil
}

// Rollback removes the appended record.
func (t *AppendHistory) Rollback(ctx context.Context) error {
	if !t.appended {
		return nil
	}
	if err := t.repository.Delete(ctx, t.record.CustomerID, t.record.ID); err != nil {
		return err
	}
	t.appended = false
	return nil
}

// AuthorizePayment executes the approved payment at the gateway; rollback
// voids the authorization so the customer is never charged for work that
// failed downstream.
type AuthorizePayment struct {
	gateway payments.Gateway
	params  payments.CallbackParams

	authorization payments.Authorization
	authorized    bool
}

// NewAuthorizePayment builds the unit.
func NewAuthorizePayment(gateway payments.Gateway, params payments.CallbackParams) (*AuthorizePayment, error) {
	if gateway == nil {
		return nil, errors.New("commerce: payment gateway is required")
	}
	return &AuthorizePayment{gateway: gateway, params: params}, nil
}

// Authorization returns the authorization produced by Execute.
func (t *AuthorizePayment) Authorization() payments.Authorization { return t.authorization }

// Execute turns the approved payment into an authorization.
func (t *AuthorizePayment) Execute(ctx context.Context) error {
	auth, err := t.gateway.ExecutePayment(ctx, t.params)
	if err != nil {
		return err
	}
	t.authorization = auth
	t.authorized = true
	return nil
}

// Rollback voids the authorization.
func (t *AuthorizePayment) Rollback(ctx context.Context) error {
	if !t.authorized {
		return nil
	}
	if err := t.gateway.Void(ctx, t.authorization); err != nil {
		return err
	}
	t.authorized = false
	return nil
}

// CapturePayment settles the authorization. It runs last in a purchase
// sequence; once money has moved there is nothing to unwind, so rollback is
// a no-op and a capture failure triggers rollback of everything before it.
type CapturePayment struct {
	gateway payments.Gateway
	auth    *AuthorizePayment
}

// NewCapturePayment builds the unit over the authorization produced earlier
// in the same sequence.
func NewCapturePayment(gateway payments.Gateway, auth *AuthorizePayment) (*CapturePayment, error) {
	if gateway == nil {
		return nil, errors.New("commerce: payment gateway is required")
	}
	if auth == nil {
		return nil, errors.New("commerce: authorize payment unit is required")
	}
	return &CapturePayment{gateway: gateway, auth: auth}, nil
}

// Execute captures the authorized payment.
func (t *CapturePayment) Execute(ctx context.Context) error {
	return t.gateway.Capture(ctx, t.auth.Authorization())
}

// Rollback is a no-op; capture is the final, irreversible step.
func (t *CapturePayment) Rollback(ctx context.Context) error { return nil }
