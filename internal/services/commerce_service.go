package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/partner-storefront/api/internal/commerce"
	domain "github.com/partner-storefront/api/internal/domain"
	"github.com/partner-storefront/api/internal/repositories"
)

// CommerceServiceDeps wires the commerce service's collaborators.
type CommerceServiceDeps struct {
	Subscriptions repositories.SubscriptionRepository
	History       repositories.SubscriptionHistoryRepository
	TermDays      int
	WindowDays    int
	GraceDays     int
	Clock         func() time.Time
	IDGen         func() string
	Logger        Logger
}

type commerceService struct {
	subscriptions repositories.SubscriptionRepository
	history       repositories.SubscriptionHistoryRepository
	termDays      int
	windowDays    int
	graceDays     int
	clock         func() time.Time
	idGen         func() string
	logger        Logger
}

// NewCommerceService builds the service that runs purchase sequences.
func NewCommerceService(deps CommerceServiceDeps) (CommerceService, error) {
	if deps.Subscriptions == nil {
		return nil, errors.New("services: commerce service requires a subscription repository")
	}
	if deps.History == nil {
		return nil, errors.New("services: commerce service requires a history repository")
	}
	if deps.TermDays <= 0 {
		return nil, errors.New("services: commerce service requires a positive term length")
	}
	if deps.WindowDays < 0 || deps.GraceDays < 0 {
		return nil, errors.New("services: commerce service requires non-negative renewal windows")
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &commerceService{
		subscriptions: deps.Subscriptions,
		history:       deps.History,
		termDays:      deps.TermDays,
		windowDays:    deps.WindowDays,
		graceDays:     deps.GraceDays,
		clock:         utcNow(deps.Clock),
		idGen:         idGen,
		logger:        ensureLogger(deps.Logger),
	}, nil
}

// Purchase authorizes the payment, records one new subscription per line
// item plus its history entry, then captures the payment. Any failure rolls
// back the executed prefix in reverse order.
func (s *commerceService) Purchase(ctx context.Context, order Order, gatewayCallback GatewayCallback) (TransactionResult, error) {
	if err := s.checkOrder(order, domain.OperationNewPurchase, gatewayCallback); err != nil {
		return TransactionResult{}, err
	}
	now := s.clock()

	subscriptions := make([]Subscription, 0, len(order.Items))
	records := make([]SubscriptionHistory, 0, len(order.Items))
	var units []commerce.Transaction
	for _, item := range order.Items {
		sub := Subscription{
			ID:             s.idGen(),
			CustomerID:     order.CustomerID,
			PartnerOfferID: item.OfferID,
			Seats:          item.Quantity,
			ExpiryDate:     now.AddDate(0, 0, s.termDays),
			Status:         domain.SubscriptionStatusActive,
			UpdatedAt:      now,
		}
		record := s.historyRecord(sub.ID, order, item, now)
		recordUnit, err := commerce.NewRecordSubscription(s.subscriptions, sub)
		if err != nil {
			return TransactionResult{}, domain.WrapError(domain.ErrorFatal, "building purchase sequence", err)
		}
		historyUnit, err := commerce.NewAppendHistory(s.history, record)
		if err != nil {
			return TransactionResult{}, domain.WrapError(domain.ErrorFatal, "building purchase sequence", err)
		}
		units = append(units, recordUnit, historyUnit)
		subscriptions = append(subscriptions, sub)
		records = append(records, record)
	}

	if err := s.runSequence(ctx, order, gatewayCallback, units); err != nil {
		return TransactionResult{}, err
	}
	return s.result(order, subscriptions, records, now), nil
}

// PurchaseAdditionalSeats grows existing subscriptions by the ordered seat
// counts. Each updated row keeps its expiry; rollback restores the prior row.
func (s *commerceService) PurchaseAdditionalSeats(ctx context.Context, order Order, gatewayCallback GatewayCallback) (TransactionResult, error) {
	if err := s.checkOrder(order, domain.OperationAddSeats, gatewayCallback); err != nil {
		return TransactionResult{}, err
	}
	now := s.clock()

	subscriptions := make([]Subscription, 0, len(order.Items))
	records := make([]SubscriptionHistory, 0, len(order.Items))
	var units []commerce.Transaction
	for _, item := range order.Items {
		prior, err := s.loadSubscription(ctx, order.CustomerID, item.SubscriptionID)
		if err != nil {
			return TransactionResult{}, err
		}
		updated := prior
		updated.Seats += item.Quantity
		updated.UpdatedAt = now

		record := s.historyRecord(prior.ID, order, item, now)
		updateUnit, err := commerce.NewUpdateSubscription(s.subscriptions, prior, updated)
		if err != nil {
			return TransactionResult{}, domain.WrapError(domain.ErrorFatal, "building add-seats sequence", err)
		}
		historyUnit, err := commerce.NewAppendHistory(s.history, record)
		if err != nil {
			return TransactionResult{}, domain.WrapError(domain.ErrorFatal, "building add-seats sequence", err)
		}
		units = append(units, updateUnit, historyUnit)
		subscriptions = append(subscriptions, updated)
		records = append(records, record)
	}

	if err := s.runSequence(ctx, order, gatewayCallback, units); err != nil {
		return TransactionResult{}, err
	}
	return s.result(order, subscriptions, records, now), nil
}

// RenewSubscription extends each ordered subscription by one full term from
// its current expiry. Subscriptions outside the renewal window are rejected
// before any money moves.
func (s *commerceService) RenewSubscription(ctx context.Context, order Order, gatewayCallback GatewayCallback) (TransactionResult, error) {
	if err := s.checkOrder(order, domain.OperationRenewal, gatewayCallback); err != nil {
		return TransactionResult{}, err
	}
	now := s.clock()

	subscriptions := make([]Subscription, 0, len(order.Items))
	records := make([]SubscriptionHistory, 0, len(order.Items))
	var units []commerce.Transaction
	for _, item := range order.Items {
		prior, err := s.loadSubscription(ctx, order.CustomerID, item.SubscriptionID)
		if err != nil {
			return TransactionResult{}, err
		}
		if !domain.RenewalEligible(prior.ExpiryDate, now, s.windowDays, s.graceDays) {
			return TransactionResult{}, domain.NewError(domain.ErrorRenewalNotEligible, "subscription is outside the renewal window").
				WithDetail("subscription_id", prior.ID).
				WithDetail("expiry_date", prior.ExpiryDate.Format(time.RFC3339))
		}
		// The whole subscription extends, so the charge must cover every seat.
		if item.Quantity != prior.Seats {
			return TransactionResult{}, domain.NewError(domain.ErrorInvalidInput, "renewal quantity does not match the subscription seat count").
				WithDetail("subscription_id", prior.ID)
		}
		updated := prior
		updated.ExpiryDate = prior.ExpiryDate.AddDate(0, 0, s.termDays)
		updated.Status = domain.SubscriptionStatusActive
		updated.UpdatedAt = now

		record := s.historyRecord(prior.ID, order, item, now)
		updateUnit, err := commerce.NewUpdateSubscription(s.subscriptions, prior, updated)
		if err != nil {
			return TransactionResult{}, domain.WrapError(domain.ErrorFatal, "building renewal sequence", err)
		}
		historyUnit, err := commerce.NewAppendHistory(s.history, record)
		if err != nil {
			return TransactionResult{}, domain.WrapError(domain.ErrorFatal, "building renewal sequence", err)
		}
		units = append(units, updateUnit, historyUnit)
		subscriptions = append(subscriptions, updated)
		records = append(records, record)
	}

	if err := s.runSequence(ctx, order, gatewayCallback, units); err != nil {
		return TransactionResult{}, err
	}
	return s.result(order, subscriptions, records, now), nil
}

// runSequence brackets the storage units with payment authorization up front
// and capture at the end, so a storage failure voids the authorization and a
// payment failure writes nothing.
func (s *commerceService) runSequence(ctx context.Context, order Order, gatewayCallback GatewayCallback, storageUnits []commerce.Transaction) error {
	authorize, err := commerce.NewAuthorizePayment(gatewayCallback.Gateway, gatewayCallback.Params)
	if err != nil {
		return domain.WrapError(domain.ErrorFatal, "building payment authorization", err)
	}
	capture, err := commerce.NewCapturePayment(gatewayCallback.Gateway, authorize)
	if err != nil {
		return domain.WrapError(domain.ErrorFatal, "building payment capture", err)
	}

	units := make([]commerce.Transaction, 0, len(storageUnits)+2)
	units = append(units, authorize)
	units = append(units, storageUnits...)
	units = append(units, capture)

	sequence, err := commerce.NewSequence(commerce.Logger(s.logger), units...)
	if err != nil {
		return domain.WrapError(domain.ErrorFatal, "building commerce sequence", err)
	}
	if err := sequence.Execute(ctx); err != nil {
		s.logger(ctx, "commerce.order.failed", map[string]any{
			"order_id":    order.ID,
			"customer_id": order.CustomerID,
			"operation":   string(order.OperationType),
			"error":       err.Error(),
		})
		return err
	}
	s.logger(ctx, "commerce.order.completed", map[string]any{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
		"operation":   string(order.OperationType),
		"amount":      order.Total(),
	})
	return nil
}

func (s *commerceService) checkOrder(order Order, want CommerceOperationType, gatewayCallback GatewayCallback) error {
	if gatewayCallback.Gateway == nil {
		return domain.NewError(domain.ErrorFatal, "commerce operation invoked without a payment gateway")
	}
	if order.CustomerID == "" || len(order.Items) == 0 {
		return domain.NewError(domain.ErrorInvalidInput, "order is not normalized")
	}
	if order.OperationType != want {
		return domain.NewError(domain.ErrorInvalidInput,
			fmt.Sprintf("order operation %q does not match %q", order.OperationType, want))
	}
	return nil
}

func (s *commerceService) loadSubscription(ctx context.Context, customerID, subscriptionID string) (Subscription, error) {
	sub, err := s.subscriptions.FindByID(ctx, customerID, subscriptionID)
	if err != nil {
		if isRepoNotFound(err) {
			return Subscription{}, domain.NewError(domain.ErrorNotFound, "subscription not found").
				WithDetail("subscription_id", subscriptionID)
		}
		return Subscription{}, domain.WrapError(domain.ErrorPersistenceFailure, "loading subscription", err)
	}
	return sub, nil
}

func (s *commerceService) historyRecord(subscriptionID string, order Order, item OrderLineItem, now time.Time) SubscriptionHistory {
	return SubscriptionHistory{
		ID:              s.idGen(),
		SubscriptionID:  subscriptionID,
		CustomerID:      order.CustomerID,
		SeatsBought:     item.Quantity,
		SeatPrice:       item.SeatPrice,
		OperationType:   order.OperationType,
		TransactionDate: now,
	}
}

func (s *commerceService) result(order Order, subscriptions []Subscription, records []SubscriptionHistory, now time.Time) TransactionResult {
	return TransactionResult{
		CustomerID:      order.CustomerID,
		OperationType:   order.OperationType,
		Subscriptions:   subscriptions,
		History:         records,
		AmountCharged:   order.Total(),
		TransactionDate: now,
	}
}
