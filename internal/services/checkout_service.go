package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/partner-storefront/api/internal/domain"
	"github.com/partner-storefront/api/internal/payments"
	"github.com/partner-storefront/api/internal/platform/events"
	"github.com/partner-storefront/api/internal/repositories"
)

// RegistrationCompleter finalizes a stored sign-up once its first order is paid.
type RegistrationCompleter interface {
	CompleteRegistration(ctx context.Context, registrationID string) (CompletedRegistration, error)
}

// CheckoutServiceDeps wires the checkout service's collaborators.
type CheckoutServiceDeps struct {
	Normalizer    OrderNormalizer
	Commerce      CommerceService
	Selector      *payments.Selector
	Registrations repositories.CustomerRegistrationRepository
	Completer     RegistrationCompleter
	Publisher     events.Publisher
	ReturnBaseURL string
	Currency      string
	Clock         func() time.Time
	Logger        Logger
}

type checkoutService struct {
	normalizer    OrderNormalizer
	commerce      CommerceService
	selector      *payments.Selector
	registrations repositories.CustomerRegistrationRepository
	completer     RegistrationCompleter
	publisher     events.Publisher
	returnBaseURL string
	currency      string
	clock         func() time.Time
	logger        Logger
}

// NewCheckoutService builds the order preparation and callback pipeline.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Normalizer == nil {
		return nil, errors.New("services: checkout service requires an order normalizer")
	}
	if deps.Commerce == nil {
		return nil, errors.New("services: checkout service requires a commerce service")
	}
	if deps.Selector == nil {
		return nil, errors.New("services: checkout service requires a gateway selector")
	}
	if deps.Registrations == nil {
		return nil, errors.New("services: checkout service requires a registration repository")
	}
	if deps.Completer == nil {
		return nil, errors.New("services: checkout service requires a registration completer")
	}
	if strings.TrimSpace(deps.ReturnBaseURL) == "" {
		return nil, errors.New("services: checkout service requires a return base URL")
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &checkoutService{
		normalizer:    deps.Normalizer,
		commerce:      deps.Commerce,
		selector:      deps.Selector,
		registrations: deps.Registrations,
		completer:     deps.Completer,
		publisher:     publisher,
		returnBaseURL: strings.TrimRight(deps.ReturnBaseURL, "/"),
		currency:      deps.Currency,
		clock:         utcNow(deps.Clock),
		logger:        ensureLogger(deps.Logger),
	}, nil
}

// PrepareOrder normalizes the draft and asks the customer's gateway for the
// redirect URI the customer must visit to approve payment.
func (s *checkoutService) PrepareOrder(ctx context.Context, customerID string, draft OrderDraft) (CheckoutRedirect, error) {
	order, err := s.normalizer.Normalize(ctx, customerID, draft)
	if err != nil {
		return CheckoutRedirect{}, err
	}
	return s.prepare(ctx, order, s.returnBaseURL+"/api/orders/process")
}

// ProcessOrder resumes a checkout when the payment provider redirects the
// customer back. The order is rebuilt from the provider, never from the
// request, then dispatched to the matching commerce sequence.
func (s *checkoutService) ProcessOrder(ctx context.Context, customerID string, callback ProcessCallback) (TransactionResult, error) {
	gateway, order, params, err := s.resolve(ctx, customerID, callback)
	if err != nil {
		return TransactionResult{}, err
	}
	if order.CustomerID != customerID {
		return TransactionResult{}, domain.NewError(domain.ErrorInvalidInput, "order belongs to a different customer").
			WithDetail("order_id", order.ID)
	}
	return s.dispatch(ctx, order, GatewayCallback{Gateway: gateway, Params: params})
}

// PrepareNewCustomerOrder prepares the first order of a not-yet-created
// customer. The stored registration supplies the customer id so the order and
// the eventual platform account line up.
func (s *checkoutService) PrepareNewCustomerOrder(ctx context.Context, registrationID string, draft OrderDraft) (CheckoutRedirect, error) {
	registration, err := s.loadRegistration(ctx, registrationID)
	if err != nil {
		return CheckoutRedirect{}, err
	}
	if draft.OperationType != domain.OperationNewPurchase {
		return CheckoutRedirect{}, domain.NewError(domain.ErrorInvalidInput, "a new customer order must be a new purchase")
	}
	order, err := s.normalizer.Normalize(ctx, registration.CustomerID, draft)
	if err != nil {
		return CheckoutRedirect{}, err
	}
	return s.prepare(ctx, order, s.returnBaseURL+"/api/orders/new-customer/process?registrationId="+registrationID)
}

// ProcessNewCustomerOrder finalizes a first order: the payment is resolved,
// the platform customer account is created from the stored registration, and
// only then does the purchase sequence run. Registration completion happens
// before any money is captured because the account cannot be unwound.
func (s *checkoutService) ProcessNewCustomerOrder(ctx context.Context, registrationID string, callback ProcessCallback) (TransactionResult, error) {
	registration, err := s.loadRegistration(ctx, registrationID)
	if err != nil {
		return TransactionResult{}, err
	}
	gateway, order, params, err := s.resolve(ctx, registration.CustomerID, callback)
	if err != nil {
		return TransactionResult{}, err
	}
	if order.CustomerID != registration.CustomerID {
		return TransactionResult{}, domain.NewError(domain.ErrorInvalidInput, "order belongs to a different customer").
			WithDetail("order_id", order.ID)
	}
	if _, err := s.completer.CompleteRegistration(ctx, registrationID); err != nil {
		return TransactionResult{}, err
	}
	return s.dispatch(ctx, order, GatewayCallback{Gateway: gateway, Params: params})
}

func (s *checkoutService) prepare(ctx context.Context, order Order, returnURL string) (CheckoutRedirect, error) {
	gateway, err := s.selector.Select(ctx, order.CustomerID)
	if err != nil {
		return CheckoutRedirect{}, err
	}
	uri, err := gateway.GeneratePaymentURI(ctx, returnURL, order)
	if err != nil {
		return CheckoutRedirect{}, err
	}
	s.logger(ctx, "checkout.prepared", map[string]any{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
		"operation":   string(order.OperationType),
		"total":       order.Total(),
	})
	return CheckoutRedirect{OrderID: order.ID, PaymentURI: uri}, nil
}

func (s *checkoutService) resolve(ctx context.Context, customerID string, callback ProcessCallback) (payments.Gateway, Order, payments.CallbackParams, error) {
	if strings.TrimSpace(callback.PaymentID) == "" {
		return nil, Order{}, payments.CallbackParams{},
			domain.NewError(domain.ErrorInvalidInput, "payment id is required")
	}
	params := payments.CallbackParams{
		PaymentID:  callback.PaymentID,
		PayerID:    callback.PayerID,
		OrderID:    callback.OrderID,
		CustomerID: customerID,
	}
	gateway, err := s.selector.Select(ctx, customerID)
	if err != nil {
		return nil, Order{}, payments.CallbackParams{}, err
	}
	order, err := gateway.OrderFromPayment(ctx, params)
	if err != nil {
		return nil, Order{}, payments.CallbackParams{}, err
	}
	return gateway, order, params, nil
}

func (s *checkoutService) dispatch(ctx context.Context, order Order, gatewayCallback GatewayCallback) (TransactionResult, error) {
	var (
		result TransactionResult
		err    error
	)
	switch order.OperationType {
	case domain.OperationNewPurchase:
		result, err = s.commerce.Purchase(ctx, order, gatewayCallback)
	case domain.OperationAddSeats:
		result, err = s.commerce.PurchaseAdditionalSeats(ctx, order, gatewayCallback)
	case domain.OperationRenewal:
		result, err = s.commerce.RenewSubscription(ctx, order, gatewayCallback)
	default:
		return TransactionResult{}, domain.NewError(domain.ErrorInvalidInput, "order carries an unsupported operation")
	}
	if err != nil {
		return TransactionResult{}, err
	}
	s.publish(ctx, order, result)
	return result, nil
}

// publish emits the commerce event after the sequence committed. Publishing
// is best effort; a delivery failure never fails a paid order.
func (s *checkoutService) publish(ctx context.Context, order Order, result TransactionResult) {
	event := events.CommerceEvent{
		EventType:     "commerce.order.completed",
		CustomerID:    result.CustomerID,
		OrderID:       order.ID,
		OperationType: string(result.OperationType),
		AmountCharged: result.AmountCharged,
		Currency:      s.currency,
		OccurredAt:    s.clock(),
	}
	if _, err := s.publisher.PublishCommerceEvent(ctx, event); err != nil {
		s.logger(ctx, "checkout.event.publish_failed", map[string]any{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	}
}

func (s *checkoutService) loadRegistration(ctx context.Context, registrationID string) (CustomerRegistration, error) {
	registrationID = strings.TrimSpace(registrationID)
	if registrationID == "" {
		return CustomerRegistration{}, domain.NewError(domain.ErrorInvalidInput, "registration id is required")
	}
	registration, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		if isRepoNotFound(err) {
			return CustomerRegistration{}, domain.NewError(domain.ErrorNotFound, "registration not found").
				WithDetail("registration_id", registrationID)
		}
		return CustomerRegistration{}, domain.WrapError(domain.ErrorPersistenceFailure, "loading registration", err)
	}
	return registration, nil
}
