package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/partner-storefront/api/internal/domain"
	"github.com/partner-storefront/api/internal/repositories"
)

// SummaryServiceDeps wires the summary service's collaborators.
type SummaryServiceDeps struct {
	Subscriptions repositories.SubscriptionRepository
	History       repositories.SubscriptionHistoryRepository
	Offers        repositories.PartnerOfferRepository
	Platform      PlatformCatalog
	Currency      string
	Locale        string
	Decimals      int
	TermDays      int
	WindowDays    int
	GraceDays     int
	Clock         func() time.Time
	Logger        Logger
}

type summaryService struct {
	subscriptions repositories.SubscriptionRepository
	history       repositories.SubscriptionHistoryRepository
	offers        repositories.PartnerOfferRepository
	platform      PlatformCatalog
	money         moneyFormatter
	termDays      int
	windowDays    int
	graceDays     int
	clock         func() time.Time
	logger        Logger
}

// NewSummaryService builds the account summary aggregator.
func NewSummaryService(deps SummaryServiceDeps) (SummaryService, error) {
	if deps.Subscriptions == nil {
		return nil, errors.New("services: summary service requires a subscription repository")
	}
	if deps.History == nil {
		return nil, errors.New("services: summary service requires a history repository")
	}
	if deps.Offers == nil {
		return nil, errors.New("services: summary service requires an offer repository")
	}
	if deps.Platform == nil {
		return nil, errors.New("services: summary service requires a platform catalog")
	}
	if deps.TermDays <= 0 {
		return nil, errors.New("services: summary service requires a positive term length")
	}
	money, err := newMoneyFormatter(deps.Currency, deps.Locale, deps.Decimals)
	if err != nil {
		return nil, err
	}
	return &summaryService{
		subscriptions: deps.Subscriptions,
		history:       deps.History,
		offers:        deps.Offers,
		platform:      deps.Platform,
		money:         money,
		termDays:      deps.TermDays,
		windowDays:    deps.WindowDays,
		graceDays:     deps.GraceDays,
		clock:         utcNow(deps.Clock),
		logger:        ensureLogger(deps.Logger),
	}, nil
}

// SubscriptionSummary joins the customer's subscriptions, purchase history,
// the catalog, and the platform offer list into the account overview. The
// four reads fan out concurrently; prices are reported both in minor units
// and display format. A subscription whose offer is retired or no longer
// sold upstream is shown but cannot be renewed or edited.
func (s *summaryService) SubscriptionSummary(ctx context.Context, customerID string) (SubscriptionsSummary, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return SubscriptionsSummary{}, domain.NewError(domain.ErrorInvalidInput, "customer id is required")
	}

	var (
		subs     []Subscription
		records  []SubscriptionHistory
		offers   []PartnerOffer
		platform []domain.PlatformOffer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		listed, err := s.subscriptions.ListByCustomer(gctx, customerID)
		if err != nil {
			return domain.WrapError(domain.ErrorPersistenceFailure, "listing subscriptions", err)
		}
		subs = listed
		return nil
	})
	g.Go(func() error {
		listed, err := s.history.ListByCustomer(gctx, customerID)
		if err != nil {
			return domain.WrapError(domain.ErrorPersistenceFailure, "listing subscription history", err)
		}
		records = listed
		return nil
	})
	g.Go(func() error {
		listed, err := s.offers.List(gctx)
		if err != nil {
			return domain.WrapError(domain.ErrorPersistenceFailure, "loading offer catalog", err)
		}
		offers = listed
		return nil
	})
	g.Go(func() error {
		listed, err := s.platform.ListOffers(gctx)
		if err != nil {
			return domain.WrapError(domain.ErrorGatewayFailure, "loading platform offers", err)
		}
		platform = listed
		return nil
	})
	if err := g.Wait(); err != nil {
		return SubscriptionsSummary{}, err
	}

	catalog := make(map[string]PartnerOffer, len(offers))
	for _, offer := range offers {
		catalog[offer.ID] = offer
	}
	upstream := make(map[string]bool, len(platform))
	for _, po := range platform {
		upstream[po.ID] = true
	}
	now := s.clock()

	lines := make([]SummaryLineItem, 0, len(subs))
	for _, sub := range subs {
		offer, inCatalog := catalog[sub.PartnerOfferID]
		remaining := domain.RemainingDays(sub.ExpiryDate, now)
		seatPrice := domain.ProratedSeatPrice(offer.Price, remaining, s.termDays)
		line := SummaryLineItem{
			SubscriptionID:   sub.ID,
			OfferID:          sub.PartnerOfferID,
			OfferTitle:       offer.Title,
			Seats:            sub.Seats,
			Status:           string(sub.Status),
			ExpiryDate:       sub.ExpiryDate,
			RemainingDays:    remaining,
			SeatPriceToday:   seatPrice,
			SeatPriceDisplay: s.money.format(seatPrice),
			Renewable:        domain.RenewalEligible(sub.ExpiryDate, now, s.windowDays, s.graceDays),
			Editable:         sub.Status == domain.SubscriptionStatusActive && !sub.Expired(now),
		}
		if !inCatalog || offer.Inactive || (offer.PlatformOfferID != "" && !upstream[offer.PlatformOfferID]) {
			line.Renewable = false
			line.Editable = false
		}
		lines = append(lines, line)
	}

	var totalPaid int64
	historyItems := make([]SummaryHistoryItem, 0, len(records))
	for _, record := range records {
		amount := record.SeatPrice * int64(record.SeatsBought)
		totalPaid += amount
		historyItems = append(historyItems, SummaryHistoryItem{
			SubscriptionID:  record.SubscriptionID,
			OperationType:   string(record.OperationType),
			SeatsBought:     record.SeatsBought,
			AmountPaid:      amount,
			AmountDisplay:   s.money.format(amount),
			TransactionDate: record.TransactionDate,
		})
	}

	s.logger(ctx, "summary.generated", map[string]any{
		"customer_id":   customerID,
		"subscriptions": len(lines),
		"history":       len(historyItems),
	})
	return SubscriptionsSummary{
		CustomerID:    customerID,
		Subscriptions: lines,
		History:       historyItems,
		TotalPaid:     totalPaid,
		GeneratedAt:   now,
	}, nil
}

// moneyFormatter renders minor-unit amounts in the portal's locale.
type moneyFormatter struct {
	unit     currency.Unit
	printer  *message.Printer
	decimals int
}

func newMoneyFormatter(code, locale string, decimals int) (moneyFormatter, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return moneyFormatter{}, errors.New("services: summary service requires a valid ISO currency code")
	}
	if decimals < 0 || decimals > 4 {
		return moneyFormatter{}, errors.New("services: summary service requires 0 to 4 currency decimals")
	}
	tag := language.Make(strings.TrimSpace(locale))
	return moneyFormatter{
		unit:     unit,
		printer:  message.NewPrinter(tag),
		decimals: decimals,
	}, nil
}

func (f moneyFormatter) format(minor int64) string {
	value := float64(minor) / math.Pow10(f.decimals)
	return f.printer.Sprint(currency.Symbol(f.unit.Amount(value)))
}
