package main

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	domain "github.com/partner-storefront/api/internal/domain"
	"github.com/partner-storefront/api/internal/platform/config"
)

type stubPaymentConfigRepo struct {
	getErr error
	saved  []domain.PaymentConfiguration
}

func (s *stubPaymentConfigRepo) Get(context.Context) (domain.PaymentConfiguration, error) {
	if s.getErr != nil {
		return domain.PaymentConfiguration{}, s.getErr
	}
	return domain.PaymentConfiguration{Provider: "paypal"}, nil
}

func (s *stubPaymentConfigRepo) Save(_ context.Context, cfg domain.PaymentConfiguration) error {
	s.saved = append(s.saved, cfg)
	return nil
}

type classifiedErr struct {
	notFound    bool
	unavailable bool
}

func (e classifiedErr) Error() string       { return "payment config store error" }
func (e classifiedErr) IsNotFound() bool    { return e.notFound }
func (e classifiedErr) IsConflict() bool    { return false }
func (e classifiedErr) IsUnavailable() bool { return e.unavailable }

func paypalConfig() config.Config {
	var cfg config.Config
	cfg.PayPal.BaseURL = "https://paypal.example.com"
	cfg.PayPal.ClientID = "pp-client"
	cfg.PayPal.ClientSecret = "pp-secret"
	return cfg
}

func TestSeedPaymentConfigSeedsOnMissingDocument(t *testing.T) {
	repo := &stubPaymentConfigRepo{getErr: classifiedErr{notFound: true}}
	seedPaymentConfig(context.Background(), zap.NewNop(), paypalConfig(), repo)
	if len(repo.saved) != 1 {
		t.Fatalf("saved %d configurations, want 1", len(repo.saved))
	}
	if repo.saved[0].Provider != "paypal" || repo.saved[0].ClientID != "pp-client" {
		t.Fatalf("unexpected seed: %+v", repo.saved[0])
	}
}

func TestSeedPaymentConfigLeavesExistingDocument(t *testing.T) {
	repo := &stubPaymentConfigRepo{}
	seedPaymentConfig(context.Background(), zap.NewNop(), paypalConfig(), repo)
	if len(repo.saved) != 0 {
		t.Fatalf("existing configuration was overwritten: %+v", repo.saved)
	}
}

func TestSeedPaymentConfigSkipsOnStoreOutage(t *testing.T) {
	cases := map[string]error{
		"unavailable":  classifiedErr{unavailable: true},
		"unclassified": errors.New("deadline exceeded"),
	}
	for name, getErr := range cases {
		t.Run(name, func(t *testing.T) {
			repo := &stubPaymentConfigRepo{getErr: getErr}
			seedPaymentConfig(context.Background(), zap.NewNop(), paypalConfig(), repo)
			if len(repo.saved) != 0 {
				t.Fatalf("seed must not run when the store cannot be read: %+v", repo.saved)
			}
		})
	}
}
