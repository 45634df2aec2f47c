package services

import (
	"context"
	"errors"

	domain "github.com/partner-storefront/api/internal/domain"
	"github.com/partner-storefront/api/internal/repositories"
)

// SystemServiceDeps wires the system service's collaborators.
type SystemServiceDeps struct {
	Health repositories.HealthRepository
	Logger Logger
}

type systemService struct {
	health repositories.HealthRepository
	logger Logger
}

// NewSystemService builds the dependency health reporter.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errors.New("services: system service requires a health repository")
	}
	return &systemService{
		health: deps.Health,
		logger: ensureLogger(deps.Logger),
	}, nil
}

// Health probes every registered dependency and reports the aggregate.
func (s *systemService) Health(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, domain.WrapError(domain.ErrorPersistenceFailure, "collecting health report", err)
	}
	if report.Status != domain.HealthStatusOK {
		s.logger(ctx, "system.health.degraded", map[string]any{
			"status": report.Status,
		})
	}
	return report, nil
}
