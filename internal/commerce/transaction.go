// Package commerce implements the business transaction machinery behind
// storefront purchases: small Execute/Rollback units composed into a
// sequence that unwinds completed work when a later step fails.
package commerce

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/partner-storefront/api/internal/domain"
)

// Logger defines the logging contract for transaction progress.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Transaction is a single reversible unit of commerce work. Execute performs
// the step; Rollback undoes it after a later step has failed. Rollback on a
// unit that never executed, or that already rolled back, is a no-op.
type Transaction interface {
	Execute(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Sequence runs transactions in order. On failure it rolls back the
// executed prefix in reverse order and reports the causing error.
type Sequence struct {
	units  []Transaction
	logger Logger

	executed int
}

// NewSequence builds a sequence over the given units.
func NewSequence(logger Logger, units ...Transaction) (*Sequence, error) {
	if len(units) == 0 {
		return nil, errors.New("commerce: at least one transaction is required")
	}
	for i, unit := range units {
		if unit == nil {
			return nil, fmt.Errorf("commerce: transaction %d is nil", i)
		}
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Sequence{units: units, logger: logger}, nil
}

var _ Transaction = (*Sequence)(nil)

// Execute runs each unit in order. The first failure rolls back every unit
// that completed, in reverse order, and is returned to the caller.
func (s *Sequence) Execute(ctx context.Context) error {
	for i, unit := range s.units {
		if err := unit.Execute(ctx); err != nil {
			s.logger(ctx, "commerce.sequence.failed", map[string]any{
				"step":  i,
				"error": err.Error(),
			})
			s.executed = i
			if rollbackErr := s.Rollback(ctx); rollbackErr != nil {
				// A fatal rollback failure outranks the original error.
				return rollbackErr
			}
			return err
		}
	}
	s.executed = len(s.units)
	return nil
}

// Rollback unwinds the executed prefix in reverse order. Non-fatal rollback
// failures are logged and swallowed so the remaining units still unwind;
// fatal errors propagate immediately.
func (s *Sequence) Rollback(ctx context.Context) error {
	for i := s.executed - 1; i >= 0; i-- {
		if err := s.units[i].Rollback(ctx); err != nil {
			if domain.IsFatal(err) {
				return err
			}
			s.logger(ctx, "commerce.sequence.rollback_failed", map[string]any{
				"step":  i,
				"error": err.Error(),
			})
		}
	}
	s.executed = 0
	return nil
}
