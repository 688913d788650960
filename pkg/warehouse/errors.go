package warehouse

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrCostLimitExceeded = errors.New("cost limit exceeded")
	ErrExecution         = errors.New("query execution failed")
	ErrCancelled         = errors.New("query cancelled")
)

// CostError reports a query rejected by the byte-scan ceiling.
type CostError struct {
	Estimated int64
	Limit     int64
}

func (e *CostError) Error() string {
	if e.Estimated <= 0 {
		return fmt.Sprintf("%s: query exceeds limit of %d bytes", ErrCostLimitExceeded, e.Limit)
	}
	return fmt.Sprintf("%s: query would scan %d bytes, limit is %d", ErrCostLimitExceeded, e.Estimated, e.Limit)
}

func (e *CostError) Unwrap() error { return ErrCostLimitExceeded }

// CheckCost returns a *CostError when estimated exceeds limit.
func CheckCost(estimated, limit int64) error {
	if limit <= 0 {
		return fmt.Errorf("%w: max bytes billed must be positive, got %d", ErrInvalidInput, limit)
	}
	if estimated > limit {
		return &CostError{Estimated: estimated, Limit: limit}
	}
	return nil
}

// Classify maps a backend error to the taxonomy. Errors already carrying one
// of the sentinels are returned unchanged.
func Classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrCostLimitExceeded),
		errors.Is(err, ErrExecution),
		errors.Is(err, ErrCancelled):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", ErrCancelled, op, err)
	case ctx != nil && ctx.Err() != nil:
		return fmt.Errorf("%w: %s: %w", ErrCancelled, op, ctx.Err())
	}
	return fmt.Errorf("%w: %s: %w", ErrExecution, op, err)
}
