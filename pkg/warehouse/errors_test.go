package warehouse_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/garnizeh/experts/pkg/warehouse"
)

func TestCheckCost(t *testing.T) {
	if err := warehouse.CheckCost(10, 10); err != nil {
		t.Fatalf("estimate equal to limit should pass, got %v", err)
	}

	err := warehouse.CheckCost(11, 10)
	if !errors.Is(err, warehouse.ErrCostLimitExceeded) {
		t.Fatalf("expected ErrCostLimitExceeded, got %v", err)
	}
	var ce *warehouse.CostError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CostError, got %T", err)
	}
	if ce.Estimated != 11 || ce.Limit != 10 {
		t.Fatalf("unexpected cost error fields: %#v", ce)
	}
	if !strings.Contains(err.Error(), "11 bytes") {
		t.Fatalf("unexpected message: %s", err)
	}

	if err := warehouse.CheckCost(0, 0); !errors.Is(err, warehouse.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero limit, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	if warehouse.Classify(ctx, "op", nil) != nil {
		t.Fatalf("nil error should stay nil")
	}

	err := warehouse.Classify(ctx, "run", errors.New("network down"))
	if !errors.Is(err, warehouse.ErrExecution) {
		t.Fatalf("expected ErrExecution, got %v", err)
	}

	err = warehouse.Classify(ctx, "run", context.DeadlineExceeded)
	if !errors.Is(err, warehouse.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = warehouse.Classify(cancelled, "run", errors.New("interrupted"))
	if !errors.Is(err, warehouse.ErrCancelled) {
		t.Fatalf("expected ErrCancelled for cancelled context, got %v", err)
	}

	cost := &warehouse.CostError{Estimated: 5, Limit: 1}
	if got := warehouse.Classify(ctx, "run", cost); got != error(cost) {
		t.Fatalf("cost error should pass through unchanged, got %v", got)
	}
}
