package services

import (
	"context"
	"errors"
	"testing"

	"github.com/forevish/api/internal/repositories"
)

func TestCounterServiceNext(t *testing.T) {
	repo := &stubCounterRepository{
		nextFunc: func(ctx context.Context, counterID string, step int64) (int64, error) {
			if counterID != "orders" {
				t.Fatalf("unexpected counter id %q", counterID)
			}
			if step != 1 {
				t.Fatalf("expected step 1, got %d", step)
			}
			return 42, nil
		},
	}
	service, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("unexpected error constructing counter service: %v", err)
	}

	value, err := service.Next(context.Background(), " orders ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 42 {
		t.Fatalf("expected 42, got %d", value)
	}
}

func TestCounterServiceNextMapsRepositoryErrors(t *testing.T) {
	repo := &stubCounterRepository{
		nextFunc: func(ctx context.Context, counterID string, step int64) (int64, error) {
			return 0, repositories.NewCounterError(repositories.CounterErrorExhausted, "max reached", nil)
		},
	}
	service, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("unexpected error constructing counter service: %v", err)
	}

	_, err = service.Next(context.Background(), "orders")
	if !errors.Is(err, ErrCounterExhausted) {
		t.Fatalf("expected ErrCounterExhausted, got %v", err)
	}

	_, err = service.Next(context.Background(), "  ")
	if !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected ErrCounterInvalidInput, got %v", err)
	}
}

func TestCounterServiceConfigureSkipsRepeatedCalls(t *testing.T) {
	calls := 0
	repo := &stubCounterRepository{
		configureFunc: func(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
			calls++
			return nil
		},
	}
	service, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("unexpected error constructing counter service: %v", err)
	}

	cfg := repositories.CounterConfig{Step: 1}
	if err := service.Configure(context.Background(), "orders", cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.Configure(context.Background(), "orders", cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one repository call, got %d", calls)
	}

	max := int64(999999)
	if err := service.Configure(context.Background(), "orders", repositories.CounterConfig{Step: 1, MaxValue: &max}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected second call for changed config, got %d", calls)
	}
}
