package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/forevish/api/internal/repositories"
)

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter service: invalid input")
	// ErrCounterExhausted indicates the counter hit its configured maximum.
	ErrCounterExhausted = errors.New("counter service: exhausted")
)

// CounterServiceDeps bundles collaborators for the counter service.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
}

type counterService struct {
	repo       repositories.CounterRepository
	configMu   sync.Mutex
	configured map[string]repositories.CounterConfig
}

// NewCounterService constructs a service issuing sequence values on top of the repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}
	return &counterService{
		repo:       deps.Repository,
		configured: make(map[string]repositories.CounterConfig),
	}, nil
}

func (s *counterService) Next(ctx context.Context, counterID string) (int64, error) {
	counterID = strings.TrimSpace(counterID)
	if counterID == "" {
		return 0, fmt.Errorf("%w: counter id is required", ErrCounterInvalidInput)
	}

	value, err := s.repo.Next(ctx, counterID, 1)
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			switch counterErr.Code {
			case repositories.CounterErrorInvalidInput:
				return 0, fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
			case repositories.CounterErrorExhausted:
				return 0, fmt.Errorf("%w: %s", ErrCounterExhausted, counterErr.Message)
			}
		}
		return 0, err
	}
	return value, nil
}

// Configure applies the config once per process per counter; repeated calls
// with the same settings skip the round trip.
func (s *counterService) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	counterID = strings.TrimSpace(counterID)
	if counterID == "" {
		return fmt.Errorf("%w: counter id is required", ErrCounterInvalidInput)
	}

	s.configMu.Lock()
	defer s.configMu.Unlock()

	if existing, ok := s.configured[counterID]; ok && counterConfigEqual(existing, cfg) {
		return nil
	}
	if err := s.repo.Configure(ctx, counterID, cfg); err != nil {
		return err
	}
	s.configured[counterID] = cfg
	return nil
}

func counterConfigEqual(a, b repositories.CounterConfig) bool {
	if a.Step != b.Step {
		return false
	}
	if !int64PtrEqual(a.MaxValue, b.MaxValue) {
		return false
	}
	return int64PtrEqual(a.InitialValue, b.InitialValue)
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
