package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/forevish/api/internal/platform/firestore"
	"github.com/forevish/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider  *pfirestore.Provider
	products  *ProductRepository
	carts     *CartRepository
	orders    *OrderRepository
	intake    *OrderIntakeRepository
	wishlists *WishlistRepository
	counters  *CounterRepository
	health    repositories.HealthRepository
}

// NewRegistry constructs every repository against the shared provider. The
// health repository is optional and may be supplied later by the caller.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	intake, err := NewOrderIntakeRepository(provider)
	if err != nil {
		return nil, err
	}
	wishlists, err := NewWishlistRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:  provider,
		products:  products,
		carts:     carts,
		orders:    orders,
		intake:    intake,
		wishlists: wishlists,
		counters:  counters,
		health:    health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Products() repositories.ProductRepository        { return r.products }
func (r *Registry) Carts() repositories.CartRepository              { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository            { return r.orders }
func (r *Registry) OrderIntake() repositories.OrderIntakeRepository { return r.intake }
func (r *Registry) Wishlists() repositories.WishlistRepository      { return r.wishlists }
func (r *Registry) Counters() repositories.CounterRepository        { return r.counters }
func (r *Registry) Health() repositories.HealthRepository           { return r.health }

// RunInTx groups repository calls. Cross-document atomicity for stock and
// orders lives in the intake repository's own transactions, so the grouping
// here is sequential.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

var _ repositories.Registry = (*Registry)(nil)
