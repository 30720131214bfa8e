package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/forevish/api/internal/domain"
	"github.com/forevish/api/internal/repositories"
)

var (
	errWishlistRepositoryRequired        = errors.New("wishlist service: wishlist repository is required")
	errWishlistProductRepositoryRequired = errors.New("wishlist service: product repository is required")
	errWishlistClockRequired             = errors.New("wishlist service: clock is required")
)

// ErrWishlistInvalidInput indicates the caller supplied invalid input.
var ErrWishlistInvalidInput = errors.New("wishlist service: invalid input")

// ErrWishlistProductNotFound indicates the product cannot be wishlisted.
var ErrWishlistProductNotFound = errors.New("wishlist service: product not found")

// ErrWishlistUnavailable indicates the backend could not fulfil the request.
var ErrWishlistUnavailable = errors.New("wishlist service: unavailable")

const defaultWishlistPageSize = 50

// WishlistServiceDeps wires wishlist dependencies.
type WishlistServiceDeps struct {
	Wishlists repositories.WishlistRepository
	Products  repositories.ProductRepository
	Clock     func() time.Time
	Logger    func(context.Context, string, map[string]any)
}

type wishlistService struct {
	wishlists repositories.WishlistRepository
	products  repositories.ProductRepository
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewWishlistService constructs a WishlistService enforcing dependency validation.
func NewWishlistService(deps WishlistServiceDeps) (WishlistService, error) {
	if deps.Wishlists == nil {
		return nil, errWishlistRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errWishlistProductRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errWishlistClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &wishlistService{
		wishlists: deps.Wishlists,
		products:  deps.Products,
		now:       func() time.Time { return deps.Clock().UTC() },
		logger:    logger,
	}, nil
}

// List returns the user's wishlist newest first.
func (s *wishlistService) List(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[WishlistItem], error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[WishlistItem]{}, fmt.Errorf("%w: user id is required", ErrWishlistInvalidInput)
	}
	if pager.PageSize <= 0 {
		pager.PageSize = defaultWishlistPageSize
	}

	page, err := s.wishlists.List(ctx, uid, pager)
	if err != nil {
		return domain.CursorPage[WishlistItem]{}, s.translateRepoError(err)
	}
	return page, nil
}

// Add snapshots the product into the wishlist. Re-adding an existing product
// refreshes the snapshot and succeeds.
func (s *wishlistService) Add(ctx context.Context, cmd AddWishlistItemCommand) (WishlistItem, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return WishlistItem{}, fmt.Errorf("%w: user id is required", ErrWishlistInvalidInput)
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return WishlistItem{}, fmt.Errorf("%w: product id is required", ErrWishlistInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return WishlistItem{}, ErrWishlistProductNotFound
		}
		return WishlistItem{}, s.translateRepoError(err)
	}
	if !product.IsActive {
		return WishlistItem{}, ErrWishlistProductNotFound
	}

	item := domain.WishlistItem{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.Price,
		Currency:  product.Currency,
		AddedAt:   s.now(),
	}
	if len(product.Images) > 0 {
		item.Image = product.Images[0]
	}

	created, err := s.wishlists.Put(ctx, uid, item)
	if err != nil {
		return WishlistItem{}, s.translateRepoError(err)
	}
	if created {
		s.logger(ctx, "wishlist.added", map[string]any{
			"userId":    uid,
			"productId": product.ID,
		})
	}
	return item, nil
}

// Remove deletes the wishlist entry. Removing an absent product succeeds.
func (s *wishlistService) Remove(ctx context.Context, userID string, productID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user id is required", ErrWishlistInvalidInput)
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrWishlistInvalidInput)
	}
	if err := s.wishlists.Delete(ctx, uid, productID); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *wishlistService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrWishlistProductNotFound
		case repoErr.IsUnavailable():
			return ErrWishlistUnavailable
		}
	}
	return ErrWishlistUnavailable
}
