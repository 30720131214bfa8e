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
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartCatalogRequired    = errors.New("cart service: catalog is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartNotFound indicates the requested cart does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartUnavailable indicates the cart backend cannot fulfil the request.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartProductNotFound indicates the referenced product or variant is not purchasable.
var ErrCartProductNotFound = errors.New("cart service: product not found")

// ErrCartLineNotFound indicates the referenced line is absent from the cart.
var ErrCartLineNotFound = errors.New("cart service: line not found")

// ErrCartInsufficientStock indicates the requested quantity exceeds the
// variant's last-known stock. Advisory only; checkout re-validates stock
// inside its transaction.
var ErrCartInsufficientStock = errors.New("cart service: insufficient stock")

const maxLineQuantity = 50

// CartServiceDeps wires the repository and catalog dependencies for cart operations.
type CartServiceDeps struct {
	Carts           repositories.CartRepository
	Products        repositories.ProductRepository
	Pricing         domain.PricingRules
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	pricing  domain.PricingRules
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errCartCatalogRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	pricing := deps.Pricing
	if pricing.TaxRatePercent == 0 && len(pricing.ShippingTiers) == 0 {
		pricing = domain.DefaultPricingRules()
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "INR"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		pricing:  pricing,
		now:      func() time.Time { return deps.Clock().UTC() },
		currency: currency,
		logger:   logger,
	}, nil
}

// GetOrCreateCart returns the user's cart, materialising an empty one on first use.
func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err == nil {
		return cart, nil
	}

	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		return Cart{}, s.translateRepoError(err)
	}

	now := s.now()
	fresh := domain.Cart{
		ID:        uid,
		UserID:    uid,
		Currency:  s.currency,
		Lines:     []domain.CartLine{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	saved, err := s.carts.UpsertCart(ctx, fresh)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return saved, nil
}

// AddLine merges the variant into the cart: an existing (productID, size,
// color) line has its quantity incremented, otherwise a new line snapshots
// the product's current name and price.
func (s *cartService) AddLine(ctx context.Context, cmd AddCartLineCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	size := strings.TrimSpace(cmd.Size)
	color := strings.TrimSpace(cmd.Color)

	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if productID == "" || size == "" || color == "" {
		return Cart{}, fmt.Errorf("%w: product id, size, and color are required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}
	if cmd.Quantity > maxLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity exceeds %d", ErrCartInvalidInput, maxLineQuantity)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Cart{}, ErrCartProductNotFound
		}
		return Cart{}, s.translateRepoError(err)
	}
	if !product.IsActive {
		return Cart{}, fmt.Errorf("%w: product is no longer available", ErrCartProductNotFound)
	}
	variant, ok := product.Variant(size, color)
	if !ok {
		return Cart{}, fmt.Errorf("%w: variant %s/%s does not exist", ErrCartProductNotFound, size, color)
	}

	cart, err := s.GetOrCreateCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	idx := indexOfCartLine(cart.Lines, productID, size, color)
	if idx >= 0 {
		next := cart.Lines[idx].Quantity + cmd.Quantity
		if next > maxLineQuantity {
			return Cart{}, fmt.Errorf("%w: quantity exceeds %d", ErrCartInvalidInput, maxLineQuantity)
		}
		if next > variant.Stock {
			return Cart{}, fmt.Errorf("%w: only %d units of %s/%s available", ErrCartInsufficientStock, variant.Stock, size, color)
		}
		cart.Lines[idx].Quantity = next
	} else {
		if cmd.Quantity > variant.Stock {
			return Cart{}, fmt.Errorf("%w: only %d units of %s/%s available", ErrCartInsufficientStock, variant.Stock, size, color)
		}
		image := ""
		if len(product.Images) > 0 {
			image = product.Images[0]
		}
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID: productID,
			Name:      product.Name,
			Size:      size,
			Color:     color,
			UnitPrice: product.Price,
			Quantity:  cmd.Quantity,
			Image:     image,
		})
	}

	return s.saveCart(ctx, cart)
}

// UpdateLineQuantity sets the quantity of an existing line. The new quantity
// is checked against the variant's last-known stock when the catalog can be
// consulted; checkout remains the authority inside its transaction.
func (s *cartService) UpdateLineQuantity(ctx context.Context, cmd UpdateCartLineCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}
	if cmd.Quantity > maxLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity exceeds %d", ErrCartInvalidInput, maxLineQuantity)
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}

	productID := strings.TrimSpace(cmd.ProductID)
	size := strings.TrimSpace(cmd.Size)
	color := strings.TrimSpace(cmd.Color)

	idx := indexOfCartLine(cart.Lines, productID, size, color)
	if idx < 0 {
		return Cart{}, ErrCartLineNotFound
	}

	if product, lookupErr := s.products.FindByID(ctx, productID); lookupErr == nil {
		if variant, ok := product.Variant(size, color); ok && cmd.Quantity > variant.Stock {
			return Cart{}, fmt.Errorf("%w: only %d units of %s/%s available", ErrCartInsufficientStock, variant.Stock, size, color)
		}
	}

	cart.Lines[idx].Quantity = cmd.Quantity

	return s.saveCart(ctx, cart)
}

// RemoveLine drops the line if present. Removing an absent line succeeds and
// returns the cart unchanged, so retries are harmless.
func (s *cartService) RemoveLine(ctx context.Context, cmd RemoveCartLineCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return s.GetOrCreateCart(ctx, uid)
		}
		return Cart{}, s.translateRepoError(err)
	}

	idx := indexOfCartLine(cart.Lines, strings.TrimSpace(cmd.ProductID), strings.TrimSpace(cmd.Size), strings.TrimSpace(cmd.Color))
	if idx < 0 {
		return cart, nil
	}
	cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)

	return s.saveCart(ctx, cart)
}

// ClearCart drops every line. Clearing an absent cart succeeds.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if err := s.carts.DeleteCart(ctx, uid); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil
		}
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartService) saveCart(ctx context.Context, cart domain.Cart) (Cart, error) {
	cart.Totals = domain.ComputeTotals(cart.Lines, s.pricing)
	cart.UpdatedAt = s.now()

	saved, err := s.carts.UpsertCart(ctx, cart)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}

	s.logger(ctx, "cart.updated", map[string]any{
		"userId": cart.UserID,
		"lines":  len(cart.Lines),
		"total":  cart.Totals.Total,
	})
	return saved, nil
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsUnavailable():
			return ErrCartUnavailable
		}
	}
	return ErrCartUnavailable
}

func indexOfCartLine(lines []domain.CartLine, productID, size, color string) int {
	for i, line := range lines {
		if line.ProductID == productID && line.Size == size && line.Color == color {
			return i
		}
	}
	return -1
}
