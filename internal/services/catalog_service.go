package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	domain "github.com/forevish/api/internal/domain"
	"github.com/forevish/api/internal/repositories"
)

var (
	errCatalogRepositoryRequired = errors.New("catalog service: repository is required")
	errCatalogClockRequired      = errors.New("catalog service: clock is required")
)

// ErrCatalogInvalidInput indicates the caller supplied invalid input.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

// ErrCatalogNotFound indicates the requested product does not exist or is not visible.
var ErrCatalogNotFound = errors.New("catalog service: not found")

// ErrCatalogConflict indicates a uniqueness or concurrency violation.
var ErrCatalogConflict = errors.New("catalog service: conflict")

// ErrCatalogUnavailable indicates the backend could not fulfil the request.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

// ErrCatalogInsufficientStock indicates a stock adjustment would go below zero.
var ErrCatalogInsufficientStock = errors.New("catalog service: insufficient stock")

// ErrCatalogVariantNotFound indicates the (size, color) pair has no variant.
var ErrCatalogVariantNotFound = errors.New("catalog service: variant not found")

const (
	productIDPrefix      = "prd_"
	maxProductNameLength = 200
	maxDescriptionLength = 8000
	maxVariantsPerMatrix = 200
)

// CatalogServiceDeps wires dependencies for catalog operations.
type CatalogServiceDeps struct {
	Products        repositories.ProductRepository
	Clock           func() time.Time
	IDGenerator     func() string
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
}

type catalogService struct {
	products  repositories.ProductRepository
	now       func() time.Time
	newID     func() string
	currency  string
	logger    func(context.Context, string, map[string]any)
	sanitizer *bluemonday.Policy
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errCatalogRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCatalogClockRequired
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "INR"
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		products:  deps.Products,
		now:       func() time.Time { return deps.Clock().UTC() },
		newID:     idGen,
		currency:  currency,
		logger:    logger,
		sanitizer: bluemonday.UGCPolicy(),
	}, nil
}

// CreateProduct validates the variant matrix and persists a new active product.
func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if len(name) > maxProductNameLength {
		return Product{}, fmt.Errorf("%w: name exceeds %d characters", ErrCatalogInvalidInput, maxProductNameLength)
	}
	if cmd.Price < 0 {
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
	}
	if len(cmd.Description) > maxDescriptionLength {
		return Product{}, fmt.Errorf("%w: description exceeds %d characters", ErrCatalogInvalidInput, maxDescriptionLength)
	}

	variants, err := normalizeVariants(cmd.Variants)
	if err != nil {
		return Product{}, err
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}

	now := s.now()
	product := domain.Product{
		ID:          productIDPrefix + s.newID(),
		Name:        name,
		Slug:        slugify(name),
		Description: s.sanitizer.Sanitize(cmd.Description),
		Category:    strings.TrimSpace(cmd.Category),
		Price:       cmd.Price,
		Currency:    currency,
		Images:      trimStrings(cmd.Images),
		Variants:    variants,
		IsActive:    true,
		Metadata:    cmd.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.translateRepoError(err)
	}

	s.logger(ctx, "catalog.product_created", map[string]any{
		"productId": product.ID,
		"variants":  len(product.Variants),
	})
	return product, nil
}

// UpdateProduct applies partial updates. Replacing the variant list takes the
// submitted stock values as-is.
func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return Product{}, fmt.Errorf("%w: name must not be empty", ErrCatalogInvalidInput)
		}
		if len(name) > maxProductNameLength {
			return Product{}, fmt.Errorf("%w: name exceeds %d characters", ErrCatalogInvalidInput, maxProductNameLength)
		}
		product.Name = name
		product.Slug = slugify(name)
	}
	if cmd.Description != nil {
		if len(*cmd.Description) > maxDescriptionLength {
			return Product{}, fmt.Errorf("%w: description exceeds %d characters", ErrCatalogInvalidInput, maxDescriptionLength)
		}
		product.Description = s.sanitizer.Sanitize(*cmd.Description)
	}
	if cmd.Category != nil {
		product.Category = strings.TrimSpace(*cmd.Category)
	}
	if cmd.Price != nil {
		if *cmd.Price < 0 {
			return Product{}, fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
		}
		product.Price = *cmd.Price
	}
	if cmd.Images != nil {
		product.Images = trimStrings(cmd.Images)
	}
	if cmd.Variants != nil {
		variants, err := normalizeVariants(cmd.Variants)
		if err != nil {
			return Product{}, err
		}
		product.Variants = variants
	}

	product.UpdatedAt = s.now()
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.translateRepoError(err)
	}
	return product, nil
}

// DeactivateProduct soft-deletes: the product vanishes from public listings
// but stays resolvable for existing carts and orders.
func (s *catalogService) DeactivateProduct(ctx context.Context, cmd DeactivateProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	if !product.IsActive {
		return product, nil
	}

	product.IsActive = false
	product.UpdatedAt = s.now()
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.translateRepoError(err)
	}

	s.logger(ctx, "catalog.product_deactivated", map[string]any{
		"productId": product.ID,
		"actor":     strings.TrimSpace(cmd.Actor),
	})
	return product, nil
}

// GetProduct loads one product. Without IncludeInactive a deactivated product
// reads as not found.
func (s *catalogService) GetProduct(ctx context.Context, productID string, opts ProductReadOptions) (Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	if !product.IsActive && !opts.IncludeInactive {
		return Product{}, ErrCatalogNotFound
	}
	return product, nil
}

// GetProductBySlug resolves an active product by URL slug.
func (s *catalogService) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return Product{}, fmt.Errorf("%w: slug is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindBySlug(ctx, trimmed)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	if !product.IsActive {
		return Product{}, ErrCatalogNotFound
	}
	return product, nil
}

// ListProducts pages through the catalog newest first.
func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	page, err := s.products.List(ctx, repositories.ProductListFilter{
		Category:   strings.TrimSpace(filter.Category),
		ActiveOnly: !filter.IncludeInactive,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Product]{}, s.translateRepoError(err)
	}
	return page, nil
}

// AdjustStock applies a signed delta to one variant. The repository rejects
// results below zero, so stock cannot be driven negative from here.
func (s *catalogService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (ProductVariant, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return ProductVariant{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	size := strings.TrimSpace(cmd.Size)
	color := strings.TrimSpace(cmd.Color)
	if size == "" || color == "" {
		return ProductVariant{}, fmt.Errorf("%w: size and color are required", ErrCatalogInvalidInput)
	}
	if cmd.Delta == 0 {
		return ProductVariant{}, fmt.Errorf("%w: delta must not be zero", ErrCatalogInvalidInput)
	}

	variant, err := s.products.AdjustStock(ctx, repositories.StockAdjustRequest{
		ProductID: productID,
		Size:      size,
		Color:     color,
		Delta:     cmd.Delta,
		Now:       s.now(),
	})
	if err != nil {
		return ProductVariant{}, translateStockError(err)
	}

	s.logger(ctx, "catalog.stock_adjusted", map[string]any{
		"productId": productID,
		"size":      size,
		"color":     color,
		"delta":     cmd.Delta,
		"stock":     variant.Stock,
		"actor":     strings.TrimSpace(cmd.Actor),
	})
	return variant, nil
}

// SetStock replaces one variant's stock with an absolute count, typically
// after a physical recount.
func (s *catalogService) SetStock(ctx context.Context, cmd SetStockCommand) (ProductVariant, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return ProductVariant{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	size := strings.TrimSpace(cmd.Size)
	color := strings.TrimSpace(cmd.Color)
	if size == "" || color == "" {
		return ProductVariant{}, fmt.Errorf("%w: size and color are required", ErrCatalogInvalidInput)
	}
	if cmd.Quantity < 0 {
		return ProductVariant{}, fmt.Errorf("%w: quantity must not be negative", ErrCatalogInvalidInput)
	}

	variant, err := s.products.SetStock(ctx, repositories.StockSetRequest{
		ProductID: productID,
		Size:      size,
		Color:     color,
		Quantity:  cmd.Quantity,
		Now:       s.now(),
	})
	if err != nil {
		return ProductVariant{}, translateStockError(err)
	}

	s.logger(ctx, "catalog.stock_set", map[string]any{
		"productId": productID,
		"size":      size,
		"color":     color,
		"stock":     variant.Stock,
		"actor":     strings.TrimSpace(cmd.Actor),
	})
	return variant, nil
}

func (s *catalogService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCatalogNotFound
		case repoErr.IsConflict():
			return ErrCatalogConflict
		case repoErr.IsUnavailable():
			return ErrCatalogUnavailable
		}
	}
	return ErrCatalogUnavailable
}

func translateStockError(err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %s", ErrCatalogInsufficientStock, stockErr.Message)
		case repositories.StockErrorVariantNotFound:
			return fmt.Errorf("%w: %s", ErrCatalogVariantNotFound, stockErr.Message)
		case repositories.StockErrorProductNotFound:
			return ErrCatalogNotFound
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrCatalogNotFound
	}
	return ErrCatalogUnavailable
}

func normalizeVariants(inputs []VariantInput) ([]domain.ProductVariant, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one variant is required", ErrCatalogInvalidInput)
	}
	if len(inputs) > maxVariantsPerMatrix {
		return nil, fmt.Errorf("%w: variant matrix exceeds %d cells", ErrCatalogInvalidInput, maxVariantsPerMatrix)
	}

	seen := make(map[string]struct{}, len(inputs))
	skus := make(map[string]struct{}, len(inputs))
	variants := make([]domain.ProductVariant, 0, len(inputs))
	for _, input := range inputs {
		size := strings.TrimSpace(input.Size)
		color := strings.TrimSpace(input.Color)
		sku := strings.TrimSpace(input.SKU)
		if size == "" || color == "" {
			return nil, fmt.Errorf("%w: variant size and color are required", ErrCatalogInvalidInput)
		}
		if sku == "" {
			return nil, fmt.Errorf("%w: variant sku is required", ErrCatalogInvalidInput)
		}
		if input.Stock < 0 {
			return nil, fmt.Errorf("%w: variant stock must not be negative", ErrCatalogInvalidInput)
		}

		key := size + "|" + color
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate variant %s/%s", ErrCatalogInvalidInput, size, color)
		}
		seen[key] = struct{}{}
		if _, dup := skus[sku]; dup {
			return nil, fmt.Errorf("%w: duplicate sku %s", ErrCatalogInvalidInput, sku)
		}
		skus[sku] = struct{}{}

		variants = append(variants, domain.ProductVariant{
			SKU:   sku,
			Size:  size,
			Color: color,
			Stock: input.Stock,
		})
	}
	return variants, nil
}

// slugify lowercases, strips combining marks, and collapses separators so
// product names become stable URL slugs.
func slugify(name string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		stripped = name
	}

	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(stripped) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func trimStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
