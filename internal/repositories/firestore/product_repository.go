package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/forevish/api/internal/domain"
	pfirestore "github.com/forevish/api/internal/platform/firestore"
	"github.com/forevish/api/internal/platform/pagination"
	"github.com/forevish/api/internal/repositories"
)

const productsCollection = "products"

// ProductRepository persists catalog products and runs the transactional
// stock mutations used by order intake and cancellation.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the product document, failing on ID collision.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	if _, err := r.base.Create(ctx, id, newProductDocument(product)); err != nil {
		return err
	}
	return nil
}

// Update overwrites the product document.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	if _, err := r.base.Set(ctx, id, newProductDocument(product)); err != nil {
		return err
	}
	return nil
}

// FindByID loads a product regardless of its active flag.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindBySlug resolves a product by its URL slug.
func (r *ProductRepository) FindBySlug(ctx context.Context, slug string) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return domain.Product{}, errors.New("product repository: slug is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	iter := client.Collection(productsCollection).Where("slug", "==", trimmed).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Product{}, pfirestore.WrapError("products.findBySlug", status.Error(codes.NotFound, "product not found"))
	}
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.findBySlug", err)
	}

	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// List returns products ordered by newest first with cursor pagination.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	query := client.Collection(productsCollection).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)
	if filter.ActiveOnly {
		query = query.Where("isActive", "==", true)
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		query = query.Where("category", "==", category)
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	var fetchLimit int
	if limit > 0 {
		fetchLimit = limit + 1
		query = query.Limit(fetchLimit)
	}

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeTimeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("products.list: invalid page token: %w", err)
		}
		query = query.StartAfter(tokenTime, tokenID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	type productRow struct {
		data  domain.Product
		docID string
	}

	var rows []productRow
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		rows = append(rows, productRow{data: doc.toDomain(snap.Ref.ID), docID: snap.Ref.ID})
	}

	nextToken := ""
	if limit > 0 && len(rows) == fetchLimit {
		last := rows[len(rows)-1]
		nextToken = encodeTimeCursor(last.data.CreatedAt, last.docID)
		rows = rows[:len(rows)-1]
	}

	items := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.data)
	}

	return domain.CursorPage[domain.Product]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// AdjustStock applies a signed delta to one variant inside a transaction.
func (r *ProductRepository) AdjustStock(ctx context.Context, req repositories.StockAdjustRequest) (domain.ProductVariant, error) {
	return r.mutateVariantStock(ctx, "products.adjustStock", req.ProductID, req.Size, req.Color, req.Now,
		func(current int64) (int64, error) {
			next := current + req.Delta
			if next < 0 {
				return 0, repositories.NewStockError(repositories.StockErrorInsufficient,
					fmt.Sprintf("variant %s/%s has %d units, requested delta %d", req.Size, req.Color, current, req.Delta), nil)
			}
			return next, nil
		})
}

// SetStock overwrites one variant's stock with an absolute quantity.
func (r *ProductRepository) SetStock(ctx context.Context, req repositories.StockSetRequest) (domain.ProductVariant, error) {
	return r.mutateVariantStock(ctx, "products.setStock", req.ProductID, req.Size, req.Color, req.Now,
		func(int64) (int64, error) {
			if req.Quantity < 0 {
				return 0, repositories.NewStockError(repositories.StockErrorInsufficient,
					fmt.Sprintf("variant %s/%s cannot hold %d units", req.Size, req.Color, req.Quantity), nil)
			}
			return req.Quantity, nil
		})
}

// mutateVariantStock reads the product, applies next to the addressed
// variant's stock, and writes the document back in one transaction.
func (r *ProductRepository) mutateVariantStock(ctx context.Context, op, productID, size, color string, at time.Time, next func(current int64) (int64, error)) (domain.ProductVariant, error) {
	if r == nil || r.provider == nil {
		return domain.ProductVariant{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.ProductVariant{}, errors.New("product repository: product id is required")
	}

	now := at.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var updated domain.ProductVariant
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		doc, err := getProductTx(tx, ref)
		if err != nil {
			return err
		}

		idx := doc.variantIndex(size, color)
		if idx < 0 {
			return repositories.NewStockError(repositories.StockErrorVariantNotFound,
				fmt.Sprintf("variant %s/%s not found on product %s", size, color, id), nil)
		}

		stock, err := next(doc.Variants[idx].Stock)
		if err != nil {
			return err
		}

		doc.Variants[idx].Stock = stock
		doc.UpdatedAt = now
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.Variants[idx].toDomain()
		return nil
	})
	if err != nil {
		return domain.ProductVariant{}, wrapStockError(op, err)
	}
	return updated, nil
}

func getProductTx(tx *firestore.Transaction, ref *firestore.DocumentRef) (productDocument, error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return productDocument{}, repositories.NewStockError(repositories.StockErrorProductNotFound,
			fmt.Sprintf("product %s not found", ref.ID), nil)
	}
	if err != nil {
		return productDocument{}, err
	}
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return productDocument{}, fmt.Errorf("decode product %s: %w", ref.ID, err)
	}
	return doc, nil
}

func stockLineKey(line repositories.StockLine) string {
	return strings.TrimSpace(line.ProductID) + "|" + strings.TrimSpace(line.Size) + "|" + strings.TrimSpace(line.Color)
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}

func encodeTimeCursor(ts time.Time, docID string) string {
	return pagination.EncodeTimeCursor(ts, docID)
}

func decodeTimeCursor(token string) (time.Time, string, error) {
	return pagination.DecodeTimeCursor(token)
}

type productDocument struct {
	Name        string                   `firestore:"name"`
	Slug        string                   `firestore:"slug"`
	Description string                   `firestore:"description,omitempty"`
	Category    string                   `firestore:"category,omitempty"`
	Price       int64                    `firestore:"price"`
	Currency    string                   `firestore:"currency"`
	Images      []string                 `firestore:"images,omitempty"`
	Variants    []productVariantDocument `firestore:"variants"`
	IsActive    bool                     `firestore:"isActive"`
	Metadata    map[string]any           `firestore:"metadata,omitempty"`
	CreatedAt   time.Time                `firestore:"createdAt"`
	UpdatedAt   time.Time                `firestore:"updatedAt"`
}

type productVariantDocument struct {
	SKU   string `firestore:"sku"`
	Size  string `firestore:"size"`
	Color string `firestore:"color"`
	Stock int64  `firestore:"stock"`
}

func (d productDocument) variantIndex(size, color string) int {
	size = strings.TrimSpace(size)
	color = strings.TrimSpace(color)
	for i, v := range d.Variants {
		if v.Size == size && v.Color == color {
			return i
		}
	}
	return -1
}

func (d productDocument) toDomain(id string) domain.Product {
	variants := make([]domain.ProductVariant, 0, len(d.Variants))
	for _, v := range d.Variants {
		variants = append(variants, v.toDomain())
	}
	return domain.Product{
		ID:          id,
		Name:        d.Name,
		Slug:        d.Slug,
		Description: d.Description,
		Category:    d.Category,
		Price:       d.Price,
		Currency:    d.Currency,
		Images:      append([]string(nil), d.Images...),
		Variants:    variants,
		IsActive:    d.IsActive,
		Metadata:    cloneAnyMap(d.Metadata),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (v productVariantDocument) toDomain() domain.ProductVariant {
	return domain.ProductVariant{
		SKU:   v.SKU,
		Size:  v.Size,
		Color: v.Color,
		Stock: v.Stock,
	}
}

func newProductDocument(product domain.Product) productDocument {
	variants := make([]productVariantDocument, 0, len(product.Variants))
	for _, v := range product.Variants {
		variants = append(variants, productVariantDocument{
			SKU:   strings.TrimSpace(v.SKU),
			Size:  strings.TrimSpace(v.Size),
			Color: strings.TrimSpace(v.Color),
			Stock: v.Stock,
		})
	}
	return productDocument{
		Name:        strings.TrimSpace(product.Name),
		Slug:        strings.TrimSpace(product.Slug),
		Description: product.Description,
		Category:    strings.TrimSpace(product.Category),
		Price:       product.Price,
		Currency:    strings.ToUpper(strings.TrimSpace(product.Currency)),
		Images:      append([]string(nil), product.Images...),
		Variants:    variants,
		IsActive:    product.IsActive,
		Metadata:    cloneAnyMap(product.Metadata),
		CreatedAt:   product.CreatedAt.UTC(),
		UpdatedAt:   product.UpdatedAt.UTC(),
	}
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
