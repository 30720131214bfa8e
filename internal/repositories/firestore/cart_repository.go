package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/forevish/api/internal/domain"
	pfirestore "github.com/forevish/api/internal/platform/firestore"
	"github.com/forevish/api/internal/repositories"
)

const cartsCollection = "carts"

// CartRepository persists the single active cart per user. The document ID is
// the user ID so lookups never need a query.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection, nil, nil)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// GetCart loads the cart for the given user ID.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// UpsertCart persists the whole cart document keyed by user ID.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}

	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		uid = strings.TrimSpace(cart.ID)
	}
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	now := time.Now().UTC()
	if !cart.UpdatedAt.IsZero() {
		now = cart.UpdatedAt.UTC()
	}
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := newCartDocument(cart, createdAt, now)
	result, err := r.base.Set(ctx, uid, doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := doc.toDomain(uid)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// DeleteCart removes the cart document. Deleting an absent cart succeeds.
func (r *CartRepository) DeleteCart(ctx context.Context, userID string) error {
	if r == nil || r.provider == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	if _, err := client.Collection(cartsCollection).Doc(uid).Delete(ctx); err != nil {
		return pfirestore.WrapError("carts.delete", err)
	}
	return nil
}

type cartDocument struct {
	Currency  string             `firestore:"currency"`
	Lines     []cartLineDocument `firestore:"lines"`
	Totals    cartTotalsDocument `firestore:"totals"`
	Metadata  map[string]string  `firestore:"metadata,omitempty"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartLineDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Size      string `firestore:"size"`
	Color     string `firestore:"color"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int64  `firestore:"quantity"`
	Image     string `firestore:"image,omitempty"`
}

type cartTotalsDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Discount int64 `firestore:"discount"`
	Shipping int64 `firestore:"shipping"`
	Tax      int64 `firestore:"tax"`
	Total    int64 `firestore:"total"`
}

func newCartDocument(cart domain.Cart, createdAt, updatedAt time.Time) cartDocument {
	lines := make([]cartLineDocument, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		lines = append(lines, cartLineDocument{
			ProductID: strings.TrimSpace(line.ProductID),
			Name:      line.Name,
			Size:      strings.TrimSpace(line.Size),
			Color:     strings.TrimSpace(line.Color),
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Image:     line.Image,
		})
	}
	return cartDocument{
		Currency: strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Lines:    lines,
		Totals: cartTotalsDocument{
			Subtotal: cart.Totals.Subtotal,
			Discount: cart.Totals.Discount,
			Shipping: cart.Totals.Shipping,
			Tax:      cart.Totals.Tax,
			Total:    cart.Totals.Total,
		},
		Metadata:  cloneStringMap(cart.Metadata),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

func (d cartDocument) toDomain(userID string) domain.Cart {
	lines := make([]domain.CartLine, 0, len(d.Lines))
	for _, line := range d.Lines {
		lines = append(lines, domain.CartLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			Size:      line.Size,
			Color:     line.Color,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Image:     line.Image,
		})
	}
	return domain.Cart{
		ID:       userID,
		UserID:   userID,
		Currency: d.Currency,
		Lines:    lines,
		Totals: domain.CartTotals{
			Subtotal: d.Totals.Subtotal,
			Discount: d.Totals.Discount,
			Shipping: d.Totals.Shipping,
			Tax:      d.Totals.Tax,
			Total:    d.Totals.Total,
		},
		Metadata:  cloneStringMap(d.Metadata),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func cloneAnyMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

var _ repositories.CartRepository = (*CartRepository)(nil)
