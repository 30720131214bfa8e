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
	"github.com/forevish/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists orders and serves cursor-paginated listings
// ordered by creation time descending.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the order document, failing with a conflict when the ID exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	if _, err := r.base.Create(ctx, id, newOrderDocument(order)); err != nil {
		return err
	}
	return nil
}

// Update overwrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	if _, err := r.base.Set(ctx, id, newOrderDocument(order)); err != nil {
		return err
	}
	return nil
}

// FindByID loads one order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIdempotencyKey resolves a prior order created with the same key.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (domain.Order, error) {
	uid := strings.TrimSpace(userID)
	trimmedKey := strings.TrimSpace(key)
	if uid == "" || trimmedKey == "" {
		return domain.Order{}, errors.New("order repository: user id and idempotency key are required")
	}
	return r.findOne(ctx, "orders.findByIdempotencyKey", func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", uid).Where("idempotencyKey", "==", trimmedKey)
	})
}

// FindByPaymentIntent resolves the order referencing a payment intent.
func (r *OrderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error) {
	trimmed := strings.TrimSpace(intentID)
	if trimmed == "" {
		return domain.Order{}, errors.New("order repository: payment intent id is required")
	}
	return r.findOne(ctx, "orders.findByPaymentIntent", func(q firestore.Query) firestore.Query {
		return q.Where("paymentIntentId", "==", trimmed)
	})
}

func (r *OrderRepository) findOne(ctx context.Context, op string, build func(firestore.Query) firestore.Query) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	iter := build(client.Collection(ordersCollection).Query).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Order{}, pfirestore.WrapError(op, status.Error(codes.NotFound, "order not found"))
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError(op, err)
	}

	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// List returns orders newest first with cursor pagination.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	query := client.Collection(ordersCollection).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)

	if uid := strings.TrimSpace(filter.UserID); uid != "" {
		query = query.Where("userId", "==", uid)
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status", "in", statuses)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
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
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("orders.list: invalid page token: %w", err)
		}
		query = query.StartAfter(tokenTime, tokenID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	type orderRow struct {
		data  domain.Order
		docID string
	}

	var rows []orderRow
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		rows = append(rows, orderRow{data: doc.toDomain(snap.Ref.ID), docID: snap.Ref.ID})
	}

	nextToken := ""
	if limit > 0 && len(rows) == fetchLimit {
		last := rows[len(rows)-1]
		nextToken = encodeTimeCursor(last.data.CreatedAt, last.docID)
		rows = rows[:len(rows)-1]
	}

	items := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.data)
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

type orderDocument struct {
	Number          string                 `firestore:"number"`
	UserID          string                 `firestore:"userId"`
	Currency        string                 `firestore:"currency"`
	Items           []orderItemDocument    `firestore:"items"`
	Totals          cartTotalsDocument     `firestore:"totals"`
	Status          string                 `firestore:"status"`
	PaymentStatus   string                 `firestore:"paymentStatus"`
	ShippingAddress orderAddressDocument   `firestore:"shippingAddress"`
	IdempotencyKey  string                 `firestore:"idempotencyKey,omitempty"`
	PaymentIntentID string                 `firestore:"paymentIntentId,omitempty"`
	StatusHistory   []orderStatusChangeDoc `firestore:"statusHistory,omitempty"`
	Metadata        map[string]string      `firestore:"metadata,omitempty"`
	PlacedAt        time.Time              `firestore:"placedAt"`
	CreatedAt       time.Time              `firestore:"createdAt"`
	UpdatedAt       time.Time              `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	SKU       string `firestore:"sku,omitempty"`
	Name      string `firestore:"name"`
	Size      string `firestore:"size"`
	Color     string `firestore:"color"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int64  `firestore:"quantity"`
	LineTotal int64  `firestore:"lineTotal"`
}

type orderAddressDocument struct {
	RecipientName string `firestore:"recipientName"`
	Line1         string `firestore:"line1"`
	Line2         string `firestore:"line2,omitempty"`
	City          string `firestore:"city"`
	State         string `firestore:"state,omitempty"`
	PostalCode    string `firestore:"postalCode"`
	Country       string `firestore:"country"`
	Phone         string `firestore:"phone,omitempty"`
}

type orderStatusChangeDoc struct {
	From       string    `firestore:"from,omitempty"`
	To         string    `firestore:"to"`
	Actor      string    `firestore:"actor,omitempty"`
	Note       string    `firestore:"note,omitempty"`
	OccurredAt time.Time `firestore:"occurredAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Name:      item.Name,
			Size:      item.Size,
			Color:     item.Color,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
		})
	}
	history := make([]orderStatusChangeDoc, 0, len(order.StatusHistory))
	for _, change := range order.StatusHistory {
		history = append(history, orderStatusChangeDoc{
			From:       string(change.From),
			To:         string(change.To),
			Actor:      change.Actor,
			Note:       change.Note,
			OccurredAt: change.OccurredAt.UTC(),
		})
	}
	return orderDocument{
		Number:   order.Number,
		UserID:   strings.TrimSpace(order.UserID),
		Currency: strings.ToUpper(strings.TrimSpace(order.Currency)),
		Items:    items,
		Totals: cartTotalsDocument{
			Subtotal: order.Totals.Subtotal,
			Discount: order.Totals.Discount,
			Shipping: order.Totals.Shipping,
			Tax:      order.Totals.Tax,
			Total:    order.Totals.Total,
		},
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		ShippingAddress: orderAddressDocument{
			RecipientName: order.ShippingAddress.RecipientName,
			Line1:         order.ShippingAddress.Line1,
			Line2:         order.ShippingAddress.Line2,
			City:          order.ShippingAddress.City,
			State:         order.ShippingAddress.State,
			PostalCode:    order.ShippingAddress.PostalCode,
			Country:       order.ShippingAddress.Country,
			Phone:         order.ShippingAddress.Phone,
		},
		IdempotencyKey:  strings.TrimSpace(order.IdempotencyKey),
		PaymentIntentID: strings.TrimSpace(order.PaymentIntentID),
		StatusHistory:   history,
		Metadata:        cloneStringMap(order.Metadata),
		PlacedAt:        order.PlacedAt.UTC(),
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Name:      item.Name,
			Size:      item.Size,
			Color:     item.Color,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
		})
	}
	history := make([]domain.OrderStatusChange, 0, len(d.StatusHistory))
	for _, change := range d.StatusHistory {
		history = append(history, domain.OrderStatusChange{
			From:       domain.OrderStatus(change.From),
			To:         domain.OrderStatus(change.To),
			Actor:      change.Actor,
			Note:       change.Note,
			OccurredAt: change.OccurredAt,
		})
	}
	return domain.Order{
		ID:       id,
		Number:   d.Number,
		UserID:   d.UserID,
		Currency: d.Currency,
		Items:    items,
		Totals: domain.CartTotals{
			Subtotal: d.Totals.Subtotal,
			Discount: d.Totals.Discount,
			Shipping: d.Totals.Shipping,
			Tax:      d.Totals.Tax,
			Total:    d.Totals.Total,
		},
		Status:        domain.OrderStatus(d.Status),
		PaymentStatus: domain.PaymentStatus(d.PaymentStatus),
		ShippingAddress: domain.Address{
			RecipientName: d.ShippingAddress.RecipientName,
			Line1:         d.ShippingAddress.Line1,
			Line2:         d.ShippingAddress.Line2,
			City:          d.ShippingAddress.City,
			State:         d.ShippingAddress.State,
			PostalCode:    d.ShippingAddress.PostalCode,
			Country:       d.ShippingAddress.Country,
			Phone:         d.ShippingAddress.Phone,
		},
		IdempotencyKey:  d.IdempotencyKey,
		PaymentIntentID: d.PaymentIntentID,
		StatusHistory:   history,
		Metadata:        cloneStringMap(d.Metadata),
		PlacedAt:        d.PlacedAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
