package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/forevish/api/internal/platform/firestore"
	"github.com/forevish/api/internal/repositories"
)

// OrderIntakeRepository owns the transactional boundary where stock and
// orders meet. Placement and cancellation each run as a single Firestore
// transaction so stock can never be partially consumed or partially restored.
type OrderIntakeRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
	orders   *pfirestore.BaseRepository[orderDocument]
}

// NewOrderIntakeRepository constructs the transactional intake repository.
func NewOrderIntakeRepository(provider *pfirestore.Provider) (*OrderIntakeRepository, error) {
	if provider == nil {
		return nil, errors.New("order intake repository requires firestore provider")
	}
	return &OrderIntakeRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
	}, nil
}

// PlaceOrder reads authoritative stock for every line, decrements it, and
// creates the order document in one transaction. Any shortfall aborts the
// transaction with a StockError; the stock documents are left untouched.
func (r *OrderIntakeRepository) PlaceOrder(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error) {
	if r == nil || r.provider == nil {
		return repositories.PlaceOrderResult{}, errors.New("order intake repository not initialised")
	}
	orderID := strings.TrimSpace(req.Order.ID)
	if orderID == "" {
		return repositories.PlaceOrderResult{}, errors.New("order intake repository: order id is required")
	}
	if len(req.Lines) == 0 {
		return repositories.PlaceOrderResult{}, errors.New("order intake repository: at least one line is required")
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	remaining := make(map[string]int64, len(req.Lines))
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		clear(remaining)

		docs, err := r.readProducts(ctx, tx, req.Lines)
		if err != nil {
			return err
		}

		for _, line := range req.Lines {
			pending := docs[strings.TrimSpace(line.ProductID)]
			idx := pending.doc.variantIndex(line.Size, line.Color)
			if idx < 0 {
				return repositories.NewStockError(repositories.StockErrorVariantNotFound,
					fmt.Sprintf("variant %s/%s not found on product %s", line.Size, line.Color, line.ProductID), nil)
			}
			next := pending.doc.Variants[idx].Stock - line.Quantity
			if next < 0 {
				return repositories.NewStockError(repositories.StockErrorInsufficient,
					fmt.Sprintf("variant %s/%s has %d units, requested %d", line.Size, line.Color, pending.doc.Variants[idx].Stock, line.Quantity), nil)
			}
			pending.doc.Variants[idx].Stock = next
			remaining[stockLineKey(line)] = next
		}

		for _, pending := range docs {
			pending.doc.UpdatedAt = now
			if err := tx.Set(pending.ref, pending.doc); err != nil {
				return err
			}
		}

		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		return tx.Create(orderRef, newOrderDocument(req.Order))
	})
	if err != nil {
		return repositories.PlaceOrderResult{}, wrapStockError("orders.place", err)
	}
	return repositories.PlaceOrderResult{Remaining: remaining}, nil
}

// CancelRestock restores the order's quantities and persists the cancelled
// order document in one transaction. The order is re-read first: a stored
// status that no longer matches req.ExpectedStatus aborts with a conflict,
// so two racing cancels restock the items once. Variants removed from the
// catalog since placement are skipped rather than failing the cancellation.
func (r *OrderIntakeRepository) CancelRestock(ctx context.Context, req repositories.CancelRestockRequest) error {
	if r == nil || r.provider == nil {
		return errors.New("order intake repository not initialised")
	}
	order := req.Order
	lines := req.Lines
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order intake repository: order id is required")
	}

	now := order.UpdatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var stored orderDocument
		if err := snapshot.DataTo(&stored); err != nil {
			return err
		}
		if expected := string(req.ExpectedStatus); expected != "" && stored.Status != expected {
			return pfirestore.NewConflictError("orders.cancelRestock",
				fmt.Errorf("order %s is %s, expected %s", orderID, stored.Status, expected))
		}

		docs := make(map[string]*pendingProductWrite, len(lines))
		for _, line := range lines {
			productID := strings.TrimSpace(line.ProductID)
			if productID == "" || line.Quantity <= 0 {
				continue
			}
			if _, ok := docs[productID]; ok {
				continue
			}
			ref, err := r.products.DocumentRef(ctx, productID)
			if err != nil {
				return err
			}
			doc, err := getProductTx(tx, ref)
			if err != nil {
				var stockErr *repositories.StockError
				if errors.As(err, &stockErr) && stockErr.Code == repositories.StockErrorProductNotFound {
					continue
				}
				return err
			}
			docs[productID] = &pendingProductWrite{ref: ref, doc: doc}
		}

		for _, line := range lines {
			pending, ok := docs[strings.TrimSpace(line.ProductID)]
			if !ok {
				continue
			}
			idx := pending.doc.variantIndex(line.Size, line.Color)
			if idx < 0 {
				continue
			}
			pending.doc.Variants[idx].Stock += line.Quantity
		}

		for _, pending := range docs {
			pending.doc.UpdatedAt = now
			if err := tx.Set(pending.ref, pending.doc); err != nil {
				return err
			}
		}

		return tx.Set(orderRef, newOrderDocument(order))
	})
	if err != nil {
		return wrapStockError("orders.cancelRestock", err)
	}
	return nil
}

type pendingProductWrite struct {
	ref *firestore.DocumentRef
	doc productDocument
}

// readProducts performs all product reads up front; Firestore transactions
// require every read to precede the first write.
func (r *OrderIntakeRepository) readProducts(ctx context.Context, tx *firestore.Transaction, lines []repositories.StockLine) (map[string]*pendingProductWrite, error) {
	docs := make(map[string]*pendingProductWrite, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, errors.New("order intake repository: line product id is required")
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("order intake repository: line quantity must be positive, got %d", line.Quantity)
		}
		if _, ok := docs[productID]; ok {
			continue
		}
		ref, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return nil, err
		}
		doc, err := getProductTx(tx, ref)
		if err != nil {
			return nil, err
		}
		docs[productID] = &pendingProductWrite{ref: ref, doc: doc}
	}
	return docs, nil
}

var _ repositories.OrderIntakeRepository = (*OrderIntakeRepository)(nil)
