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

const wishlistCollectionPattern = "users/%s/wishlist"

// WishlistRepository persists product snapshots per user. The document ID is
// the product ID, which makes Put naturally idempotent.
type WishlistRepository struct {
	provider *pfirestore.Provider
}

// NewWishlistRepository constructs a Firestore-backed wishlist repository.
func NewWishlistRepository(provider *pfirestore.Provider) (*WishlistRepository, error) {
	if provider == nil {
		return nil, errors.New("wishlist repository requires firestore provider")
	}
	return &WishlistRepository{provider: provider}, nil
}

// List returns wishlist items ordered by most recent addition.
func (r *WishlistRepository) List(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.WishlistItem], error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.CursorPage[domain.WishlistItem]{}, err
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}

	query := coll.OrderBy("addedAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
	var fetchLimit int
	if limit > 0 {
		fetchLimit = limit + 1
		query = query.Limit(fetchLimit)
	}

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeTimeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.WishlistItem]{}, fmt.Errorf("wishlist.list: invalid page token: %w", err)
		}
		query = query.StartAfter(tokenTime, tokenID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var items []domain.WishlistItem
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.WishlistItem]{}, pfirestore.WrapError("wishlist.list", err)
		}
		var doc wishlistDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.WishlistItem]{}, fmt.Errorf("decode wishlist item %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID))
	}

	nextToken := ""
	if limit > 0 && len(items) == fetchLimit {
		last := items[len(items)-1]
		nextToken = encodeTimeCursor(last.AddedAt, last.ProductID)
		items = items[:len(items)-1]
	}

	return domain.CursorPage[domain.WishlistItem]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// Put stores the snapshot, overwriting any prior entry for the product. The
// returned bool reports whether a new document was created.
func (r *WishlistRepository) Put(ctx context.Context, userID string, item domain.WishlistItem) (bool, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return false, err
	}

	productID := strings.TrimSpace(item.ProductID)
	if productID == "" {
		return false, errors.New("wishlist repository: product id is required")
	}

	created := false
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef := coll.Doc(productID)
		_, err := tx.Get(docRef)
		switch status.Code(err) {
		case codes.NotFound:
			created = true
		case codes.OK:
			created = false
		default:
			return err
		}

		doc := wishlistDocument{
			Name:     item.Name,
			Price:    item.Price,
			Currency: strings.ToUpper(strings.TrimSpace(item.Currency)),
			Image:    item.Image,
			AddedAt:  item.AddedAt.UTC(),
		}
		return tx.Set(docRef, doc)
	})
	if err != nil {
		return false, pfirestore.WrapError("wishlist.put", err)
	}
	return created, nil
}

// Delete removes the wishlist document. Deleting an absent document succeeds.
func (r *WishlistRepository) Delete(ctx context.Context, userID string, productID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("wishlist repository: product id is required")
	}
	if _, err := coll.Doc(productID).Delete(ctx); err != nil {
		return pfirestore.WrapError("wishlist.delete", err)
	}
	return nil
}

func (r *WishlistRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("wishlist repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("wishlist repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(wishlistCollectionPattern, uid)), nil
}

type wishlistDocument struct {
	Name     string    `firestore:"name"`
	Price    int64     `firestore:"price"`
	Currency string    `firestore:"currency"`
	Image    string    `firestore:"image,omitempty"`
	AddedAt  time.Time `firestore:"addedAt"`
}

func (d wishlistDocument) toDomain(productID string) domain.WishlistItem {
	return domain.WishlistItem{
		ProductID: productID,
		Name:      d.Name,
		Price:     d.Price,
		Currency:  d.Currency,
		Image:     d.Image,
		AddedAt:   d.AddedAt,
	}
}

var _ repositories.WishlistRepository = (*WishlistRepository)(nil)
