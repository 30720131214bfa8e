package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/forevish/api/internal/platform/auth"
	"github.com/forevish/api/internal/platform/httpx"
	"github.com/forevish/api/internal/services"
)

const (
	defaultWishlistPageSize = 50
	maxWishlistPageSize     = 200
)

// WishlistHandlers exposes the current user's wishlist under /me.
type WishlistHandlers struct {
	authn     *auth.Authenticator
	wishlists services.WishlistService
}

// NewWishlistHandlers constructs handlers guarded by Firebase authentication.
func NewWishlistHandlers(authn *auth.Authenticator, wishlists services.WishlistService) *WishlistHandlers {
	return &WishlistHandlers{
		authn:     authn,
		wishlists: wishlists,
	}
}

// Routes wires the /me/wishlist endpoints onto the provided router.
func (h *WishlistHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/wishlist", h.listWishlist)
	r.Put("/wishlist/{productId}", h.addItem)
	r.Delete("/wishlist/{productId}", h.removeItem)
}

func (h *WishlistHandlers) listWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	pager, err := parsePagination(r, defaultWishlistPageSize, maxWishlistPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.wishlists.List(ctx, uid, pager)
	if err != nil {
		h.writeWishlistError(ctx, w, err)
		return
	}

	items := make([]wishlistItemPayload, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, buildWishlistItemPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, wishlistResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *WishlistHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	item, err := h.wishlists.Add(ctx, services.AddWishlistItemCommand{
		UserID:    uid,
		ProductID: strings.TrimSpace(chi.URLParam(r, "productId")),
	})
	if err != nil {
		h.writeWishlistError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, wishlistItemResponse{Item: buildWishlistItemPayload(item)})
}

func (h *WishlistHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	if err := h.wishlists.Remove(ctx, uid, strings.TrimSpace(chi.URLParam(r, "productId"))); err != nil {
		h.writeWishlistError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WishlistHandlers) requireUser(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.wishlists == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_service_unavailable", "wishlist service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func (h *WishlistHandlers) writeWishlistError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrWishlistInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrWishlistProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrWishlistUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_service_unavailable", "wishlist service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_error", "failed to serve wishlist request", http.StatusInternalServerError))
	}
}

type wishlistResponse struct {
	Items         []wishlistItemPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type wishlistItemResponse struct {
	Item wishlistItemPayload `json:"item"`
}

type wishlistItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Currency  string `json:"currency"`
	Image     string `json:"image,omitempty"`
	AddedAt   string `json:"added_at,omitempty"`
}

func buildWishlistItemPayload(item services.WishlistItem) wishlistItemPayload {
	return wishlistItemPayload{
		ProductID: item.ProductID,
		Name:      item.Name,
		Price:     item.Price,
		Currency:  item.Currency,
		Image:     item.Image,
		AddedAt:   formatTime(item.AddedAt),
	}
}
