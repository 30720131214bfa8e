package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/forevish/api/internal/domain"
	"github.com/forevish/api/internal/platform/auth"
	"github.com/forevish/api/internal/platform/httpx"
	"github.com/forevish/api/internal/services"
)

const maxAdminBodySize = 64 * 1024

// AdminHandlers exposes staff operations: catalog management, stock
// adjustments, image uploads, and order lifecycle transitions.
type AdminHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	orders  services.OrderService
	media   services.MediaService
}

// NewAdminHandlers constructs handlers restricted to staff and admin roles.
func NewAdminHandlers(authn *auth.Authenticator, catalog services.CatalogService, orders services.OrderService, media services.MediaService) *AdminHandlers {
	return &AdminHandlers{
		authn:   authn,
		catalog: catalog,
		orders:  orders,
		media:   media,
	}
}

// Routes wires the /admin endpoints onto the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Get("/products/{productId}", h.getProduct)
	r.Patch("/products/{productId}", h.updateProduct)
	r.Post("/products/{productId}/deactivate", h.deactivateProduct)
	r.Post("/products/{productId}/stock", h.adjustStock)
	r.Put("/products/{productId}/stock", h.setStock)
	r.Post("/products/{productId}/images", h.createUploadURL)
	r.Post("/orders/{orderId}/status", h.transitionOrderStatus)
	r.Post("/orders/{orderId}/payment", h.updatePaymentStatus)
}

type variantInputPayload struct {
	SKU   string `json:"sku"`
	Size  string `json:"size"`
	Color string `json:"color"`
	Stock int64  `json:"stock"`
}

type createProductRequest struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Category    string                `json:"category,omitempty"`
	Price       int64                 `json:"price"`
	Currency    string                `json:"currency,omitempty"`
	Images      []string              `json:"images,omitempty"`
	Variants    []variantInputPayload `json:"variants"`
	Metadata    map[string]any        `json:"metadata,omitempty"`
}

func (h *AdminHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createProductRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	product, err := h.catalog.CreateProduct(ctx, services.CreateProductCommand{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Currency:    req.Currency,
		Images:      req.Images,
		Variants:    variantInputsFromPayload(req.Variants),
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.writeAdminCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, productResponse{Product: buildProductPayload(product)})
}

type updateProductRequest struct {
	Name        *string               `json:"name,omitempty"`
	Description *string               `json:"description,omitempty"`
	Category    *string               `json:"category,omitempty"`
	Price       *int64                `json:"price,omitempty"`
	Images      []string              `json:"images,omitempty"`
	Variants    []variantInputPayload `json:"variants,omitempty"`
}

func (h *AdminHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req updateProductRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	product, err := h.catalog.UpdateProduct(ctx, services.UpdateProductCommand{
		ProductID:   strings.TrimSpace(chi.URLParam(r, "productId")),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Images:      req.Images,
		Variants:    variantInputsFromPayload(req.Variants),
	})
	if err != nil {
		h.writeAdminCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminHandlers) deactivateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	product, err := h.catalog.DeactivateProduct(ctx, services.DeactivateProductCommand{
		ProductID: strings.TrimSpace(chi.URLParam(r, "productId")),
		Actor:     h.actor(ctx),
	})
	if err != nil {
		h.writeAdminCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	product, err := h.catalog.GetProduct(ctx, strings.TrimSpace(chi.URLParam(r, "productId")), services.ProductReadOptions{IncludeInactive: true})
	if err != nil {
		h.writeAdminCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePagination(r, defaultProductPageSize, maxProductPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListProducts(ctx, services.ProductListFilter{
		Category:        strings.TrimSpace(r.URL.Query().Get("category")),
		IncludeInactive: true,
		Pagination:      pager,
	})
	if err != nil {
		h.writeAdminCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{
		Products:      items,
		NextPageToken: page.NextPageToken,
	})
}

type adjustStockRequest struct {
	Size  string `json:"size"`
	Color string `json:"color"`
	Delta int64  `json:"delta"`
}

type adjustStockResponse struct {
	Variant productVariantPayload `json:"variant"`
}

func (h *AdminHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req adjustStockRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	variant, err := h.catalog.AdjustStock(ctx, services.AdjustStockCommand{
		ProductID: strings.TrimSpace(chi.URLParam(r, "productId")),
		Size:      strings.TrimSpace(req.Size),
		Color:     strings.TrimSpace(req.Color),
		Delta:     req.Delta,
		Actor:     h.actor(ctx),
	})
	if err != nil {
		h.writeAdminCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, adjustStockResponse{Variant: productVariantPayload{
		SKU:   variant.SKU,
		Size:  variant.Size,
		Color: variant.Color,
		Stock: variant.Stock,
	}})
}

type setStockRequest struct {
	Size     string `json:"size"`
	Color    string `json:"color"`
	Quantity int64  `json:"quantity"`
}

func (h *AdminHandlers) setStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req setStockRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	variant, err := h.catalog.SetStock(ctx, services.SetStockCommand{
		ProductID: strings.TrimSpace(chi.URLParam(r, "productId")),
		Size:      strings.TrimSpace(req.Size),
		Color:     strings.TrimSpace(req.Color),
		Quantity:  req.Quantity,
		Actor:     h.actor(ctx),
	})
	if err != nil {
		h.writeAdminCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, adjustStockResponse{Variant: productVariantPayload{
		SKU:   variant.SKU,
		Size:  variant.Size,
		Color: variant.Color,
		Stock: variant.Stock,
	}})
}

type createUploadURLRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

type createUploadURLResponse struct {
	URL       string `json:"url"`
	Path      string `json:"path"`
	ExpiresAt string `json:"expires_at"`
}

func (h *AdminHandlers) createUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.media == nil {
		httpx.WriteError(ctx, w, httpx.NewError("media_unavailable", "media service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createUploadURLRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	target, err := h.media.CreateUploadURL(ctx, services.CreateUploadURLCommand{
		ProductID:   strings.TrimSpace(chi.URLParam(r, "productId")),
		FileName:    strings.TrimSpace(req.FileName),
		ContentType: strings.TrimSpace(req.ContentType),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMediaInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("media_unavailable", "failed to issue upload URL", http.StatusServiceUnavailable))
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, createUploadURLResponse{
		URL:       target.URL,
		Path:      target.Path,
		ExpiresAt: formatTime(target.ExpiresAt),
	})
}

type transitionOrderRequest struct {
	Target         string  `json:"target"`
	ExpectedStatus *string `json:"expected_status,omitempty"`
	Note           string  `json:"note,omitempty"`
}

func (h *AdminHandlers) transitionOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req transitionOrderRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	cmd := services.OrderStatusTransitionCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderId")),
		Target:  domain.OrderStatus(strings.TrimSpace(req.Target)),
		Actor:   h.actor(ctx),
		Note:    strings.TrimSpace(req.Note),
	}
	if req.ExpectedStatus != nil {
		expected := domain.OrderStatus(strings.TrimSpace(*req.ExpectedStatus))
		cmd.ExpectedStatus = &expected
	}

	order, err := h.orders.TransitionStatus(ctx, cmd)
	if err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type updatePaymentRequest struct {
	Target string `json:"target"`
	Note   string `json:"note,omitempty"`
}

func (h *AdminHandlers) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req updatePaymentRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.UpdatePaymentStatus(ctx, services.PaymentStatusCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderId")),
		Target:  domain.PaymentStatus(strings.TrimSpace(req.Target)),
		Actor:   h.actor(ctx),
		Note:    strings.TrimSpace(req.Note),
	})
	if err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) actor(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		return strings.TrimSpace(identity.UID)
	}
	return ""
}

func (h *AdminHandlers) decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dest any) bool {
	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dest); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

func (h *AdminHandlers) writeAdminCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogVariantNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("variant_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to serve catalog request", http.StatusInternalServerError))
	}
}

func variantInputsFromPayload(payloads []variantInputPayload) []services.VariantInput {
	if len(payloads) == 0 {
		return nil
	}
	variants := make([]services.VariantInput, 0, len(payloads))
	for _, p := range payloads {
		variants = append(variants, services.VariantInput{
			SKU:   strings.TrimSpace(p.SKU),
			Size:  strings.TrimSpace(p.Size),
			Color: strings.TrimSpace(p.Color),
			Stock: p.Stock,
		})
	}
	return variants
}
