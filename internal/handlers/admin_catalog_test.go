package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/forevish/api/internal/domain"
	"github.com/forevish/api/internal/platform/auth"
	"github.com/forevish/api/internal/services"
)

func newAdminRouter(catalog services.CatalogService, orders services.OrderService, media services.MediaService) chi.Router {
	router := chi.NewRouter()
	router.Route("/admin", NewAdminHandlers(nil, catalog, orders, media).Routes)
	return router
}

func staffRequest(req *http.Request) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "staff-1", Roles: []string{auth.RoleStaff}}))
}

func TestAdminHandlersCreateProductSuccess(t *testing.T) {
	var captured services.CreateProductCommand
	catalog := &stubCatalogService{
		createFunc: func(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
			captured = cmd
			return services.Product{
				ID:       "prd_01TEST",
				Name:     cmd.Name,
				Slug:     "floral-kurti",
				Price:    cmd.Price,
				Currency: "INR",
				IsActive: true,
			}, nil
		},
	}

	router := newAdminRouter(catalog, nil, nil)

	body := `{"name":"Floral Kurti","price":500,"variants":[{"sku":"FK-M-RED","size":"M","color":"Red","stock":10}]}`
	req := staffRequest(httptest.NewRequest(http.MethodPost, "/admin/products", strings.NewReader(body)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if captured.Name != "Floral Kurti" || captured.Price != 500 {
		t.Fatalf("unexpected command %#v", captured)
	}
	if len(captured.Variants) != 1 || captured.Variants[0].SKU != "FK-M-RED" {
		t.Fatalf("unexpected variants %#v", captured.Variants)
	}

	var resp productResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Product.ID != "prd_01TEST" {
		t.Fatalf("unexpected product id %q", resp.Product.ID)
	}
}

func TestAdminHandlersCreateProductInvalidInput(t *testing.T) {
	catalog := &stubCatalogService{
		createFunc: func(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
			return services.Product{}, services.ErrCatalogInvalidInput
		},
	}

	router := newAdminRouter(catalog, nil, nil)

	req := staffRequest(httptest.NewRequest(http.MethodPost, "/admin/products", strings.NewReader(`{"name":""}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminHandlersUpdateProductPartial(t *testing.T) {
	var captured services.UpdateProductCommand
	catalog := &stubCatalogService{
		updateFunc: func(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error) {
			captured = cmd
			return services.Product{ID: cmd.ProductID, Name: "Floral Kurti", Price: 650, Currency: "INR", IsActive: true}, nil
		},
	}

	router := newAdminRouter(catalog, nil, nil)

	req := staffRequest(httptest.NewRequest(http.MethodPatch, "/admin/products/prd-1", strings.NewReader(`{"price":650}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.ProductID != "prd-1" {
		t.Fatalf("unexpected product id %q", captured.ProductID)
	}
	if captured.Price == nil || *captured.Price != 650 {
		t.Fatalf("expected price pointer 650, got %#v", captured.Price)
	}
	if captured.Name != nil {
		t.Fatalf("expected name untouched, got %#v", captured.Name)
	}
}

func TestAdminHandlersDeactivateProduct(t *testing.T) {
	var captured services.DeactivateProductCommand
	catalog := &stubCatalogService{
		deactivateFunc: func(ctx context.Context, cmd services.DeactivateProductCommand) (services.Product, error) {
			captured = cmd
			return services.Product{ID: cmd.ProductID, IsActive: false}, nil
		},
	}

	router := newAdminRouter(catalog, nil, nil)

	req := staffRequest(httptest.NewRequest(http.MethodPost, "/admin/products/prd-1/deactivate", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.ProductID != "prd-1" || captured.Actor != "staff-1" {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestAdminHandlersListProductsIncludesInactive(t *testing.T) {
	catalog := &stubCatalogService{
		listFunc: func(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
			if !filter.IncludeInactive {
				t.Fatalf("admin listing must include inactive products")
			}
			return domain.CursorPage[services.Product]{
				Items: []services.Product{{ID: "prd-1", IsActive: false}},
			}, nil
		},
	}

	router := newAdminRouter(catalog, nil, nil)

	req := staffRequest(httptest.NewRequest(http.MethodGet, "/admin/products", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestAdminHandlersAdjustStockSuccess(t *testing.T) {
	var captured services.AdjustStockCommand
	catalog := &stubCatalogService{
		adjustStockFunc: func(ctx context.Context, cmd services.AdjustStockCommand) (services.ProductVariant, error) {
			captured = cmd
			return services.ProductVariant{SKU: "FK-M-RED", Size: cmd.Size, Color: cmd.Color, Stock: 7}, nil
		},
	}

	router := newAdminRouter(catalog, nil, nil)

	req := staffRequest(httptest.NewRequest(http.MethodPost, "/admin/products/prd-1/stock", strings.NewReader(`{"size":"M","color":"Red","delta":-3}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.ProductID != "prd-1" || captured.Delta != -3 {
		t.Fatalf("unexpected command %#v", captured)
	}

	var resp adjustStockResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Variant.Stock != 7 {
		t.Fatalf("expected stock 7, got %d", resp.Variant.Stock)
	}
}

func TestAdminHandlersAdjustStockInsufficient(t *testing.T) {
	catalog := &stubCatalogService{
		adjustStockFunc: func(ctx context.Context, cmd services.AdjustStockCommand) (services.ProductVariant, error) {
			return services.ProductVariant{}, services.ErrCatalogInsufficientStock
		},
	}

	router := newAdminRouter(catalog, nil, nil)

	req := staffRequest(httptest.NewRequest(http.MethodPost, "/admin/products/prd-1/stock", strings.NewReader(`{"size":"M","color":"Red","delta":-99}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "insufficient_stock") {
		t.Fatalf("expected insufficient_stock code, got %s", rr.Body.String())
	}
}

func TestAdminHandlersSetStockSuccess(t *testing.T) {
	var captured services.SetStockCommand
	catalog := &stubCatalogService{
		setStockFunc: func(ctx context.Context, cmd services.SetStockCommand) (services.ProductVariant, error) {
			captured = cmd
			return services.ProductVariant{SKU: "FK-M-RED", Size: cmd.Size, Color: cmd.Color, Stock: 9}, nil
		},
	}

	router := newAdminRouter(catalog, nil, nil)

	req := staffRequest(httptest.NewRequest(http.MethodPut, "/admin/products/prd-1/stock", strings.NewReader(`{"size":"M","color":"Red","quantity":9}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.ProductID != "prd-1" || captured.Quantity != 9 {
		t.Fatalf("unexpected command %#v", captured)
	}

	var resp adjustStockResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Variant.Stock != 9 {
		t.Fatalf("expected stock 9, got %d", resp.Variant.Stock)
	}
}

func TestAdminHandlersSetStockRejectsNegativeQuantity(t *testing.T) {
	catalog := &stubCatalogService{
		setStockFunc: func(ctx context.Context, cmd services.SetStockCommand) (services.ProductVariant, error) {
			return services.ProductVariant{}, services.ErrCatalogInvalidInput
		},
	}

	router := newAdminRouter(catalog, nil, nil)

	req := staffRequest(httptest.NewRequest(http.MethodPut, "/admin/products/prd-1/stock", strings.NewReader(`{"size":"M","color":"Red","quantity":-4}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invalid_request") {
		t.Fatalf("expected invalid_request code, got %s", rr.Body.String())
	}
}

func TestAdminHandlersCreateUploadURLSuccess(t *testing.T) {
	expires := time.Date(2025, 6, 1, 12, 10, 0, 0, time.UTC)
	media := &stubMediaService{
		createFunc: func(ctx context.Context, cmd services.CreateUploadURLCommand) (services.UploadTarget, error) {
			if cmd.ProductID != "prd-1" || cmd.FileName != "front.jpg" || cmd.ContentType != "image/jpeg" {
				t.Fatalf("unexpected command %#v", cmd)
			}
			return services.UploadTarget{
				URL:       "https://storage.googleapis.com/forevish-media/signed",
				Path:      "catalog/products/prd-1/images/front.jpg",
				ExpiresAt: expires,
			}, nil
		},
	}

	router := newAdminRouter(nil, nil, media)

	req := staffRequest(httptest.NewRequest(http.MethodPost, "/admin/products/prd-1/images", strings.NewReader(`{"file_name":"front.jpg","content_type":"image/jpeg"}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp createUploadURLResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Path != "catalog/products/prd-1/images/front.jpg" {
		t.Fatalf("unexpected path %q", resp.Path)
	}
	if resp.ExpiresAt == "" {
		t.Fatalf("expected expires_at to be set")
	}
}

func TestAdminHandlersCreateUploadURLInvalidInput(t *testing.T) {
	media := &stubMediaService{
		createFunc: func(ctx context.Context, cmd services.CreateUploadURLCommand) (services.UploadTarget, error) {
			return services.UploadTarget{}, services.ErrMediaInvalidInput
		},
	}

	router := newAdminRouter(nil, nil, media)

	req := staffRequest(httptest.NewRequest(http.MethodPost, "/admin/products/prd-1/images", strings.NewReader(`{"file_name":"doc.pdf","content_type":"application/pdf"}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminHandlersTransitionOrderStatus(t *testing.T) {
	var captured services.OrderStatusTransitionCommand
	orders := &stubOrderService{
		transitionFunc: func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, Status: cmd.Target}, nil
		},
	}

	router := newAdminRouter(nil, orders, nil)

	req := staffRequest(httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1/status", strings.NewReader(`{"target":"processing","expected_status":"placed","note":"picked"}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.OrderID != "ord_1" || captured.Target != domain.OrderStatusProcessing {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.ExpectedStatus == nil || *captured.ExpectedStatus != domain.OrderStatusPlaced {
		t.Fatalf("expected guard placed, got %#v", captured.ExpectedStatus)
	}
	if captured.Actor != "staff-1" || captured.Note != "picked" {
		t.Fatalf("unexpected actor or note %#v", captured)
	}
}

func TestAdminHandlersTransitionOrderStatusRejected(t *testing.T) {
	orders := &stubOrderService{
		transitionFunc: func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidTransition
		},
	}

	router := newAdminRouter(nil, orders, nil)

	req := staffRequest(httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1/status", strings.NewReader(`{"target":"delivered"}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestAdminHandlersUpdatePaymentStatus(t *testing.T) {
	var captured services.PaymentStatusCommand
	orders := &stubOrderService{
		updatePaymentFunc: func(ctx context.Context, cmd services.PaymentStatusCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, PaymentStatus: cmd.Target}, nil
		},
	}

	router := newAdminRouter(nil, orders, nil)

	req := staffRequest(httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1/payment", strings.NewReader(`{"target":"paid","note":"manual reconciliation"}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.OrderID != "ord_1" || captured.Target != domain.PaymentStatusPaid {
		t.Fatalf("unexpected command %#v", captured)
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.PaymentStatus != "paid" {
		t.Fatalf("expected payment status paid, got %q", resp.Order.PaymentStatus)
	}
}

type stubMediaService struct {
	createFunc func(ctx context.Context, cmd services.CreateUploadURLCommand) (services.UploadTarget, error)
}

func (s *stubMediaService) CreateUploadURL(ctx context.Context, cmd services.CreateUploadURLCommand) (services.UploadTarget, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.UploadTarget{}, errors.New("not implemented")
}
