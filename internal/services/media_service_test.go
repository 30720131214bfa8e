package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/forevish/api/internal/platform/storage"
)

type fakeStorageSigner struct{}

func (fakeStorageSigner) Email() string {
	return "media@test.iam.gserviceaccount.com"
}

func (fakeStorageSigner) SignBytes(_ context.Context, _ []byte) ([]byte, error) {
	return []byte("signed"), nil
}

func newTestMediaService(t *testing.T) MediaService {
	t.Helper()
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	client, err := storage.NewClient(fakeStorageSigner{}, storage.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("unexpected error constructing storage client: %v", err)
	}
	service, err := NewMediaService(MediaServiceDeps{
		Storage:   client,
		Bucket:    "forevish-media",
		MaxSize:   10 << 20,
		ExpiresIn: 10 * time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing media service: %v", err)
	}
	return service
}

func TestMediaServiceCreateUploadURL(t *testing.T) {
	service := newTestMediaService(t)

	target, err := service.CreateUploadURL(context.Background(), CreateUploadURLCommand{
		ProductID:   "prd-1",
		FileName:    "front.jpg",
		ContentType: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.Path != "catalog/products/prd-1/images/front.jpg" {
		t.Fatalf("unexpected object path %q", target.Path)
	}
	if !strings.Contains(target.URL, "forevish-media") {
		t.Fatalf("expected bucket in signed url, got %q", target.URL)
	}
	if target.ExpiresAt.IsZero() {
		t.Fatalf("expected expiry set")
	}
}

func TestMediaServiceCreateUploadURLRejectsContentType(t *testing.T) {
	service := newTestMediaService(t)

	_, err := service.CreateUploadURL(context.Background(), CreateUploadURLCommand{
		ProductID:   "prd-1",
		FileName:    "notes.pdf",
		ContentType: "application/pdf",
	})
	if !errors.Is(err, ErrMediaInvalidInput) {
		t.Fatalf("expected ErrMediaInvalidInput, got %v", err)
	}
}

func TestMediaServiceCreateUploadURLRejectsTraversal(t *testing.T) {
	service := newTestMediaService(t)

	_, err := service.CreateUploadURL(context.Background(), CreateUploadURLCommand{
		ProductID:   "../etc",
		FileName:    "front.jpg",
		ContentType: "image/jpeg",
	})
	if !errors.Is(err, ErrMediaInvalidInput) {
		t.Fatalf("expected ErrMediaInvalidInput, got %v", err)
	}
}

func TestMediaServiceCreateUploadURLValidatesInput(t *testing.T) {
	service := newTestMediaService(t)

	if _, err := service.CreateUploadURL(context.Background(), CreateUploadURLCommand{
		FileName:    "front.jpg",
		ContentType: "image/jpeg",
	}); !errors.Is(err, ErrMediaInvalidInput) {
		t.Fatalf("expected ErrMediaInvalidInput for missing product id, got %v", err)
	}

	if _, err := service.CreateUploadURL(context.Background(), CreateUploadURLCommand{
		ProductID: "prd-1",
		FileName:  "front.jpg",
	}); !errors.Is(err, ErrMediaInvalidInput) {
		t.Fatalf("expected ErrMediaInvalidInput for missing content type, got %v", err)
	}
}
