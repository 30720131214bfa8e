package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forevish/api/internal/platform/storage"
)

var (
	errMediaSignerRequired = errors.New("media service: storage client is required")
	errMediaBucketRequired = errors.New("media service: bucket is required")
)

// ErrMediaInvalidInput indicates the caller supplied invalid upload parameters.
var ErrMediaInvalidInput = errors.New("media service: invalid input")

// ErrMediaUnavailable indicates signing failed.
var ErrMediaUnavailable = errors.New("media service: unavailable")

const defaultUploadExpiry = 15 * time.Minute

// image content types accepted for catalog uploads
var allowedImageContentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
}

// MediaServiceDeps wires signed upload URL dependencies.
type MediaServiceDeps struct {
	Storage     *storage.Client
	Bucket      string
	MaxSize     int64
	ExpiresIn   time.Duration
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type mediaService struct {
	storage   *storage.Client
	bucket    string
	maxSize   int64
	expiresIn time.Duration
	logger    func(context.Context, string, map[string]any)
}

// NewMediaService constructs a MediaService issuing signed PUT URLs for
// product imagery.
func NewMediaService(deps MediaServiceDeps) (MediaService, error) {
	if deps.Storage == nil {
		return nil, errMediaSignerRequired
	}
	bucket := strings.TrimSpace(deps.Bucket)
	if bucket == "" {
		return nil, errMediaBucketRequired
	}

	expiry := deps.ExpiresIn
	if expiry <= 0 {
		expiry = defaultUploadExpiry
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &mediaService{
		storage:   deps.Storage,
		bucket:    bucket,
		maxSize:   deps.MaxSize,
		expiresIn: expiry,
		logger:    logger,
	}, nil
}

func (s *mediaService) CreateUploadURL(ctx context.Context, cmd CreateUploadURLCommand) (UploadTarget, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return UploadTarget{}, fmt.Errorf("%w: product id is required", ErrMediaInvalidInput)
	}
	contentType := strings.TrimSpace(cmd.ContentType)
	if contentType == "" {
		return UploadTarget{}, fmt.Errorf("%w: content type is required", ErrMediaInvalidInput)
	}

	objectPath, err := storage.BuildObjectPath(storage.PurposeProductImage, storage.PathParams{
		ProductID: productID,
		FileName:  cmd.FileName,
	})
	if err != nil {
		return UploadTarget{}, fmt.Errorf("%w: %s", ErrMediaInvalidInput, err.Error())
	}

	result, err := s.storage.SignedURL(ctx, s.bucket, objectPath, storage.SignedURLOptions{
		Upload: &storage.UploadOptions{
			Method:              "PUT",
			ContentType:         contentType,
			AllowedContentTypes: allowedImageContentTypes,
			ExpiresIn:           s.expiresIn,
			MaxSize:             s.maxSize,
		},
	})
	if err != nil {
		if isMediaInputError(err) {
			return UploadTarget{}, fmt.Errorf("%w: %s", ErrMediaInvalidInput, err.Error())
		}
		s.logger(ctx, "media.sign_failed", map[string]any{
			"productId": productID,
			"error":     err.Error(),
		})
		return UploadTarget{}, ErrMediaUnavailable
	}

	s.logger(ctx, "media.upload_url_created", map[string]any{
		"productId": productID,
		"path":      objectPath,
	})

	return UploadTarget{
		URL:       result.URL,
		Path:      objectPath,
		ExpiresAt: result.ExpiresAt,
	}, nil
}

func isMediaInputError(err error) bool {
	return errors.Is(err, storage.ErrContentTypeDenied) ||
		errors.Is(err, storage.ErrContentTypeMissing) ||
		errors.Is(err, storage.ErrMethodNotAllowed)
}
