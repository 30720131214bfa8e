package storage

import (
	"fmt"
	"strings"
	"sync"
)

// AssetPurpose captures high-level intent for storage layout decisions.
type AssetPurpose string

const (
	PurposeProductImage   AssetPurpose = "product-image"
	PurposeCategoryBanner AssetPurpose = "category-banner"
)

// PathParams provide required identifiers to compose storage object keys.
type PathParams struct {
	ProductID string
	Category  string
	FileName  string
}

// PathBuilder composes the object path for a given asset purpose.
type PathBuilder func(PathParams) (string, error)

var registry = struct {
	sync.RWMutex
	builders map[AssetPurpose]PathBuilder
}{
	builders: map[AssetPurpose]PathBuilder{
		PurposeProductImage:   productImagePath,
		PurposeCategoryBanner: categoryBannerPath,
	},
}

// RegisterPathBuilder overrides or registers a builder for a specific purpose.
// A nil builder removes the registration.
func RegisterPathBuilder(purpose AssetPurpose, builder PathBuilder) {
	registry.Lock()
	defer registry.Unlock()
	if builder == nil {
		delete(registry.builders, purpose)
		return
	}
	registry.builders[purpose] = builder
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose AssetPurpose, params PathParams) (string, error) {
	registry.RLock()
	builder, ok := registry.builders[purpose]
	registry.RUnlock()
	if !ok {
		return "", fmt.Errorf("storage: unsupported asset purpose %q", purpose)
	}
	return builder(params)
}

func productImagePath(params PathParams) (string, error) {
	productID, err := cleanSegment("productID", params.ProductID)
	if err != nil {
		return "", err
	}
	fileName, err := cleanSegment("fileName", params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("catalog/products/%s/images/%s", productID, fileName), nil
}

func categoryBannerPath(params PathParams) (string, error) {
	category, err := cleanSegment("category", params.Category)
	if err != nil {
		return "", err
	}
	fileName, err := cleanSegment("fileName", params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("catalog/categories/%s/banners/%s", category, fileName), nil
}

// cleanSegment trims a path component and rejects separators and traversal.
func cleanSegment(label, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", fmt.Errorf("storage: %s is required", label)
	case strings.ContainsAny(value, "/\\"):
		return "", fmt.Errorf("storage: %s contains invalid path characters", label)
	case strings.Contains(value, ".."):
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", label)
	}
	return value, nil
}
