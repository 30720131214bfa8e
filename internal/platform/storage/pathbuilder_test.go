package storage

import "testing"

func TestBuildProductImagePath(t *testing.T) {
	path, err := BuildObjectPath(PurposeProductImage, PathParams{
		ProductID: "prod123",
		FileName:  "front.jpg",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "catalog/products/prod123/images/front.jpg"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildCategoryBannerPath(t *testing.T) {
	path, err := BuildObjectPath(PurposeCategoryBanner, PathParams{
		Category: "kurtis",
		FileName: "summer.webp",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "catalog/categories/kurtis/banners/summer.webp"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	_, err := BuildObjectPath(PurposeProductImage, PathParams{
		ProductID: "../bad",
		FileName:  "file.png",
	})
	if err == nil {
		t.Fatalf("expected error for invalid segment")
	}
}

func TestBuildObjectPathRejectsUnknownPurpose(t *testing.T) {
	_, err := BuildObjectPath(AssetPurpose("avatar"), PathParams{
		ProductID: "prod123",
		FileName:  "file.png",
	})
	if err == nil {
		t.Fatalf("expected error for unknown purpose")
	}
}
