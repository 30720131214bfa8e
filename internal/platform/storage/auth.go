package storage

import (
	"context"
	"errors"

	"github.com/forevish/api/internal/platform/auth"
)

// ErrPermissionDenied is returned when the caller may not access the asset.
var ErrPermissionDenied = errors.New("storage: permission denied")

// AuthorizeDownload checks whether identity may read an asset owned by
// ownerID. Owners, staff, and admins pass; anonymous access only when
// explicitly allowed.
func AuthorizeDownload(identity *auth.Identity, ownerID string, allowAnonymous bool) error {
	if allowAnonymous {
		return nil
	}
	if identity == nil {
		return ErrPermissionDenied
	}
	switch {
	case ownerID != "" && identity.UID == ownerID:
		return nil
	case identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin):
		return nil
	}
	return ErrPermissionDenied
}

// AuthorizeDownloadFromContext pulls the identity from ctx and authorizes it.
func AuthorizeDownloadFromContext(ctx context.Context, ownerID string, allowAnonymous bool) (*auth.Identity, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok && !allowAnonymous {
		return nil, ErrPermissionDenied
	}
	if err := AuthorizeDownload(identity, ownerID, allowAnonymous); err != nil {
		return nil, err
	}
	return identity, nil
}
