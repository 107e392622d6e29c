// internal/catalog/service.go
package catalog

import (
	"context"
)

// Service defines the interface for loading catalog data.
type Service interface {
	FetchListing(ctx context.Context, req ListingRequest) (ListingResult, error)
	FetchItem(ctx context.Context, id ItemID) (Item, error)
}

// Upstream is the read-only catalog the loader fetches from. Implementations
// return *FetchFailedError for transport and status failures and ErrNotFound
// for an unknown item.
type Upstream interface {
	List(ctx context.Context) ([]Item, error)
	Info(ctx context.Context, id ItemID) (Item, error)
}
