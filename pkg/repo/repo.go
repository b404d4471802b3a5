// Package repo defines the generic Repository interface and list options.
package repo

import "context"

// Repository is a generic entity repository keyed by canonical ID. Merge is
// the only write used on ingest paths: create if absent, update if present,
// never duplicate.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Merge(ctx context.Context, entity T) error
	Delete(ctx context.Context, id ID) error
}

// ListOpts controls pagination for List operations.
type ListOpts struct {
	Offset int
	Limit  int
}
