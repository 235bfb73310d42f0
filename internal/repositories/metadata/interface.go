// Package metadata provides the durable key-value repositories backing the
// BlobStore: a local SQLite table and an S3 bucket prefix.
package metadata

import (
	"context"
)

// Repository is a flat key-value store. Get returns (nil, nil) for a
// missing key; Delete and Clear succeed when there is nothing to remove.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetMany writes all pairs, atomically when the backend supports it.
	SetMany(ctx context.Context, values map[string][]byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
