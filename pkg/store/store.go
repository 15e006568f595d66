// Package store provides the string key/value persistence used by the ledger and the
// balance cache.
package store

import "context"

// Store is a string key/value store. Get reports found=false for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
