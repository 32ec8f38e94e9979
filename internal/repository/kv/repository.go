// Package kv holds the string-keyed backing stores the storage service runs on.
// Every implementation offers the same primitive contract a browser's local
// storage does: get, set, remove and ordered enumeration.
package kv

import (
	"context"

	"github.com/pkg/errors"
)

// ErrQuotaExceeded is returned by Set when the backend refuses to grow.
var ErrQuotaExceeded = errors.New("kv: quota exceeded")

type Repository interface {
	// Get returns the raw value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key; removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// Keys enumerates keys starting with prefix in backend order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
}
