// Package storage defines the key-value persistence surface consumed by the
// state package's persistence middleware. A backend stores one opaque record
// per key; the middleware never inspects the bytes it hands over.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrLoadFailed wraps backend read failures.
	ErrLoadFailed = errors.New("storage: load failed")
	// ErrSaveFailed wraps backend write failures.
	ErrSaveFailed = errors.New("storage: save failed")
	// ErrDeleteFailed wraps backend delete failures.
	ErrDeleteFailed = errors.New("storage: delete failed")
)

// Storage persists one record per key. Load reports ok=false with a nil
// error for absent keys; errors are reserved for genuine backend failures.
// Delete of an absent key is a no-op.
type Storage interface {
	Load(ctx context.Context, key string) (value []byte, ok bool, err error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
