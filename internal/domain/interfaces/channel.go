package interfaces

import (
	"context"

	domaintypes "gossips/internal/domain/types"
)

// Channel is the shared key-value tree both peers read and write. Paths are
// "/"-joined. Writes from one peer to one path are observed in order; there
// is no ordering across peers or paths.
//
// Transport failures satisfy errors.Is(err, types.ErrChannel) and are
// retryable.
type Channel interface {
	// Put overwrites the value at path.
	Put(ctx context.Context, path string, value []byte) error
	// Create writes value only if path is absent. It returns types.ErrAlreadyExists
	// otherwise.
	Create(ctx context.Context, path string, value []byte) error
	// Push appends value as a new child of path under a generated,
	// time-ordered key and returns that key.
	Push(ctx context.Context, path string, value []byte) (string, error)
	// Get reads path once.
	Get(ctx context.Context, path string) ([]byte, bool, error)
	// Remove deletes path and everything below it. Removing an absent path
	// is not an error.
	Remove(ctx context.Context, path string) error

	// Watch emits the current state of path, then every later change, until
	// ctx is done or the subscription fails.
	Watch(ctx context.Context, path string) (<-chan domaintypes.Event, error)
	// WatchChildren emits every existing direct child of path, then each
	// child added later.
	WatchChildren(ctx context.Context, path string) (<-chan domaintypes.Child, error)
}
