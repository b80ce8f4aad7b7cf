package store

import (
	"context"
	"errors"
)

var (
	// ErrConflict reports that a conditional update named a version that is no
	// longer current. It is the only retryable store failure.
	ErrConflict = errors.New("store: version conflict")

	// ErrNotFound indicates no document exists under the requested ref.
	ErrNotFound = errors.New("store: document not found")

	// ErrExists indicates a create targeted a ref that is already taken.
	ErrExists = errors.New("store: document already exists")
)

// DefaultCollection is used whenever a caller passes an empty collection name.
const DefaultCollection = "objects"

// Document is a versioned JSON record as held by a backend.
type Document struct {
	Ref     string
	Version int
	Data    []byte
}

// Store defines the document store contract consumed by the bank. Every call
// is a single attempt; retrying on ErrConflict is the caller's job.
type Store interface {
	Get(ctx context.Context, collection, ref string) (Document, error)
	Create(ctx context.Context, collection, ref string, data []byte) error
	Update(ctx context.Context, collection, ref string, expectedVersion int, data []byte) error
	Query(ctx context.Context, collection string, q Query, max int) ([]Document, error)
}

// Pinger is implemented by backends that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IsRetryable reports whether err is a version conflict that warrants
// re-reading and re-applying a modification.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

func collectionName(c string) string {
	if c == "" {
		return DefaultCollection
	}
	return c
}
