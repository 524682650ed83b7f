package lifecycle

import (
	"context"
	"errors"
)

var ErrEmptyNamespace = errors.New("namespace name cannot be empty")

// Store holds named cache namespaces.
type Store interface {
	// Namespaces lists every namespace currently stored.
	Namespaces(ctx context.Context) ([]string, error)

	// Open creates the namespace if it does not exist.
	Open(ctx context.Context, name string) error

	// Delete removes the namespace and everything stored under it.
	// Deleting a missing namespace is not an error.
	Delete(ctx context.Context, name string) error

	Close() error
}
