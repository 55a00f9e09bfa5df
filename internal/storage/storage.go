// Package storage provides the object store collaborator and the
// raw/processed zone key scheme.
package storage

import "context"

// ObjectMeta is the user metadata attached to a stored object.
type ObjectMeta map[string]string

// ObjectStore is the narrow interface the pipeline uses to talk to
// object storage. One object is written per partition-group per
// invocation; objects are never rewritten.
type ObjectStore interface {
	// Put writes an object with the given key, body, and metadata.
	Put(ctx context.Context, key string, body []byte, meta ObjectMeta) error

	// Get reads the full body of the object at key.
	Get(ctx context.Context, key string) ([]byte, error)
}
