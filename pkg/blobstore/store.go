// Package blobstore is the worker's local cache for externally-fetched
// resource bytes: an embedded, content-keyed store consulted before
// falling back to the peer network (spec.md §4.6 pre-run step 2). The
// full content-addressed blob store (IPFS-like) is an external
// collaborator out of scope; this package gives it the narrow,
// concrete shape the worker actually calls.
package blobstore

import "context"

// Store is a local cache of resource bytes keyed by resource identity
// (a Resource's wire string: a URL or a fingerprint's text form).
type Store interface {
	// Get returns the cached bytes for key, if present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put caches content under key. Put is idempotent: storing the same
	// key twice with the same content is a no-op past the first write.
	Put(ctx context.Context, key string, content []byte) error

	// Has reports whether key is cached, without reading its content.
	Has(ctx context.Context, key string) (bool, error)
}
