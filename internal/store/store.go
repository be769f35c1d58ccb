// Package store defines the document-store contract the engagement engine is
// layered on: get/put/delete by key, equality and batched-in queries with a
// stable sort key, and an atomic floored numeric increment. Business rules
// never live here.
package store

import "context"

// Filter is an equality constraint on a document field.
type Filter struct {
	Field string
	Value any
}

// Order names the sort field for a query. created_at is the stable sort key
// every listing relies on.
type Order struct {
	Field string
	Desc  bool
}

// Page is an offset/limit window. Limit <= 0 means no limit.
type Page struct {
	Offset int
	Limit  int
}

// Document is a stored JSON document plus its key.
type Document struct {
	ID   string
	Data []byte
}

// DocumentStore is the only shared resource in the system. Implementations
// must make Insert a conditional create (fail on existing id), Delete a
// conditional delete (fail on absent id), and AtomicIncrement a single
// atomic floored-at-zero mutation returning the stored value.
//
// Errors are the sentinels from internal/errors: ErrNotFound, ErrConflict,
// ErrStoreTimeout on deadline expiry, ErrStoreUnavailable otherwise.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, collection string, filters []Filter, orderBy Order, page Page) ([]Document, error)
	QueryIn(ctx context.Context, collection, field string, values []string) ([]Document, error)
	Count(ctx context.Context, collection string, filters []Filter) (int64, error)
	Insert(ctx context.Context, collection, id string, data []byte) error
	UpdateFields(ctx context.Context, collection, id string, partial map[string]any) error
	AtomicIncrement(ctx context.Context, collection, id, field string, delta int64) (int64, error)
	Delete(ctx context.Context, collection, id string) error
}
