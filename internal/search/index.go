package search

import "context"

// Index stores article projections and answers typed queries
type Index interface {
	// Put inserts or replaces a document; the write is searchable once Put returns
	Put(ctx context.Context, doc Document) error
	BulkPut(ctx context.Context, docs []Document) error
	// Delete removes a document, missing documents are not an error
	Delete(ctx context.Context, id uint64) error
	DeleteTenant(ctx context.Context, tenantID uint64) error
	Search(ctx context.Context, q *Query) (*Result, error)
	// Similar ranks documents by similarity to document id, which is never returned
	Similar(ctx context.Context, id uint64, q *Query) (*Result, error)
}
