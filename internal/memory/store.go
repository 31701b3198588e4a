package memory

import "context"

// Store defines the contract for the memory store. Records are append-only:
// the store offers no update or delete.
type Store interface {
	// Add persists a record. Records without an ID or CreatedAt get one.
	Add(ctx context.Context, rec Record) error

	// Search returns records for req.OwnerID ordered most relevant first.
	// An empty query falls back to the most recent records.
	Search(ctx context.Context, req SearchRequest) ([]Record, error)

	// Close releases any resources held by the store.
	Close()
}
