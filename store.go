package rda

import "context"

// =====================================
// Store Boundary
// =====================================

// Store is the fluent remote handle boundary. Adapters translate the
// Query value object into their backend's builder API. Implementations
// must be safe for concurrent use; one Store is shared by every
// Repository bound to the same Manager.
type Store interface {
	// Select runs q and scans matching rows into dest, a pointer to a
	// slice. The returned total counts every row matching q's
	// conditions, ignoring limit and offset.
	Select(ctx context.Context, q *Query, dest interface{}) (int64, error)

	// SelectOne runs q expecting at most one row scanned into dest.
	// A clean miss returns a not-found Error.
	SelectOne(ctx context.Context, q *Query, dest interface{}) error

	// Insert writes row into collection and scans the stored row back
	// into dest when dest is non-nil.
	Insert(ctx context.Context, collection string, row map[string]interface{}, dest interface{}) error

	// Update applies changes to every row matching q and scans one
	// updated row back into dest when dest is non-nil. A guarded
	// update that matches nothing returns a not-found Error.
	Update(ctx context.Context, q *Query, changes map[string]interface{}, dest interface{}) error

	// Delete removes rows matching q and reports how many went away.
	Delete(ctx context.Context, q *Query) (int64, error)

	// Count returns the number of rows matching q without fetching them.
	Count(ctx context.Context, q *Query) (int64, error)

	// Probe runs the cheapest possible read against collection. Used
	// by connectivity checks; a missing-relation failure still proves
	// the remote is reachable.
	Probe(ctx context.Context, collection string) error

	// Close releases the underlying pools and clients.
	Close() error
}

// StoreFactory builds a Store from connection configuration. Managers
// call it on initialization and again on every reconnect attempt.
type StoreFactory func(config ConnectionConfig) (Store, error)
