package ingestion

import "context"

// The domain package defines the tier interfaces it needs, following the
// Dependency Inversion Principle; concrete Redis and ClickHouse adapters
// live in the internal/storage package.

// StagedEntry is one (record id, record) pair held in the staging cache.
// The key is a fresh unique id minted at drain time, distinct from the
// record's request_id.
type StagedEntry struct {
	Key   string
	Value any
}

// StagingCache is the shared fast KV buffer between the local batch and the
// cold store. It is process-external: any pipeline instance may observe
// entries staged by any other, which is what lets staged records survive
// instance death.
type StagingCache interface {
	// Put stores a record under key as JSON text. Overwrites are idempotent.
	Put(ctx context.Context, key string, value any) error

	// Get returns the value stored under key, decoded from JSON when it
	// parses, and false when the key is absent.
	Get(ctx context.Context, key string) (any, bool, error)

	// GetAll returns every entry currently staged, by any process.
	GetAll(ctx context.Context) ([]StagedEntry, error)

	// Delete evicts the named keys, or every entry when no keys are given.
	// It returns the number of entries evicted.
	Delete(ctx context.Context, keys ...string) (int64, error)
}

// ColdStore is the durable columnar sink for committed log batches.
type ColdStore interface {
	// Insert writes a heterogeneous batch as one multi-row statement over
	// the union of the batch's columns. It returns the number of rows the
	// store accepted: len(batch) on full success, less on partial success,
	// and 0 with an error on connection or query failure.
	Insert(ctx context.Context, batch []ColdRow) (int, error)

	// Fetch returns rows keyed by column name, newest first. With no ids it
	// scans the whole table.
	Fetch(ctx context.Context, ids ...string) ([]ColdRow, error)

	// Delete removes rows by id, or truncates the table when no ids are
	// given.
	Delete(ctx context.Context, ids ...string) error
}
