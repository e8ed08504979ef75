package ingestion

import "sync"

// LocalBatch is the in-memory accumulator of records pending a drain to the
// staging cache. It is per-pipeline state and never shared across processes;
// the mutex serializes access for callers that reuse one pipeline across a
// consume loop.
type LocalBatch struct {
	mu      sync.Mutex
	records []*LogRecord
}

// NewLocalBatch creates an empty batch.
func NewLocalBatch() *LocalBatch {
	return &LocalBatch{}
}

// Append adds a record to the end of the batch.
func (b *LocalBatch) Append(record *LogRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = append(b.records, record)
}

// Len returns the number of pending records.
func (b *LocalBatch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.records)
}

// Snapshot returns a copy of the pending records in FIFO order without
// clearing them. The batch is cleared separately once every record has been
// staged, so a failed drain retries the full batch.
func (b *LocalBatch) Snapshot() []*LogRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := make([]*LogRecord, len(b.records))
	copy(snapshot, b.records)

	return snapshot
}

// Clear discards all pending records.
func (b *LocalBatch) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = b.records[:0]
}
