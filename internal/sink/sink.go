// Package sink defines the output contract of the generation engine
// and the two reference implementations: an in-memory sink used by
// tests and determinism checks, and a SQLite sink for the CLI.
//
// Sinks receive append-only batches in a deterministic order; a sink
// must never reorder rows within a batch. Every row carries a
// deterministic trace ID, which is what makes re-appending a batch
// idempotent for sinks that key on it.
package sink

import (
	"context"

	"github.com/openmart/retailgen/internal/model"
)

// Sink consumes generated fact batches.
type Sink interface {
	// AppendBatch appends all rows of the batch. Rows whose trace ID was
	// already appended may be silently skipped.
	AppendBatch(ctx context.Context, batch *model.FactBatch) error
	// Close flushes and releases the sink.
	Close() error
}
