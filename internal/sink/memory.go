package sink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/openmart/retailgen/internal/model"
)

// Memory accumulates batches in memory. Used by tests and by the
// determinism check in `retailgen validate`: two runs with the same
// seed must produce the same Hash.
type Memory struct {
	mu  sync.Mutex
	all model.FactBatch
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// AppendBatch merges the batch into the sink, preserving order.
func (m *Memory) AppendBatch(_ context.Context, batch *model.FactBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.all.Merge(batch)
	return nil
}

// Close is a no-op for the in-memory sink.
func (m *Memory) Close() error { return nil }

// Counts returns per-table row counts received so far.
func (m *Memory) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.all.Counts()
}

// Facts returns a copy of everything received so far.
func (m *Memory) Facts() model.FactBatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out model.FactBatch
	out.Merge(&m.all)
	return out
}

// Hash returns a hex digest over a canonical rendering of every row in
// table order. Byte-identical output across runs means equal hashes.
func (m *Memory) Hash() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := sha256.New()
	for _, r := range m.all.Receipts {
		fmt.Fprintf(h, "%v\n", r)
	}
	for _, r := range m.all.ReceiptLines {
		fmt.Fprintf(h, "%v\n", r)
	}
	for _, r := range m.all.InventoryTxns {
		fmt.Fprintf(h, "%v\n", r)
	}
	for _, r := range m.all.TruckMoves {
		fmt.Fprintf(h, "%v\n", r)
	}
	for _, r := range m.all.FootTraffic {
		fmt.Fprintf(h, "%v\n", r)
	}
	for _, r := range m.all.BLEPings {
		fmt.Fprintf(h, "%v\n", r)
	}
	for _, r := range m.all.Impressions {
		fmt.Fprintf(h, "%v\n", r)
	}
	for _, r := range m.all.Campaigns {
		fmt.Fprintf(h, "%v\n", r)
	}
	for _, r := range m.all.OnlineOrders {
		fmt.Fprintf(h, "%v\n", r)
	}
	for _, r := range m.all.OnlineOrderLines {
		fmt.Fprintf(h, "%v\n", r)
	}
	return hex.EncodeToString(h.Sum(nil))
}
