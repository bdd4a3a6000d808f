package inventory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openmart/retailgen/internal/model"
	"github.com/openmart/retailgen/internal/rng"
)

// shard holds one location's balances behind its own lock. Critical
// sections are map updates only; the lock is never held across
// generation work.
type shard struct {
	mu        sync.Mutex
	balances  map[int64]int
	shortfall map[int64]int
}

// Ledger tracks on-hand balances for every store and DC. The shard map
// itself is immutable after construction; only shard contents change.
type Ledger struct {
	shards map[model.LocationRef]*shard
}

// NewLedger builds shards for every location in ref and seeds starting
// balances from the setup stream: stores start between the reorder
// point and target, DCs start deep enough to cover the network.
func NewLedger(ref *model.ReferenceData, st *rng.Stream, reorderPoint, reorderTarget int) *Ledger {
	l := &Ledger{shards: make(map[model.LocationRef]*shard)}

	dcSeed := reorderTarget * (len(ref.Stores) + 1) * 2
	for _, dc := range ref.DCs {
		sh := &shard{balances: make(map[int64]int), shortfall: make(map[int64]int)}
		for _, p := range ref.Products {
			sh.balances[p.ID] = dcSeed + st.IntBetween(0, reorderTarget)
		}
		l.shards[model.LocationRef{Kind: model.LocationDC, ID: dc.ID}] = sh
	}
	for _, s := range ref.Stores {
		sh := &shard{balances: make(map[int64]int), shortfall: make(map[int64]int)}
		for _, p := range ref.Products {
			sh.balances[p.ID] = st.IntBetween(reorderPoint, reorderTarget)
		}
		l.shards[model.LocationRef{Kind: model.LocationStore, ID: s.ID}] = sh
	}
	return l
}

func (l *Ledger) shardFor(loc model.LocationRef) *shard {
	sh, ok := l.shards[loc]
	if !ok {
		panic(fmt.Sprintf("inventory: unknown location %s/%d", loc.Kind, loc.ID))
	}
	return sh
}

// Balance returns the current on-hand quantity.
func (l *Ledger) Balance(loc model.LocationRef, productID int64) int {
	sh := l.shardFor(loc)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.balances[productID]
}

// SnapshotTxns renders the location's starting balances as
// INITIAL_SNAPSHOT rows so the fact stream is self-contained: replaying
// all inventory transactions in timestamp order reproduces every
// balance. Rows are ordered by product ID for determinism.
func (l *Ledger) SnapshotTxns(loc model.LocationRef, ts time.Time) []model.InventoryTxn {
	sh := l.shardFor(loc)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	ids := make([]int64, 0, len(sh.balances))
	for id := range sh.balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	txns := make([]model.InventoryTxn, 0, len(ids))
	for _, id := range ids {
		txns = append(txns, model.InventoryTxn{
			TraceID:   model.TraceIDf(model.TableInventoryTxns, "snapshot:%s:%d:%d", loc.Kind, loc.ID, id),
			Location:  loc,
			ProductID: id,
			Delta:     sh.balances[id],
			Reason:    model.ReasonInitialSnapshot,
			SourceRef: "snapshot",
			EventTime: ts,
		})
	}
	return txns
}

// Consume relieves qty units for a sale or online pick. The balance is
// clamped at zero: the SALE row carries the units actually relieved,
// and when the sale could not be fully covered an ADJUSTMENT row with
// Delta=0 records the unmet quantity as Shortfall. The shortfall also
// accumulates in the ledger so the replenishment planner sees it as
// missed demand.
func (l *Ledger) Consume(loc model.LocationRef, productID int64, qty int, sourceRef string, ts time.Time) []model.InventoryTxn {
	sh := l.shardFor(loc)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	avail := sh.balances[productID]
	relieved := qty
	if relieved > avail {
		relieved = avail
	}
	sh.balances[productID] = avail - relieved

	txns := []model.InventoryTxn{{
		TraceID:   model.TraceIDf(model.TableInventoryTxns, "sale:%s:%d:%d:%s", loc.Kind, loc.ID, productID, sourceRef),
		Location:  loc,
		ProductID: productID,
		Delta:     -relieved,
		Reason:    model.ReasonSale,
		SourceRef: sourceRef,
		EventTime: ts,
	}}

	if short := qty - relieved; short > 0 {
		sh.shortfall[productID] += short
		txns = append(txns, model.InventoryTxn{
			TraceID:   model.TraceIDf(model.TableInventoryTxns, "backorder:%s:%d:%d:%s", loc.Kind, loc.ID, productID, sourceRef),
			Location:  loc,
			ProductID: productID,
			Delta:     0,
			Shortfall: short,
			Reason:    model.ReasonAdjustment,
			SourceRef: sourceRef,
			EventTime: ts,
		})
	}
	return txns
}

// Credit increases a balance. The reason must be INBOUND_SHIPMENT:
// shipment completion is the only path that raises balances after the
// initial snapshot.
func (l *Ledger) Credit(loc model.LocationRef, productID int64, qty int, sourceRef string, ts time.Time) model.InventoryTxn {
	sh := l.shardFor(loc)
	sh.mu.Lock()
	sh.balances[productID] += qty
	sh.mu.Unlock()

	return model.InventoryTxn{
		TraceID:   model.TraceIDf(model.TableInventoryTxns, "inbound:%s:%d:%d:%s", loc.Kind, loc.ID, productID, sourceRef),
		Location:  loc,
		ProductID: productID,
		Delta:     qty,
		Reason:    model.ReasonInboundShipment,
		SourceRef: sourceRef,
		EventTime: ts,
	}
}

// DebitOutbound relieves up to qty units at a DC for an outgoing
// shipment and returns the quantity actually shipped with its
// OUTBOUND_SHIPMENT row. Shipping is clamped to on-hand stock.
func (l *Ledger) DebitOutbound(loc model.LocationRef, productID int64, qty int, sourceRef string, ts time.Time) (int, model.InventoryTxn) {
	sh := l.shardFor(loc)
	sh.mu.Lock()
	avail := sh.balances[productID]
	shipped := qty
	if shipped > avail {
		shipped = avail
	}
	sh.balances[productID] = avail - shipped
	sh.mu.Unlock()

	return shipped, model.InventoryTxn{
		TraceID:   model.TraceIDf(model.TableInventoryTxns, "outbound:%s:%d:%d:%s", loc.Kind, loc.ID, productID, sourceRef),
		Location:  loc,
		ProductID: productID,
		Delta:     -shipped,
		Reason:    model.ReasonOutboundShipment,
		SourceRef: sourceRef,
		EventTime: ts,
	}
}

// Shortfalls returns a copy of the accumulated unmet demand for a
// location, keyed by product.
func (l *Ledger) Shortfalls(loc model.LocationRef) map[int64]int {
	sh := l.shardFor(loc)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	out := make(map[int64]int, len(sh.shortfall))
	for id, n := range sh.shortfall {
		if n > 0 {
			out[id] = n
		}
	}
	return out
}

// ResetShortfall clears accumulated shortfall for a product after the
// planner has folded it into a scheduled shipment.
func (l *Ledger) ResetShortfall(loc model.LocationRef, productID int64) {
	sh := l.shardFor(loc)
	sh.mu.Lock()
	delete(sh.shortfall, productID)
	sh.mu.Unlock()
}
