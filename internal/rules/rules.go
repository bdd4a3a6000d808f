// Package rules is the consistency engine: a validation and repair pass
// applied to every generated batch before it reaches the sink.
//
// The generators are built to satisfy the business invariants by
// construction; this pass is the final audit. A row that fails a check
// is dropped and counted, never fatal for the run. Funnel violations
// are repaired where mechanically possible (excess BLE pings removed)
// and flagged where not (receipts without a matching ping).
package rules

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openmart/retailgen/internal/inventory"
	"github.com/openmart/retailgen/internal/model"
)

// Drop reasons. Keys in Report.Dropped.
const (
	ReasonUnknownRef        = "unknown_reference"
	ReasonPricingViolation  = "pricing_violation"
	ReasonArithmetic        = "receipt_arithmetic"
	ReasonOrphanLine        = "orphan_line"
	ReasonIllegalTransition = "illegal_transition"
	ReasonFunnelExcessBLE   = "funnel_excess_ble"
)

// centTolerance is the allowed absolute error on recomputed receipt
// money fields.
var centTolerance = decimal.New(1, -2)

// Report accumulates audit outcomes for one or more batches.
type Report struct {
	// Dropped counts removed rows by reason.
	Dropped map[string]int
	// Flags describe violations that could not be repaired.
	Flags []string
}

// NewReport returns an empty report.
func NewReport() Report {
	return Report{Dropped: make(map[string]int)}
}

func (r *Report) drop(reason string, n int) {
	if n > 0 {
		r.Dropped[reason] += n
	}
}

func (r *Report) flag(format string, args ...any) {
	r.Flags = append(r.Flags, fmt.Sprintf(format, args...))
}

// Merge folds another report into r.
func (r *Report) Merge(other Report) {
	for reason, n := range other.Dropped {
		r.Dropped[reason] += n
	}
	r.Flags = append(r.Flags, other.Flags...)
}

// TotalDropped is the total row count removed across all reasons.
func (r *Report) TotalDropped() int {
	total := 0
	for _, n := range r.Dropped {
		total += n
	}
	return total
}

// Engine validates batches against the reference data it was built with.
type Engine struct {
	ref *model.ReferenceData
}

// New builds a rules engine over the run's reference data.
func New(ref *model.ReferenceData) *Engine {
	return &Engine{ref: ref}
}

// Apply audits one batch and returns the cleaned batch plus the report.
// The input batch is not modified.
func (e *Engine) Apply(batch *model.FactBatch) (model.FactBatch, Report) {
	rep := NewReport()
	var out model.FactBatch

	keptReceipts := e.auditReceipts(batch, &out, &rep)
	e.auditReceiptLines(batch, keptReceipts, &out, &rep)
	e.reconcileReceipts(&out, &rep)
	e.auditInventory(batch, &out, &rep)
	e.auditTruckMoves(batch, &out, &rep)
	e.auditPresence(batch, &out, &rep)
	e.auditMarketing(batch, &out, &rep)
	e.auditOrders(batch, &out, &rep)
	e.repairFunnel(&out, &rep)
	return out, rep
}

func (e *Engine) auditReceipts(batch *model.FactBatch, out *model.FactBatch, rep *Report) map[string]bool {
	kept := make(map[string]bool, len(batch.Receipts))
	for _, r := range batch.Receipts {
		if e.ref.StoreByID(r.StoreID) == nil || e.ref.CustomerByID(r.CustomerID) == nil {
			rep.drop(ReasonUnknownRef, 1)
			continue
		}
		kept[r.ID] = true
		out.Receipts = append(out.Receipts, r)
	}
	return kept
}

func (e *Engine) auditReceiptLines(batch *model.FactBatch, keptReceipts map[string]bool, out *model.FactBatch, rep *Report) {
	for _, l := range batch.ReceiptLines {
		if !keptReceipts[l.ReceiptID] {
			rep.drop(ReasonOrphanLine, 1)
			continue
		}
		p := e.ref.ProductByID(l.ProductID)
		if p == nil {
			rep.drop(ReasonUnknownRef, 1)
			continue
		}
		if !p.PricingValid() {
			rep.drop(ReasonPricingViolation, 1)
			continue
		}
		out.ReceiptLines = append(out.ReceiptLines, l)
	}
}

// reconcileReceipts recomputes every surviving receipt against its
// surviving lines. A receipt whose identity total = subtotal - discount
// + tax fails, or whose lines no longer sum to its subtotal, is dropped
// together with its lines: a partially-dropped basket must not pass as
// a valid sale.
func (e *Engine) reconcileReceipts(out *model.FactBatch, rep *Report) {
	sumByReceipt := make(map[string]decimal.Decimal)
	for _, l := range out.ReceiptLines {
		sum, ok := sumByReceipt[l.ReceiptID]
		if !ok {
			sum = decimal.Zero
		}
		sumByReceipt[l.ReceiptID] = sum.Add(l.Extended)
	}

	keptReceipts := out.Receipts[:0]
	valid := make(map[string]bool)
	for _, r := range out.Receipts {
		identity := r.Subtotal.Sub(r.Discount).Add(r.Tax)
		lineSum, hasLines := sumByReceipt[r.ID]
		switch {
		case r.Total.Sub(identity).Abs().GreaterThan(centTolerance):
			rep.drop(ReasonArithmetic, 1)
		case !hasLines || r.Subtotal.Sub(lineSum).Abs().GreaterThan(centTolerance):
			rep.drop(ReasonArithmetic, 1)
		default:
			valid[r.ID] = true
			keptReceipts = append(keptReceipts, r)
		}
	}
	out.Receipts = keptReceipts

	keptLines := out.ReceiptLines[:0]
	for _, l := range out.ReceiptLines {
		if valid[l.ReceiptID] {
			keptLines = append(keptLines, l)
		} else {
			rep.drop(ReasonOrphanLine, 1)
		}
	}
	out.ReceiptLines = keptLines
}

func (e *Engine) auditInventory(batch *model.FactBatch, out *model.FactBatch, rep *Report) {
	for _, txn := range batch.InventoryTxns {
		if !e.locationResolves(txn.Location) || e.ref.ProductByID(txn.ProductID) == nil {
			rep.drop(ReasonUnknownRef, 1)
			continue
		}
		out.InventoryTxns = append(out.InventoryTxns, txn)
	}
}

// auditTruckMoves checks foreign keys and, per shipment, that the
// observed status sequence walks legal edges from SCHEDULED.
func (e *Engine) auditTruckMoves(batch *model.FactBatch, out *model.FactBatch, rep *Report) {
	lastState := make(map[string]model.ShipmentState)
	for _, mv := range batch.TruckMoves {
		if e.ref.TruckByID(mv.TruckID) == nil ||
			e.ref.DCByID(mv.OriginDC) == nil ||
			e.ref.StoreByID(mv.DestStore) == nil {
			rep.drop(ReasonUnknownRef, 1)
			continue
		}
		prev, seen := lastState[mv.ShipmentID]
		if !seen {
			if mv.Status != model.ShipmentScheduled {
				rep.drop(ReasonIllegalTransition, 1)
				continue
			}
		} else if !inventory.CanTransition(prev, mv.Status) {
			rep.drop(ReasonIllegalTransition, 1)
			continue
		}
		lastState[mv.ShipmentID] = mv.Status
		out.TruckMoves = append(out.TruckMoves, mv)
	}
}

func (e *Engine) auditPresence(batch *model.FactBatch, out *model.FactBatch, rep *Report) {
	for _, f := range batch.FootTraffic {
		if e.ref.StoreByID(f.StoreID) == nil ||
			(f.CustomerID != 0 && e.ref.CustomerByID(f.CustomerID) == nil) {
			rep.drop(ReasonUnknownRef, 1)
			continue
		}
		out.FootTraffic = append(out.FootTraffic, f)
	}
	for _, p := range batch.BLEPings {
		if e.ref.StoreByID(p.StoreID) == nil ||
			(p.CustomerID != 0 && e.ref.CustomerByID(p.CustomerID) == nil) {
			rep.drop(ReasonUnknownRef, 1)
			continue
		}
		out.BLEPings = append(out.BLEPings, p)
	}
}

func (e *Engine) auditMarketing(batch *model.FactBatch, out *model.FactBatch, rep *Report) {
	out.Campaigns = append(out.Campaigns, batch.Campaigns...)
	for _, imp := range batch.Impressions {
		if imp.CustomerID != 0 && e.ref.CustomerByID(imp.CustomerID) == nil {
			rep.drop(ReasonUnknownRef, 1)
			continue
		}
		out.Impressions = append(out.Impressions, imp)
	}
}

func (e *Engine) auditOrders(batch *model.FactBatch, out *model.FactBatch, rep *Report) {
	kept := make(map[string]bool)
	for _, o := range batch.OnlineOrders {
		if e.ref.CustomerByID(o.CustomerID) == nil ||
			!e.locationResolves(model.LocationRef{Kind: o.NodeKind, ID: o.NodeID}) {
			rep.drop(ReasonUnknownRef, 1)
			continue
		}
		kept[o.ID] = true
		out.OnlineOrders = append(out.OnlineOrders, o)
	}
	for _, l := range batch.OnlineOrderLines {
		if !kept[l.OrderID] {
			rep.drop(ReasonOrphanLine, 1)
			continue
		}
		if p := e.ref.ProductByID(l.ProductID); p == nil {
			rep.drop(ReasonUnknownRef, 1)
			continue
		}
		out.OnlineOrderLines = append(out.OnlineOrderLines, l)
	}
}

// repairFunnel enforces footTraffic >= unique BLE customers >= unique
// receipt customers per store-hour. Excess BLE pings are removed, most
// recent customers first; receipts exceeding the resolved set cannot be
// repaired without destroying sales and are flagged instead.
func (e *Engine) repairFunnel(out *model.FactBatch, rep *Report) {
	type key struct {
		store int64
		hour  time.Time
	}
	hourOf := func(ts time.Time) time.Time { return ts.Truncate(time.Hour) }

	foot := make(map[key]int)
	for _, f := range out.FootTraffic {
		foot[key{f.StoreID, hourOf(f.EventTime)}]++
	}
	bleCust := make(map[key]map[int64]bool)
	for _, p := range out.BLEPings {
		k := key{p.StoreID, hourOf(p.EventTime)}
		if bleCust[k] == nil {
			bleCust[k] = make(map[int64]bool)
		}
		bleCust[k][p.CustomerID] = true
	}

	// Where unique BLE customers exceed the door count, drop whole
	// customers until the funnel holds. Highest customer IDs go first so
	// the repair is deterministic.
	banned := make(map[key]map[int64]bool)
	for k, custs := range bleCust {
		excess := len(custs) - foot[k]
		if excess <= 0 {
			continue
		}
		ids := make([]int64, 0, len(custs))
		for id := range custs {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
		banned[k] = make(map[int64]bool, excess)
		for _, id := range ids[:excess] {
			banned[k][id] = true
			delete(custs, id)
		}
	}
	if len(banned) > 0 {
		keptPings := out.BLEPings[:0]
		for _, p := range out.BLEPings {
			if banned[key{p.StoreID, hourOf(p.EventTime)}][p.CustomerID] {
				rep.drop(ReasonFunnelExcessBLE, 1)
				continue
			}
			keptPings = append(keptPings, p)
		}
		out.BLEPings = keptPings
	}

	rcptCust := make(map[key]map[int64]bool)
	for _, r := range out.Receipts {
		k := key{r.StoreID, hourOf(r.EventTime)}
		if rcptCust[k] == nil {
			rcptCust[k] = make(map[int64]bool)
		}
		rcptCust[k][r.CustomerID] = true
	}
	for k, custs := range rcptCust {
		resolved := bleCust[k]
		missing := 0
		for id := range custs {
			if !resolved[id] {
				missing++
			}
		}
		if missing > 0 {
			rep.flag("store %d hour %s: %d receipt customer(s) without a ble ping",
				k.store, k.hour.Format("2006-01-02T15"), missing)
		}
	}
}

func (e *Engine) locationResolves(loc model.LocationRef) bool {
	switch loc.Kind {
	case model.LocationStore:
		return e.ref.StoreByID(loc.ID) != nil
	case model.LocationDC:
		return e.ref.DCByID(loc.ID) != nil
	default:
		return false
	}
}
