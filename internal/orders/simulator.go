// Package orders simulates online demand: order creation at a
// configurable fraction of walk-in demand, fulfillment node selection,
// and the created → picked → shipped → delivered progression.
//
// Orders are planned one day at a time from the orchestrator's
// sequential planning phase. Picking decrements the fulfillment node's
// balance through the shared inventory ledger, so online and walk-in
// demand compete for the same stock.
package orders

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openmart/retailgen/internal/config"
	"github.com/openmart/retailgen/internal/inventory"
	"github.com/openmart/retailgen/internal/model"
	"github.com/openmart/retailgen/internal/rng"
)

// Fulfillment mode mix. Ship-from-DC dominates, pickup trails.
var (
	modes       = []model.FulfillmentMode{model.FulfillShipFromDC, model.FulfillShipFromStore, model.FulfillPickup}
	modeWeights = []float64{0.45, 0.35, 0.20}
)

const (
	minLines = 1
	maxLines = 4
	maxQty   = 3
)

// step is a pending order transition.
type step struct {
	status model.OrderStatus
	at     time.Time
}

// openOrder is an order that has not yet delivered.
type openOrder struct {
	id       string
	customer int64
	mode     model.FulfillmentMode
	node     model.LocationRef
	total    decimal.Decimal
	units    map[int64]int
	pending  []step
}

// Simulator owns online order state. PlanDay must run single-threaded;
// the shared ledger it consumes from is already safe for the workers
// running alongside store-hour generation.
type Simulator struct {
	ref    *model.ReferenceData
	ledger *inventory.Ledger
	cfg    config.Orders

	baseRate float64
	open     []*openOrder
	seq      int
}

// NewSimulator builds the online order simulator. baseRate is the
// network-wide walk-in arrivals per hour that online demand is scaled
// from.
func NewSimulator(ref *model.ReferenceData, ledger *inventory.Ledger, cfg config.Orders, baseRate float64) *Simulator {
	return &Simulator{ref: ref, ledger: ledger, cfg: cfg, baseRate: baseRate}
}

// OpenOrders returns the number of orders not yet delivered.
func (s *Simulator) OpenOrders() int { return len(s.open) }

// PlanDay creates the day's orders and advances every open order
// through the transitions due before the day ends. All randomness comes
// from st, derived from (seed, "orders", date).
func (s *Simulator) PlanDay(st *rng.Stream, day time.Time) model.FactBatch {
	var batch model.FactBatch
	s.createOrders(st, &batch, day)
	s.advanceAll(&batch, day.Add(24*time.Hour))
	return batch
}

// createOrders draws the day's online demand. Expected volume is the
// configured fraction of one store's walk-in rate, summed over the
// store count, spread across the day.
func (s *Simulator) createOrders(st *rng.Stream, batch *model.FactBatch, day time.Time) {
	if len(s.ref.Customers) == 0 || len(s.ref.Products) == 0 {
		return
	}
	mean := s.cfg.Rate * s.baseRate * float64(len(s.ref.Stores)) / 24.0
	for h := 0; h < 24; h++ {
		hourStart := day.Add(time.Duration(h) * time.Hour)
		n := st.Poisson(mean)
		for i := 0; i < n; i++ {
			s.createOne(st, batch, hourStart)
		}
	}
}

func (s *Simulator) createOne(st *rng.Stream, batch *model.FactBatch, hourStart time.Time) {
	s.seq++
	id := fmt.Sprintf("ORD-%s-%06d", hourStart.Format("20060102"), s.seq)
	at := hourStart.Add(time.Duration(st.IntBetween(0, 59)) * time.Minute)
	cust := s.ref.Customers[st.IntBetween(0, len(s.ref.Customers)-1)]
	mode := modes[st.WeightedIndex(modeWeights)]
	node := s.pickNode(st, cust, mode)

	units := make(map[int64]int)
	total := decimal.Zero
	nLines := st.IntBetween(minLines, maxLines)
	var lines []model.OnlineOrderLine
	for li := 0; li < nLines; li++ {
		p := s.ref.Products[st.IntBetween(0, len(s.ref.Products)-1)]
		qty := st.IntBetween(1, maxQty)
		if _, dup := units[p.ID]; dup {
			continue
		}
		units[p.ID] = qty
		ext := p.SalePrice.Mul(decimal.NewFromInt(int64(qty))).Round(2)
		total = total.Add(ext)
		lineNo := len(lines) + 1
		lines = append(lines, model.OnlineOrderLine{
			TraceID:   model.TraceIDf(model.TableOnlineOrderLines, "%s:%d", id, lineNo),
			OrderID:   id,
			LineNo:    lineNo,
			ProductID: p.ID,
			Qty:       qty,
			UnitPrice: p.SalePrice,
			Extended:  ext,
		})
	}

	o := &openOrder{
		id:       id,
		customer: cust.ID,
		mode:     mode,
		node:     node,
		total:    total,
		units:    units,
	}
	picked := at.Add(time.Hour)
	o.pending = []step{{model.OrderPicked, picked}}
	if mode == model.FulfillPickup {
		// Pickup orders skip the carrier leg.
		o.pending = append(o.pending,
			step{model.OrderDelivered, picked.Add(time.Duration(st.IntBetween(1, 8)) * time.Hour)})
	} else {
		shipped := picked.Add(time.Duration(st.IntBetween(1, 4)) * time.Hour)
		o.pending = append(o.pending,
			step{model.OrderShipped, shipped},
			step{model.OrderDelivered, shipped.Add(time.Duration(st.IntBetween(18, 72)) * time.Hour)})
	}
	s.open = append(s.open, o)

	batch.OnlineOrders = append(batch.OnlineOrders, s.statusRow(o, model.OrderCreated, at))
	batch.OnlineOrderLines = append(batch.OnlineOrderLines, lines...)
}

// pickNode chooses the fulfillment node. Store-bound modes prefer the
// customer's first home store so pickup orders land where the customer
// actually shops.
func (s *Simulator) pickNode(st *rng.Stream, cust model.Customer, mode model.FulfillmentMode) model.LocationRef {
	if mode == model.FulfillShipFromDC {
		dc := s.ref.DCs[st.IntBetween(0, len(s.ref.DCs)-1)]
		return model.LocationRef{Kind: model.LocationDC, ID: dc.ID}
	}
	if len(cust.HomeStores) > 0 {
		return model.LocationRef{Kind: model.LocationStore, ID: cust.HomeStores[0]}
	}
	store := s.ref.Stores[st.IntBetween(0, len(s.ref.Stores)-1)]
	return model.LocationRef{Kind: model.LocationStore, ID: store.ID}
}

// advanceAll emits every transition due before dayEnd in order
// creation order. Picking consumes stock at the fulfillment node.
func (s *Simulator) advanceAll(batch *model.FactBatch, dayEnd time.Time) {
	var still []*openOrder
	for _, o := range s.open {
		for len(o.pending) > 0 && o.pending[0].at.Before(dayEnd) {
			next := o.pending[0]
			o.pending = o.pending[1:]
			batch.OnlineOrders = append(batch.OnlineOrders, s.statusRow(o, next.status, next.at))
			if next.status == model.OrderPicked {
				for _, pid := range sortedKeys(o.units) {
					txns := s.ledger.Consume(o.node, pid, o.units[pid], o.id, next.at)
					batch.InventoryTxns = append(batch.InventoryTxns, txns...)
				}
			}
		}
		if len(o.pending) > 0 {
			still = append(still, o)
		}
	}
	s.open = still
}

func (s *Simulator) statusRow(o *openOrder, status model.OrderStatus, at time.Time) model.OnlineOrder {
	return model.OnlineOrder{
		TraceID:    model.TraceIDf(model.TableOnlineOrders, "%s:%s", o.id, status),
		ID:         o.id,
		CustomerID: o.customer,
		Mode:       o.mode,
		NodeKind:   o.node.Kind,
		NodeID:     o.node.ID,
		Status:     status,
		Total:      o.total,
		EventTime:  at,
	}
}

func sortedKeys(m map[int64]int) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
