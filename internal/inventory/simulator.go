package inventory

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/openmart/retailgen/internal/config"
	"github.com/openmart/retailgen/internal/model"
	"github.com/openmart/retailgen/internal/rng"
)

// planningHour is the hour of day at which new replenishment shipments
// are scheduled.
const planningHour = 6

// step is one pending timed transition on a shipment's path.
type step struct {
	state model.ShipmentState
	at    time.Time
}

// pendingReturn is stock coming back to a DC from a delayed shipment.
type pendingReturn struct {
	at         time.Time
	dc         int64
	shipmentID string
	units      map[int64]int
}

// Delivery is one product arriving at a store when a shipment
// completes. Workers apply deliveries at the start of the given hour,
// before that hour's sales.
type Delivery struct {
	Hour       time.Time
	ShipmentID string
	ProductID  int64
	Qty        int
}

// DayPlan is the replenishment outcome for one day: the DC-side fact
// rows (truck moves, outbound/inbound DC transactions) and the per-store
// deliveries the workers must apply.
type DayPlan struct {
	Batch         model.FactBatch
	Deliveries    map[int64][]Delivery
	DeferredUnits int
}

// For returns the deliveries due at a store in a specific hour.
func (p *DayPlan) For(storeID int64, hour time.Time) []Delivery {
	var out []Delivery
	for _, d := range p.Deliveries[storeID] {
		if d.Hour.Equal(hour) {
			out = append(out, d)
		}
	}
	return out
}

// Simulator owns the truck shipment state machine and replenishment
// planning. PlanDay must be called from a single goroutine (the
// orchestrator's sequential planning phase); the determinism of truck
// and capacity allocation depends on it.
type Simulator struct {
	ref    *model.ReferenceData
	ledger *Ledger
	cfg    config.Inventory

	open           []*Shipment
	returns        []pendingReturn
	truckBusyUntil map[int64]time.Time
	shipmentSeq    int
	deferredTotal  int
}

// NewSimulator builds the replenishment simulator. The transition table
// is validated here so a broken edit fails at construction, not mid-run.
func NewSimulator(ref *model.ReferenceData, ledger *Ledger, cfg config.Inventory) (*Simulator, error) {
	if err := ValidateTransitions(); err != nil {
		return nil, err
	}
	return &Simulator{
		ref:            ref,
		ledger:         ledger,
		cfg:            cfg,
		truckBusyUntil: make(map[int64]time.Time),
	}, nil
}

// DeferredUnits returns the cumulative units deferred because truck or
// DC capacity was exhausted. Deferred demand is never dropped; it is
// re-planned the next day from the same balance signals.
func (s *Simulator) DeferredUnits() int { return s.deferredTotal }

// OpenShipments returns the number of shipments not yet terminal.
func (s *Simulator) OpenShipments() int { return len(s.open) }

// PlanDay advances every open shipment through the transitions due on
// the given day, schedules new shipments for stores below their reorder
// point, and returns the day's DC-side facts plus per-store deliveries.
//
// All randomness comes from st, which the orchestrator derives from
// (seed, "inventory", date); re-planning the same day with the same
// ledger state reproduces the same plan.
func (s *Simulator) PlanDay(st *rng.Stream, day time.Time) *DayPlan {
	plan := &DayPlan{Deliveries: make(map[int64][]Delivery)}
	dayEnd := day.Add(24 * time.Hour)

	s.processReturns(plan, dayEnd)
	deferred := s.scheduleNew(st, plan, day)
	s.advanceAll(plan, dayEnd)
	// A truck delayed this morning can limp home before midnight; its
	// return must land in this day's plan so the credit's event time
	// stays inside the day that generated it.
	s.processReturns(plan, dayEnd)

	plan.DeferredUnits = deferred
	s.deferredTotal += deferred
	return plan
}

// processReturns credits delayed-shipment stock back to its DC once the
// truck has limped home.
func (s *Simulator) processReturns(plan *DayPlan, dayEnd time.Time) {
	var keep []pendingReturn
	for _, r := range s.returns {
		if r.at.Before(dayEnd) {
			for _, pid := range sortedKeys(r.units) {
				txn := s.ledger.Credit(
					model.LocationRef{Kind: model.LocationDC, ID: r.dc},
					pid, r.units[pid], r.shipmentID+":return", r.at)
				plan.Batch.InventoryTxns = append(plan.Batch.InventoryTxns, txn)
			}
		} else {
			keep = append(keep, r)
		}
	}
	s.returns = keep
}

// scheduleNew walks stores in ID order and builds shipments for every
// store whose balances have fallen to the reorder point, folding in
// accumulated shortfall as missed demand. Returns units deferred for
// lack of truck or DC capacity.
func (s *Simulator) scheduleNew(st *rng.Stream, plan *DayPlan, day time.Time) int {
	planAt := day.Add(planningHour * time.Hour)
	deferred := 0

	for si := range s.ref.Stores {
		store := &s.ref.Stores[si]
		loc := model.LocationRef{Kind: model.LocationStore, ID: store.ID}
		dc := s.primaryDC(si)

		shortfalls := s.ledger.Shortfalls(loc)
		var ambient, reefer []Delivery // reuse Delivery as (product, qty) pair
		for _, p := range s.ref.Products {
			bal := s.ledger.Balance(loc, p.ID)
			short := shortfalls[p.ID]
			if bal > s.cfg.ReorderPoint && short == 0 {
				continue
			}
			need := s.cfg.ReorderTarget - bal + short
			if need <= 0 {
				continue
			}
			item := Delivery{ProductID: p.ID, Qty: need}
			if p.Refrigerated {
				reefer = append(reefer, item)
			} else {
				ambient = append(ambient, item)
			}
		}

		deferred += s.loadGroup(st, plan, store.ID, dc, ambient, false, planAt)
		deferred += s.loadGroup(st, plan, store.ID, dc, reefer, true, planAt)
	}
	return deferred
}

// loadGroup packs one store's needs of a temperature class onto trucks,
// one shipment per truck, until capacity, truck supply, or the DC's
// concurrent shipment cap runs out.
func (s *Simulator) loadGroup(st *rng.Stream, plan *DayPlan, storeID, dcID int64, needs []Delivery, needReefer bool, planAt time.Time) int {
	remaining := 0
	for _, n := range needs {
		remaining += n.Qty
	}
	i := 0
	for i < len(needs) {
		if s.openFromDC(dcID) >= s.cfg.MaxConcurrentPerDC {
			slog.Debug("dc shipment cap reached, deferring",
				"dc", dcID, "store", storeID, "units", remaining)
			return remaining
		}
		truck := s.pickTruck(dcID, needReefer, planAt)
		if truck == nil {
			slog.Debug("no truck available, deferring",
				"dc", dcID, "store", storeID, "reefer", needReefer, "units", remaining)
			return remaining
		}

		units := make(map[int64]int)
		capLeft := s.cfg.TruckUnitCapacity
		for i < len(needs) && capLeft > 0 {
			take := needs[i].Qty
			if take > capLeft {
				take = capLeft
			}
			units[needs[i].ProductID] += take
			capLeft -= take
			remaining -= take
			needs[i].Qty -= take
			if needs[i].Qty == 0 {
				s.ledger.ResetShortfall(model.LocationRef{Kind: model.LocationStore, ID: storeID}, needs[i].ProductID)
				i++
			}
		}

		s.dispatch(st, plan, truck, storeID, dcID, units, needReefer, planAt)
	}
	return remaining
}

// dispatch creates a shipment, draws its timing and disruption fate,
// and emits the SCHEDULED move.
func (s *Simulator) dispatch(st *rng.Stream, plan *DayPlan, truck *model.Truck, storeID, dcID int64, units map[int64]int, reefer bool, planAt time.Time) {
	s.shipmentSeq++
	lead := st.IntBetween(s.cfg.LeadMinHours, s.cfg.LeadMaxHours)
	etd := planAt.Add(2 * time.Hour)
	eta := etd.Add(time.Duration(lead) * time.Hour)

	sh := &Shipment{
		ID:           fmt.Sprintf("SHP-%s-%06d", planAt.Format("20060102"), s.shipmentSeq),
		TruckID:      truck.ID,
		OriginDC:     dcID,
		DestStore:    storeID,
		Units:        units,
		Refrigerated: reefer,
		State:        model.ShipmentScheduled,
		ETD:          etd,
		ETA:          eta,
	}

	path := []step{
		{model.ShipmentLoading, planAt.Add(1 * time.Hour)},
		{model.ShipmentInTransit, etd},
	}
	busyUntil := eta.Add(2 * time.Hour)
	if st.Chance(s.cfg.DisruptionProbability) {
		delayAt := etd.Add(time.Duration(1+lead/2) * time.Hour)
		duration := st.IntBetween(s.cfg.DelayMinHours, s.cfg.DelayMaxHours)
		path = append(path, step{model.ShipmentDelayed, delayAt})
		returnAt := delayAt.Add(time.Duration(duration) * time.Hour)
		sh.pending = path
		sh.returnAt = returnAt
		busyUntil = returnAt
	} else {
		path = append(path,
			step{model.ShipmentArrived, eta},
			step{model.ShipmentUnloading, eta.Add(1 * time.Hour)},
			step{model.ShipmentCompleted, eta.Add(2 * time.Hour)},
		)
		sh.pending = path
	}
	s.truckBusyUntil[truck.ID] = busyUntil

	plan.Batch.TruckMoves = append(plan.Batch.TruckMoves, model.TruckMove{
		TraceID:    model.TraceIDf(model.TableTruckMoves, "%s:%s", sh.ID, model.ShipmentScheduled),
		ShipmentID: sh.ID,
		TruckID:    sh.TruckID,
		OriginDC:   sh.OriginDC,
		DestStore:  sh.DestStore,
		Status:     model.ShipmentScheduled,
		ETD:        etd,
		ETA:        eta,
		EventTime:  planAt,
	})
	s.open = append(s.open, sh)
}

// advanceAll fires every pending transition due before dayEnd, in
// shipment insertion order, applying side effects:
//
//   - IN_TRANSIT: OUTBOUND_SHIPMENT debits at the origin DC (clamped
//     to on-hand stock)
//   - DELAYED: terminal; stock queued to return to the DC
//   - COMPLETED: terminal; per-store deliveries recorded for workers
func (s *Simulator) advanceAll(plan *DayPlan, dayEnd time.Time) {
	var stillOpen []*Shipment
	for _, sh := range s.open {
		for len(sh.pending) > 0 && sh.pending[0].at.Before(dayEnd) {
			next := sh.pending[0]
			sh.pending = sh.pending[1:]
			move := sh.advance(next.state, next.at)
			plan.Batch.TruckMoves = append(plan.Batch.TruckMoves, move)

			switch next.state {
			case model.ShipmentInTransit:
				dcLoc := model.LocationRef{Kind: model.LocationDC, ID: sh.OriginDC}
				for _, pid := range sortedKeys(sh.Units) {
					shipped, txn := s.ledger.DebitOutbound(dcLoc, pid, sh.Units[pid], sh.ID, next.at)
					sh.Units[pid] = shipped
					plan.Batch.InventoryTxns = append(plan.Batch.InventoryTxns, txn)
				}
			case model.ShipmentDelayed:
				s.returns = append(s.returns, pendingReturn{
					at:         sh.returnAt,
					dc:         sh.OriginDC,
					shipmentID: sh.ID,
					units:      sh.Units,
				})
			case model.ShipmentCompleted:
				for _, pid := range sortedKeys(sh.Units) {
					if sh.Units[pid] == 0 {
						continue
					}
					plan.Deliveries[sh.DestStore] = append(plan.Deliveries[sh.DestStore], Delivery{
						Hour:       next.at,
						ShipmentID: sh.ID,
						ProductID:  pid,
						Qty:        sh.Units[pid],
					})
				}
			}
		}
		if !IsTerminal(sh.State) {
			stillOpen = append(stillOpen, sh)
		}
	}
	s.open = stillOpen
}

// openFromDC counts non-terminal shipments originating at a DC.
func (s *Simulator) openFromDC(dcID int64) int {
	n := 0
	for _, sh := range s.open {
		if sh.OriginDC == dcID {
			n++
		}
	}
	return n
}

// pickTruck returns the first free truck that can serve the DC and the
// temperature class. Refrigerated loads require refrigeration-capable
// trucks; ambient trucks are never substituted. Iteration is in
// reference order for determinism.
func (s *Simulator) pickTruck(dcID int64, needReefer bool, at time.Time) *model.Truck {
	for i := range s.ref.Trucks {
		t := &s.ref.Trucks[i]
		if needReefer && !t.Refrigerated {
			continue
		}
		if t.HomeDC != nil && *t.HomeDC != dcID {
			continue
		}
		if busy, ok := s.truckBusyUntil[t.ID]; ok && at.Before(busy) {
			continue
		}
		return t
	}
	return nil
}

// primaryDC pins each store to one DC so planning is deterministic.
func (s *Simulator) primaryDC(storeIdx int) int64 {
	return s.ref.DCs[storeIdx%len(s.ref.DCs)].ID
}

// sortedKeys orders map iteration for deterministic output.
func sortedKeys(m map[int64]int) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
