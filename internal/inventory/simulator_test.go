package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmart/retailgen/internal/config"
	"github.com/openmart/retailgen/internal/model"
	"github.com/openmart/retailgen/internal/rng"
)

func invCfg() config.Inventory {
	return config.Inventory{
		TruckUnitCapacity:     2400,
		MaxConcurrentPerDC:    6,
		ReorderPoint:          60,
		ReorderTarget:         200,
		DisruptionProbability: 0,
		DelayMinHours:         4,
		DelayMaxHours:         18,
		LeadMinHours:          4,
		LeadMaxHours:          12,
	}
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func newSim(t *testing.T, cfg config.Inventory) (*Simulator, *Ledger, *model.ReferenceData) {
	t.Helper()
	ref := twoStoreRef()
	ledger := NewLedger(ref, rng.New(42).Stream("ledger"), cfg.ReorderPoint, cfg.ReorderTarget)

	// Seeded store balances can land right on the reorder point. Top
	// every store balance up so that only demand the test creates
	// triggers replenishment.
	for _, s := range ref.Stores {
		loc := model.LocationRef{Kind: model.LocationStore, ID: s.ID}
		for _, p := range ref.Products {
			ledger.Credit(loc, p.ID, 500, "test-topup", day(1))
		}
	}

	sim, err := NewSimulator(ref, ledger, cfg)
	require.NoError(t, err)
	return sim, ledger, ref
}

// drainStore forces a store's product balance to zero.
func drainStore(l *Ledger, loc model.LocationRef, productID int64) {
	l.Consume(loc, productID, l.Balance(loc, productID), "test-drain", day(1).Add(8*time.Hour))
}

func TestPlanDay_NoDemandNoShipments(t *testing.T) {
	sim, _, _ := newSim(t, invCfg())
	plan := sim.PlanDay(rng.New(42).Stream("inventory", "2024-03-01"), day(1))
	assert.Empty(t, plan.Batch.TruckMoves)
	assert.Empty(t, plan.Batch.InventoryTxns)
	assert.Zero(t, plan.DeferredUnits)
}

func TestPlanDay_SchedulesReplenishment(t *testing.T) {
	sim, ledger, _ := newSim(t, invCfg())
	drainStore(ledger, store1, 20000)

	plan := sim.PlanDay(rng.New(42).Stream("inventory", "2024-03-02"), day(2))
	require.NotEmpty(t, plan.Batch.TruckMoves)
	assert.Equal(t, model.ShipmentScheduled, plan.Batch.TruckMoves[0].Status)

	// Stock leaves the DC when the truck departs, not when it is planned.
	var sawOutbound bool
	for _, txn := range plan.Batch.InventoryTxns {
		if txn.Reason == model.ReasonOutboundShipment {
			sawOutbound = true
			assert.Equal(t, dcLoc, txn.Location)
			assert.Negative(t, txn.Delta)
		}
	}
	assert.True(t, sawOutbound)
}

func TestPlanDay_CompletionRecordsDeliveries(t *testing.T) {
	sim, ledger, _ := newSim(t, invCfg())
	drainStore(ledger, store1, 20000)

	// Planning happens at 06:00, lead time is at most 12h, so the
	// shipment runs its whole lifecycle inside the day.
	plan := sim.PlanDay(rng.New(42).Stream("inventory", "2024-03-02"), day(2))

	deliveries := plan.Deliveries[1]
	require.NotEmpty(t, deliveries)
	var total int
	for _, d := range deliveries {
		assert.Equal(t, int64(20000), d.ProductID)
		assert.NotEmpty(t, d.ShipmentID)
		total += d.Qty
	}
	assert.Equal(t, invCfg().ReorderTarget, total, "store refilled to target")
	assert.Equal(t, deliveries, plan.For(1, deliveries[0].Hour))
	assert.Zero(t, sim.OpenShipments())

	states := make(map[model.ShipmentState]bool)
	for _, mv := range plan.Batch.TruckMoves {
		states[mv.Status] = true
	}
	for _, want := range []model.ShipmentState{
		model.ShipmentScheduled, model.ShipmentLoading, model.ShipmentInTransit,
		model.ShipmentArrived, model.ShipmentUnloading, model.ShipmentCompleted,
	} {
		assert.True(t, states[want], "missing %s move", want)
	}
}

func TestPlanDay_RefrigeratedRequiresReeferTruck(t *testing.T) {
	sim, ledger, ref := newSim(t, invCfg())

	// Drop the reefer truck from the fleet. Frozen demand must be
	// deferred rather than loaded onto the ambient truck.
	ref.Trucks = ref.Trucks[:1]
	require.False(t, ref.Trucks[0].Refrigerated)

	drainStore(ledger, store1, 20001)
	plan := sim.PlanDay(rng.New(42).Stream("inventory", "2024-03-02"), day(2))

	assert.Empty(t, plan.Batch.TruckMoves)
	assert.Empty(t, plan.Deliveries[1])
	assert.Positive(t, plan.DeferredUnits)
}

func TestPlanDay_DeferredDemandRetriedNextDay(t *testing.T) {
	cfg := invCfg()
	cfg.MaxConcurrentPerDC = 0
	sim, ledger, _ := newSim(t, cfg)
	drainStore(ledger, store1, 20000)

	plan := sim.PlanDay(rng.New(42).Stream("inventory", "2024-03-02"), day(2))
	require.Positive(t, plan.DeferredUnits)
	require.Empty(t, plan.Batch.TruckMoves)
	assert.Equal(t, plan.DeferredUnits, sim.DeferredUnits())

	// Capacity restored: the same demand is picked up from the balance
	// signal the next day, nothing was dropped.
	sim.cfg.MaxConcurrentPerDC = 6
	plan2 := sim.PlanDay(rng.New(42).Stream("inventory", "2024-03-03"), day(3))
	assert.NotEmpty(t, plan2.Batch.TruckMoves)
	assert.NotEmpty(t, plan2.Deliveries[1])
}

func TestPlanDay_DelayedShipmentReturnsStockSameDay(t *testing.T) {
	cfg := invCfg()
	cfg.DisruptionProbability = 1
	cfg.DelayMinHours = 2
	cfg.DelayMaxHours = 2
	sim, ledger, _ := newSim(t, cfg)
	drainStore(ledger, store1, 20000)

	dcBefore := ledger.Balance(dcLoc, 20000)
	plan := sim.PlanDay(rng.New(42).Stream("inventory", "2024-03-02"), day(2))

	var sawDelayed, sawCompleted bool
	for _, mv := range plan.Batch.TruckMoves {
		switch mv.Status {
		case model.ShipmentDelayed:
			sawDelayed = true
		case model.ShipmentCompleted:
			sawCompleted = true
		}
	}
	require.True(t, sawDelayed)
	assert.False(t, sawCompleted, "delayed shipments never complete")
	assert.Empty(t, plan.Deliveries[1], "delayed shipments never deliver")
	assert.Zero(t, sim.OpenShipments(), "delayed is terminal")

	// A two-hour delay brings the truck home before midnight, so the
	// return credit belongs to this day's plan with this day's times.
	returned := sumReturns(t, plan, day(2))
	assert.Equal(t, invCfg().ReorderTarget, returned)
	assert.GreaterOrEqual(t, ledger.Balance(dcLoc, 20000), dcBefore)
}

func TestPlanDay_OvernightReturnCreditsNextDay(t *testing.T) {
	cfg := invCfg()
	cfg.DisruptionProbability = 1
	cfg.DelayMinHours = 18
	cfg.DelayMaxHours = 18
	sim, ledger, _ := newSim(t, cfg)
	drainStore(ledger, store1, 20000)

	plan := sim.PlanDay(rng.New(42).Stream("inventory", "2024-03-02"), day(2))
	assert.Zero(t, sumReturns(t, plan, day(2)), "truck is still out overnight")

	plan2 := sim.PlanDay(rng.New(42).Stream("inventory", "2024-03-03"), day(3))
	assert.Equal(t, invCfg().ReorderTarget, sumReturns(t, plan2, day(3)))
	assert.GreaterOrEqual(t, ledger.Balance(dcLoc, 20000), invCfg().ReorderTarget)
}

// sumReturns totals INBOUND return credits at the DC in a plan, failing
// the test if any credit's event time falls outside the plan's day.
func sumReturns(t *testing.T, plan *DayPlan, planDay time.Time) int {
	t.Helper()
	total := 0
	for _, txn := range plan.Batch.InventoryTxns {
		if txn.Reason != model.ReasonInboundShipment || txn.Location != dcLoc {
			continue
		}
		total += txn.Delta
		assert.False(t, txn.EventTime.Before(planDay), "return credited before its plan day")
		assert.True(t, txn.EventTime.Before(planDay.Add(24*time.Hour)),
			"return %s dated outside the day that emitted it", txn.SourceRef)
	}
	return total
}

func TestPlanDay_Deterministic(t *testing.T) {
	runOnce := func() *DayPlan {
		sim, ledger, _ := newSim(t, invCfg())
		drainStore(ledger, store1, 20000)
		drainStore(ledger, store1, 20001)
		return sim.PlanDay(rng.New(42).Stream("inventory", "2024-03-02"), day(2))
	}
	a := runOnce()
	b := runOnce()
	assert.Equal(t, a.Batch.TruckMoves, b.Batch.TruckMoves)
	assert.Equal(t, a.Batch.InventoryTxns, b.Batch.InventoryTxns)
	assert.Equal(t, a.Deliveries, b.Deliveries)
}
