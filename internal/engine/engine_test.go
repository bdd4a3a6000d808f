package engine

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmart/retailgen/internal/config"
	"github.com/openmart/retailgen/internal/model"
	"github.com/openmart/retailgen/internal/refdata"
	"github.com/openmart/retailgen/internal/rng"
	"github.com/openmart/retailgen/internal/sink"
	"github.com/openmart/retailgen/internal/temporal"
)

func scenarioConfig() *config.Config {
	cfg := config.Default()
	cfg.Seed = 42
	cfg.Start = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg.End = time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	cfg.Workers = 4
	cfg.Parallel = true
	cfg.Reference = config.Reference{
		Stores: 2, DCs: 1, Customers: 50, Products: 24, TruckDCRatio: 0.7,
	}
	return cfg
}

// buildEngine assembles a fresh engine and reference set. Reference
// construction is repeated per run because profile assignment mutates
// the store slice.
func buildEngine(t *testing.T, cfg *config.Config, snk sink.Sink) (*Engine, *model.ReferenceData) {
	t.Helper()
	ref, err := refdata.Build(cfg.Reference, rng.New(cfg.Seed))
	require.NoError(t, err)
	cal, err := temporal.DefaultCalendar()
	require.NoError(t, err)
	eng, err := New(cfg, ref, temporal.NewPattern(cal), snk)
	require.NoError(t, err)
	return eng, ref
}

func TestRun_SingleDayScenario(t *testing.T) {
	cfg := scenarioConfig()
	mem := sink.NewMemory()
	eng, ref := buildEngine(t, cfg, mem)

	cp, sum, err := eng.Run(context.Background(), Checkpoint{})
	require.NoError(t, err)
	require.NotNil(t, sum)

	assert.Equal(t, cfg.End, cp.LastGenerated)
	assert.True(t, cp.HasHistoricalData)
	for _, table := range model.Tables {
		assert.True(t, cp.Tables[table], "table %s not marked complete", table)
		assert.Equal(t, StateCompleted, eng.Tracker().State(table))
	}
	assert.Equal(t, 1, sum.Days)

	facts := mem.Facts()
	require.NotEmpty(t, facts.Receipts)

	perStore := make(map[int64]int)
	for _, r := range facts.Receipts {
		perStore[r.StoreID]++
		store := ref.StoreByID(r.StoreID)
		require.NotNil(t, store)
		assert.True(t, store.Hours.Contains(r.EventTime.Hour()),
			"receipt %s outside operating hours", r.ID)
		assert.True(t, !r.EventTime.Before(cfg.Start) && r.EventTime.Before(cfg.End))
	}
	for _, s := range ref.Stores {
		assert.Positive(t, perStore[s.ID], "store %d sold nothing all day", s.ID)
	}

	// The fact stream opens with the inventory position.
	var snapshots int
	for _, txn := range facts.InventoryTxns {
		if txn.Reason == model.ReasonInitialSnapshot {
			snapshots++
			assert.Equal(t, cfg.Start, txn.EventTime)
		}
	}
	locations := len(ref.Stores) + len(ref.DCs)
	assert.Equal(t, locations*len(ref.Products), snapshots)
}

func TestRun_PresenceFunnelHolds(t *testing.T) {
	cfg := scenarioConfig()
	mem := sink.NewMemory()
	eng, _ := buildEngine(t, cfg, mem)
	_, _, err := eng.Run(context.Background(), Checkpoint{})
	require.NoError(t, err)

	type key struct {
		store int64
		hour  time.Time
	}
	facts := mem.Facts()
	foot := make(map[key]int)
	for _, f := range facts.FootTraffic {
		foot[key{f.StoreID, f.EventTime.Truncate(time.Hour)}]++
	}
	ble := make(map[key]map[int64]bool)
	for _, p := range facts.BLEPings {
		k := key{p.StoreID, p.EventTime.Truncate(time.Hour)}
		if ble[k] == nil {
			ble[k] = make(map[int64]bool)
		}
		ble[k][p.CustomerID] = true
	}
	rcpt := make(map[key]map[int64]bool)
	for _, r := range facts.Receipts {
		k := key{r.StoreID, r.EventTime.Truncate(time.Hour)}
		if rcpt[k] == nil {
			rcpt[k] = make(map[int64]bool)
		}
		rcpt[k][r.CustomerID] = true
	}
	for k, custs := range ble {
		assert.GreaterOrEqual(t, foot[k], len(custs), "ble exceeds foot traffic at %v", k)
	}
	for k, custs := range rcpt {
		assert.GreaterOrEqual(t, len(ble[k]), len(custs), "receipts exceed ble at %v", k)
	}
}

func TestRun_InventoryNeverNegative(t *testing.T) {
	cfg := scenarioConfig()
	cfg.End = cfg.Start.AddDate(0, 0, 3)
	mem := sink.NewMemory()
	eng, _ := buildEngine(t, cfg, mem)
	_, _, err := eng.Run(context.Background(), Checkpoint{})
	require.NoError(t, err)

	type key struct {
		loc model.LocationRef
		pid int64
	}
	txns := mem.Facts().InventoryTxns
	sort.SliceStable(txns, func(i, j int) bool { return txns[i].EventTime.Before(txns[j].EventTime) })
	balance := make(map[key]int)
	for _, txn := range txns {
		k := key{txn.Location, txn.ProductID}
		balance[k] += txn.Delta
		assert.GreaterOrEqual(t, balance[k], 0,
			"balance for %v/%d went negative at %s", txn.Location, txn.ProductID, txn.EventTime)
	}
}

func TestRun_DeterministicAcrossWorkerCounts(t *testing.T) {
	run := func(workers int, parallel bool) string {
		cfg := scenarioConfig()
		cfg.End = cfg.Start.AddDate(0, 0, 2)
		cfg.Workers = workers
		cfg.Parallel = parallel
		mem := sink.NewMemory()
		eng, _ := buildEngine(t, cfg, mem)
		_, _, err := eng.Run(context.Background(), Checkpoint{})
		require.NoError(t, err)
		return mem.Hash()
	}
	sequential := run(1, false)
	assert.Equal(t, sequential, run(8, true))
	assert.Equal(t, sequential, run(2, true))
}

// traceIDs collects every fact's trace ID from a memory sink, sorted.
func traceIDs(m *sink.Memory) []string {
	var ids []string
	f := m.Facts()
	for _, r := range f.Receipts {
		ids = append(ids, r.TraceID)
	}
	for _, r := range f.ReceiptLines {
		ids = append(ids, r.TraceID)
	}
	for _, r := range f.InventoryTxns {
		ids = append(ids, r.TraceID)
	}
	for _, r := range f.TruckMoves {
		ids = append(ids, r.TraceID)
	}
	for _, r := range f.FootTraffic {
		ids = append(ids, r.TraceID)
	}
	for _, r := range f.BLEPings {
		ids = append(ids, r.TraceID)
	}
	for _, r := range f.Impressions {
		ids = append(ids, r.TraceID)
	}
	for _, r := range f.Campaigns {
		ids = append(ids, r.TraceID)
	}
	for _, r := range f.OnlineOrders {
		ids = append(ids, r.TraceID)
	}
	for _, r := range f.OnlineOrderLines {
		ids = append(ids, r.TraceID)
	}
	sort.Strings(ids)
	return ids
}

func TestRun_ResumeProducesSameFactsWithoutDuplicates(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mid := start.AddDate(0, 0, 1)
	end := start.AddDate(0, 0, 3)

	// One call covering the full range.
	fullCfg := scenarioConfig()
	fullCfg.Start, fullCfg.End = start, end
	fullSink := sink.NewMemory()
	fullEng, _ := buildEngine(t, fullCfg, fullSink)
	_, _, err := fullEng.Run(context.Background(), Checkpoint{})
	require.NoError(t, err)

	// The same range in two calls through a checkpoint.
	legCfg := scenarioConfig()
	legCfg.Start, legCfg.End = start, mid
	leg1 := sink.NewMemory()
	eng1, _ := buildEngine(t, legCfg, leg1)
	cp, _, err := eng1.Run(context.Background(), Checkpoint{})
	require.NoError(t, err)
	assert.Equal(t, mid, cp.LastGenerated)

	extCfg := scenarioConfig()
	extCfg.Start, extCfg.End = start, end
	leg2 := sink.NewMemory()
	eng2, _ := buildEngine(t, extCfg, leg2)
	cp2, _, err := eng2.Run(context.Background(), cp)
	require.NoError(t, err)
	assert.Equal(t, end, cp2.LastGenerated)

	combined := append(traceIDs(leg1), traceIDs(leg2)...)
	sort.Strings(combined)
	assert.Equal(t, traceIDs(fullSink), combined,
		"split runs must reproduce the full run with no duplicates")

	// And nothing from the first leg reappears in the second.
	seen := make(map[string]bool)
	for _, id := range traceIDs(leg1) {
		seen[id] = true
	}
	for _, id := range traceIDs(leg2) {
		assert.False(t, seen[id], "duplicate fact %s on resume", id)
	}
}

// Every shipment below is disrupted and the truck limps home the same
// afternoon, so each day emits return credits timestamped within the
// day. Splitting the run at a day boundary must not lose them.
func TestRun_ResumeKeepsDelayedTruckReturns(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mid := start.AddDate(0, 0, 1)
	end := start.AddDate(0, 0, 3)

	disruptedCfg := func() *config.Config {
		cfg := scenarioConfig()
		cfg.Inventory.DisruptionProbability = 1
		cfg.Inventory.LeadMinHours, cfg.Inventory.LeadMaxHours = 4, 4
		cfg.Inventory.DelayMinHours, cfg.Inventory.DelayMaxHours = 4, 4
		// High reorder point so replenishment fires within the range.
		cfg.Inventory.ReorderPoint = 150
		return cfg
	}

	fullCfg := disruptedCfg()
	fullCfg.Start, fullCfg.End = start, end
	fullSink := sink.NewMemory()
	fullEng, _ := buildEngine(t, fullCfg, fullSink)
	_, _, err := fullEng.Run(context.Background(), Checkpoint{})
	require.NoError(t, err)

	var returns int
	fullFacts := fullSink.Facts()
	for _, txn := range fullFacts.InventoryTxns {
		if txn.Reason == model.ReasonInboundShipment && txn.Location.Kind == model.LocationDC {
			returns++
		}
	}
	require.Positive(t, returns, "forced disruption must produce return credits")

	legCfg := disruptedCfg()
	legCfg.Start, legCfg.End = start, mid
	leg1 := sink.NewMemory()
	eng1, _ := buildEngine(t, legCfg, leg1)
	cp, _, err := eng1.Run(context.Background(), Checkpoint{})
	require.NoError(t, err)

	extCfg := disruptedCfg()
	extCfg.Start, extCfg.End = start, end
	leg2 := sink.NewMemory()
	eng2, _ := buildEngine(t, extCfg, leg2)
	_, _, err = eng2.Run(context.Background(), cp)
	require.NoError(t, err)

	combined := append(traceIDs(leg1), traceIDs(leg2)...)
	sort.Strings(combined)
	assert.Equal(t, traceIDs(fullSink), combined)
}

func TestRun_CheckpointCoveringRangeIsNoOp(t *testing.T) {
	cfg := scenarioConfig()
	mem := sink.NewMemory()
	eng, _ := buildEngine(t, cfg, mem)

	cp := Checkpoint{LastGenerated: cfg.End, HasHistoricalData: true}
	out, sum, err := eng.Run(context.Background(), cp)
	require.NoError(t, err)
	assert.Equal(t, cp, out)
	assert.Zero(t, sum.Days)
	facts := mem.Facts()
	assert.True(t, facts.Empty())
}

func TestRun_CancelledContextLeavesCheckpointUntouched(t *testing.T) {
	cfg := scenarioConfig()
	mem := sink.NewMemory()
	eng, _ := buildEngine(t, cfg, mem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := Checkpoint{}
	out, _, err := eng.Run(ctx, in)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, in, out)
}

func TestNew_EmptyReferenceDataIsFatal(t *testing.T) {
	cfg := scenarioConfig()
	cal, err := temporal.DefaultCalendar()
	require.NoError(t, err)
	ref := &model.ReferenceData{}
	ref.Index()
	_, err = New(cfg, ref, temporal.NewPattern(cal), sink.NewMemory())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stores")
}
