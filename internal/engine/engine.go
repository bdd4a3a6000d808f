// Package engine orchestrates a generation run: the day-by-day walk of
// the requested range, the sequential planning phase for shared state
// (trucks, campaigns, online orders), the parallel store-day workers,
// the consistency pass, and progress/checkpoint bookkeeping.
//
// Determinism: every random draw comes from a substream keyed on
// (seed, purpose, date[, store, hour]), shared state is only mutated in
// the single-threaded planning phase or behind per-location ledger
// shards, and worker results are merged in store order. Two runs with
// the same seed and range produce byte-identical output regardless of
// worker count.
//
// Resume: the engine replays the configured range from its start so
// simulator state (balances, open shipments, campaigns) is rebuilt
// deterministically, and emits only facts whose event time falls in
// [checkpoint, end). Generating [A,C) in one call or as [A,B) then
// [B,C) therefore yields the same fact set with no duplicates.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openmart/retailgen/internal/config"
	"github.com/openmart/retailgen/internal/inventory"
	"github.com/openmart/retailgen/internal/journey"
	"github.com/openmart/retailgen/internal/marketing"
	"github.com/openmart/retailgen/internal/model"
	"github.com/openmart/retailgen/internal/orders"
	"github.com/openmart/retailgen/internal/rng"
	"github.com/openmart/retailgen/internal/rules"
	"github.com/openmart/retailgen/internal/sink"
	"github.com/openmart/retailgen/internal/temporal"
)

// Summary is the end-of-run accounting surfaced to the caller instead
// of errors for recoverable conditions.
type Summary struct {
	// Generated counts emitted rows per table, after the rules pass and
	// the emission window filter.
	Generated map[string]int
	// Dropped counts rows removed by the rules engine, per reason.
	Dropped map[string]int
	// Flags are consistency violations that could not be repaired.
	Flags []string
	// Warnings are soft conditions reported by the simulators.
	Warnings []string
	// DeferredUnits is replenishment demand pushed to later days by
	// truck or DC capacity limits. Deferred, never dropped.
	DeferredUnits int
	// Days is the number of simulated days, including replayed ones.
	Days int
}

// Engine drives one generation run. An Engine carries simulator state
// and must not be reused after Run returns; build a fresh one per run.
type Engine struct {
	cfg     *config.Config
	ref     *model.ReferenceData
	pattern *temporal.Pattern
	snk     sink.Sink
	tracker *Tracker

	src     *rng.Source
	ledger  *inventory.Ledger
	trucks  *inventory.Simulator
	mkt     *marketing.Simulator
	ord     *orders.Simulator
	visits  *journey.Simulator
	auditor *rules.Engine
}

// New wires the simulators for one run. Reference data problems are
// fatal here, before any generation work starts.
func New(cfg *config.Config, ref *model.ReferenceData, pattern *temporal.Pattern, snk sink.Sink) (*Engine, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	src := rng.New(cfg.Seed)
	ledger := inventory.NewLedger(ref, src.Stream("setup", "ledger"),
		cfg.Inventory.ReorderPoint, cfg.Inventory.ReorderTarget)
	trucks, err := inventory.NewSimulator(ref, ledger, cfg.Inventory)
	if err != nil {
		return nil, err
	}
	mkt := marketing.NewSimulator(ref, cfg.Marketing)
	return &Engine{
		cfg:     cfg,
		ref:     ref,
		pattern: pattern,
		snk:     snk,
		tracker: NewTracker(cfg.ProgressInterval),
		src:     src,
		ledger:  ledger,
		trucks:  trucks,
		mkt:     mkt,
		ord:     orders.NewSimulator(ref, ledger, cfg.Orders, cfg.BaseHourlyArrivals),
		visits:  journey.NewSimulator(ref, ledger, pattern, cfg, mkt),
		auditor: rules.New(ref),
	}, nil
}

// Tracker exposes the progress tracker for external status polling.
func (e *Engine) Tracker() *Tracker { return e.tracker }

// Progress reports the current run position. Safe to call from another
// goroutine while Run is in flight.
func (e *Engine) Progress() Report { return e.tracker.Snapshot() }

// Run generates the configured range. cp is the checkpoint from a
// previous run (zero for a fresh one); the returned checkpoint covers
// the full range and is only advanced on success. A cancelled or
// failed run returns the input checkpoint untouched, so a restart is
// safe.
func (e *Engine) Run(ctx context.Context, cp Checkpoint) (Checkpoint, *Summary, error) {
	start, end := e.cfg.Start, e.cfg.End
	sum := &Summary{
		Generated: make(map[string]int),
		Dropped:   make(map[string]int),
	}

	emitFrom := start
	if cp.HasHistoricalData {
		if !cp.LastGenerated.Before(end) {
			slog.Info("checkpoint already covers range, nothing to generate",
				"checkpoint", cp.LastGenerated, "end", end)
			return cp, sum, nil
		}
		if cp.LastGenerated.After(start) {
			emitFrom = cp.LastGenerated
			slog.Info("resuming from checkpoint",
				"checkpoint", emitFrom, "replay_from", start)
		}
	}

	e.tracker.Reset()
	for _, table := range model.Tables {
		e.tracker.StartTable(table)
	}

	if err := e.emitSnapshots(ctx, sum, start, emitFrom, end); err != nil {
		return cp, nil, err
	}

	totalDays := int(end.Sub(start).Hours()) / 24
	dayNo := 0
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		// Abort between days, never mid-day; the checkpoint stays put.
		if err := ctx.Err(); err != nil {
			return cp, nil, err
		}
		if err := e.runDay(ctx, sum, day, emitFrom, end); err != nil {
			for _, table := range model.Tables {
				e.tracker.FailTable(table)
			}
			return cp, nil, err
		}

		dayNo++
		frac := float64(dayNo) / float64(totalDays)
		for _, table := range model.Tables {
			e.tracker.UpdateProgress(table, frac)
		}
		e.tracker.SetClock(day.Format("2006-01-02"), 23)
		if rep, ok := e.tracker.ThrottledSnapshot(); ok {
			slog.Info("progress",
				"overall", fmt.Sprintf("%.1f%%", rep.Overall*100),
				"day", rep.CurrentDay)
		}
	}
	sum.Days = dayNo

	// Completion is explicit: tables sit at 1.0 progress but remain
	// in_progress until everything is appended.
	for _, table := range model.Tables {
		e.tracker.CompleteTable(table)
	}

	out := Checkpoint{
		LastGenerated:     end,
		HasHistoricalData: true,
		Tables:            make(map[string]bool, len(model.Tables)),
	}
	for _, table := range model.Tables {
		out.Tables[table] = true
	}
	return out, sum, nil
}

// emitSnapshots seeds the fact stream with INITIAL_SNAPSHOT rows so
// replaying all inventory transactions reproduces every balance. The
// emission filter drops them on resumed runs, which already emitted
// them.
func (e *Engine) emitSnapshots(ctx context.Context, sum *Summary, start, emitFrom, end time.Time) error {
	var snap model.FactBatch
	for _, dc := range e.ref.DCs {
		loc := model.LocationRef{Kind: model.LocationDC, ID: dc.ID}
		snap.InventoryTxns = append(snap.InventoryTxns, e.ledger.SnapshotTxns(loc, start)...)
	}
	for _, st := range e.ref.Stores {
		loc := model.LocationRef{Kind: model.LocationStore, ID: st.ID}
		snap.InventoryTxns = append(snap.InventoryTxns, e.ledger.SnapshotTxns(loc, start)...)
	}
	emit := filterWindow(&snap, emitFrom, end)
	if emit.Empty() {
		return nil
	}
	if err := e.snk.AppendBatch(ctx, &emit); err != nil {
		return fmt.Errorf("append snapshots: %w", err)
	}
	addCounts(sum.Generated, emit.Counts())
	return nil
}

// runDay executes one simulated day: sequential planning, parallel
// store-day workers, audit, emission.
func (e *Engine) runDay(ctx context.Context, sum *Summary, day, emitFrom, end time.Time) error {
	dayKey := day.Format("2006-01-02")

	// Planning phase. Single-threaded: trucks, campaign state, online
	// order state, and DC balances all mutate here.
	plan := e.trucks.PlanDay(e.src.Stream("inventory", dayKey), day)
	mktBatch := e.mkt.PlanDay(e.src.Stream("marketing", dayKey), day)
	ordBatch := e.ord.PlanDay(e.src.Stream("orders", dayKey), day)

	// Store-day workers. Each owns one store's hours 0..23 in order;
	// cross-store isolation comes from ledger sharding and per-store
	// substreams.
	results := make([]model.FactBatch, len(e.ref.Stores))
	warnings := make([][]string, len(e.ref.Stores))
	g, wctx := errgroup.WithContext(ctx)
	limit := e.cfg.Workers
	if !e.cfg.Parallel || limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i := range e.ref.Stores {
		g.Go(func() error {
			if err := wctx.Err(); err != nil {
				return err
			}
			results[i], warnings[i] = e.storeDay(&e.ref.Stores[i], day, plan)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var merged model.FactBatch
	merged.Merge(&plan.Batch)
	merged.Merge(&mktBatch)
	merged.Merge(&ordBatch)
	for i := range results {
		merged.Merge(&results[i])
		sum.Warnings = append(sum.Warnings, warnings[i]...)
	}

	cleaned, rep := e.auditor.Apply(&merged)
	addCounts(sum.Dropped, rep.Dropped)
	sum.Flags = append(sum.Flags, rep.Flags...)
	sum.DeferredUnits = e.trucks.DeferredUnits()

	emit := filterWindow(&cleaned, emitFrom, end)
	if err := e.snk.AppendBatch(ctx, &emit); err != nil {
		return fmt.Errorf("append day %s: %w", dayKey, err)
	}
	addCounts(sum.Generated, emit.Counts())
	return nil
}

// storeDay walks one store's 24 hours in order. Scheduled deliveries
// are credited at the start of their hour, before that hour's sales,
// so balances carry forward correctly hour to hour.
func (e *Engine) storeDay(store *model.Store, day time.Time, plan *inventory.DayPlan) (model.FactBatch, []string) {
	var batch model.FactBatch
	var warns []string
	dayKey := day.Format("2006-01-02")
	storeKey := strconv.FormatInt(store.ID, 10)
	loc := model.LocationRef{Kind: model.LocationStore, ID: store.ID}
	deliveries := plan.Deliveries[store.ID]

	for h := 0; h < 24; h++ {
		hourStart := day.Add(time.Duration(h) * time.Hour)
		hourEnd := hourStart.Add(time.Hour)
		for _, d := range deliveries {
			if d.Hour.Before(hourStart) || !d.Hour.Before(hourEnd) {
				continue
			}
			txn := e.ledger.Credit(loc, d.ProductID, d.Qty, d.ShipmentID, d.Hour)
			batch.InventoryTxns = append(batch.InventoryTxns, txn)
		}

		st := e.src.Stream("store", storeKey, dayKey, strconv.Itoa(h))
		res := e.visits.SimulateHour(st, *store, hourStart)
		batch.Merge(&res.Batch)
		warns = append(warns, res.Warnings...)
	}
	return batch, warns
}

// filterWindow keeps rows with from <= EventTime < to. This is the
// resume/emission boundary: replayed days regenerate state but only
// rows inside the window reach the sink.
func filterWindow(b *model.FactBatch, from, to time.Time) model.FactBatch {
	in := func(ts time.Time) bool { return !ts.Before(from) && ts.Before(to) }
	var out model.FactBatch
	for _, r := range b.Receipts {
		if in(r.EventTime) {
			out.Receipts = append(out.Receipts, r)
		}
	}
	kept := make(map[string]bool)
	for _, r := range out.Receipts {
		kept[r.ID] = true
	}
	for _, l := range b.ReceiptLines {
		if kept[l.ReceiptID] {
			out.ReceiptLines = append(out.ReceiptLines, l)
		}
	}
	for _, t := range b.InventoryTxns {
		if in(t.EventTime) {
			out.InventoryTxns = append(out.InventoryTxns, t)
		}
	}
	for _, m := range b.TruckMoves {
		if in(m.EventTime) {
			out.TruckMoves = append(out.TruckMoves, m)
		}
	}
	for _, f := range b.FootTraffic {
		if in(f.EventTime) {
			out.FootTraffic = append(out.FootTraffic, f)
		}
	}
	for _, p := range b.BLEPings {
		if in(p.EventTime) {
			out.BLEPings = append(out.BLEPings, p)
		}
	}
	for _, i := range b.Impressions {
		if in(i.EventTime) {
			out.Impressions = append(out.Impressions, i)
		}
	}
	for _, c := range b.Campaigns {
		if in(c.EventTime) {
			out.Campaigns = append(out.Campaigns, c)
		}
	}
	keptOrders := make(map[string]bool)
	for _, o := range b.OnlineOrders {
		if in(o.EventTime) {
			out.OnlineOrders = append(out.OnlineOrders, o)
			if o.Status == model.OrderCreated {
				keptOrders[o.ID] = true
			}
		}
	}
	for _, l := range b.OnlineOrderLines {
		if keptOrders[l.OrderID] {
			out.OnlineOrderLines = append(out.OnlineOrderLines, l)
		}
	}
	return out
}

func addCounts(dst map[string]int, src map[string]int) {
	for k, v := range src {
		dst[k] += v
	}
}
