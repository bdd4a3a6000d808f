package inventory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmart/retailgen/internal/model"
	"github.com/openmart/retailgen/internal/rng"
)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// twoStoreRef builds a small hand-rolled reference set: two stores, one
// DC, one reefer truck, one ambient truck, one refrigerated and one
// ambient product.
func twoStoreRef() *model.ReferenceData {
	dc := int64(1000)
	ref := &model.ReferenceData{
		Stores: []model.Store{
			{ID: 1, Name: "store-001", TaxRate: money("0.06"), Format: model.FormatStandard,
				Hours: model.OperatingHours{Open: 8, Close: 21}, Tier: model.Tier3, TrafficMultiplier: 1.0},
			{ID: 2, Name: "store-002", TaxRate: money("0.06"), Format: model.FormatStandard,
				Hours: model.OperatingHours{Open: 8, Close: 21}, Tier: model.Tier3, TrafficMultiplier: 1.0},
		},
		DCs: []model.DistributionCenter{{ID: dc, Name: "dc-01"}},
		Trucks: []model.Truck{
			{ID: 5000, Refrigerated: false, HomeDC: &dc},
			{ID: 5001, Refrigerated: true, HomeDC: &dc},
		},
		Customers: []model.Customer{
			{ID: 10000, Segment: model.SegmentFamily, HomeStores: []int64{1, 2}},
		},
		Products: []model.Product{
			{ID: 20000, Name: "pantry-item", Department: "grocery",
				Cost: money("2.00"), MSRP: money("4.00"), SalePrice: money("3.00"), TaxClass: model.TaxReduced},
			{ID: 20001, Name: "frozen-item", Department: "frozen", Refrigerated: true,
				Cost: money("3.00"), MSRP: money("7.00"), SalePrice: money("5.50"), TaxClass: model.TaxStandard},
		},
	}
	ref.Index()
	return ref
}

var (
	store1 = model.LocationRef{Kind: model.LocationStore, ID: 1}
	dcLoc  = model.LocationRef{Kind: model.LocationDC, ID: 1000}
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(twoStoreRef(), rng.New(42).Stream("ledger"), 60, 200)
}

func TestLedger_SeedBalancesInRange(t *testing.T) {
	l := testLedger(t)
	bal := l.Balance(store1, 20000)
	require.GreaterOrEqual(t, bal, 60)
	require.LessOrEqual(t, bal, 200)
	assert.Greater(t, l.Balance(dcLoc, 20000), 200, "DC should start deep")
}

func TestLedger_ConsumeDecrements(t *testing.T) {
	l := testLedger(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	before := l.Balance(store1, 20000)

	txns := l.Consume(store1, 20000, 5, "R-1", ts)
	require.Len(t, txns, 1)
	assert.Equal(t, -5, txns[0].Delta)
	assert.Equal(t, model.ReasonSale, txns[0].Reason)
	assert.Equal(t, before-5, l.Balance(store1, 20000))
}

func TestLedger_ConsumeClampsAtZeroAndTracksShortfall(t *testing.T) {
	l := testLedger(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	bal := l.Balance(store1, 20000)

	txns := l.Consume(store1, 20000, bal+7, "R-2", ts)
	require.Len(t, txns, 2, "clamped sale emits SALE plus ADJUSTMENT signal")

	sale, adj := txns[0], txns[1]
	assert.Equal(t, -bal, sale.Delta, "sale relieves only what was on hand")
	assert.Equal(t, model.ReasonAdjustment, adj.Reason)
	assert.Zero(t, adj.Delta, "adjustment signal must not move the balance")
	assert.Equal(t, 7, adj.Shortfall)

	assert.Zero(t, l.Balance(store1, 20000), "balance never goes negative")
	assert.Equal(t, map[int64]int{20000: 7}, l.Shortfalls(store1))
}

func TestLedger_RunningBalanceNeverNegative(t *testing.T) {
	l := testLedger(t)
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	var txns []model.InventoryTxn
	txns = append(txns, l.SnapshotTxns(store1, ts)...)
	for i := 0; i < 50; i++ {
		txns = append(txns, l.Consume(store1, 20000, 9, "R", ts.Add(time.Duration(i)*time.Minute))...)
	}
	txns = append(txns, l.Credit(store1, 20000, 40, "SHP-1", ts.Add(time.Hour)))

	// Replay in emission order: the running balance must stay >= 0.
	running := make(map[int64]int)
	for _, txn := range txns {
		running[txn.ProductID] += txn.Delta
		require.GreaterOrEqual(t, running[txn.ProductID], 0, "txn %s", txn.TraceID)
	}
}

func TestLedger_CreditIncrements(t *testing.T) {
	l := testLedger(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	before := l.Balance(store1, 20001)

	txn := l.Credit(store1, 20001, 25, "SHP-9", ts)
	assert.Equal(t, model.ReasonInboundShipment, txn.Reason)
	assert.Equal(t, 25, txn.Delta)
	assert.Equal(t, before+25, l.Balance(store1, 20001))
}

func TestLedger_DebitOutboundClamps(t *testing.T) {
	l := testLedger(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	bal := l.Balance(dcLoc, 20000)

	shipped, txn := l.DebitOutbound(dcLoc, 20000, bal+500, "SHP-3", ts)
	assert.Equal(t, bal, shipped)
	assert.Equal(t, -bal, txn.Delta)
	assert.Equal(t, model.ReasonOutboundShipment, txn.Reason)
	assert.Zero(t, l.Balance(dcLoc, 20000))
}

func TestLedger_SnapshotOrderedByProduct(t *testing.T) {
	l := testLedger(t)
	txns := l.SnapshotTxns(store1, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.Len(t, txns, 2)
	assert.Equal(t, int64(20000), txns[0].ProductID)
	assert.Equal(t, int64(20001), txns[1].ProductID)
	for _, txn := range txns {
		assert.Equal(t, model.ReasonInitialSnapshot, txn.Reason)
	}
}

func TestLedger_ResetShortfall(t *testing.T) {
	l := testLedger(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	bal := l.Balance(store1, 20000)
	l.Consume(store1, 20000, bal+3, "R-4", ts)
	require.NotEmpty(t, l.Shortfalls(store1))

	l.ResetShortfall(store1, 20000)
	assert.Empty(t, l.Shortfalls(store1))
}
