package model

// FactBatch collects the facts emitted for one unit of work (typically
// one store-hour). Batches are merged in deterministic order before
// they reach the sink, so slice order inside a batch is significant.
type FactBatch struct {
	Receipts         []Receipt
	ReceiptLines     []ReceiptLine
	InventoryTxns    []InventoryTxn
	TruckMoves       []TruckMove
	FootTraffic      []FootTrafficEvent
	BLEPings         []BLEPing
	Impressions      []Impression
	Campaigns        []Campaign
	OnlineOrders     []OnlineOrder
	OnlineOrderLines []OnlineOrderLine
}

// Merge appends all rows from other onto b, preserving order.
func (b *FactBatch) Merge(other *FactBatch) {
	b.Receipts = append(b.Receipts, other.Receipts...)
	b.ReceiptLines = append(b.ReceiptLines, other.ReceiptLines...)
	b.InventoryTxns = append(b.InventoryTxns, other.InventoryTxns...)
	b.TruckMoves = append(b.TruckMoves, other.TruckMoves...)
	b.FootTraffic = append(b.FootTraffic, other.FootTraffic...)
	b.BLEPings = append(b.BLEPings, other.BLEPings...)
	b.Impressions = append(b.Impressions, other.Impressions...)
	b.Campaigns = append(b.Campaigns, other.Campaigns...)
	b.OnlineOrders = append(b.OnlineOrders, other.OnlineOrders...)
	b.OnlineOrderLines = append(b.OnlineOrderLines, other.OnlineOrderLines...)
}

// Counts returns the per-table row counts for this batch.
func (b *FactBatch) Counts() map[string]int {
	return map[string]int{
		TableReceipts:         len(b.Receipts),
		TableReceiptLines:     len(b.ReceiptLines),
		TableInventoryTxns:    len(b.InventoryTxns),
		TableTruckMoves:       len(b.TruckMoves),
		TableFootTraffic:      len(b.FootTraffic),
		TableBLEPings:         len(b.BLEPings),
		TableImpressions:      len(b.Impressions),
		TableCampaigns:        len(b.Campaigns),
		TableOnlineOrders:     len(b.OnlineOrders),
		TableOnlineOrderLines: len(b.OnlineOrderLines),
	}
}

// Empty reports whether the batch contains no rows at all.
func (b *FactBatch) Empty() bool {
	for _, n := range b.Counts() {
		if n > 0 {
			return false
		}
	}
	return true
}
