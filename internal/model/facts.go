package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fact table names. The sink, progress tracker, and checkpoint all key
// on these strings.
const (
	TableReceipts         = "receipts"
	TableReceiptLines     = "receipt_lines"
	TableInventoryTxns    = "inventory_transactions"
	TableTruckMoves       = "truck_moves"
	TableFootTraffic      = "foot_traffic"
	TableBLEPings         = "ble_pings"
	TableImpressions      = "impressions"
	TableCampaigns        = "campaigns"
	TableOnlineOrders     = "online_orders"
	TableOnlineOrderLines = "online_order_lines"
)

// Tables lists every fact table in declaration order. The order is
// stable and used for deterministic iteration everywhere a per-table
// loop occurs.
var Tables = []string{
	TableReceipts,
	TableReceiptLines,
	TableInventoryTxns,
	TableTruckMoves,
	TableFootTraffic,
	TableBLEPings,
	TableImpressions,
	TableCampaigns,
	TableOnlineOrders,
	TableOnlineOrderLines,
}

// TenderType is how a receipt was paid.
type TenderType string

const (
	TenderCash   TenderType = "cash"
	TenderCredit TenderType = "credit"
	TenderDebit  TenderType = "debit"
	TenderMobile TenderType = "mobile"
)

// Receipt is one completed in-store basket.
//
// Invariant: Total = Subtotal - Discount + Tax, exact to the cent.
// AttributedCampaign is empty for organic visits and carries a campaign
// ID when the purchase converted inside a marketing attribution window.
type Receipt struct {
	TraceID            string
	ID                 string
	StoreID            int64
	CustomerID         int64
	EventTime          time.Time
	Subtotal           decimal.Decimal
	Discount           decimal.Decimal
	Tax                decimal.Decimal
	Total              decimal.Decimal
	Tender             TenderType
	AttributedCampaign string
}

// ReceiptLine is one product entry on a receipt.
type ReceiptLine struct {
	TraceID   string
	ReceiptID string
	LineNo    int
	ProductID int64
	Qty       int
	UnitPrice decimal.Decimal
	Extended  decimal.Decimal
	PromoCode string
	Discount  decimal.Decimal
}

// TxnReason is the reason code on an inventory transaction.
type TxnReason string

const (
	ReasonSale             TxnReason = "SALE"
	ReasonAdjustment       TxnReason = "ADJUSTMENT"
	ReasonInboundShipment  TxnReason = "INBOUND_SHIPMENT"
	ReasonOutboundShipment TxnReason = "OUTBOUND_SHIPMENT"
	ReasonInitialSnapshot  TxnReason = "INITIAL_SNAPSHOT"
)

// LocationKind distinguishes store-scoped from DC-scoped transactions.
type LocationKind string

const (
	LocationStore LocationKind = "store"
	LocationDC    LocationKind = "dc"
)

// LocationRef identifies one inventory location.
type LocationRef struct {
	Kind LocationKind
	ID   int64
}

// InventoryTxn is one signed balance movement at a location.
//
// Delta is the applied quantity change; the running balance per
// (location, product) never goes below zero. When a sale could not be
// fully covered, Delta reflects the units actually relieved and an
// ADJUSTMENT row with Delta=0 carries the unmet quantity in Shortfall,
// so shortage is tracked rather than hidden.
type InventoryTxn struct {
	TraceID   string
	Location  LocationRef
	ProductID int64
	Delta     int
	Shortfall int
	Reason    TxnReason
	SourceRef string
	EventTime time.Time
}

// ShipmentState is one state of the truck shipment lifecycle. See the
// inventory package for the legal transition table.
type ShipmentState string

const (
	ShipmentScheduled ShipmentState = "SCHEDULED"
	ShipmentLoading   ShipmentState = "LOADING"
	ShipmentInTransit ShipmentState = "IN_TRANSIT"
	ShipmentDelayed   ShipmentState = "DELAYED"
	ShipmentArrived   ShipmentState = "ARRIVED"
	ShipmentUnloading ShipmentState = "UNLOADING"
	ShipmentCompleted ShipmentState = "COMPLETED"
)

// TruckMove is one observed shipment state transition. One row is
// emitted per transition, so the full lifecycle of a shipment is an
// append-only series of moves sharing a ShipmentID.
type TruckMove struct {
	TraceID    string
	ShipmentID string
	TruckID    int64
	OriginDC   int64
	DestStore  int64
	Status     ShipmentState
	ETD        time.Time
	ETA        time.Time
	EventTime  time.Time
}

// FootTrafficEvent is one door-sensor observation. CustomerID is zero
// when the sensor could not resolve a customer (the common case).
type FootTrafficEvent struct {
	TraceID      string
	StoreID      int64
	SensorID     string
	Zone         string
	DwellMinutes int
	CustomerID   int64
	EventTime    time.Time
}

// BLEPing is one beacon observation resolved from the same visit set
// that produces receipts, which is what makes the presence funnel hold
// by construction.
type BLEPing struct {
	TraceID      string
	StoreID      int64
	BeaconID     string
	Zone         string
	DwellMinutes int
	CustomerID   int64
	EventTime    time.Time
}

// CampaignStatus is the marketing campaign lifecycle state.
type CampaignStatus string

const (
	CampaignNotStarted CampaignStatus = "not_started"
	CampaignActive     CampaignStatus = "active"
	CampaignEnded      CampaignStatus = "ended"
)

// Campaign is one marketing campaign lifecycle event. A row is emitted
// when a campaign starts and another when it ends.
type Campaign struct {
	TraceID   string
	ID        string
	Name      string
	Channel   string
	Status    CampaignStatus
	Start     time.Time
	End       time.Time
	EventTime time.Time
}

// Impression is one served ad. Cost is derived from the channel's cost
// range and the device multiplier. CustomerID is zero for unresolved
// impressions.
type Impression struct {
	TraceID    string
	CampaignID string
	Channel    string
	Device     string
	Cost       decimal.Decimal
	CustomerID int64
	EventTime  time.Time
}

// FulfillmentMode is how an online order is fulfilled.
type FulfillmentMode string

const (
	FulfillShipFromDC    FulfillmentMode = "ship_from_dc"
	FulfillShipFromStore FulfillmentMode = "ship_from_store"
	FulfillPickup        FulfillmentMode = "pickup"
)

// OrderStatus is the online order progression.
type OrderStatus string

const (
	OrderCreated   OrderStatus = "created"
	OrderPicked    OrderStatus = "picked"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
)

// OnlineOrder is one online order status event. Like TruckMove, one row
// is emitted per status transition.
type OnlineOrder struct {
	TraceID    string
	ID         string
	CustomerID int64
	Mode       FulfillmentMode
	NodeKind   LocationKind
	NodeID     int64
	Status     OrderStatus
	Total      decimal.Decimal
	EventTime  time.Time
}

// OnlineOrderLine is one product entry on an online order, emitted once
// at order creation.
type OnlineOrderLine struct {
	TraceID   string
	OrderID   string
	LineNo    int
	ProductID int64
	Qty       int
	UnitPrice decimal.Decimal
	Extended  decimal.Decimal
}
