// Package journey simulates customer visits for one store-hour: the
// arrival draw, the presence funnel (door sensor, BLE beacon, receipt),
// and basket construction with promotions and taxes.
//
// The funnel holds by construction: every BLE ping belongs to a door
// visit and every receipt belongs to a BLE-resolved visitor, so
// foot traffic >= BLE pings >= receipts for any store-hour without a
// repair pass.
package journey

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openmart/retailgen/internal/config"
	"github.com/openmart/retailgen/internal/inventory"
	"github.com/openmart/retailgen/internal/model"
	"github.com/openmart/retailgen/internal/profile"
	"github.com/openmart/retailgen/internal/rng"
	"github.com/openmart/retailgen/internal/temporal"
)

// homeVisitShare is the minimum share of a store's identified visits
// drawn from customers who rank it in their top-two home stores.
const homeVisitShare = 0.72

// sensorResolveRate is how often the door sensor resolves a loyalty
// identity on its own. Door counts are mostly anonymous.
const sensorResolveRate = 0.15

// maxBuyProbability caps the lifted conversion probability.
const maxBuyProbability = 0.95

var zones = []string{"entrance", "grocery", "fresh", "center", "checkout"}

// Influence reports whether a customer sits inside an active marketing
// attribution window at the given time. Implemented by the marketing
// simulator; a nil Influence means no campaign pressure.
type Influence interface {
	Primed(customerID int64, ts time.Time) (campaignID string, ok bool)
}

// HourResult is the outcome of one store-hour.
type HourResult struct {
	Batch    model.FactBatch
	Visits   int
	Receipts int
	Warnings []string
}

// Simulator generates store-hour facts. It is safe for concurrent use
// across distinct store-hours: all mutable state lives in the ledger,
// which shards per location, and all randomness comes from the caller's
// stream.
type Simulator struct {
	ref     *model.ReferenceData
	ledger  *inventory.Ledger
	pattern *temporal.Pattern

	baseRate    float64
	reducedMult float64
	lift        float64
	cfg         config.Journey

	influence Influence

	// homeByStore lists customers ranking the store in their top-two
	// home stores, in customer order. otherIDs is every customer ID.
	homeByStore map[int64][]int64
	otherIDs    []int64

	// productWeights is the per-segment selection weight of each product
	// in reference order.
	productWeights map[model.CustomerSegment][]float64
}

// NewSimulator indexes customers and products for deterministic
// selection. influence may be nil.
func NewSimulator(ref *model.ReferenceData, ledger *inventory.Ledger, pattern *temporal.Pattern, cfg *config.Config, influence Influence) *Simulator {
	s := &Simulator{
		ref:         ref,
		ledger:      ledger,
		pattern:     pattern,
		baseRate:    cfg.BaseHourlyArrivals,
		reducedMult: cfg.ReducedTaxMultiplier,
		lift:        cfg.Marketing.ConversionLift,
		cfg:         cfg.Journey,
		influence:   influence,
		homeByStore: make(map[int64][]int64),
	}
	for _, c := range ref.Customers {
		top := c.HomeStores
		if len(top) > 2 {
			top = top[:2]
		}
		for _, sid := range top {
			s.homeByStore[sid] = append(s.homeByStore[sid], c.ID)
		}
		s.otherIDs = append(s.otherIDs, c.ID)
	}
	s.productWeights = make(map[model.CustomerSegment][]float64, len(model.Segments))
	for _, seg := range model.Segments {
		prof := segmentProfiles[seg]
		w := make([]float64, len(ref.Products))
		for i, p := range ref.Products {
			w[i] = 1.0
			if dw, ok := prof.DeptWeights[p.Department]; ok {
				w[i] = dw
			}
		}
		s.productWeights[seg] = w
	}
	return s
}

// SimulateHour runs one store-hour. ts is the start of the hour; all
// facts carry event times inside [ts, ts+1h). Randomness comes entirely
// from st, which the orchestrator derives from (seed, store, hour).
func (s *Simulator) SimulateHour(st *rng.Stream, store model.Store, ts time.Time) *HourResult {
	res := &HourResult{}
	factor := s.pattern.Factor(ts, store.Hours)
	if factor == 0 {
		return res
	}

	rate := profile.HourlyRate(store, factor, s.baseRate)
	visitors := st.Poisson(rate)
	browsers := st.Poisson(rate * s.cfg.BrowserRate)
	res.Visits = visitors

	if len(s.ref.Products) == 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("store %d: empty product catalog, visits generate no sales", store.ID))
	}

	// Browsers pass the door sensor and leave. Always anonymous.
	footSeq := 0
	for i := 0; i < browsers; i++ {
		footSeq++
		res.Batch.FootTraffic = append(res.Batch.FootTraffic,
			s.footEvent(st, store, ts, footSeq, 0, st.IntBetween(1, 5)))
	}

	seq := 0
	for i := 0; i < visitors; i++ {
		cust := s.pickCustomer(st, store.ID)
		if cust == nil {
			continue
		}
		dwell := st.IntBetween(8, 45)

		sensorID := int64(0)
		if st.Chance(sensorResolveRate) {
			sensorID = cust.ID
		}
		footSeq++
		res.Batch.FootTraffic = append(res.Batch.FootTraffic,
			s.footEvent(st, store, ts, footSeq, sensorID, dwell))

		// Only visitors whose phone attaches to a beacon can be tied to
		// a purchase.
		if !st.Chance(s.cfg.BLEAttachRate) {
			continue
		}
		zone := zones[st.IntBetween(0, len(zones)-1)]
		pingAt := ts.Add(time.Duration(st.IntBetween(0, 59)) * time.Minute)
		res.Batch.BLEPings = append(res.Batch.BLEPings, model.BLEPing{
			TraceID:      model.TraceIDf(model.TableBLEPings, "%d:%s:%d:%d", store.ID, ts.Format("2006010215"), cust.ID, i),
			StoreID:      store.ID,
			BeaconID:     fmt.Sprintf("%d-%s", store.ID, zone),
			Zone:         zone,
			DwellMinutes: dwell,
			CustomerID:   cust.ID,
			EventTime:    pingAt,
		})

		buyP := s.cfg.BuyRate
		campaignID := ""
		if s.influence != nil {
			if id, ok := s.influence.Primed(cust.ID, ts); ok {
				campaignID = id
				buyP = min(buyP*s.lift, maxBuyProbability)
			}
		}
		if !st.Chance(buyP) {
			continue
		}

		seq++
		if rcpt, lines, txns := s.buildReceipt(st, store, cust, ts, seq, campaignID); rcpt != nil {
			res.Batch.Receipts = append(res.Batch.Receipts, *rcpt)
			res.Batch.ReceiptLines = append(res.Batch.ReceiptLines, lines...)
			res.Batch.InventoryTxns = append(res.Batch.InventoryTxns, txns...)
			res.Receipts++
		} else {
			res.Batch.InventoryTxns = append(res.Batch.InventoryTxns, txns...)
		}
	}
	return res
}

func (s *Simulator) footEvent(st *rng.Stream, store model.Store, ts time.Time, seq int, customerID int64, dwell int) model.FootTrafficEvent {
	zone := zones[st.IntBetween(0, len(zones)-1)]
	at := ts.Add(time.Duration(st.IntBetween(0, 59)) * time.Minute)
	return model.FootTrafficEvent{
		TraceID: model.TraceIDf(model.TableFootTraffic, "%d:%s:%d",
			store.ID, ts.Format("2006010215"), seq),
		StoreID:      store.ID,
		SensorID:     fmt.Sprintf("%d-door-%s", store.ID, zone),
		Zone:         zone,
		DwellMinutes: dwell,
		CustomerID:   customerID,
		EventTime:    at,
	}
}

// pickCustomer draws a visiting customer, biased so that most
// identified visits come from the store's home-ranked customers.
func (s *Simulator) pickCustomer(st *rng.Stream, storeID int64) *model.Customer {
	if len(s.otherIDs) == 0 {
		return nil
	}
	home := s.homeByStore[storeID]
	var id int64
	if len(home) > 0 && st.Chance(homeVisitShare) {
		id = home[st.IntBetween(0, len(home)-1)]
	} else {
		id = s.otherIDs[st.IntBetween(0, len(s.otherIDs)-1)]
	}
	return s.ref.CustomerByID(id)
}

// buildReceipt assembles one basket. Line quantities are clamped to
// shelf stock by the ledger; lines that could not be fulfilled at all
// are dropped from the receipt while their shortfall transactions are
// kept, so missed demand stays visible. Returns a nil receipt when
// nothing on the basket was in stock.
func (s *Simulator) buildReceipt(st *rng.Stream, store model.Store, cust *model.Customer, ts time.Time, seq int, campaignID string) (*model.Receipt, []model.ReceiptLine, []model.InventoryTxn) {
	if len(s.ref.Products) == 0 {
		return nil, nil, nil
	}
	prof := segmentProfiles[cust.Segment]
	scale := profile.BasketScale(store.Format)
	mean := prof.MeanLines*scale - 1
	if mean < 0 {
		mean = 0
	}
	nLines := 1 + st.Poisson(mean)

	receiptID := fmt.Sprintf("RCP-%d-%s-%04d", store.ID, ts.Format("2006010215"), seq)
	at := ts.Add(time.Duration(st.IntBetween(0, 59)) * time.Minute)
	loc := model.LocationRef{Kind: model.LocationStore, ID: store.ID}
	weights := s.productWeights[cust.Segment]

	// Draw products, merging repeat picks into the existing line.
	type draft struct {
		product *model.Product
		qty     int
		promo   string
		pctOff  float64
	}
	var drafts []draft
	byProduct := make(map[int64]int)
	for i := 0; i < nLines; i++ {
		p := &s.ref.Products[st.WeightedIndex(weights)]
		qty := st.IntBetween(1, prof.MaxQty)
		if idx, ok := byProduct[p.ID]; ok {
			drafts[idx].qty += qty
			continue
		}
		d := draft{product: p, qty: qty}
		if st.Chance(prof.PromoChance) {
			pr := promos[st.WeightedIndex(promoWeights)]
			d.promo = pr.Code
			d.pctOff = pr.PctOff
		}
		byProduct[p.ID] = len(drafts)
		drafts = append(drafts, d)
	}

	var (
		lines    []model.ReceiptLine
		txns     []model.InventoryTxn
		subtotal = decimal.Zero
		discount = decimal.Zero
		tax      = decimal.Zero
	)
	for _, d := range drafts {
		sold := s.ledger.Consume(loc, d.product.ID, d.qty, receiptID, at)
		txns = append(txns, sold...)
		qty := -sold[0].Delta
		if qty == 0 {
			continue
		}
		ext := d.product.SalePrice.Mul(decimal.NewFromInt(int64(qty))).Round(2)
		var disc decimal.Decimal
		if d.pctOff > 0 {
			disc = ext.Mul(decimal.NewFromFloat(d.pctOff)).Round(2)
		}
		rate := lineTaxRate(store.TaxRate, d.product.TaxClass, s.reducedMult)
		tax = tax.Add(ext.Sub(disc).Mul(rate))
		subtotal = subtotal.Add(ext)
		discount = discount.Add(disc)

		lineNo := len(lines) + 1
		lines = append(lines, model.ReceiptLine{
			TraceID:   model.TraceIDf(model.TableReceiptLines, "%s:%d", receiptID, lineNo),
			ReceiptID: receiptID,
			LineNo:    lineNo,
			ProductID: d.product.ID,
			Qty:       qty,
			UnitPrice: d.product.SalePrice,
			Extended:  ext,
			PromoCode: d.promo,
			Discount:  disc,
		})
	}
	if len(lines) == 0 {
		return nil, nil, txns
	}

	tax = tax.Round(2)
	rcpt := &model.Receipt{
		TraceID:            model.TraceID(model.TableReceipts, receiptID),
		ID:                 receiptID,
		StoreID:            store.ID,
		CustomerID:         cust.ID,
		EventTime:          at,
		Subtotal:           subtotal,
		Discount:           discount,
		Tax:                tax,
		Total:              subtotal.Sub(discount).Add(tax),
		Tender:             tenders[st.WeightedIndex(tenderWeights)],
		AttributedCampaign: campaignID,
	}
	return rcpt, lines, txns
}
