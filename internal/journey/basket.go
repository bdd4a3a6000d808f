package journey

import (
	"github.com/shopspring/decimal"

	"github.com/openmart/retailgen/internal/model"
)

// segmentProfile drives basket construction for one customer segment.
type segmentProfile struct {
	// MeanLines is the expected distinct line count in a standard-format
	// store. Scaled by the store format's basket scale.
	MeanLines float64
	// MaxQty caps the per-line quantity draw.
	MaxQty int
	// PromoChance is the per-line probability of a promo code applying.
	PromoChance float64
	// DeptWeights biases product selection; departments not listed
	// weigh 1.0.
	DeptWeights map[string]float64
}

var segmentProfiles = map[model.CustomerSegment]segmentProfile{
	model.SegmentBudget: {
		MeanLines:   4.5,
		MaxQty:      3,
		PromoChance: 0.30,
		DeptWeights: map[string]float64{"grocery": 1.6, "household": 1.3, "electronics": 0.3, "apparel": 0.5},
	},
	model.SegmentFamily: {
		MeanLines:   7.0,
		MaxQty:      4,
		PromoChance: 0.18,
		DeptWeights: map[string]float64{"grocery": 1.4, "dairy": 1.4, "produce": 1.3, "bakery": 1.2, "electronics": 0.4},
	},
	model.SegmentPremium: {
		MeanLines:   5.0,
		MaxQty:      2,
		PromoChance: 0.05,
		DeptWeights: map[string]float64{"meat": 1.5, "produce": 1.4, "bakery": 1.3, "electronics": 1.2, "household": 0.7},
	},
	model.SegmentConvenience: {
		MeanLines:   2.2,
		MaxQty:      2,
		PromoChance: 0.08,
		DeptWeights: map[string]float64{"grocery": 1.3, "bakery": 1.2, "frozen": 1.2, "apparel": 0.2, "electronics": 0.2},
	},
	model.SegmentBulk: {
		MeanLines:   8.5,
		MaxQty:      6,
		PromoChance: 0.22,
		DeptWeights: map[string]float64{"grocery": 1.5, "household": 1.5, "frozen": 1.3, "apparel": 0.4},
	},
}

// promo is one promo code with its discount fraction. Weight biases
// which code is drawn once a line qualifies for a promotion.
type promo struct {
	Code   string
	PctOff float64
	Weight float64
}

var promos = []promo{
	{"SAVE5", 0.05, 2.0},
	{"SAVE10", 0.10, 1.5},
	{"FRESH15", 0.15, 1.0},
	{"WKND20", 0.20, 0.7},
	{"BOGO50", 0.50, 0.2},
	{"MEMBER7", 0.07, 1.8},
	{"APP10", 0.10, 1.2},
	{"SENIOR8", 0.08, 0.9},
	{"STUDENT12", 0.12, 0.6},
	{"CLEAR25", 0.25, 0.4},
	{"LOYAL6", 0.06, 1.6},
	{"FLASH18", 0.18, 0.5},
	{"HOLIDAY15", 0.15, 0.6},
}

var promoWeights = func() []float64 {
	w := make([]float64, len(promos))
	for i, p := range promos {
		w[i] = p.Weight
	}
	return w
}()

// tenderWeights orders cash, credit, debit, mobile.
var (
	tenders       = []model.TenderType{model.TenderCash, model.TenderCredit, model.TenderDebit, model.TenderMobile}
	tenderWeights = []float64{0.18, 0.38, 0.28, 0.16}
)

// lineTaxRate returns the effective tax rate for one product class at a
// store. Reduced-rate items are taxed at a configured fraction of the
// store rate, exempt items at zero.
func lineTaxRate(storeRate decimal.Decimal, class model.TaxClass, reducedMult float64) decimal.Decimal {
	switch class {
	case model.TaxReduced:
		return storeRate.Mul(decimal.NewFromFloat(reducedMult))
	case model.TaxExempt:
		return decimal.Zero
	default:
		return storeRate
	}
}
