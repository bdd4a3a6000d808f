// Package profile assigns static traffic profiles to stores.
//
// Tier assignment, urban bias, and the per-store traffic multiplier are
// all decided once at setup from the run's setup RNG stream; from that
// point the profile is read-only reference data. Final expected hourly
// arrivals for a store are:
//
//	baseRate * temporal.Factor(ts, store.Hours) * store.TrafficMultiplier
package profile

import (
	"github.com/openmart/retailgen/internal/model"
	"github.com/openmart/retailgen/internal/rng"
)

// tierShares is the fixed population proportion of each tier, Tier1
// (flagship) through Tier5 (low volume). Sums to 1.
var tierShares = [model.NumTiers]float64{0.08, 0.17, 0.30, 0.28, 0.17}

// multiplierRange is the per-tier [lo, hi) range the store's traffic
// multiplier is drawn from.
var multiplierRange = [model.NumTiers][2]float64{
	{2.2, 3.0},
	{1.5, 2.2},
	{0.9, 1.5},
	{0.6, 0.9},
	{0.35, 0.6},
}

// urbanTierBoost shifts an urban store's tier draw toward the busy
// tiers. Applied at assignment time only.
const urbanTierBoost = 1.8

// formatBasketScale scales expected basket size by store format.
var formatBasketScale = map[model.StoreFormat]float64{
	model.FormatCompact:  0.7,
	model.FormatStandard: 1.0,
	model.FormatSuper:    1.45,
}

// Assign draws a volume tier and traffic multiplier for every store in
// place. Stores are processed in slice order and all draws come from
// the supplied stream, so assignment is deterministic per seed.
func Assign(stores []model.Store, st *rng.Stream) {
	for i := range stores {
		weights := make([]float64, model.NumTiers)
		for t := 0; t < model.NumTiers; t++ {
			weights[t] = tierShares[t]
			// Urban geography biases toward the top two tiers.
			if stores[i].Geo.Urban && t < 2 {
				weights[t] *= urbanTierBoost
			}
		}
		tier := st.WeightedIndex(weights)
		stores[i].Tier = model.VolumeTier(tier + 1)
		r := multiplierRange[tier]
		stores[i].TrafficMultiplier = st.Uniform(r[0], r[1])
	}
}

// HourlyRate is the expected customer arrival rate for one store-hour.
// factor is the temporal demand factor (already zero outside operating
// hours), baseRate the configured network-wide baseline arrivals/hour.
func HourlyRate(store model.Store, factor, baseRate float64) float64 {
	return baseRate * factor * store.TrafficMultiplier
}

// BasketScale returns the basket-size multiplier for a store format.
// Unknown formats behave as standard.
func BasketScale(format model.StoreFormat) float64 {
	if s, ok := formatBasketScale[format]; ok {
		return s
	}
	return 1.0
}

// MultiplierRange exposes the tier's draw range. Used by validation and
// tests to assert assigned multipliers stay in range.
func MultiplierRange(tier model.VolumeTier) (lo, hi float64) {
	r := multiplierRange[int(tier)-1]
	return r[0], r[1]
}
