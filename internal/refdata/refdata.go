// Package refdata builds the synthetic reference dimensions a run needs
// when no externally supplied dictionaries are wired in. Dimension
// generation proper is outside the engine; this builder exists so the
// CLI and tests have a realistic, deterministic precondition dataset.
package refdata

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/openmart/retailgen/internal/config"
	"github.com/openmart/retailgen/internal/model"
	"github.com/openmart/retailgen/internal/profile"
	"github.com/openmart/retailgen/internal/rng"
)

var departments = []string{
	"grocery", "dairy", "frozen", "produce", "meat",
	"bakery", "household", "health", "electronics", "apparel",
}

var cities = []struct {
	city  string
	state string
	urban bool
}{
	{"Springfield", "IL", false},
	{"Portland", "OR", true},
	{"Austin", "TX", true},
	{"Madison", "WI", false},
	{"Denver", "CO", true},
	{"Asheville", "NC", false},
	{"Columbus", "OH", true},
	{"Boise", "ID", false},
}

// taxRates per state keep tax computation varied but deterministic.
var taxRates = map[string]string{
	"IL": "0.0625", "OR": "0.0", "TX": "0.0825", "WI": "0.05",
	"CO": "0.029", "NC": "0.0475", "OH": "0.0575", "ID": "0.06",
}

// Build assembles a deterministic reference dataset sized by cfg. The
// same seed and sizing always produce the same dimensions, which is a
// precondition for reproducible fact output.
func Build(cfg config.Reference, src *rng.Source) (*model.ReferenceData, error) {
	st := src.Stream("refdata")
	ref := &model.ReferenceData{}

	for i := 0; i < cfg.DCs; i++ {
		loc := cities[i%len(cities)]
		ref.DCs = append(ref.DCs, model.DistributionCenter{
			ID:   int64(1000 + i),
			Name: fmt.Sprintf("dc-%02d", i+1),
			Geo:  model.Geography{City: loc.city, State: loc.state, Urban: loc.urban},
		})
	}

	for i := 0; i < cfg.Stores; i++ {
		loc := cities[i%len(cities)]
		format := model.FormatStandard
		switch {
		case st.Chance(0.25):
			format = model.FormatCompact
		case st.Chance(0.2):
			format = model.FormatSuper
		}
		open := st.IntBetween(6, 9)
		ref.Stores = append(ref.Stores, model.Store{
			ID:      int64(i + 1),
			Name:    fmt.Sprintf("store-%03d", i+1),
			Geo:     model.Geography{City: loc.city, State: loc.state, Urban: loc.urban},
			TaxRate: decimal.RequireFromString(taxRates[loc.state]),
			Format:  format,
			Hours:   model.OperatingHours{Open: open, Close: open + st.IntBetween(12, 15)},
		})
	}
	profile.Assign(ref.Stores, src.Stream("refdata", "profiles"))

	// Trucks: roughly 3 per DC plus a shared pool. TruckDCRatio is the
	// fraction bound to a home DC; the rest float.
	truckCount := cfg.DCs*3 + 2
	for i := 0; i < truckCount; i++ {
		t := model.Truck{
			ID:           int64(5000 + i),
			Refrigerated: st.Chance(0.4),
		}
		if st.Chance(cfg.TruckDCRatio) {
			home := ref.DCs[i%len(ref.DCs)].ID
			t.HomeDC = &home
		}
		ref.Trucks = append(ref.Trucks, t)
	}

	for i := 0; i < cfg.Customers; i++ {
		loc := cities[i%len(cities)]
		// Home stores: two stores in the customer's city when possible,
		// padded from the full list.
		var home []int64
		for _, s := range ref.Stores {
			if s.Geo.City == loc.city {
				home = append(home, s.ID)
			}
			if len(home) == 2 {
				break
			}
		}
		for j := 0; len(home) < 2 && j < len(ref.Stores); j++ {
			home = append(home, ref.Stores[j].ID)
		}
		ref.Customers = append(ref.Customers, model.Customer{
			ID:         int64(10000 + i),
			Geo:        model.Geography{City: loc.city, State: loc.state, Urban: loc.urban},
			Segment:    model.Segments[st.WeightedIndex([]float64{0.24, 0.28, 0.15, 0.21, 0.12})],
			HomeStores: home,
		})
	}

	for i := 0; i < cfg.Products; i++ {
		dept := departments[i%len(departments)]
		cost := decimal.NewFromFloat(st.Uniform(0.5, 40)).Round(2)
		markup := decimal.NewFromFloat(st.Uniform(1.2, 2.4))
		msrp := cost.Mul(markup).Round(2)
		// Sale price sits strictly between cost and MSRP.
		sale := cost.Add(msrp.Sub(cost).Mul(decimal.NewFromFloat(st.Uniform(0.5, 0.95)))).Round(2)
		if sale.LessThanOrEqual(cost) {
			sale = cost.Add(decimal.NewFromFloat(0.01))
		}
		if sale.GreaterThan(msrp) {
			sale = msrp
		}
		taxClass := model.TaxStandard
		switch dept {
		case "grocery", "produce", "bakery":
			taxClass = model.TaxReduced
		case "health":
			taxClass = model.TaxExempt
		}
		ref.Products = append(ref.Products, model.Product{
			ID:           int64(20000 + i),
			Name:         fmt.Sprintf("%s-item-%04d", dept, i+1),
			Department:   dept,
			Cost:         cost,
			MSRP:         msrp,
			SalePrice:    sale,
			TaxClass:     taxClass,
			Refrigerated: dept == "dairy" || dept == "frozen" || dept == "meat",
		})
	}

	ref.Index()
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return ref, nil
}
