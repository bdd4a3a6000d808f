package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Geography locates a store, DC, or customer at city granularity.
// Urban geographies bias stores toward higher volume tiers at profile
// assignment time; customer proximity is modeled through home-store
// assignment rather than coordinates.
type Geography struct {
	City  string
	State string
	Urban bool
}

// OperatingHours is the half-open daily window [Open, Close) in local
// hours. A store with Open=8, Close=21 trades from 08:00 to 20:59.
type OperatingHours struct {
	Open  int
	Close int
}

// Contains reports whether the given hour of day falls inside the window.
func (h OperatingHours) Contains(hour int) bool {
	return hour >= h.Open && hour < h.Close
}

// VolumeTier ranks stores by expected traffic. Tier1 is the busiest.
type VolumeTier int

const (
	Tier1 VolumeTier = iota + 1
	Tier2
	Tier3
	Tier4
	Tier5
)

// NumTiers is the fixed size of the tier population.
const NumTiers = 5

// StoreFormat scales expected basket size. Compact stores sell fewer
// items per trip; super formats sell more.
type StoreFormat string

const (
	FormatCompact  StoreFormat = "compact"
	FormatStandard StoreFormat = "standard"
	FormatSuper    StoreFormat = "super"
)

// Store is a retail location. TaxRate is the store's combined sales tax
// rate (e.g. 0.0825). TrafficMultiplier is drawn once at profile
// assignment from the tier's range and never changes during a run.
type Store struct {
	ID                int64
	Name              string
	Geo               Geography
	TaxRate           decimal.Decimal
	Tier              VolumeTier
	Format            StoreFormat
	Hours             OperatingHours
	TrafficMultiplier float64
}

// DistributionCenter is a replenishment origin.
type DistributionCenter struct {
	ID   int64
	Name string
	Geo  Geography
}

// Truck hauls shipments from a DC to stores. HomeDC is nil for pool
// trucks that any DC may dispatch.
type Truck struct {
	ID           int64
	Refrigerated bool
	HomeDC       *int64
}

// CustomerSegment drives basket size and promotion affinity.
type CustomerSegment string

const (
	SegmentBudget      CustomerSegment = "budget"
	SegmentFamily      CustomerSegment = "family"
	SegmentPremium     CustomerSegment = "premium"
	SegmentConvenience CustomerSegment = "convenience"
	SegmentBulk        CustomerSegment = "bulk"
)

// Segments lists all customer segments in declaration order.
var Segments = []CustomerSegment{
	SegmentBudget, SegmentFamily, SegmentPremium, SegmentConvenience, SegmentBulk,
}

// Customer is a shopper. HomeStores is ranked by affinity; the journey
// simulator concentrates at least 70% of a customer's visits on the
// first two entries.
type Customer struct {
	ID         int64
	Geo        Geography
	Segment    CustomerSegment
	HomeStores []int64
}

// TaxClass categorizes products for tax computation. Reduced-rate items
// are taxed at a configurable fraction of the store rate; exempt items
// at zero.
type TaxClass string

const (
	TaxStandard TaxClass = "standard"
	TaxReduced  TaxClass = "reduced"
	TaxExempt   TaxClass = "exempt"
)

// Product is a sellable item. The pricing invariant
// Cost < SalePrice <= MSRP must hold for every product; rows referencing
// a product that violates it are dropped by the rules engine.
type Product struct {
	ID           int64
	Name         string
	Department   string
	Cost         decimal.Decimal
	MSRP         decimal.Decimal
	SalePrice    decimal.Decimal
	TaxClass     TaxClass
	Refrigerated bool
}

// PricingValid reports whether Cost < SalePrice <= MSRP.
func (p Product) PricingValid() bool {
	return p.Cost.LessThan(p.SalePrice) && p.SalePrice.LessThanOrEqual(p.MSRP)
}

// ReferenceData is the read-only dimension snapshot shared by all
// simulators for the lifetime of one generation run.
type ReferenceData struct {
	Stores    []Store
	DCs       []DistributionCenter
	Trucks    []Truck
	Customers []Customer
	Products  []Product

	storeByID    map[int64]*Store
	dcByID       map[int64]*DistributionCenter
	truckByID    map[int64]*Truck
	customerByID map[int64]*Customer
	productByID  map[int64]*Product
}

// Index builds the lookup maps. Must be called once after the slices are
// populated and before any simulator runs.
func (r *ReferenceData) Index() {
	r.storeByID = make(map[int64]*Store, len(r.Stores))
	for i := range r.Stores {
		r.storeByID[r.Stores[i].ID] = &r.Stores[i]
	}
	r.dcByID = make(map[int64]*DistributionCenter, len(r.DCs))
	for i := range r.DCs {
		r.dcByID[r.DCs[i].ID] = &r.DCs[i]
	}
	r.truckByID = make(map[int64]*Truck, len(r.Trucks))
	for i := range r.Trucks {
		r.truckByID[r.Trucks[i].ID] = &r.Trucks[i]
	}
	r.customerByID = make(map[int64]*Customer, len(r.Customers))
	for i := range r.Customers {
		r.customerByID[r.Customers[i].ID] = &r.Customers[i]
	}
	r.productByID = make(map[int64]*Product, len(r.Products))
	for i := range r.Products {
		r.productByID[r.Products[i].ID] = &r.Products[i]
	}
}

// StoreByID returns the store or nil if unknown.
func (r *ReferenceData) StoreByID(id int64) *Store { return r.storeByID[id] }

// DCByID returns the distribution center or nil if unknown.
func (r *ReferenceData) DCByID(id int64) *DistributionCenter { return r.dcByID[id] }

// TruckByID returns the truck or nil if unknown.
func (r *ReferenceData) TruckByID(id int64) *Truck { return r.truckByID[id] }

// CustomerByID returns the customer or nil if unknown.
func (r *ReferenceData) CustomerByID(id int64) *Customer { return r.customerByID[id] }

// ProductByID returns the product or nil if unknown.
func (r *ReferenceData) ProductByID(id int64) *Product { return r.productByID[id] }

// Validate performs the pre-run configuration checks. Empty dimensions
// and pricing violations are fatal: a run must not start against broken
// reference data.
func (r *ReferenceData) Validate() error {
	if len(r.Stores) == 0 {
		return fmt.Errorf("reference data: no stores")
	}
	if len(r.DCs) == 0 {
		return fmt.Errorf("reference data: no distribution centers")
	}
	if len(r.Customers) == 0 {
		return fmt.Errorf("reference data: no customers")
	}
	for _, p := range r.Products {
		if !p.PricingValid() {
			return fmt.Errorf("reference data: product %d violates cost < sale <= msrp (cost=%s sale=%s msrp=%s)",
				p.ID, p.Cost, p.SalePrice, p.MSRP)
		}
	}
	for _, t := range r.Trucks {
		if t.HomeDC != nil && r.dcByID[*t.HomeDC] == nil {
			return fmt.Errorf("reference data: truck %d assigned to unknown DC %d", t.ID, *t.HomeDC)
		}
	}
	return nil
}
