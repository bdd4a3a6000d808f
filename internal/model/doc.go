// Package model defines the data contract of the fact generation engine.
//
// Two families of types live here:
//
//   - Reference entities (Store, DistributionCenter, Truck, Customer,
//     Product): loaded once per run and shared read-only across all
//     simulators.
//
//   - Fact records (Receipt, InventoryTxn, TruckMove, ...): append-only
//     rows emitted by the simulators, immutable once written. Every fact
//     carries a deterministic trace ID and a UTC event timestamp so the
//     output contract is byte-for-byte reproducible for a given seed.
//
// Money fields use shopspring/decimal throughout; float arithmetic on
// prices would break the cent-exact receipt invariant.
package model
