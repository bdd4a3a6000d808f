// Package inventory owns per-location on-hand balances and the truck
// replenishment flow.
//
// Two pieces:
//
//   - Ledger: sharded per-location balance maps. One location's
//     mutations never block another's, which is what lets store-day
//     workers run in parallel. Balances are clamped at zero; unmet
//     sale quantity is tracked as shortfall, never hidden.
//
//   - Simulator: the truck shipment state machine and replenishment
//     planner. Planning runs once per day in a single goroutine before
//     the worker fan-out, so truck and DC capacity contention is
//     resolved in deterministic store order. Workers then apply the
//     planned deliveries inside their own store-hour sequence.
//
// The only way a balance increases outside the initial snapshot is an
// INBOUND_SHIPMENT credit emitted when a shipment completes.
package inventory
