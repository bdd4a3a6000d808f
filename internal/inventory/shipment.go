package inventory

import (
	"fmt"
	"time"

	"github.com/openmart/retailgen/internal/model"
)

// transitions is the legal edge set of the shipment lifecycle.
// COMPLETED and DELAYED are terminal: a delayed shipment never delivers;
// its units return to the DC and the demand is rescheduled as a new
// shipment.
var transitions = map[model.ShipmentState][]model.ShipmentState{
	model.ShipmentScheduled: {model.ShipmentLoading},
	model.ShipmentLoading:   {model.ShipmentInTransit},
	model.ShipmentInTransit: {model.ShipmentArrived, model.ShipmentDelayed},
	model.ShipmentArrived:   {model.ShipmentUnloading},
	model.ShipmentUnloading: {model.ShipmentCompleted},
	model.ShipmentCompleted: {},
	model.ShipmentDelayed:   {},
}

// IsTerminal reports whether a state has no outgoing edges.
func IsTerminal(s model.ShipmentState) bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to model.ShipmentState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransitions sanity-checks the transition table: every state
// is reachable, terminals are exactly COMPLETED and DELAYED. Called
// from the simulator constructor so a bad edit fails fast.
func ValidateTransitions() error {
	reachable := map[model.ShipmentState]bool{model.ShipmentScheduled: true}
	for from, tos := range transitions {
		for _, to := range tos {
			if _, ok := transitions[to]; !ok {
				return fmt.Errorf("shipment transition %s -> %s targets unknown state", from, to)
			}
			reachable[to] = true
		}
	}
	for state := range transitions {
		if !reachable[state] {
			return fmt.Errorf("shipment state %s is unreachable", state)
		}
	}
	for _, terminal := range []model.ShipmentState{model.ShipmentCompleted, model.ShipmentDelayed} {
		if !IsTerminal(terminal) {
			return fmt.Errorf("shipment state %s must be terminal", terminal)
		}
	}
	return nil
}

// Shipment is one truck load in flight. All fields are owned by the
// planner goroutine; workers only see the delivery rows derived from
// completed shipments.
type Shipment struct {
	ID           string
	TruckID      int64
	OriginDC     int64
	DestStore    int64
	Units        map[int64]int
	Refrigerated bool
	State        model.ShipmentState
	ETD          time.Time
	ETA          time.Time

	// pending is the remaining timed transition path, in firing order.
	pending []step
	// returnAt is when a delayed shipment's stock re-enters the DC.
	returnAt time.Time
}

// advance moves the shipment to the next state and returns the fact
// row. Illegal edges are a programming error and panic; the schedule
// is built from the same table.
func (s *Shipment) advance(to model.ShipmentState, ts time.Time) model.TruckMove {
	if !CanTransition(s.State, to) {
		panic(fmt.Sprintf("shipment %s: illegal transition %s -> %s", s.ID, s.State, to))
	}
	s.State = to
	return model.TruckMove{
		TraceID:    model.TraceIDf(model.TableTruckMoves, "%s:%s", s.ID, to),
		ShipmentID: s.ID,
		TruckID:    s.TruckID,
		OriginDC:   s.OriginDC,
		DestStore:  s.DestStore,
		Status:     to,
		ETD:        s.ETD,
		ETA:        s.ETA,
		EventTime:  ts,
	}
}

// TotalUnits returns the unit count across all products on board.
func (s *Shipment) TotalUnits() int {
	var n int
	for _, q := range s.Units {
		n += q
	}
	return n
}
