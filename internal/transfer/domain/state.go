// Package domain holds the transfer lifecycle state machine shared by the
// packing and receiving engines. Both engines consult the same transition
// table; there are no per-handler allow-lists.
package domain

import (
	"fmt"

	"github.com/retailops/retailops-backend/pkg/errors"
)

// State is a transfer lifecycle state
type State string

const (
	StateOpen      State = "open"
	StatePacking   State = "packing"
	StatePackaged  State = "packaged"
	StateSent      State = "sent" // entered by the carrier integration, not this service
	StateReceiving State = "receiving"
	StatePartial   State = "partial"
	StateReceived  State = "received"
)

// Action is an operation that may advance a transfer's state
type Action string

const (
	ActionEditLines     Action = "edit_lines"
	ActionStartPacking  Action = "start_packing"
	ActionPackSubmit    Action = "pack_submit"
	ActionReceivePart   Action = "receive_partial"
	ActionReceiveAll    Action = "receive_complete"
)

// rank orders states along the lifecycle so transitions can be checked for
// monotonicity. receiving and partial share a rank: both mean "goods are
// arriving".
var rank = map[State]int{
	StateOpen:      0,
	StatePacking:   1,
	StatePackaged:  2,
	StateSent:      3,
	StateReceiving: 4,
	StatePartial:   4,
	StateReceived:  5,
}

// transitions is the canonical {state × action → next state} table.
// An absent entry means the action is rejected in that state.
var transitions = map[State]map[Action]State{
	StateOpen: {
		ActionEditLines:    StateOpen,
		ActionStartPacking: StatePacking,
		ActionPackSubmit:   StatePackaged,
	},
	StatePacking: {
		ActionEditLines:  StatePacking,
		ActionPackSubmit: StatePackaged,
	},
	StatePackaged: {
		// Additional partial shipments may still be packed.
		ActionPackSubmit:  StatePackaged,
		ActionReceivePart: StatePartial,
		ActionReceiveAll:  StateReceived,
	},
	StateSent: {
		ActionReceivePart: StatePartial,
		ActionReceiveAll:  StateReceived,
	},
	StateReceiving: {
		ActionReceivePart: StatePartial,
		ActionReceiveAll:  StateReceived,
	},
	StatePartial: {
		ActionReceivePart: StatePartial,
		ActionReceiveAll:  StateReceived,
	},
	// StateReceived is terminal for this service.
}

// Valid reports whether s is a known lifecycle state.
func Valid(s State) bool {
	_, ok := rank[s]
	return ok
}

// Can reports whether action is allowed in the given state.
func Can(s State, a Action) bool {
	next, ok := transitions[s]
	if !ok {
		return false
	}
	_, ok = next[a]
	return ok
}

// Next returns the state a transfer moves to when action is applied in
// state s. Rejected actions return a StateError.
func Next(s State, a Action) (State, error) {
	next, ok := transitions[s]
	if !ok {
		return "", errors.State(fmt.Sprintf("transfer in state %q accepts no further actions", s))
	}
	to, ok := next[a]
	if !ok {
		return "", errors.State(fmt.Sprintf("action %q is not allowed while the transfer is %q", a, s))
	}
	return to, nil
}

// Forward reports whether moving from to b never regresses the lifecycle.
func Forward(from, to State) bool {
	ra, okA := rank[from]
	rb, okB := rank[to]
	return okA && okB && rb >= ra
}
