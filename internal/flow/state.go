package flow

import (
	"context"
	"fmt"

	"github.com/roach88/ledgerflow/internal/ledger"
)

// InitiatorState is a step of the initiating side of the protocol.
type InitiatorState int

const (
	Building InitiatorState = iota + 1
	SigningSelf
	CollectingSignatures
	Verifying
	Finalizing
	InitiatorDone
	InitiatorFailed
)

var initiatorStateNames = map[InitiatorState]string{
	Building:             "Building",
	SigningSelf:          "SigningSelf",
	CollectingSignatures: "CollectingSignatures",
	Verifying:            "Verifying",
	Finalizing:           "Finalizing",
	InitiatorDone:        "Done",
	InitiatorFailed:      "Failed",
}

func (s InitiatorState) String() string {
	if name, ok := initiatorStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("InitiatorState(%d)", int(s))
}

// ResponderState is a step of the responding side of the protocol.
type ResponderState int

const (
	AwaitingRole ResponderState = iota + 1
	Idle
	Signing
	AwaitingFinalization
	ResponderDone
	ResponderFailed
)

var responderStateNames = map[ResponderState]string{
	AwaitingRole:         "AwaitingRole",
	Idle:                 "Idle",
	Signing:              "Signing",
	AwaitingFinalization: "AwaitingFinalization",
	ResponderDone:        "Done",
	ResponderFailed:      "Failed",
}

func (s ResponderState) String() string {
	if name, ok := responderStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ResponderState(%d)", int(s))
}

// Role names used in FlowEvent.Role.
const (
	RoleInitiator = "initiator"
	RoleResponder = "responder"
)

// FlowEvent describes one state transition of a protocol instance.
type FlowEvent struct {
	// FlowID identifies the protocol instance.
	FlowID string

	// Seq orders the events of one instance.
	Seq int64

	// Role is RoleInitiator or RoleResponder.
	Role string

	// Party is the local party.
	Party ledger.PartyID

	// Counterparty is the initiator, for responder events.
	Counterparty ledger.PartyID

	// State is the state entered.
	State string

	// TxID is set once the transaction id is known.
	TxID string

	// Err is set when State is Failed.
	Err error
}

// Observer receives state transitions. Implementations must be safe for
// concurrent use: a node runs many instances at once.
type Observer interface {
	StateChanged(ctx context.Context, ev FlowEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev FlowEvent)

// StateChanged calls f(ctx, ev).
func (f ObserverFunc) StateChanged(ctx context.Context, ev FlowEvent) { f(ctx, ev) }

// Observers fans out to each observer in order.
type Observers []Observer

// StateChanged forwards ev to every observer.
func (o Observers) StateChanged(ctx context.Context, ev FlowEvent) {
	for _, obs := range o {
		obs.StateChanged(ctx, ev)
	}
}

// tracker stamps and reports the transitions of one instance.
type tracker struct {
	observer     Observer
	clock        *Clock
	flowID       string
	role         string
	party        ledger.PartyID
	counterparty ledger.PartyID
	txID         string
}

func (t *tracker) enter(ctx context.Context, state fmt.Stringer, err error) {
	t.observer.StateChanged(ctx, FlowEvent{
		FlowID:       t.flowID,
		Seq:          t.clock.Next(),
		Role:         t.role,
		Party:        t.party,
		Counterparty: t.counterparty,
		State:        state.String(),
		TxID:         t.txID,
		Err:          err,
	})
}
