package flow

import (
	"errors"
	"fmt"

	"github.com/roach88/ledgerflow/internal/ledger"
)

// Reasons for refusing to start or sign a transaction. Counterparties
// receive them verbatim.
const (
	MsgMustBeHolder          = "I must be a holder."
	MsgMustBeIssuerOrHolder  = "I must be an issuer or a holder."
	MsgMustBeSoleIssuer      = "I must be the only issuer."
	MsgSingleNotary          = "There must be only 1 notary"
	MsgMustBeRelevant        = "I must be relevant."
	MsgMustBeSigner          = "I must be a required signer."
	MsgQuantityTooHigh       = "Quantity must not be too high."
	MsgInitiatorMustSign     = "The initiator must have signed."
	MsgNotEnoughStates       = "Not enough states to reach sum."
	MsgTargetMustBePositive  = "The target quantity must be above 0."
	MsgFinalizedDoesNotMatch = "The finalized transaction does not match the proposal."
)

var (
	// ErrTimeout is returned when required signatures do not arrive before
	// the signature timeout.
	ErrTimeout = errors.New("timed out collecting signatures")

	// ErrNotEnoughStates is returned when the vault runs out of records
	// before reaching the requested sum.
	ErrNotEnoughStates = errors.New(MsgNotEnoughStates)

	// ErrAborted is returned by a responder when the initiator abandons
	// the flow.
	ErrAborted = errors.New("flow aborted by initiator")
)

// PreconditionError reports a transaction the local party cannot start.
// It is raised before any session is opened.
type PreconditionError struct {
	Reason string
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	return "cannot initiate: " + e.Reason
}

// IsPrecondition reports whether err is (or wraps) a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// ProtocolError reports a counterparty that refused to sign or broke the
// message sequence.
type ProtocolError struct {
	// Counterparty is the party that failed.
	Counterparty ledger.PartyID

	// Reason is the counterparty's stated reason, or a description of the
	// unexpected message.
	Reason string

	// Err is the underlying transport error, if any.
	Err error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("counterparty %s: %s: %v", e.Counterparty, e.Reason, e.Err)
	}
	return fmt.Sprintf("counterparty %s: %s", e.Counterparty, e.Reason)
}

// Unwrap returns the underlying transport error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocol reports whether err is (or wraps) a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// RejectionReason returns the counterparty's reason when err is a
// ProtocolError, or "".
func RejectionReason(err error) string {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ""
}
