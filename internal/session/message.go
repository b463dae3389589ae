package session

import (
	"fmt"
	"slices"

	"github.com/roach88/ledgerflow/internal/ledger"
)

// Kind distinguishes protocol messages.
type Kind int

const (
	// KindRole tells a responder whether it is asked to sign or only to
	// record the outcome.
	KindRole Kind = iota + 1
	// KindProposal carries a transaction signed by the initiator.
	KindProposal
	// KindSignature carries a responder's signature over the proposal.
	KindSignature
	// KindRejection carries a responder's reason for refusing to sign.
	KindRejection
	// KindFinalized carries the notarised transaction.
	KindFinalized
	// KindAbort tells a responder the flow was abandoned.
	KindAbort
)

var kindNames = map[Kind]string{
	KindRole:      "role",
	KindProposal:  "proposal",
	KindSignature: "signature",
	KindRejection: "rejection",
	KindFinalized: "finalized",
	KindAbort:     "abort",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Message is a single protocol message. Which fields are set depends on
// Kind.
type Message struct {
	Kind      Kind
	Role      ledger.TransactionRole
	Tx        *ledger.SignedTransaction
	Signature []byte
	Reason    string
}

// RoleMessage announces the role the receiver plays in the flow.
func RoleMessage(role ledger.TransactionRole) Message {
	return Message{Kind: KindRole, Role: role}
}

// ProposalMessage asks the receiver to sign stx.
func ProposalMessage(stx *ledger.SignedTransaction) Message {
	return Message{Kind: KindProposal, Tx: stx}
}

// SignatureMessage returns a signature to the initiator.
func SignatureMessage(sig []byte) Message {
	return Message{Kind: KindSignature, Signature: sig}
}

// RejectionMessage refuses a proposal.
func RejectionMessage(reason string) Message {
	return Message{Kind: KindRejection, Reason: reason}
}

// FinalizedMessage delivers the committed transaction.
func FinalizedMessage(stx *ledger.SignedTransaction) Message {
	return Message{Kind: KindFinalized, Tx: stx}
}

// AbortMessage tells the receiver the flow will not complete.
func AbortMessage(reason string) Message {
	return Message{Kind: KindAbort, Reason: reason}
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	m.Tx = m.Tx.Clone()
	m.Signature = slices.Clone(m.Signature)
	return m
}

func (m Message) String() string {
	switch m.Kind {
	case KindRole:
		return fmt.Sprintf("%s(%s)", m.Kind, m.Role)
	case KindProposal, KindFinalized:
		if m.Tx != nil {
			return fmt.Sprintf("%s(%s)", m.Kind, m.Tx.ID)
		}
	case KindRejection, KindAbort:
		return fmt.Sprintf("%s(%q)", m.Kind, m.Reason)
	}
	return m.Kind.String()
}
