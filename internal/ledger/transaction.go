package ledger

import (
	"fmt"
	"slices"
)

// Transaction is a candidate transaction: what it consumes, what it
// produces, the command it carries and who is proposed to sign it.
//
// Validation treats Inputs and Outputs as multisets; their order only
// matters for the StateRefs of the produced records.
type Transaction struct {
	Inputs   []StateAndRef `json:"inputs"`
	Outputs  []TokenRecord `json:"outputs"`
	Commands []Command     `json:"commands"`
	Signers  []PartyID     `json:"signers"`
	Notary   PartyID       `json:"notary"`
}

// InputRecords returns the consumed records in order.
func (tx Transaction) InputRecords() []TokenRecord {
	return Records(tx.Inputs)
}

// Command returns the single command carried by tx. ok is false when tx
// carries zero commands or more than one distinct command.
func (tx Transaction) Command() (cmd Command, ok bool) {
	if len(tx.Commands) == 0 {
		return 0, false
	}
	cmd = tx.Commands[0]
	for _, c := range tx.Commands[1:] {
		if c != cmd {
			return 0, false
		}
	}
	return cmd, true
}

// ID computes the content-addressed identifier of tx.
func (tx Transaction) ID() (string, error) {
	return TransactionID(tx)
}

// Clone returns a deep copy of tx.
func (tx Transaction) Clone() Transaction {
	return Transaction{
		Inputs:   slices.Clone(tx.Inputs),
		Outputs:  slices.Clone(tx.Outputs),
		Commands: slices.Clone(tx.Commands),
		Signers:  slices.Clone(tx.Signers),
		Notary:   tx.Notary,
	}
}

// SignedTransaction is a transaction with its ID and the signatures
// collected so far, keyed by signing party.
type SignedTransaction struct {
	ID         string             `json:"id"`
	Tx         Transaction        `json:"tx"`
	Signatures map[PartyID][]byte `json:"signatures"`
}

// NewSignedTransaction computes the ID of tx and returns it with no
// signatures attached.
func NewSignedTransaction(tx Transaction) (*SignedTransaction, error) {
	id, err := tx.ID()
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{ID: id, Tx: tx, Signatures: map[PartyID][]byte{}}, nil
}

// AddSignature attaches sig for party, replacing any earlier one.
func (s *SignedTransaction) AddSignature(party PartyID, sig []byte) {
	if s.Signatures == nil {
		s.Signatures = map[PartyID][]byte{}
	}
	s.Signatures[party] = slices.Clone(sig)
}

// SignedBy returns the signing parties in sorted order.
func (s *SignedTransaction) SignedBy() []PartyID {
	parties := make([]PartyID, 0, len(s.Signatures))
	for p := range s.Signatures {
		parties = append(parties, p)
	}
	slices.Sort(parties)
	return parties
}

// MissingSignatures returns the proposed signers that have not signed yet.
func (s *SignedTransaction) MissingSignatures() []PartyID {
	var missing []PartyID
	for _, p := range s.Tx.Signers {
		if _, ok := s.Signatures[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

// CheckID recomputes the transaction ID and compares it with s.ID.
func (s *SignedTransaction) CheckID() error {
	id, err := s.Tx.ID()
	if err != nil {
		return err
	}
	if id != s.ID {
		return fmt.Errorf("transaction id mismatch: carried %s, computed %s", s.ID, id)
	}
	return nil
}

// OutRefs returns the produced records addressed by this transaction's ID.
func (s *SignedTransaction) OutRefs() []StateAndRef {
	out := make([]StateAndRef, len(s.Tx.Outputs))
	for i, rec := range s.Tx.Outputs {
		out[i] = StateAndRef{
			Record: rec,
			Ref:    StateRef{TxID: s.ID, Index: i},
			Notary: s.Tx.Notary,
		}
	}
	return out
}

// Clone returns a deep copy so parties sharing a process never alias each
// other's signature maps.
func (s *SignedTransaction) Clone() *SignedTransaction {
	if s == nil {
		return nil
	}
	sigs := make(map[PartyID][]byte, len(s.Signatures))
	for p, sig := range s.Signatures {
		sigs[p] = slices.Clone(sig)
	}
	return &SignedTransaction{ID: s.ID, Tx: s.Tx.Clone(), Signatures: sigs}
}
