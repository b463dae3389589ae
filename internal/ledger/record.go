package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNonPositiveQuantity is returned when a record would hold zero or
// negative value.
var ErrNonPositiveQuantity = errors.New("quantity must be above 0")

// PartyID names a ledger participant. Owning keys are resolved through
// the identity package.
type PartyID string

// String implements fmt.Stringer.
func (p PartyID) String() string { return string(p) }

// TokenRecord is an immutable unit of value.
//
// The issuer is accountable for the record's existence; the holder controls it.
// Fields are unexported so a record can only be built through NewTokenRecord.
type TokenRecord struct {
	issuer   PartyID
	holder   PartyID
	quantity int64
}

// NewTokenRecord creates a record, failing if either party is empty or the
// quantity is not positive.
func NewTokenRecord(issuer, holder PartyID, quantity int64) (TokenRecord, error) {
	if issuer == "" {
		return TokenRecord{}, errors.New("issuer cannot be empty")
	}
	if holder == "" {
		return TokenRecord{}, errors.New("holder cannot be empty")
	}
	if quantity <= 0 {
		return TokenRecord{}, fmt.Errorf("%w: got %d", ErrNonPositiveQuantity, quantity)
	}
	return TokenRecord{issuer: issuer, holder: holder, quantity: quantity}, nil
}

// MustTokenRecord is like NewTokenRecord but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTokenRecord(issuer, holder PartyID, quantity int64) TokenRecord {
	r, err := NewTokenRecord(issuer, holder, quantity)
	if err != nil {
		panic(err)
	}
	return r
}

// Issuer returns the party accountable for the record.
func (r TokenRecord) Issuer() PartyID { return r.issuer }

// Holder returns the controlling party.
func (r TokenRecord) Holder() PartyID { return r.holder }

// Quantity returns the amount held, always > 0.
func (r TokenRecord) Quantity() int64 { return r.quantity }

// IsZero reports whether r is the zero value (never a valid record).
func (r TokenRecord) IsZero() bool { return r == TokenRecord{} }

// String implements fmt.Stringer.
func (r TokenRecord) String() string {
	return fmt.Sprintf("%s->%s:%d", r.issuer, r.holder, r.quantity)
}

type recordJSON struct {
	Issuer   PartyID `json:"issuer"`
	Holder   PartyID `json:"holder"`
	Quantity int64   `json:"quantity"`
}

// MarshalJSON implements json.Marshaler.
func (r TokenRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{Issuer: r.issuer, Holder: r.holder, Quantity: r.quantity})
}

// UnmarshalJSON implements json.Unmarshaler. The construction invariant
// applies to decoded records too.
func (r *TokenRecord) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rec, err := NewTokenRecord(raw.Issuer, raw.Holder, raw.Quantity)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// ParseTokenRecord parses "issuer:holder:quantity".
func ParseTokenRecord(s string) (TokenRecord, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return TokenRecord{}, fmt.Errorf("invalid record %q: want issuer:holder:quantity", s)
	}
	qty, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return TokenRecord{}, fmt.Errorf("invalid record %q: %w", s, err)
	}
	return NewTokenRecord(PartyID(parts[0]), PartyID(parts[1]), qty)
}

// StateRef points at the output of a committed transaction.
type StateRef struct {
	TxID  string `json:"tx_id"`
	Index int    `json:"index"`
}

// String formats the reference as "txid:index".
func (s StateRef) String() string {
	return fmt.Sprintf("%s:%d", s.TxID, s.Index)
}

// ParseStateRef parses the "txid:index" form produced by StateRef.String.
func ParseStateRef(s string) (StateRef, error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return StateRef{}, fmt.Errorf("invalid state ref %q: want txid:index", s)
	}
	idx, err := strconv.Atoi(s[i+1:])
	if err != nil || idx < 0 {
		return StateRef{}, fmt.Errorf("invalid state ref %q: bad index", s)
	}
	return StateRef{TxID: s[:i], Index: idx}, nil
}

// StateAndRef is a record together with where it was produced and the
// notary that orders its consumption.
type StateAndRef struct {
	Record TokenRecord `json:"record"`
	Ref    StateRef    `json:"ref"`
	Notary PartyID     `json:"notary"`
}

// Records extracts the bare records, preserving order.
func Records(states []StateAndRef) []TokenRecord {
	out := make([]TokenRecord, len(states))
	for i, s := range states {
		out[i] = s.Record
	}
	return out
}

// TransactionRole tells a counterparty whether it must sign or merely
// receive the outcome.
type TransactionRole int

const (
	// RoleSigner must cryptographically endorse the transaction.
	RoleSigner TransactionRole = iota + 1
	// RoleParticipant only receives and stores the finalized transaction.
	RoleParticipant
)

// String implements fmt.Stringer.
func (r TransactionRole) String() string {
	switch r {
	case RoleSigner:
		return "signer"
	case RoleParticipant:
		return "participant"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}
