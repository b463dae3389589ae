package contract

import (
	"errors"
	"math"
	"sort"
	"strconv"

	"github.com/roach88/ledgerflow/internal/ledger"
)

// IssuerSum maps each issuer to the total quantity it backs within a
// record sequence.
type IssuerSum map[ledger.PartyID]int64

// Issuers returns the issuers in sorted order.
func (s IssuerSum) Issuers() []ledger.PartyID {
	issuers := make([]ledger.PartyID, 0, len(s))
	for p := range s {
		issuers = append(issuers, p)
	}
	sort.Slice(issuers, func(i, j int) bool { return issuers[i] < issuers[j] })
	return issuers
}

// SameIssuers reports whether s and other cover exactly the same issuers.
func (s IssuerSum) SameIssuers(other IssuerSum) bool {
	if len(s) != len(other) {
		return false
	}
	for p := range s {
		if _, ok := other[p]; !ok {
			return false
		}
	}
	return true
}

// SumByIssuer groups records by issuer and sums their quantities.
//
// Addition is overflow-checked: if any issuer's running total would exceed
// math.MaxInt64 the result is an ErrCodeOverflow rejection, never a wrapped
// value. The fold is commutative, so record order does not affect the result.
// Quantities are positive by construction, so only upward overflow can occur.
func SumByIssuer(records []ledger.TokenRecord) (IssuerSum, error) {
	sums := make(IssuerSum)
	for _, r := range records {
		total, err := CheckedAdd(r.Issuer(), sums[r.Issuer()], r.Quantity())
		if err != nil {
			return nil, err
		}
		sums[r.Issuer()] = total
	}
	return sums, nil
}

// CheckedAdd returns a+b, or an ErrCodeOverflow rejection naming issuer.
func CheckedAdd(issuer ledger.PartyID, a, b int64) (int64, error) {
	total, err := addExact(a, b)
	if err != nil {
		return 0, reject(ErrCodeOverflow, MsgQuantityOverflow, map[string]string{
			"issuer": string(issuer),
		})
	}
	return total, nil
}

// addExact returns a+b or errOverflow.
func addExact(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, errOverflow
	}
	return a + b, nil
}

var errOverflow = errors.New("integer overflow")

func formatInt(n int64) string { return strconv.FormatInt(n, 10) }
