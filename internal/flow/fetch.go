package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/ledgerflow/internal/contract"
	"github.com/roach88/ledgerflow/internal/ledger"
	"github.com/roach88/ledgerflow/internal/store"
)

// Accumulator is a running selection of records and the sum of their
// quantities.
type Accumulator struct {
	Sum    int64
	States []ledger.StateAndRef
}

// Plus adds st to the selection.
func (a Accumulator) Plus(st ledger.StateAndRef) (Accumulator, error) {
	sum, err := contract.CheckedAdd(st.Record.Issuer(), a.Sum, st.Record.Quantity())
	if err != nil {
		return a, err
	}
	return Accumulator{Sum: sum, States: append(a.States, st)}, nil
}

// PlusIfSumBelow adds st only while the sum is strictly below max.
func (a Accumulator) PlusIfSumBelow(st ledger.StateAndRef, max int64) (Accumulator, error) {
	if a.Sum >= max {
		return a, nil
	}
	return a.Plus(st)
}

// FetchQuery selects the records FetchWorthAtLeast may use.
type FetchQuery struct {
	Issuer   ledger.PartyID
	Holder   ledger.PartyID
	Notary   ledger.PartyID
	Target   int64
	PageSize int
}

// FetchWorthAtLeast pages through the vault, keeping records of q.Issuer,
// until their sum reaches q.Target. The result may overshoot the target by
// less than the last record's quantity. It fails with ErrNotEnoughStates if
// the vault runs out first.
func FetchWorthAtLeast(ctx context.Context, vault RecordQuerier, q FetchQuery) (Accumulator, error) {
	if q.Target <= 0 {
		return Accumulator{}, errors.New(MsgTargetMustBePositive)
	}

	var acc Accumulator
	for page := 1; acc.Sum < q.Target; page++ {
		states, err := vault.QueryRecords(ctx, store.VaultQuery{
			Holder:   q.Holder,
			Notary:   q.Notary,
			Page:     page,
			PageSize: q.PageSize,
		})
		if err != nil {
			return Accumulator{}, fmt.Errorf("fetch page %d: %w", page, err)
		}
		if len(states) == 0 {
			return Accumulator{}, fmt.Errorf("%w: found %d of %d", ErrNotEnoughStates, acc.Sum, q.Target)
		}
		for _, st := range states {
			// The vault cannot filter by issuer.
			if st.Record.Issuer() != q.Issuer {
				continue
			}
			if acc, err = acc.PlusIfSumBelow(st, q.Target); err != nil {
				return Accumulator{}, err
			}
		}
	}
	return acc, nil
}
