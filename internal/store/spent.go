package store

import (
	"context"
	"fmt"

	"github.com/roach88/ledgerflow/internal/ledger"
)

// SpentError reports an input that an earlier transaction already consumed.
type SpentError struct {
	Ref        ledger.StateRef
	ConsumedBy string
}

// Error implements the error interface.
func (e *SpentError) Error() string {
	return fmt.Sprintf("input %s already consumed by %s", e.Ref, e.ConsumedBy)
}

// MarkSpent registers refs as consumed by txID. Either every ref is
// registered or none is: if any ref is already held by a different
// transaction the whole batch is rolled back and a *SpentError is returned.
// Re-registering refs for the same txID succeeds, so a retried
// finalization is idempotent.
func (s *Store) MarkSpent(ctx context.Context, txID string, refs []ledger.StateRef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mark spent: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	seq, err := nextSeq(ctx, tx, "spent_refs")
	if err != nil {
		return fmt.Errorf("mark spent: %w", err)
	}

	for _, ref := range refs {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO spent_refs (tx_id, idx, consuming_tx_id, seq)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(tx_id, idx) DO NOTHING
		`, ref.TxID, ref.Index, txID, seq)
		if err != nil {
			return fmt.Errorf("mark spent %s: %w", ref, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("mark spent %s: rows affected: %w", ref, err)
		}
		if rows > 0 {
			continue
		}

		var consumer string
		err = tx.QueryRowContext(ctx, `
			SELECT consuming_tx_id FROM spent_refs WHERE tx_id = ? AND idx = ?
		`, ref.TxID, ref.Index).Scan(&consumer)
		if err != nil {
			return fmt.Errorf("mark spent %s: select existing: %w", ref, err)
		}
		if consumer != txID {
			return &SpentError{Ref: ref, ConsumedBy: consumer}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mark spent: commit: %w", err)
	}
	return nil
}

// SpentBy returns the id of the transaction that consumed ref, or "" if
// ref is unspent.
func (s *Store) SpentBy(ctx context.Context, ref ledger.StateRef) (string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT consuming_tx_id FROM spent_refs WHERE tx_id = ? AND idx = ?
	`, ref.TxID, ref.Index)
	if err != nil {
		return "", fmt.Errorf("spent by %s: %w", ref, err)
	}
	defer rows.Close()

	var consumer string
	if rows.Next() {
		if err := rows.Scan(&consumer); err != nil {
			return "", fmt.Errorf("spent by %s: scan: %w", ref, err)
		}
	}
	return consumer, rows.Err()
}
