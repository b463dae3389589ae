package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ledgerflow/internal/contract"
	"github.com/roach88/ledgerflow/internal/ledger"
)

// DefaultPageSize is the page size used when a VaultQuery leaves it unset.
const DefaultPageSize = 200

// ErrInvalidPage is returned for page numbers below 1.
var ErrInvalidPage = errors.New("page numbers start at 1")

// VaultQuery selects unconsumed records. Holder and Notary are optional
// filters; the empty PartyID matches any value. Issuer filtering is left to
// callers.
type VaultQuery struct {
	Holder   ledger.PartyID
	Notary   ledger.PartyID
	Page     int
	PageSize int
}

// RecordTransaction stores a finalized transaction, marks the inputs this
// vault holds as consumed and adds its outputs as unconsumed records, all in
// one database transaction.
//
// Returns inserted=false when the transaction was already recorded; the
// vault is left untouched in that case.
func (s *Store) RecordTransaction(ctx context.Context, stx *ledger.SignedTransaction) (inserted bool, err error) {
	cmd, ok := stx.Tx.Command()
	if !ok {
		return false, fmt.Errorf("record transaction %s: transaction carries no single command", stx.ID)
	}
	body, err := marshalTransaction(stx)
	if err != nil {
		return false, fmt.Errorf("record transaction %s: %w", stx.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("record transaction %s: begin tx: %w", stx.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	seq, err := nextSeq(ctx, tx, "transactions")
	if err != nil {
		return false, fmt.Errorf("record transaction %s: %w", stx.ID, err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, command, notary, body, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, stx.ID, cmd.String(), string(stx.Tx.Notary), body, seq)
	if err != nil {
		return false, fmt.Errorf("record transaction %s: insert: %w", stx.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record transaction %s: rows affected: %w", stx.ID, err)
	}
	if rows == 0 {
		return false, tx.Commit()
	}

	for _, in := range stx.Tx.Inputs {
		if err := consumeRecord(ctx, tx, in.Ref, stx.ID); err != nil {
			return false, fmt.Errorf("record transaction %s: %w", stx.ID, err)
		}
	}

	for _, out := range stx.OutRefs() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO records (tx_id, idx, issuer, holder, quantity, notary, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(tx_id, idx) DO NOTHING
		`,
			out.Ref.TxID,
			out.Ref.Index,
			string(out.Record.Issuer()),
			string(out.Record.Holder()),
			out.Record.Quantity(),
			string(out.Notary),
			seq,
		)
		if err != nil {
			return false, fmt.Errorf("record transaction %s: insert output %d: %w", stx.ID, out.Ref.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("record transaction %s: commit: %w", stx.ID, err)
	}
	return true, nil
}

// consumeRecord marks ref as consumed by txID. Inputs this vault never held
// are skipped: a node only tracks the records it was told about.
func consumeRecord(ctx context.Context, tx *sql.Tx, ref ledger.StateRef, txID string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE records SET consumed_by = ?
		WHERE tx_id = ? AND idx = ? AND consumed_by IS NULL
	`, txID, ref.TxID, ref.Index)
	if err != nil {
		return fmt.Errorf("consume %s: %w", ref, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume %s: rows affected: %w", ref, err)
	}
	if rows > 0 {
		return nil
	}

	var consumedBy sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT consumed_by FROM records WHERE tx_id = ? AND idx = ?
	`, ref.TxID, ref.Index).Scan(&consumedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("consume %s: %w", ref, err)
	}
	if consumedBy.Valid && consumedBy.String != txID {
		return fmt.Errorf("consume %s: %w by %s", ref, ErrConsumed, consumedBy.String)
	}
	return nil
}

// ReadTransaction retrieves a recorded transaction by id.
// Returns ErrNotFound if it was never recorded.
func (s *Store) ReadTransaction(ctx context.Context, id string) (*ledger.SignedTransaction, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM transactions WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read transaction %s: %w", id, err)
	}
	return unmarshalTransaction(body)
}

// ListTransactions returns every recorded transaction in recording order.
func (s *Store) ListTransactions(ctx context.Context) ([]*ledger.SignedTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM transactions
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := []*ledger.SignedTransaction{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("list transactions: scan: %w", err)
		}
		stx, err := unmarshalTransaction(body)
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		txs = append(txs, stx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: iterate: %w", err)
	}
	return txs, nil
}

// QueryRecords returns one page of unconsumed records matching q, ordered by
// the sequence in which they were recorded. A page past the end is empty,
// not an error.
func (s *Store) QueryRecords(ctx context.Context, q VaultQuery) ([]ledger.StateAndRef, error) {
	if q.Page < 1 {
		return nil, fmt.Errorf("query records: %w: got %d", ErrInvalidPage, q.Page)
	}
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id, idx, issuer, holder, quantity, notary
		FROM records
		WHERE consumed_by IS NULL
		  AND (? = '' OR holder = ?)
		  AND (? = '' OR notary = ?)
		ORDER BY seq ASC, tx_id COLLATE BINARY ASC, idx ASC
		LIMIT ? OFFSET ?
	`,
		string(q.Holder), string(q.Holder),
		string(q.Notary), string(q.Notary),
		size, (q.Page-1)*size,
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	states := []ledger.StateAndRef{}
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("query records: %w", err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query records: iterate: %w", err)
	}
	return states, nil
}

// LookupRecords resolves refs to unconsumed records, preserving order.
// Fails with ErrNotFound or ErrConsumed on the first ref that cannot be used.
func (s *Store) LookupRecords(ctx context.Context, refs []ledger.StateRef) ([]ledger.StateAndRef, error) {
	states := make([]ledger.StateAndRef, 0, len(refs))
	for _, ref := range refs {
		row := s.db.QueryRowContext(ctx, `
			SELECT tx_id, idx, issuer, holder, quantity, notary, consumed_by
			FROM records
			WHERE tx_id = ? AND idx = ?
		`, ref.TxID, ref.Index)

		var (
			st         ledger.StateAndRef
			issuer     string
			holder     string
			notary     string
			quantity   int64
			consumedBy sql.NullString
		)
		err := row.Scan(&st.Ref.TxID, &st.Ref.Index, &issuer, &holder, &quantity, &notary, &consumedBy)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lookup %s: %w", ref, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", ref, err)
		}
		if consumedBy.Valid {
			return nil, fmt.Errorf("lookup %s: %w by %s", ref, ErrConsumed, consumedBy.String)
		}
		rec, err := ledger.NewTokenRecord(ledger.PartyID(issuer), ledger.PartyID(holder), quantity)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", ref, err)
		}
		st.Record = rec
		st.Notary = ledger.PartyID(notary)
		states = append(states, st)
	}
	return states, nil
}

// Balance sums the unconsumed records held by holder, by issuer.
func (s *Store) Balance(ctx context.Context, holder ledger.PartyID) (contract.IssuerSum, error) {
	var records []ledger.TokenRecord
	for page := 1; ; page++ {
		states, err := s.QueryRecords(ctx, VaultQuery{Holder: holder, Page: page})
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", holder, err)
		}
		if len(states) == 0 {
			break
		}
		records = append(records, ledger.Records(states)...)
	}
	return contract.SumByIssuer(records)
}

func scanState(rows *sql.Rows) (ledger.StateAndRef, error) {
	var (
		st       ledger.StateAndRef
		issuer   string
		holder   string
		notary   string
		quantity int64
	)
	if err := rows.Scan(&st.Ref.TxID, &st.Ref.Index, &issuer, &holder, &quantity, &notary); err != nil {
		return st, fmt.Errorf("scan record: %w", err)
	}
	rec, err := ledger.NewTokenRecord(ledger.PartyID(issuer), ledger.PartyID(holder), quantity)
	if err != nil {
		return st, fmt.Errorf("scan record %s:%d: %w", st.Ref.TxID, st.Ref.Index, err)
	}
	st.Record = rec
	st.Notary = ledger.PartyID(notary)
	return st, nil
}
