package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ledgerflow/internal/ledger"
)

// WriteSignature records the signature party produced over txID.
// Returns the stored signature and whether a new row was inserted.
//
// A party signs a given transaction at most once: if a signature already
// exists it is returned unchanged with inserted=false, so a redelivered
// proposal is answered with the original signature.
func (s *Store) WriteSignature(ctx context.Context, txID string, party ledger.PartyID, sig []byte) (stored []byte, inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("write signature: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	seq, err := nextSeq(ctx, tx, "signatures")
	if err != nil {
		return nil, false, fmt.Errorf("write signature: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO signatures (tx_id, party, signature, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tx_id, party) DO NOTHING
	`, txID, string(party), sig, seq)
	if err != nil {
		return nil, false, fmt.Errorf("write signature: insert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("write signature: rows affected: %w", err)
	}

	if rows > 0 {
		stored, inserted = sig, true
	} else {
		err = tx.QueryRowContext(ctx, `
			SELECT signature FROM signatures WHERE tx_id = ? AND party = ?
		`, txID, string(party)).Scan(&stored)
		if err != nil {
			return nil, false, fmt.Errorf("write signature: select existing: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("write signature: commit: %w", err)
	}
	return stored, inserted, nil
}

// ReadSignature returns the signature party produced over txID.
// Returns ErrNotFound if party never signed it.
func (s *Store) ReadSignature(ctx context.Context, txID string, party ledger.PartyID) ([]byte, error) {
	var sig []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT signature FROM signatures WHERE tx_id = ? AND party = ?
	`, txID, string(party)).Scan(&sig)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read signature %s/%s: %w", txID, party, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read signature %s/%s: %w", txID, party, err)
	}
	return sig, nil
}
