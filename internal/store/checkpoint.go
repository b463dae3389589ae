package store

import (
	"context"
	"fmt"
)

// Checkpoint is one recorded protocol state transition.
type Checkpoint struct {
	FlowID string
	Seq    int64
	Role   string
	State  string
	TxID   string
	Detail string
}

// Terminal checkpoint states. A flow whose last checkpoint is not one of
// these was interrupted.
const (
	StateDone   = "Done"
	StateFailed = "Failed"
)

// WriteCheckpoint appends a state transition for a flow.
// Uses ON CONFLICT(flow_id, seq) DO NOTHING: rewriting the same logical step
// is a no-op.
func (s *Store) WriteCheckpoint(ctx context.Context, cp Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_checkpoints (flow_id, seq, role, state, tx_id, detail)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(flow_id, seq) DO NOTHING
	`, cp.FlowID, cp.Seq, cp.Role, cp.State, cp.TxID, cp.Detail)
	if err != nil {
		return fmt.Errorf("write checkpoint %s/%d: %w", cp.FlowID, cp.Seq, err)
	}
	return nil
}

// ReadCheckpoints returns every checkpoint for a flow, ordered by seq.
// Returns an empty slice (not nil) for unknown flows.
func (s *Store) ReadCheckpoints(ctx context.Context, flowID string) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT flow_id, seq, role, state, tx_id, detail
		FROM flow_checkpoints
		WHERE flow_id = ?
		ORDER BY seq ASC, id ASC
	`, flowID)
	if err != nil {
		return nil, fmt.Errorf("read checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := []Checkpoint{}
	for rows.Next() {
		var cp Checkpoint
		if err := rows.Scan(&cp.FlowID, &cp.Seq, &cp.Role, &cp.State, &cp.TxID, &cp.Detail); err != nil {
			return nil, fmt.Errorf("read checkpoints: scan: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read checkpoints: iterate: %w", err)
	}
	return checkpoints, nil
}

// FindIncompleteFlows returns the ids of flows whose latest checkpoint is
// not terminal, in order of their first checkpoint.
func (s *Store) FindIncompleteFlows(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.flow_id
		FROM flow_checkpoints c
		JOIN (
			SELECT flow_id, MAX(seq) AS last_seq, MIN(id) AS first_id
			FROM flow_checkpoints
			GROUP BY flow_id
		) l ON c.flow_id = l.flow_id AND c.seq = l.last_seq
		WHERE c.state NOT IN (?, ?)
		ORDER BY l.first_id ASC
	`, StateDone, StateFailed)
	if err != nil {
		return nil, fmt.Errorf("find incomplete flows: %w", err)
	}
	defer rows.Close()

	flows := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("find incomplete flows: scan: %w", err)
		}
		flows = append(flows, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find incomplete flows: iterate: %w", err)
	}
	return flows, nil
}
