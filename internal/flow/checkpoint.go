package flow

import (
	"context"
	"log/slog"

	"github.com/roach88/ledgerflow/internal/store"
)

// CheckpointWriter persists protocol transitions.
// Implemented by store.Store.
type CheckpointWriter interface {
	WriteCheckpoint(ctx context.Context, cp store.Checkpoint) error
}

// CheckpointObserver writes every transition to w.
//
// Checkpoints are written even after the flow's context is cancelled, so a
// timed-out flow still records that it failed. Write errors are logged and
// do not stop the flow.
func CheckpointObserver(w CheckpointWriter, logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return ObserverFunc(func(ctx context.Context, ev FlowEvent) {
		cp := store.Checkpoint{
			FlowID: ev.FlowID,
			Seq:    ev.Seq,
			Role:   ev.Role,
			State:  ev.State,
			TxID:   ev.TxID,
		}
		if ev.Err != nil {
			cp.Detail = ev.Err.Error()
		}
		if err := w.WriteCheckpoint(context.WithoutCancel(ctx), cp); err != nil {
			logger.Error("checkpoint write failed", "flow", ev.FlowID, "state", ev.State, "error", err)
		}
	})
}
