package reconcile

import (
	"context"
	"fmt"
	"time"

	"wallet-sync-go/internal/events"
	"wallet-sync-go/internal/kv"
	"wallet-sync-go/internal/models"

	"go.uber.org/zap"
)

type batchDeleter interface {
	DeleteBatch(ctx context.Context, ids []string, owner string) error
}

func (e *Engine) deleterFor(kind models.RecordKind) (batchDeleter, error) {
	switch kind {
	case models.KindInteractions:
		return e.store.Interactions(), nil
	case models.KindMessages:
		return e.store.Messages(), nil
	case models.KindTransactions:
		return e.store.Transactions(), nil
	case models.KindWallets:
		return e.store.Wallets(), nil
	case models.KindPoolEnrollments:
		return e.store.PoolEnrollments(), nil
	case models.KindPoolPayments:
		return e.store.PoolPayments(), nil
	default:
		return nil, fmt.Errorf("deletion sync not supported for %s", kind)
	}
}

// ApplyDeletions removes the tombstoned ids for owner and then advances the
// owner's checkpoint to the batch timestamp. The checkpoint advances even for
// an empty batch; it does not move when the delete fails, so the next sync
// asks for the same window again.
func (e *Engine) ApplyDeletions(ctx context.Context, kind models.RecordKind, batch models.DeletionBatch, owner string) error {
	if owner == "" {
		return fmt.Errorf("deletion sync requires an owner")
	}
	deleter, err := e.deleterFor(kind)
	if err != nil {
		return err
	}

	if len(batch.DeletedIds) > 0 {
		if err := deleter.DeleteBatch(ctx, batch.DeletedIds, owner); err != nil {
			return fmt.Errorf("failed to apply deletions: %w", err)
		}
	}

	checkpoint := batch.SyncTimestamp
	if checkpoint == "" {
		checkpoint = e.now().UTC().Format(time.RFC3339)
	}
	if err := e.checkpoints.Set(ctx, kv.CheckpointKey(kind, owner), checkpoint); err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}

	zap.L().Info("Applied deletion batch",
		zap.String("kind", string(kind)),
		zap.String("owner", owner),
		zap.Int("deleted", len(batch.DeletedIds)),
		zap.String("checkpoint", checkpoint))

	e.publish(events.DataUpdated{
		RecordKind: kind,
		Owner:      owner,
		DeletedIds: batch.DeletedIds,
		Checkpoint: checkpoint,
	})
	return nil
}

// Checkpoint returns the last applied sync timestamp, or "" before the first
// sync.
func (e *Engine) Checkpoint(ctx context.Context, kind models.RecordKind, owner string) string {
	value, err := e.checkpoints.Get(ctx, kv.CheckpointKey(kind, owner))
	if err != nil {
		zap.L().Warn("Failed to read checkpoint", zap.String("kind", string(kind)), zap.Error(err))
		return ""
	}
	return value
}
