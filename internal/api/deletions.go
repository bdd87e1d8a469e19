package api

import (
	"context"
	"fmt"
	"net/url"

	"wallet-sync-go/internal/livecache"
	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/remote"

	"go.uber.org/zap"
)

// SyncDeletions asks the remote for interactions deleted since the stored
// checkpoint, removes them locally and advances the checkpoint.
func (s *SyncService) SyncDeletions(ctx context.Context, identity models.Identity) (models.DeletionBatch, error) {
	var batch models.DeletionBatch
	if identity.ProfileId == "" {
		return batch, fmt.Errorf("deletion sync requires a profile id")
	}
	if !s.orchestrator.IsOnline() {
		return batch, nil
	}

	since := s.engine.Checkpoint(ctx, models.KindInteractions, identity.ProfileId)
	query := url.Values{}
	if since != "" {
		query.Set("since", since)
	}

	raw, err := s.remote.Get(ctx, s.endpoints.DeletedInteractions, query)
	if err != nil {
		return batch, fmt.Errorf("failed to fetch deleted interactions: %w", err)
	}
	batch, err = remote.DecodeObject[models.DeletionBatch](raw)
	if err != nil {
		return batch, fmt.Errorf("failed to decode deletion batch: %w", err)
	}

	if err := s.engine.ApplyDeletions(ctx, models.KindInteractions, batch, identity.ProfileId); err != nil {
		return batch, err
	}
	livecache.DropInteractions(s.Cache(), identity.ProfileId, batch.DeletedIds)

	zap.L().Info("Deletion sync complete",
		zap.String("profile_id", identity.ProfileId),
		zap.String("since", since),
		zap.Int("deleted", len(batch.DeletedIds)),
		zap.String("checkpoint", batch.SyncTimestamp))
	return batch, nil
}
