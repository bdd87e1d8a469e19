package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/store"

	"go.uber.org/zap"
)

// KycRepo caches one verification status per (profile, entity).
type KycRepo struct {
	svc *Service
}

var _ store.KycStore = (*KycRepo)(nil)

func (r *KycRepo) Get(ctx context.Context, entityId, owner string) *models.KycStatus {
	if !r.svc.Available() || owner == "" || entityId == "" {
		return nil
	}

	var k models.KycStatus
	var raw, updatedAt string
	err := r.svc.db.QueryRowContext(ctx, queryGetKycStatus, owner, entityId).
		Scan(&k.EntityId, &k.Status, &k.Tier, &raw, &k.IsSynced, &updatedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			zap.L().Warn("Failed to read KYC status", zap.String("entity_id", entityId), zap.Error(err))
		}
		return nil
	}
	if raw != "" {
		k.Raw = []byte(raw)
	}
	k.UpdatedAt = parseTime(updatedAt)
	return &k
}

func (r *KycRepo) Put(ctx context.Context, status models.KycStatus, owner string) error {
	if !r.svc.Available() {
		return nil
	}
	if owner == "" || status.EntityId == "" {
		return fmt.Errorf("%w: KYC status requires owner and entity id", store.ErrInvalidRecord)
	}
	_, err := r.svc.db.ExecContext(ctx, queryUpsertKycStatus,
		owner, status.EntityId, status.Status, status.Tier, string(status.Raw), status.IsSynced, formatTime(status.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to store KYC status: %w", err)
	}
	return nil
}

func (r *KycRepo) Delete(ctx context.Context, entityId, owner string) error {
	if !r.svc.Available() {
		return nil
	}
	if _, err := r.svc.db.ExecContext(ctx, queryDeleteKycStatus, owner, entityId); err != nil {
		return fmt.Errorf("failed to delete KYC status: %w", err)
	}
	return nil
}
