package database

import (
	"context"
	"fmt"
	"time"

	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/store"
)

// OutboxRepo persists mutations queued while offline. Unlike the record
// repositories it reports an unavailable engine, so callers never believe a
// mutation was queued when it was not.
type OutboxRepo struct {
	svc *Service
}

var _ store.Outbox = (*OutboxRepo)(nil)

func (r *OutboxRepo) Enqueue(ctx context.Context, op models.OutboxOp) error {
	if !r.svc.Available() {
		return store.ErrStoreUnavailable
	}
	if op.Id == "" || op.Method == "" || op.Path == "" {
		return fmt.Errorf("%w: outbox op requires id, method and path", store.ErrInvalidRecord)
	}
	if op.Status == "" {
		op.Status = models.OutboxPending
	}
	if op.MaxRetries <= 0 {
		op.MaxRetries = 5
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now()
	}
	_, err := r.svc.db.ExecContext(ctx, queryInsertOutboxOp,
		op.Id, op.Kind, op.Method, op.Path, string(op.Body), op.ProvisionalId, op.Owner, op.EntityId,
		op.Status, op.Retries, op.MaxRetries, op.LastError, formatTime(op.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox op: %w", err)
	}
	return nil
}

// DequeueReady returns pending ops oldest first without removing them.
func (r *OutboxRepo) DequeueReady(ctx context.Context, limit int) []models.OutboxOp {
	if !r.svc.Available() {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}
	return queryRows(ctx, r.svc.db, "outbox", scanOutboxOp, queryDequeueOutbox, limit)
}

func (r *OutboxRepo) List(ctx context.Context) []models.OutboxOp {
	if !r.svc.Available() {
		return nil
	}
	return queryRows(ctx, r.svc.db, "outbox", scanOutboxOp, queryListOutbox)
}

func (r *OutboxRepo) Ack(ctx context.Context, id string) error {
	if !r.svc.Available() {
		return store.ErrStoreUnavailable
	}
	if _, err := r.svc.db.ExecContext(ctx, queryDeleteOutboxOp, id); err != nil {
		return fmt.Errorf("failed to ack outbox op: %w", err)
	}
	return nil
}

// Nack records a failed attempt. The op is marked failed once retries reach
// its limit.
func (r *OutboxRepo) Nack(ctx context.Context, id string, lastError string, retries int) error {
	if !r.svc.Available() {
		return store.ErrStoreUnavailable
	}
	if _, err := r.svc.db.ExecContext(ctx, queryNackOutboxOp, retries, lastError, retries, id); err != nil {
		return fmt.Errorf("failed to nack outbox op: %w", err)
	}
	return nil
}

func (r *OutboxRepo) Fail(ctx context.Context, id string, lastError string) error {
	if !r.svc.Available() {
		return store.ErrStoreUnavailable
	}
	if _, err := r.svc.db.ExecContext(ctx, queryFailOutboxOp, lastError, id); err != nil {
		return fmt.Errorf("failed to mark outbox op failed: %w", err)
	}
	return nil
}

func (r *OutboxRepo) PendingCount(ctx context.Context) int {
	if !r.svc.Available() {
		return 0
	}
	var count int
	if err := r.svc.db.QueryRowContext(ctx, queryCountPendingOutbox).Scan(&count); err != nil {
		return 0
	}
	return count
}

func scanOutboxOp(row rowScanner) (models.OutboxOp, error) {
	var op models.OutboxOp
	var body, createdAt string
	err := row.Scan(&op.Id, &op.Kind, &op.Method, &op.Path, &body, &op.ProvisionalId, &op.Owner, &op.EntityId,
		&op.Status, &op.Retries, &op.MaxRetries, &op.LastError, &createdAt)
	if err != nil {
		return op, fmt.Errorf("failed to scan outbox op: %w", err)
	}
	if body != "" {
		op.Body = []byte(body)
	}
	op.CreatedAt = parseTime(createdAt)
	return op, nil
}
