// Package reconcile merges remote snapshots into the local store and applies
// tombstone deletion batches.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wallet-sync-go/internal/events"
	"wallet-sync-go/internal/kv"
	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/store"

	"go.uber.org/zap"
)

type Engine struct {
	store       store.LocalStore
	checkpoints kv.Store
	bus         *events.Bus
	now         func() time.Time

	mu sync.Mutex
	// heldPrimary pins a profile's primary wallet while a set-primary
	// mutation is unconfirmed.
	heldPrimary map[string]string
}

func NewEngine(local store.LocalStore, checkpoints kv.Store, bus *events.Bus) *Engine {
	return &Engine{
		store:       local,
		checkpoints: checkpoints,
		bus:         bus,
		now:         time.Now,
		heldPrimary: make(map[string]string),
	}
}

func (e *Engine) MergeWallets(ctx context.Context, wallets []models.Wallet, owner string) store.BatchResult {
	e.mu.Lock()
	held, pinned := e.heldPrimary[owner]
	e.mu.Unlock()

	rows := make([]models.Wallet, len(wallets))
	for i, w := range wallets {
		w.IsSynced = true
		if pinned {
			w.IsPrimary = w.Id == held
		}
		rows[i] = w
	}
	return merge(ctx, e, models.KindWallets, e.store.Wallets(), rows, owner)
}

// HoldPrimary keeps walletId primary through merges until ReleasePrimary.
func (e *Engine) HoldPrimary(owner, walletId string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.heldPrimary[owner] = walletId
}

func (e *Engine) ReleasePrimary(owner string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.heldPrimary, owner)
}

func (e *Engine) MergeTransactions(ctx context.Context, transactions []models.Transaction, owner string) store.BatchResult {
	return merge(ctx, e, models.KindTransactions, e.store.Transactions(), transactions, owner)
}

func (e *Engine) MergeInteractions(ctx context.Context, interactions []models.Interaction, owner string) store.BatchResult {
	return merge(ctx, e, models.KindInteractions, e.store.Interactions(), interactions, owner)
}

func (e *Engine) MergeMessages(ctx context.Context, messages []models.Message, owner string) store.BatchResult {
	return merge(ctx, e, models.KindMessages, e.store.Messages(), messages, owner)
}

func (e *Engine) MergePoolEnrollments(ctx context.Context, enrollments []models.PoolEnrollment, entityId string) store.BatchResult {
	return merge(ctx, e, models.KindPoolEnrollments, e.store.PoolEnrollments(), enrollments, entityId)
}

func (e *Engine) MergePoolPayments(ctx context.Context, payments []models.PoolPayment, entityId string) store.BatchResult {
	return merge(ctx, e, models.KindPoolPayments, e.store.PoolPayments(), payments, entityId)
}

// MergePools replaces the shared catalog.
func (e *Engine) MergePools(ctx context.Context, pools []models.Pool) store.BatchResult {
	result := e.store.Pools().ReplaceAll(ctx, pools)
	ids := make([]string, 0, len(pools))
	for _, p := range pools {
		ids = append(ids, p.Id)
	}
	e.publish(events.DataUpdated{RecordKind: models.KindPools, UpsertedIds: ids})
	return result
}

func (e *Engine) MergeKyc(ctx context.Context, status models.KycStatus, owner string) error {
	status.IsSynced = true
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = e.now()
	}
	if err := e.store.Kyc().Put(ctx, status, owner); err != nil {
		return fmt.Errorf("failed to merge KYC status: %w", err)
	}
	e.publish(events.DataUpdated{RecordKind: models.KindKyc, Owner: owner, UpsertedIds: []string{status.EntityId}})
	return nil
}

func merge[T models.Record](ctx context.Context, e *Engine, kind models.RecordKind, repo store.Repository[T], rows []T, owner string) store.BatchResult {
	if owner == "" {
		zap.L().Warn("Skipping merge without owner", zap.String("kind", string(kind)))
		return store.BatchResult{Failed: len(rows)}
	}
	if len(rows) == 0 {
		return store.BatchResult{}
	}

	result := repo.UpsertBatch(ctx, rows, owner)
	if result.Failed > 0 {
		zap.L().Warn("Some remote rows were not stored",
			zap.String("kind", string(kind)),
			zap.String("owner", owner),
			zap.Int("written", result.Written),
			zap.Int("failed", result.Failed))
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.RecordId())
	}
	e.publish(events.DataUpdated{RecordKind: kind, Owner: owner, UpsertedIds: ids})
	return result
}

func (e *Engine) publish(event events.Event) {
	if e.bus != nil {
		e.bus.Publish(event)
	}
}
