package store

import (
	"context"
	"errors"

	"wallet-sync-go/internal/models"
)

// Sentinel errors shared across store implementations.
var (
	ErrStoreUnavailable = errors.New("local store unavailable")
	ErrInvalidRecord    = errors.New("invalid record")
	ErrNotFound         = errors.New("record not found")
)

// BatchResult summarizes a best-effort batch write.
type BatchResult struct {
	Written    int
	Failed     int
	Duplicates int
}

// Repository is the owner-scoped contract shared by every record kind. Reads
// never return rows written under a different owner. Implementations fail soft:
// when the engine is unavailable reads are empty and writes are no-ops.
type Repository[T any] interface {
	GetAll(ctx context.Context, owner string) []T
	Upsert(ctx context.Context, row T, owner string) error
	UpsertBatch(ctx context.Context, rows []T, owner string) BatchResult
	DeleteById(ctx context.Context, id string, owner string) error
	DeleteBatch(ctx context.Context, ids []string, owner string) error
	Exists(ctx context.Context, id string) bool
}

type WalletStore interface {
	Repository[models.Wallet]
	SetPrimary(ctx context.Context, walletId, owner string) error
	GetPrimary(ctx context.Context, owner string) *models.Wallet
}

type TransactionStore interface {
	Repository[models.Transaction]
	GetByInteraction(ctx context.Context, interactionId, owner string) []models.Transaction
	GetById(ctx context.Context, id, owner string) (models.Transaction, bool)
	UpdateStatus(ctx context.Context, id, status, owner string) error
}

type InteractionStore interface {
	Repository[models.Interaction]
	GetMembers(ctx context.Context, interactionId, owner string) []models.InteractionMember
	UpsertMembers(ctx context.Context, interactionId string, members []models.InteractionMember, owner string) error
}

type MessageStore interface {
	Repository[models.Message]
	GetByInteraction(ctx context.Context, interactionId, owner string, limit int) []models.Message
	Search(ctx context.Context, query, owner string, limit int) []models.Message
}

// KycStore holds one status record per (owner, entity).
type KycStore interface {
	Get(ctx context.Context, entityId, owner string) *models.KycStatus
	Put(ctx context.Context, status models.KycStatus, owner string) error
	Delete(ctx context.Context, entityId, owner string) error
}

// PoolStore holds the shared pool catalog, which is not owner-scoped.
type PoolStore interface {
	GetAll(ctx context.Context) []models.Pool
	ReplaceAll(ctx context.Context, pools []models.Pool) BatchResult
}

// Outbox is the durable queue of mutations waiting for connectivity.
type Outbox interface {
	Enqueue(ctx context.Context, op models.OutboxOp) error
	DequeueReady(ctx context.Context, limit int) []models.OutboxOp
	Ack(ctx context.Context, id string) error
	Nack(ctx context.Context, id string, lastError string, retries int) error
	Fail(ctx context.Context, id string, lastError string) error
	PendingCount(ctx context.Context) int
	List(ctx context.Context) []models.OutboxOp
}

// LocalStore groups the per-kind repositories of one on-device database.
type LocalStore interface {
	Wallets() WalletStore
	Transactions() TransactionStore
	Interactions() InteractionStore
	Messages() MessageStore
	Kyc() KycStore
	Pools() PoolStore
	PoolEnrollments() Repository[models.PoolEnrollment]
	PoolPayments() Repository[models.PoolPayment]
	Outbox() Outbox
	Available() bool
	Close()
}
