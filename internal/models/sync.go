package models

import (
	"encoding/json"
	"time"
)

// RecordKind names a synchronized record family. It doubles as the cache key
// prefix and the checkpoint namespace.
type RecordKind string

const (
	KindWallets         RecordKind = "wallets"
	KindTransactions    RecordKind = "transactions"
	KindInteractions    RecordKind = "interactions"
	KindMessages        RecordKind = "messages"
	KindKyc             RecordKind = "kyc"
	KindPools           RecordKind = "pools"
	KindPoolEnrollments RecordKind = "pool_enrollments"
	KindPoolPayments    RecordKind = "pool_payments"
)

// Identity is the signed-in principal. ProfileId is the owner key for wallets,
// transactions, interactions, messages and KYC; EntityId is the owner key for
// pool enrollments and payments and the sender identity in chats.
type Identity struct {
	ProfileId string
	EntityId  string
}

// DeletionBatch is the tombstone payload returned by a deletion sync.
type DeletionBatch struct {
	DeletedIds    []string `json:"deleted_ids"`
	SyncTimestamp string   `json:"sync_timestamp"`
}

// UnmarshalJSON also accepts the camelCase field names some endpoints use.
func (b *DeletionBatch) UnmarshalJSON(data []byte) error {
	var wire struct {
		DeletedIds         []string `json:"deleted_ids"`
		SyncTimestamp      string   `json:"sync_timestamp"`
		DeletedIdsCamel    []string `json:"deletedIds"`
		SyncTimestampCamel string   `json:"syncTimestamp"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	b.DeletedIds = wire.DeletedIds
	if b.DeletedIds == nil {
		b.DeletedIds = wire.DeletedIdsCamel
	}
	b.SyncTimestamp = wire.SyncTimestamp
	if b.SyncTimestamp == "" {
		b.SyncTimestamp = wire.SyncTimestampCamel
	}
	return nil
}

// Outbox operation statuses
const (
	OutboxPending = "pending"
	OutboxFailed  = "failed"
)

// OutboxOp is a mutation queued while offline
type OutboxOp struct {
	Id            string
	Kind          string
	Method        string
	Path          string
	Body          json.RawMessage
	ProvisionalId string
	Owner         string
	EntityId      string
	Status        string
	Retries       int
	MaxRetries    int
	LastError     string
	CreatedAt     time.Time
}

// Record is implemented by every synchronized row type.
type Record interface {
	RecordId() string
}
