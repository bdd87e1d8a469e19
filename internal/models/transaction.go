package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction statuses. Saga states reported by the remote are kept verbatim.
const (
	TransactionPending   = "pending"
	TransactionCompleted = "completed"
	TransactionFailed    = "failed"
)

// Transaction represents a money movement between two accounts
type Transaction struct {
	Id              string          `json:"id"`
	InteractionId   string          `json:"interaction_id,omitempty"`
	FromAccountId   string          `json:"from_account_id"`
	ToAccountId     string          `json:"to_account_id"`
	FromEntityId    string          `json:"from_entity_id,omitempty"`
	ToEntityId      string          `json:"to_entity_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	CurrencyId      string          `json:"currency_id"`
	Status          string          `json:"status"`
	TransactionType string          `json:"transaction_type"`
	Description     string          `json:"description,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (t Transaction) RecordId() string { return t.Id }

// IsTerminal reports whether the status will not change again.
func (t Transaction) IsTerminal() bool {
	return t.Status == TransactionCompleted || t.Status == TransactionFailed
}

// Merge applies the fields set in update over t. Status updates pushed by the
// remote often carry only the id and the new status.
func (t Transaction) Merge(update Transaction) Transaction {
	merged := t
	if update.Id != "" {
		merged.Id = update.Id
	}
	setString(&merged.InteractionId, update.InteractionId)
	setString(&merged.FromAccountId, update.FromAccountId)
	setString(&merged.ToAccountId, update.ToAccountId)
	setString(&merged.FromEntityId, update.FromEntityId)
	setString(&merged.ToEntityId, update.ToEntityId)
	setString(&merged.CurrencyId, update.CurrencyId)
	setString(&merged.Status, update.Status)
	setString(&merged.TransactionType, update.TransactionType)
	setString(&merged.Description, update.Description)
	if !update.Amount.IsZero() {
		merged.Amount = update.Amount
	}
	if !update.CreatedAt.IsZero() {
		merged.CreatedAt = update.CreatedAt
	}
	if len(update.Metadata) > 0 {
		metadata := make(map[string]any, len(t.Metadata)+len(update.Metadata))
		for k, v := range t.Metadata {
			metadata[k] = v
		}
		for k, v := range update.Metadata {
			metadata[k] = v
		}
		merged.Metadata = metadata
	}
	return merged
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
