package database

import (
	"context"
	"database/sql"
	"fmt"

	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/store"
)

// TransactionRepo stores transactions scoped by profile id. Transactions are
// never removed by interaction deletion.
type TransactionRepo struct {
	*table[models.Transaction]
}

var _ store.TransactionStore = (*TransactionRepo)(nil)

func newTransactionRepo(s *Service) *TransactionRepo {
	return &TransactionRepo{table: &table[models.Transaction]{
		svc:        s,
		kind:       models.KindTransactions,
		selectAll:  queryGetTransactions,
		upsert:     queryUpsertTransaction,
		deleteById: queryDeleteTransaction,
		exists:     queryTransactionExists,
		args:       transactionArgs,
		scan:       scanTransaction,
		beforeWrite: func(ctx context.Context, tx *sql.Tx, t models.Transaction, owner string) error {
			return ensureInteraction(ctx, tx, t.InteractionId, owner)
		},
	}}
}

func (r *TransactionRepo) GetByInteraction(ctx context.Context, interactionId, owner string) []models.Transaction {
	if !r.svc.Available() || owner == "" || interactionId == "" {
		return nil
	}
	return queryRows(ctx, r.svc.db, r.kind, scanTransaction, queryGetTransactionsByInteraction, owner, interactionId)
}

// GetById returns the owner's transaction, or false when it is not stored.
func (r *TransactionRepo) GetById(ctx context.Context, id, owner string) (models.Transaction, bool) {
	if !r.svc.Available() || owner == "" || id == "" {
		return models.Transaction{}, false
	}
	rows := queryRows(ctx, r.svc.db, r.kind, scanTransaction, queryGetTransactionById, id, owner)
	if len(rows) == 0 {
		return models.Transaction{}, false
	}
	return rows[0], true
}

func (r *TransactionRepo) UpdateStatus(ctx context.Context, id, status, owner string) error {
	if !r.svc.Available() {
		return nil
	}
	result, err := r.svc.db.ExecContext(ctx, queryUpdateTransactionStatus, status, id, owner)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func transactionArgs(t models.Transaction, owner string) []any {
	status := t.Status
	if status == "" {
		status = models.TransactionPending
	}
	return []any{
		t.Id, owner, t.InteractionId, t.FromAccountId, t.ToAccountId, t.FromEntityId, t.ToEntityId,
		t.Amount.String(), t.CurrencyId, status, t.TransactionType, t.Description,
		encodeMetadata(t.Metadata), formatTime(t.CreatedAt),
	}
}

func scanTransaction(row rowScanner) (models.Transaction, error) {
	var t models.Transaction
	var amount, metadata, createdAt string
	err := row.Scan(&t.Id, &t.InteractionId, &t.FromAccountId, &t.ToAccountId, &t.FromEntityId, &t.ToEntityId,
		&amount, &t.CurrencyId, &t.Status, &t.TransactionType, &t.Description, &metadata, &createdAt)
	if err != nil {
		return t, fmt.Errorf("failed to scan transaction: %w", err)
	}
	t.Amount = parseDecimal(amount)
	t.Metadata = decodeMetadata(metadata)
	t.CreatedAt = parseTime(createdAt)
	return t, nil
}
