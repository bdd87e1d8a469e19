package reconcile

import (
	"context"

	"wallet-sync-go/internal/events"
	"wallet-sync-go/internal/models"

	"go.uber.org/zap"
)

// The live dispatcher patches caches first and hands push-delivered records
// here for durable storage.

func (e *Engine) PersistMessage(ctx context.Context, message models.Message, owner string) {
	e.MergeMessages(ctx, []models.Message{message}, owner)
}

// PersistTransaction merges the update over the stored row so partial status
// updates keep the fields they omit.
func (e *Engine) PersistTransaction(ctx context.Context, transaction models.Transaction, owner string) {
	if stored, ok := e.store.Transactions().GetById(ctx, transaction.Id, owner); ok {
		transaction = stored.Merge(transaction)
	}
	e.MergeTransactions(ctx, []models.Transaction{transaction}, owner)
}

func (e *Engine) PersistInteraction(ctx context.Context, interaction models.Interaction, owner string) {
	e.MergeInteractions(ctx, []models.Interaction{interaction}, owner)
}

func (e *Engine) PersistDeletedMessage(ctx context.Context, messageId, owner string) {
	if err := e.store.Messages().DeleteById(ctx, messageId, owner); err != nil {
		zap.L().Warn("Failed to delete message locally", zap.String("message_id", messageId), zap.Error(err))
		return
	}
	e.publish(events.DataUpdated{RecordKind: models.KindMessages, Owner: owner, DeletedIds: []string{messageId}})
}
