package mutation

import (
	"context"
	"encoding/json"

	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/remote"

	"go.uber.org/zap"
)

type FlushResult struct {
	Sent    int
	Failed  int
	Retried int
}

// FlushQueue replays ready outbox ops in order. Accepted ops are removed and
// their optimistic changes confirmed; rejected ops and ops that run out of
// retries are rolled back. Concurrent calls return an empty result.
func (c *Coordinator) FlushQueue(ctx context.Context) FlushResult {
	var result FlushResult
	if !c.online() || !c.store.Available() {
		return result
	}

	c.mutex.Lock()
	if c.flushing {
		c.mutex.Unlock()
		return result
	}
	c.flushing = true
	c.mutex.Unlock()
	defer func() {
		c.mutex.Lock()
		c.flushing = false
		c.mutex.Unlock()
	}()

	outbox := c.store.Outbox()
	for _, op := range outbox.DequeueReady(ctx, flushBatchSize) {
		if ctx.Err() != nil || !c.online() {
			break
		}

		raw, err := c.remote.Do(ctx, op.Method, op.Path, op.Body)
		if err == nil {
			if err := outbox.Ack(ctx, op.Id); err != nil {
				zap.L().Error("Failed to ack outbox op", zap.String("op_id", op.Id), zap.Error(err))
			}
			c.settle(ctx, op, raw, nil)
			result.Sent++
			continue
		}

		if remote.IsCanceled(err) {
			break
		}

		retries := op.Retries + 1
		if remote.IsClientError(err) || retries >= op.MaxRetries {
			if err := outbox.Fail(ctx, op.Id, err.Error()); err != nil {
				zap.L().Error("Failed to mark outbox op failed", zap.String("op_id", op.Id), zap.Error(err))
			}
			zap.L().Warn("Outbox op permanently failed",
				zap.String("op_id", op.Id),
				zap.String("kind", op.Kind),
				zap.Int("retries", retries),
				zap.Error(err))
			c.settle(ctx, op, nil, err)
			result.Failed++
			continue
		}

		if err := outbox.Nack(ctx, op.Id, err.Error(), retries); err != nil {
			zap.L().Error("Failed to nack outbox op", zap.String("op_id", op.Id), zap.Error(err))
		}
		result.Retried++
	}
	return result
}

// settle confirms or rolls back the optimistic change behind op.
func (c *Coordinator) settle(ctx context.Context, op models.OutboxOp, raw json.RawMessage, cause error) {
	identity := models.Identity{ProfileId: op.Owner, EntityId: op.EntityId}

	switch op.Kind {
	case KindSendMoney:
		provisional := c.provisionalTransfer(ctx, op)
		if cause == nil {
			c.confirmTransfer(ctx, op.Owner, provisional, raw)
		} else {
			c.rollbackTransfer(ctx, op.Owner, provisional)
		}
	case KindSetPrimaryWallet:
		if cause == nil {
			c.confirmPrimary(identity)
		} else {
			c.revertPrimary(ctx, identity, op.ProvisionalId)
		}
	default:
		zap.L().Warn("Unknown outbox op kind", zap.String("kind", op.Kind), zap.String("op_id", op.Id))
	}

	if m := c.takeQueued(op.Id); m != nil {
		if cause == nil {
			m.Confirm()
		} else {
			m.RollBack(&Error{Op: op.Kind, Err: cause})
		}
	}
}

// provisionalTransfer finds the locally shown row for a queued transfer,
// rebuilding it from the request body when the row is gone.
func (c *Coordinator) provisionalTransfer(ctx context.Context, op models.OutboxOp) models.Transaction {
	for _, tx := range c.store.Transactions().GetAll(ctx, op.Owner) {
		if tx.Id == op.ProvisionalId {
			return tx
		}
	}

	var req SendMoneyRequest
	if err := json.Unmarshal(op.Body, &req); err != nil {
		zap.L().Warn("Failed to decode queued transfer", zap.String("op_id", op.Id), zap.Error(err))
	}
	return models.Transaction{
		Id:              op.ProvisionalId,
		InteractionId:   req.InteractionId,
		FromAccountId:   req.FromAccountId,
		ToAccountId:     req.ToAccountId,
		FromEntityId:    req.FromEntityId,
		ToEntityId:      req.ToEntityId,
		Amount:          req.Amount,
		CurrencyId:      req.CurrencyId,
		Status:          models.TransactionPending,
		TransactionType: req.TransactionType,
		Description:     req.Description,
		CreatedAt:       op.CreatedAt,
	}
}
