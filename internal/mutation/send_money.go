package mutation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"wallet-sync-go/internal/events"
	"wallet-sync-go/internal/livecache"
	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/remote"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SendMoneyRequest is the transfer payload posted to the remote.
type SendMoneyRequest struct {
	InteractionId   string          `json:"interaction_id,omitempty"`
	FromAccountId   string          `json:"from_account_id"`
	ToAccountId     string          `json:"to_account_id"`
	FromEntityId    string          `json:"from_entity_id,omitempty"`
	ToEntityId      string          `json:"to_entity_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	CurrencyId      string          `json:"currency_id"`
	TransactionType string          `json:"transaction_type,omitempty"`
	Description     string          `json:"description,omitempty"`
	ClientReference string          `json:"client_reference,omitempty"`
}

func (r SendMoneyRequest) validate() error {
	if r.FromAccountId == "" || r.ToAccountId == "" {
		return fmt.Errorf("source and destination accounts are required")
	}
	if r.CurrencyId == "" {
		return fmt.Errorf("currency is required")
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", r.Amount)
	}
	return nil
}

// SendMoney shows a pending transaction immediately and then posts the
// transfer. The returned transaction is the confirmed one on success and the
// provisional one otherwise.
func (c *Coordinator) SendMoney(ctx context.Context, identity models.Identity, req SendMoneyRequest) (*Mutation, models.Transaction, error) {
	if identity.ProfileId == "" {
		return nil, models.Transaction{}, fmt.Errorf("send money requires a signed-in profile")
	}
	if err := req.validate(); err != nil {
		return nil, models.Transaction{}, fmt.Errorf("invalid transfer: %w", err)
	}
	if req.TransactionType == "" {
		req.TransactionType = "transfer"
	}
	if req.FromEntityId == "" {
		req.FromEntityId = identity.EntityId
	}

	fp := fingerprint(KindSendMoney, identity.ProfileId, req)
	if !c.dedup.claim(fp) {
		zap.L().Warn("Rejected duplicate transfer",
			zap.String("profile_id", identity.ProfileId),
			zap.String("amount", req.Amount.String()))
		return nil, models.Transaction{}, ErrDuplicateSubmission
	}

	m := newMutation("temp-"+uuid.New().String(), KindSendMoney)
	req.ClientReference = m.Id
	provisional := models.Transaction{
		Id:              m.Id,
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
		Metadata:        map[string]any{"is_optimistic": true},
		CreatedAt:       c.now().UTC(),
	}
	c.showTransaction(ctx, identity.ProfileId, provisional)

	if !c.online() {
		return c.queueTransfer(ctx, m, identity, req, provisional, fp)
	}

	raw, err := c.remote.Post(ctx, c.paths.SendMoney, req)
	if err != nil {
		if c.isConnectivityFailure(err) {
			zap.L().Warn("Transfer could not reach the server, queueing", zap.Error(err))
			return c.queueTransfer(ctx, m, identity, req, provisional, fp)
		}
		c.dedup.release(fp)
		c.rollbackTransfer(ctx, identity.ProfileId, provisional)
		m.RollBack(err)
		return m, provisional, &Error{Op: KindSendMoney, Err: err}
	}

	confirmed := c.confirmTransfer(ctx, identity.ProfileId, provisional, raw)
	m.Confirm()
	return m, confirmed, nil
}

func (c *Coordinator) queueTransfer(ctx context.Context, m *Mutation, identity models.Identity, req SendMoneyRequest, provisional models.Transaction, fp string) (*Mutation, models.Transaction, error) {
	body, err := json.Marshal(req)
	if err == nil {
		err = c.enqueue(ctx, m, models.OutboxOp{
			Method:        http.MethodPost,
			Path:          c.paths.SendMoney,
			Body:          body,
			ProvisionalId: provisional.Id,
			Owner:         identity.ProfileId,
			EntityId:      identity.EntityId,
		})
	}
	if err != nil {
		zap.L().Error("Failed to queue transfer", zap.Error(err))
		c.dedup.release(fp)
		c.rollbackTransfer(ctx, identity.ProfileId, provisional)
		m.RollBack(err)
		return m, provisional, &Error{Op: KindSendMoney, Err: err}
	}
	return m, provisional, nil
}

func (c *Coordinator) showTransaction(ctx context.Context, profileId string, tx models.Transaction) {
	if err := c.store.Transactions().Upsert(ctx, tx, profileId); err != nil {
		zap.L().Warn("Failed to store transaction locally", zap.String("transaction_id", tx.Id), zap.Error(err))
	}
	if c.cache != nil {
		livecache.ApplyTransaction(c.cache, profileId, tx)
	}
	c.publish(events.DataUpdated{RecordKind: models.KindTransactions, Owner: profileId, UpsertedIds: []string{tx.Id}})
}

func (c *Coordinator) rollbackTransfer(ctx context.Context, profileId string, provisional models.Transaction) {
	if err := c.store.Transactions().DeleteById(ctx, provisional.Id, profileId); err != nil {
		zap.L().Warn("Failed to remove provisional transaction", zap.String("transaction_id", provisional.Id), zap.Error(err))
	}
	if c.cache != nil {
		livecache.RemoveTransaction(c.cache, profileId, provisional.InteractionId, provisional.Id)
	}
	c.publish(events.DataUpdated{RecordKind: models.KindTransactions, Owner: profileId, DeletedIds: []string{provisional.Id}})
	zap.L().Info("Rolled back provisional transaction", zap.String("transaction_id", provisional.Id))
}

// confirmTransfer replaces the provisional row with the server's record and
// marks balances stale.
func (c *Coordinator) confirmTransfer(ctx context.Context, profileId string, provisional models.Transaction, raw json.RawMessage) models.Transaction {
	confirmed, err := remote.DecodeObject[models.Transaction](raw)
	if err != nil || confirmed.Id == "" {
		zap.L().Warn("Transfer confirmation carried no record, keeping provisional copy",
			zap.String("transaction_id", provisional.Id),
			zap.Error(err))
		confirmed = provisional
		confirmed.Metadata = nil
	}
	if confirmed.InteractionId == "" {
		confirmed.InteractionId = provisional.InteractionId
	}
	if confirmed.CreatedAt.IsZero() {
		confirmed.CreatedAt = provisional.CreatedAt
	}

	if confirmed.Id != provisional.Id {
		if err := c.store.Transactions().DeleteById(ctx, provisional.Id, profileId); err != nil {
			zap.L().Warn("Failed to remove provisional transaction", zap.String("transaction_id", provisional.Id), zap.Error(err))
		}
	}
	if err := c.store.Transactions().Upsert(ctx, confirmed, profileId); err != nil {
		zap.L().Warn("Failed to store confirmed transaction", zap.String("transaction_id", confirmed.Id), zap.Error(err))
	}
	if c.cache != nil {
		livecache.ReplaceTransaction(c.cache, profileId, provisional.Id, confirmed)
	}
	c.invalidateBalances(confirmed.FromEntityId, confirmed.ToEntityId)
	c.publish(events.TransactionUpdate{Transaction: confirmed, Owner: profileId})

	zap.L().Info("Transfer confirmed",
		zap.String("provisional_id", provisional.Id),
		zap.String("transaction_id", confirmed.Id),
		zap.String("status", confirmed.Status))
	return confirmed
}
