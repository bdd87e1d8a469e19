package mutation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"wallet-sync-go/internal/events"
	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/querycache"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type setPrimaryRequest struct {
	WalletId string `json:"wallet_id"`
}

// SetPrimaryWallet marks walletId primary locally, then asks the remote to
// do the same. The choice is pinned against stale remote snapshots until the
// remote answers.
func (c *Coordinator) SetPrimaryWallet(ctx context.Context, identity models.Identity, walletId string) (*Mutation, error) {
	if identity.ProfileId == "" || walletId == "" {
		return nil, fmt.Errorf("set primary wallet requires a profile and a wallet id")
	}

	req := setPrimaryRequest{WalletId: walletId}
	fp := fingerprint(KindSetPrimaryWallet, identity.ProfileId, req)
	if !c.dedup.claim(fp) {
		return nil, ErrDuplicateSubmission
	}

	previous := ""
	if current := c.store.Wallets().GetPrimary(ctx, identity.ProfileId); current != nil {
		previous = current.Id
	}

	if err := c.showPrimary(ctx, identity, walletId); err != nil {
		c.dedup.release(fp)
		return nil, err
	}
	m := newMutation(uuid.New().String(), KindSetPrimaryWallet)
	path := expandPath(c.paths.SetPrimaryWallet, map[string]string{"wallet_id": walletId})

	if !c.online() {
		return c.queuePrimary(ctx, m, identity, path, req, previous, fp)
	}

	if _, err := c.remote.Patch(ctx, path, req); err != nil {
		if c.isConnectivityFailure(err) {
			return c.queuePrimary(ctx, m, identity, path, req, previous, fp)
		}
		c.dedup.release(fp)
		c.revertPrimary(ctx, identity, previous)
		m.RollBack(err)
		return m, &Error{Op: KindSetPrimaryWallet, Err: err}
	}

	c.confirmPrimary(identity)
	m.Confirm()
	return m, nil
}

func (c *Coordinator) queuePrimary(ctx context.Context, m *Mutation, identity models.Identity, path string, req setPrimaryRequest, previous, fp string) (*Mutation, error) {
	body, err := json.Marshal(req)
	if err == nil {
		err = c.enqueue(ctx, m, models.OutboxOp{
			Method: http.MethodPatch,
			Path:   path,
			Body:   body,
			// The previous primary travels in ProvisionalId so a rejected
			// replay can restore it.
			ProvisionalId: previous,
			Owner:         identity.ProfileId,
			EntityId:      identity.EntityId,
		})
	}
	if err != nil {
		c.dedup.release(fp)
		c.revertPrimary(ctx, identity, previous)
		m.RollBack(err)
		return m, &Error{Op: KindSetPrimaryWallet, Err: err}
	}
	return m, nil
}

func (c *Coordinator) showPrimary(ctx context.Context, identity models.Identity, walletId string) error {
	if c.engine != nil {
		c.engine.HoldPrimary(identity.ProfileId, walletId)
	}
	if err := c.store.Wallets().SetPrimary(ctx, walletId, identity.ProfileId); err != nil {
		if c.engine != nil {
			c.engine.ReleasePrimary(identity.ProfileId)
		}
		return fmt.Errorf("failed to set primary wallet locally: %w", err)
	}
	c.patchPrimaryFlags(identity, walletId)
	c.publish(events.DataUpdated{RecordKind: models.KindWallets, Owner: identity.ProfileId, UpsertedIds: []string{walletId}})
	return nil
}

func (c *Coordinator) revertPrimary(ctx context.Context, identity models.Identity, previous string) {
	if c.engine != nil {
		c.engine.ReleasePrimary(identity.ProfileId)
	}
	if previous != "" {
		if err := c.store.Wallets().SetPrimary(ctx, previous, identity.ProfileId); err != nil {
			zap.L().Warn("Failed to restore primary wallet", zap.String("wallet_id", previous), zap.Error(err))
		}
	}
	c.patchPrimaryFlags(identity, previous)
	if previous != "" {
		c.publish(events.DataUpdated{RecordKind: models.KindWallets, Owner: identity.ProfileId, UpsertedIds: []string{previous}})
	}
	zap.L().Info("Rolled back primary wallet change", zap.String("restored_wallet_id", previous))
}

func (c *Coordinator) confirmPrimary(identity models.Identity) {
	if c.engine != nil {
		c.engine.ReleasePrimary(identity.ProfileId)
	}
	c.invalidateBalances(identity.EntityId)
}

func (c *Coordinator) patchPrimaryFlags(identity models.Identity, walletId string) {
	if c.cache == nil || identity.EntityId == "" {
		return
	}
	querycache.UpdateAs(c.cache, querycache.BalancesKey(identity.ProfileId, identity.EntityId), func(prev []models.Wallet, ok bool) ([]models.Wallet, bool) {
		if !ok {
			return prev, false
		}
		next := make([]models.Wallet, len(prev))
		for i, w := range prev {
			w.IsPrimary = w.Id == walletId
			next[i] = w
		}
		return next, true
	})
}
