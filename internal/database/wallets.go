package database

import (
	"context"
	"database/sql"
	"fmt"

	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/store"

	"go.uber.org/zap"
)

// WalletRepo stores wallets scoped by profile id.
type WalletRepo struct {
	*table[models.Wallet]
}

var _ store.WalletStore = (*WalletRepo)(nil)

func newWalletRepo(s *Service) *WalletRepo {
	return &WalletRepo{table: &table[models.Wallet]{
		svc:        s,
		kind:       models.KindWallets,
		selectAll:  queryGetWallets,
		upsert:     queryUpsertWallet,
		deleteById: queryDeleteWallet,
		exists:     queryWalletExists,
		validate:   validateWallet,
		args:       walletArgs,
		scan:       scanWallet,
		beforeWrite: func(ctx context.Context, tx *sql.Tx, w models.Wallet, owner string) error {
			// The remote may re-key a wallet; the newest id wins the (account, currency) slot.
			if _, err := tx.ExecContext(ctx, queryDeleteConflictingWallet, owner, w.AccountId, w.Currency.Id, w.Id); err != nil {
				return fmt.Errorf("failed to replace conflicting wallet: %w", err)
			}
			if w.IsPrimary {
				if _, err := tx.ExecContext(ctx, queryClearPrimaryWallets, owner, w.Id); err != nil {
					return fmt.Errorf("failed to clear primary wallet: %w", err)
				}
			}
			return nil
		},
	}}
}

// SetPrimary marks walletId as the owner's only primary wallet.
func (r *WalletRepo) SetPrimary(ctx context.Context, walletId, owner string) error {
	if !r.svc.Available() {
		return nil
	}
	if walletId == "" || owner == "" {
		return fmt.Errorf("%w: wallet id and owner are required", store.ErrInvalidRecord)
	}

	return withTx(ctx, r.svc.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, querySetPrimaryWallet, owner, walletId)
		if err != nil {
			return fmt.Errorf("failed to set primary wallet: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("wallet %s: %w", walletId, store.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, queryClearPrimaryWallets, owner, walletId); err != nil {
			return fmt.Errorf("failed to clear primary wallet: %w", err)
		}

		zap.L().Debug("Primary wallet updated",
			zap.String("profile_id", owner),
			zap.String("wallet_id", walletId))
		return nil
	})
}

func (r *WalletRepo) GetPrimary(ctx context.Context, owner string) *models.Wallet {
	if !r.svc.Available() || owner == "" {
		return nil
	}
	wallets := queryRows(ctx, r.svc.db, r.kind, scanWallet, queryGetPrimaryWallet, owner)
	if len(wallets) == 0 {
		return nil
	}
	return &wallets[0]
}

func validateWallet(w models.Wallet) error {
	if w.AccountId == "" {
		return fmt.Errorf("%w: wallet %s missing account id", store.ErrInvalidRecord, w.Id)
	}
	if w.Currency.Id == "" {
		return fmt.Errorf("%w: wallet %s missing currency", store.ErrInvalidRecord, w.Id)
	}
	return nil
}

func walletArgs(w models.Wallet, owner string) []any {
	return []any{
		w.Id, owner, w.AccountId, w.Currency.Id, w.Currency.Code, w.Currency.Symbol, w.Currency.Name,
		w.Balance.String(), w.ReservedBalance.String(), w.AvailableBalance.String(),
		formatTime(w.LastUpdated), w.IsActive, w.IsPrimary, w.IsSynced,
	}
}

func scanWallet(row rowScanner) (models.Wallet, error) {
	var w models.Wallet
	var balance, reserved, available, lastUpdated string
	err := row.Scan(&w.Id, &w.AccountId, &w.Currency.Id, &w.Currency.Code, &w.Currency.Symbol, &w.Currency.Name,
		&balance, &reserved, &available, &lastUpdated, &w.IsActive, &w.IsPrimary, &w.IsSynced)
	if err != nil {
		return w, fmt.Errorf("failed to scan wallet: %w", err)
	}
	w.Balance = parseDecimal(balance)
	w.ReservedBalance = parseDecimal(reserved)
	w.AvailableBalance = parseDecimal(available)
	w.LastUpdated = parseTime(lastUpdated)
	return w, nil
}
