package main

import (
	"context"
	"fmt"
	"time"

	"wallet-sync-go/internal/common"
	"wallet-sync-go/internal/fetch"
	"wallet-sync-go/internal/models"

	"github.com/spf13/cobra"
)

var (
	balancesOffline bool
	balancesTimeout time.Duration
)

func init() {
	balancesCmd.Flags().BoolVar(&balancesOffline, "offline", false, "Read the local store only")
	balancesCmd.Flags().DurationVar(&balancesTimeout, "timeout", 15*time.Second, "How long to wait for the remote")
	rootCmd.AddCommand(balancesCmd)
}

var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Show wallet balances for the signed-in entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(services *common.Services, identity models.Identity) error {
			if balancesOffline {
				services.Network.SetOnline(false)
			}

			q := services.Sync.Balances(cmd.Context(), identity, identity.EntityId, fetch.Options{})
			defer q.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), balancesTimeout)
			defer cancel()
			select {
			case <-q.Settled():
			case <-ctx.Done():
				return fmt.Errorf("timed out waiting for balances")
			}

			state := q.State()
			if state.IsError {
				return fmt.Errorf("failed to load balances: %w", state.Err)
			}
			printWallets(identity, state)
			return nil
		})
	},
}

func printWallets(identity models.Identity, state fetch.State[models.Wallet]) {
	common.PrintHeader("WALLET BALANCES", common.DefaultWidth)
	common.PrintSection("Profile: "+identity.ProfileId,
		"Entity", identity.EntityId,
		"Wallets", fmt.Sprint(len(state.Data)))

	for i, w := range state.Data {
		isLast := i == len(state.Data)-1
		primary := ""
		if w.IsPrimary {
			primary = " (primary)"
		}
		fmt.Printf("%s %-8s: %20s%s\n", common.BoxPrefix(isLast), w.Currency.Code, w.Balance.String(), primary)
		fmt.Printf("%s available: %s, reserved: %s, synced: %t\n",
			common.BoxDetailPrefix(isLast), w.AvailableBalance.String(), w.ReservedBalance.String(), w.IsSynced)
	}

	source := "remote"
	if state.IsOffline {
		source = "local store (offline)"
	}
	common.PrintFooter(fmt.Sprintf("SUMMARY: %d wallets from %s", len(state.Data), source), common.DefaultWidth)
}
