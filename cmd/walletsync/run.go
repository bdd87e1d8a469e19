package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-sync-go/internal/common"
	"wallet-sync-go/internal/fetch"
	"wallet-sync-go/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var deletionInterval time.Duration

func init() {
	runCmd.Flags().DurationVar(&deletionInterval, "deletion-interval", 5*time.Minute, "How often to run the tombstone deletion sync")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync loops until interrupted",
	Long:  "Start the live cache dispatcher, the push channel, the outbox flusher and the core resource queries, and run the deletion sync periodically.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		return withServices(ctx, func(services *common.Services, identity models.Identity) error {
			zap.L().Info("Starting wallet sync", zap.String("profile_id", identity.ProfileId))

			if err := services.Start(ctx, identity); err != nil {
				return err
			}

			queries := services.Sync
			balances := queries.Balances(ctx, identity, identity.EntityId, fetch.Options{})
			transactions := queries.Transactions(ctx, identity, fetch.Options{})
			interactions := queries.Interactions(ctx, identity, fetch.Options{})
			defer balances.Close()
			defer transactions.Close()
			defer interactions.Close()

			done := make(chan struct{})
			go func() {
				defer close(done)
				deletionLoop(ctx, services, identity)
			}()

			zap.L().Info("Wallet sync running")
			zap.L().Info("Press Ctrl+C to stop")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-sigChan:
				zap.L().Info("Shutdown signal received, stopping sync...")
			case <-ctx.Done():
			}

			cancel()
			select {
			case <-done:
				zap.L().Info("Wallet sync stopped")
			case <-time.After(30 * time.Second):
				zap.L().Warn("Shutdown timeout exceeded, forcing exit")
			}
			return nil
		})
	},
}

func deletionLoop(ctx context.Context, services *common.Services, identity models.Identity) {
	ticker := time.NewTicker(deletionInterval)
	defer ticker.Stop()

	for {
		if _, err := services.Sync.SyncDeletions(ctx, identity); err != nil {
			zap.L().Warn("Deletion sync failed", zap.Error(err))
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
