package main

import (
	"fmt"

	"wallet-sync-go/internal/common"
	"wallet-sync-go/internal/models"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(deletionsCmd)
}

var deletionsCmd = &cobra.Command{
	Use:   "deletions",
	Short: "Fetch and apply the interaction deletion batch once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withServices(ctx, func(services *common.Services, identity models.Identity) error {
			batch, err := services.Sync.SyncDeletions(ctx, identity)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d interactions, checkpoint now %q\n", len(batch.DeletedIds), batch.SyncTimestamp)
			return nil
		})
	},
}
