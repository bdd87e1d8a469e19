package main

import (
	"fmt"

	"wallet-sync-go/internal/common"
	"wallet-sync-go/internal/config"
	"wallet-sync-go/internal/models"

	"github.com/spf13/cobra"
)

var outboxFlush bool

func init() {
	outboxCmd.Flags().BoolVar(&outboxFlush, "flush", false, "Replay ready operations against the remote")
	rootCmd.AddCommand(outboxCmd)
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "List or flush mutations queued while offline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if outboxFlush {
			return withServices(ctx, func(services *common.Services, _ models.Identity) error {
				result := services.Mutations.FlushQueue(ctx)
				fmt.Printf("Flushed outbox: %d sent, %d failed, %d retried\n", result.Sent, result.Failed, result.Retried)
				printOutbox(services.DbService.Outbox().List(ctx))
				return nil
			})
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
		if err != nil {
			return err
		}
		defer dbService.Close()

		printOutbox(dbService.Outbox().List(ctx))
		return nil
	},
}

func printOutbox(ops []models.OutboxOp) {
	common.PrintHeader("OUTBOX", common.WideWidth)
	pending := 0
	for i, op := range ops {
		isLast := i == len(ops)-1
		if op.Status == models.OutboxPending {
			pending++
		}
		fmt.Printf("%s %-20s %-6s %-40s %s\n", common.BoxPrefix(isLast), op.Kind, op.Method, op.Path, op.Status)
		detail := fmt.Sprintf("id: %s, retries: %d/%d, queued: %s",
			common.ShortId(op.Id), op.Retries, op.MaxRetries, op.CreatedAt.Format("2006-01-02 15:04:05"))
		if op.LastError != "" {
			detail += ", last error: " + op.LastError
		}
		fmt.Printf("%s %s\n", common.BoxDetailPrefix(isLast), detail)
	}
	common.PrintFooter(fmt.Sprintf("SUMMARY: %d operations (%d pending)", len(ops), pending), common.WideWidth)
}
