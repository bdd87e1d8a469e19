package main

import (
	"errors"
	"fmt"

	"wallet-sync-go/internal/common"
	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/mutation"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var sendRequest struct {
	from        string
	to          string
	toEntity    string
	currency    string
	interaction string
	description string
}

func init() {
	flags := sendCmd.Flags()
	flags.StringVar(&sendRequest.from, "from", "", "Source account id")
	flags.StringVar(&sendRequest.to, "to", "", "Destination account id")
	flags.StringVar(&sendRequest.toEntity, "to-entity", "", "Recipient entity id")
	flags.StringVar(&sendRequest.currency, "currency", "", "Currency id")
	flags.StringVar(&sendRequest.interaction, "interaction", "", "Interaction the transfer belongs to")
	flags.StringVar(&sendRequest.description, "description", "", "Optional note")
	sendCmd.MarkFlagRequired("from")
	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("currency")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <amount>",
	Short: "Send money; queued in the outbox when offline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[0])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[0], err)
		}

		ctx := cmd.Context()
		return withServices(ctx, func(services *common.Services, identity models.Identity) error {
			m, tx, err := services.Mutations.SendMoney(ctx, identity, mutation.SendMoneyRequest{
				InteractionId: sendRequest.interaction,
				FromAccountId: sendRequest.from,
				ToAccountId:   sendRequest.to,
				ToEntityId:    sendRequest.toEntity,
				Amount:        amount,
				CurrencyId:    sendRequest.currency,
				Description:   sendRequest.description,
			})
			if errors.Is(err, mutation.ErrDuplicateSubmission) {
				return fmt.Errorf("an identical transfer was just submitted")
			}
			if err != nil {
				return err
			}
			fmt.Printf("Transfer %s: %s (status %s)\n", tx.Id, m.Phase(), tx.Status)
			return nil
		})
	},
}
