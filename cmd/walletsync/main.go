/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"os"

	"wallet-sync-go/internal/common"
	"wallet-sync-go/internal/config"
	"wallet-sync-go/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	profileFlag string
	entityFlag  string
)

var rootCmd = &cobra.Command{
	Use:          "walletsync",
	Short:        "Wallet sync operator CLI",
	Long:         "Inspect and drive the local-first wallet sync layer: run the sync loops, read balances, manage the outbox and apply deletion batches.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "Profile id of the signed-in user (default: $WALLET_PROFILE_ID)")
	rootCmd.PersistentFlags().StringVar(&entityFlag, "entity", "", "Entity id of the signed-in user (default: $WALLET_ENTITY_ID)")
}

// setup loads configuration and the identity shared by every command.
func setup() (*models.Config, models.Identity, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, models.Identity{}, err
	}
	identity, err := common.ResolveIdentity(profileFlag, entityFlag)
	if err != nil {
		return nil, models.Identity{}, err
	}
	return cfg, identity, nil
}

// withServices wires the full sync layer for the duration of fn.
func withServices(ctx context.Context, fn func(services *common.Services, identity models.Identity) error) error {
	cfg, identity, err := setup()
	if err != nil {
		return err
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	return fn(services, identity)
}

func main() {
	_, loggerCleanup := common.InitializeLogger()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		zap.L().Error("Command failed", zap.Error(err))
		loggerCleanup()
		os.Exit(1)
	}
	loggerCleanup()
}
