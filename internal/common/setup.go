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

package common

import (
	"context"
	"log"
	"strings"

	"wallet-sync-go/internal/api"
	"wallet-sync-go/internal/database"
	"wallet-sync-go/internal/events"
	"wallet-sync-go/internal/fetch"
	"wallet-sync-go/internal/kv"
	"wallet-sync-go/internal/livecache"
	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/mutation"
	"wallet-sync-go/internal/network"
	"wallet-sync-go/internal/push"
	"wallet-sync-go/internal/querycache"
	"wallet-sync-go/internal/reconcile"
	"wallet-sync-go/internal/remote"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services is the fully wired sync layer. Push is nil when no push URL is
// configured.
type Services struct {
	DbService    *database.Service
	Checkpoints  kv.Store
	Bus          *events.Bus
	Cache        *querycache.Cache
	Network      *network.Status
	Remote       *remote.Client
	Engine       *reconcile.Engine
	Orchestrator *fetch.Orchestrator
	Sync         *api.SyncService
	Dispatcher   *livecache.Dispatcher
	Push         *push.Client
	Mutations    *mutation.Coordinator
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the sync layer. A store that cannot be opened is
// replaced by one that reports empty results, so the layer keeps serving
// remote data without persistence.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, checkpoints := openStores(ctx, cfg.Database)

	endpoints, err := LoadEndpoints(cfg.Remote.EndpointsFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	zap.L().Info("Creating remote client", zap.String("base_url", cfg.Remote.BaseURL))
	client, err := remote.NewClient(cfg.Remote)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	bus := events.NewBus()
	cache := querycache.New()
	status := network.NewStatus(true)
	engine := reconcile.NewEngine(dbService, checkpoints, bus)
	orchestrator := fetch.NewOrchestrator(cache, status, cfg.Sync)

	services := &Services{
		DbService:    dbService,
		Checkpoints:  checkpoints,
		Bus:          bus,
		Cache:        cache,
		Network:      status,
		Remote:       client,
		Engine:       engine,
		Orchestrator: orchestrator,
		Sync:         api.NewSyncService(dbService, engine, client, orchestrator, endpoints),
	}

	dispatcherConfig := livecache.DispatcherConfig{
		Bus:             bus,
		Persister:       engine,
		SeenCapacity:    cfg.Sync.SeenCapacity,
		CleanupInterval: cfg.Sync.SeenCleanupInterval,
	}
	if cfg.Push.URL != "" {
		services.Push = push.NewClient(cfg.Push, cfg.Remote.Token)
		dispatcherConfig.Push = services.Push
	}
	services.Dispatcher = livecache.NewDispatcher(dispatcherConfig)

	services.Mutations = mutation.NewCoordinator(mutation.CoordinatorConfig{
		Store:   dbService,
		Engine:  engine,
		Remote:  client,
		Cache:   cache,
		Network: status,
		Bus:     bus,
		Paths: mutation.Paths{
			SendMoney:        endpoints.SendMoney,
			SetPrimaryWallet: endpoints.SetPrimaryWallet,
		},
		DedupWindow:   cfg.Sync.DedupWindow,
		FlushInterval: cfg.Sync.OutboxFlushInterval,
		RetryLimit:    cfg.Sync.OutboxRetryLimit,
	})

	return services, nil
}

func openStores(ctx context.Context, cfg models.DatabaseConfig) (*database.Service, kv.Store) {
	dbService := database.Open(ctx, cfg)

	checkpoints, err := kv.NewFileStore(cfg.CheckpointFile)
	if err != nil {
		zap.L().Warn("Checkpoint file unavailable, keeping checkpoints in memory",
			zap.String("file", cfg.CheckpointFile),
			zap.Error(err))
		return dbService, kv.NewMemoryStore()
	}
	return dbService, checkpoints
}

// InitializeDatabaseOnly initializes just the local store without the remote
// client. Useful for read-only operations like inspecting the outbox, where a
// missing store is an error rather than something to degrade around.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

// Start attaches the live cache to identity and starts the background loops.
func (cs *Services) Start(ctx context.Context, identity models.Identity) error {
	cs.Dispatcher.Initialize(cs.Cache, identity)
	cs.Mutations.Start(ctx)
	if cs.Push != nil {
		if err := cs.Push.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (cs *Services) Close() {
	if cs.Push != nil {
		cs.Push.Stop()
	}
	if cs.Mutations != nil {
		cs.Mutations.Stop()
	}
	if cs.Dispatcher != nil {
		cs.Dispatcher.Cleanup()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
