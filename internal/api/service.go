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

// Package api exposes the local-first resources the UI layer reads and the
// tombstone deletion sync.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"wallet-sync-go/internal/fetch"
	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/querycache"
	"wallet-sync-go/internal/reconcile"
	"wallet-sync-go/internal/remote"
	"wallet-sync-go/internal/store"
)

// SyncService builds per-resource queries over one store, reconciler and
// remote client.
type SyncService struct {
	store        store.LocalStore
	engine       *reconcile.Engine
	remote       remote.API
	orchestrator *fetch.Orchestrator
	endpoints    models.Endpoints
}

func NewSyncService(local store.LocalStore, engine *reconcile.Engine, api remote.API, orchestrator *fetch.Orchestrator, endpoints models.Endpoints) *SyncService {
	return &SyncService{
		store:        local,
		engine:       engine,
		remote:       api,
		orchestrator: orchestrator,
		endpoints:    endpoints,
	}
}

func (s *SyncService) Cache() *querycache.Cache {
	return s.orchestrator.Cache()
}

// HealthCheck reports whether the local store is usable and, when online,
// whether the remote answers its health endpoint.
func (s *SyncService) HealthCheck(ctx context.Context) error {
	if !s.store.Available() {
		return fmt.Errorf("local store health check failed: %w", store.ErrStoreUnavailable)
	}
	if !s.orchestrator.IsOnline() || s.endpoints.Health == "" {
		return nil
	}
	if _, err := s.remote.Get(ctx, s.endpoints.Health, nil); err != nil {
		return fmt.Errorf("remote health check failed: %w", err)
	}
	return nil
}

func (s *SyncService) get(path string, params map[string]string, query url.Values) func(ctx context.Context) (json.RawMessage, error) {
	expanded := expandPath(path, params)
	return func(ctx context.Context) (json.RawMessage, error) {
		return s.remote.Get(ctx, expanded, query)
	}
}

func expandPath(template string, params map[string]string) string {
	for k, v := range params {
		template = strings.ReplaceAll(template, "{"+k+"}", url.PathEscape(v))
	}
	return template
}
