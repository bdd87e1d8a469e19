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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"wallet-sync-go/internal/models"
)

type durationVar struct {
	key          string
	defaultValue time.Duration
	target       *time.Duration
}

func Load() (*models.Config, error) {
	var cfg models.Config
	var durations []durationVar

	bind := func(key string, defaultValue time.Duration, target *time.Duration) {
		durations = append(durations, durationVar{key, defaultValue, target})
	}
	bind("DB_PING_TIMEOUT", 5*time.Second, &cfg.Database.PingTimeout)
	bind("API_TIMEOUT", 30*time.Second, &cfg.Remote.Timeout)
	bind("PUSH_RECONNECT_BASE_DELAY", time.Second, &cfg.Push.ReconnectBaseDelay)
	bind("PUSH_RECONNECT_MAX_DELAY", 30*time.Second, &cfg.Push.ReconnectMaxDelay)
	bind("SYNC_FETCH_DEBOUNCE", 150*time.Millisecond, &cfg.Sync.FetchDebounce)
	bind("SYNC_RETRY_BASE_DELAY", 500*time.Millisecond, &cfg.Sync.RetryBaseDelay)
	bind("SYNC_DEDUP_WINDOW", 30*time.Second, &cfg.Sync.DedupWindow)
	bind("SYNC_SEEN_CLEANUP_INTERVAL", 5*time.Minute, &cfg.Sync.SeenCleanupInterval)
	bind("OUTBOX_FLUSH_INTERVAL", 10*time.Second, &cfg.Sync.OutboxFlushInterval)

	for _, d := range durations {
		value, err := getEnvDuration(d.key, d.defaultValue)
		if err != nil {
			return nil, err
		}
		*d.target = value
	}

	cfg.Database.Path = getEnvString("DATABASE_PATH", "wallet-sync.db")
	cfg.Database.CheckpointFile = getEnvString("CHECKPOINT_FILE", "sync-checkpoints.json")

	cfg.Remote.BaseURL = getEnvString("API_BASE_URL", "")
	cfg.Remote.Token = getEnvString("API_TOKEN", "")
	cfg.Remote.EndpointsFile = getEnvString("ENDPOINTS_FILE", "")

	cfg.Push.URL = getEnvString("PUSH_URL", "")
	cfg.Push.MaxReconnectAttempts = getEnvInt("PUSH_MAX_RECONNECT_ATTEMPTS", 0)

	cfg.Sync.MaxRetries = getEnvInt("SYNC_MAX_RETRIES", 2)
	cfg.Sync.SeenCapacity = getEnvInt("SYNC_SEEN_CAPACITY", 1000)
	cfg.Sync.OutboxRetryLimit = getEnvInt("OUTBOX_RETRY_LIMIT", 5)

	return &cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
