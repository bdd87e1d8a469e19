package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Remote   RemoteConfig
	Push     PushConfig
	Sync     SyncConfig
}

// DatabaseConfig holds on-device store settings
type DatabaseConfig struct {
	Path           string
	PingTimeout    time.Duration
	CheckpointFile string
}

// RemoteConfig holds the app API client settings
type RemoteConfig struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	EndpointsFile string
}

// PushConfig holds push channel settings
type PushConfig struct {
	URL                  string
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int
}

// SyncConfig holds fetch, live cache and mutation tuning
type SyncConfig struct {
	FetchDebounce       time.Duration
	MaxRetries          int
	RetryBaseDelay      time.Duration
	DedupWindow         time.Duration
	SeenCapacity        int
	SeenCleanupInterval time.Duration
	OutboxFlushInterval time.Duration
	OutboxRetryLimit    int
}
