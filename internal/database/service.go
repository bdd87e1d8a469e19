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

package database

import (
	"context"
	"database/sql"
	"fmt"

	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LocalStore.
var _ store.LocalStore = (*Service)(nil)

type Service struct {
	db *sql.DB

	wallets         *WalletRepo
	transactions    *TransactionRepo
	interactions    *InteractionRepo
	messages        *MessageRepo
	kyc             *KycRepo
	pools           *PoolRepo
	poolEnrollments *table[models.PoolEnrollment]
	poolPayments    *table[models.PoolPayment]
	outbox          *OutboxRepo
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// One long-lived connection: writes are serialized and an in-memory
	// database survives for the lifetime of the service.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := newService(db)
	if err := service.initSchema(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

// Open is NewService without the error: when the engine cannot be opened the
// returned service is unavailable and every repository degrades to empty
// reads and no-op writes.
func Open(ctx context.Context, cfg models.DatabaseConfig) *Service {
	service, err := NewService(ctx, cfg)
	if err != nil {
		zap.L().Warn("Local store unavailable, continuing without persistence",
			zap.String("file", cfg.Path),
			zap.Error(err))
		return NewUnavailableService()
	}
	return service
}

// NewUnavailableService returns a service with no backing engine.
func NewUnavailableService() *Service {
	return newService(nil)
}

func newService(db *sql.DB) *Service {
	s := &Service{db: db}
	s.wallets = newWalletRepo(s)
	s.transactions = newTransactionRepo(s)
	s.interactions = newInteractionRepo(s)
	s.messages = newMessageRepo(s)
	s.kyc = &KycRepo{svc: s}
	s.pools = &PoolRepo{svc: s}
	s.poolEnrollments = newPoolEnrollmentTable(s)
	s.poolPayments = newPoolPaymentTable(s)
	s.outbox = &OutboxRepo{svc: s}
	return s
}

func (s *Service) Available() bool {
	return s != nil && s.db != nil
}

func (s *Service) Close() {
	if !s.Available() {
		return
	}
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) Wallets() store.WalletStore                               { return s.wallets }
func (s *Service) Transactions() store.TransactionStore                     { return s.transactions }
func (s *Service) Interactions() store.InteractionStore                     { return s.interactions }
func (s *Service) Messages() store.MessageStore                             { return s.messages }
func (s *Service) Kyc() store.KycStore                                      { return s.kyc }
func (s *Service) Pools() store.PoolStore                                   { return s.pools }
func (s *Service) PoolEnrollments() store.Repository[models.PoolEnrollment] { return s.poolEnrollments }
func (s *Service) PoolPayments() store.Repository[models.PoolPayment]       { return s.poolPayments }
func (s *Service) Outbox() store.Outbox                                     { return s.outbox }

// Ping verifies the engine still answers.
func (s *Service) Ping(ctx context.Context) error {
	if !s.Available() {
		return store.ErrStoreUnavailable
	}
	return s.db.PingContext(ctx)
}

func (s *Service) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
	-- Wallets are scoped by profile; one wallet per account and currency
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT NOT NULL,
		profile_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		currency_id TEXT NOT NULL,
		currency_code TEXT NOT NULL DEFAULT '',
		currency_symbol TEXT NOT NULL DEFAULT '',
		currency_name TEXT NOT NULL DEFAULT '',
		balance TEXT NOT NULL DEFAULT '0',
		reserved_balance TEXT NOT NULL DEFAULT '0',
		available_balance TEXT NOT NULL DEFAULT '0',
		last_updated TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		is_primary INTEGER NOT NULL DEFAULT 0,
		is_synced INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (id, profile_id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_wallets_account_currency ON wallets(profile_id, account_id, currency_id);

	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT NOT NULL,
		profile_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		is_group INTEGER NOT NULL DEFAULT 0,
		created_by_entity_id TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		last_message_snippet TEXT NOT NULL DEFAULT '',
		last_message_at TEXT NOT NULL DEFAULT '',
		last_message_sender_id TEXT NOT NULL DEFAULT '',
		unread_count INTEGER NOT NULL DEFAULT 0,
		metadata TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (id, profile_id)
	);

	CREATE INDEX IF NOT EXISTS idx_interactions_last_message ON interactions(profile_id, last_message_at);

	CREATE TABLE IF NOT EXISTS interaction_members (
		interaction_id TEXT NOT NULL,
		profile_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		joined_at TEXT NOT NULL DEFAULT '',
		last_read_at TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (interaction_id, profile_id, entity_id),
		FOREIGN KEY (interaction_id, profile_id) REFERENCES interactions(id, profile_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT NOT NULL,
		profile_id TEXT NOT NULL,
		interaction_id TEXT NOT NULL,
		sender_entity_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		message_type TEXT NOT NULL DEFAULT 'text',
		status TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (id, profile_id),
		FOREIGN KEY (interaction_id, profile_id) REFERENCES interactions(id, profile_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_interaction ON messages(profile_id, interaction_id, created_at);

	-- Transactions survive interaction deletion, so the parent link is not a declared key
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT NOT NULL,
		profile_id TEXT NOT NULL,
		interaction_id TEXT NOT NULL DEFAULT '',
		from_account_id TEXT NOT NULL DEFAULT '',
		to_account_id TEXT NOT NULL DEFAULT '',
		from_entity_id TEXT NOT NULL DEFAULT '',
		to_entity_id TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL DEFAULT '0',
		currency_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		transaction_type TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (id, profile_id)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(profile_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_interaction ON transactions(profile_id, interaction_id);

	CREATE TABLE IF NOT EXISTS kyc_status (
		profile_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		tier INTEGER NOT NULL DEFAULT 0,
		raw TEXT NOT NULL DEFAULT '',
		is_synced INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (profile_id, entity_id)
	);

	-- Pools are a shared catalog
	CREATE TABLE IF NOT EXISTS pools (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		contribution_amount TEXT NOT NULL DEFAULT '0',
		currency_id TEXT NOT NULL DEFAULT '',
		frequency TEXT NOT NULL DEFAULT '',
		member_count INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS pool_enrollments (
		id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		pool_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		total_contributed TEXT NOT NULL DEFAULT '0',
		enrolled_at TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (id, entity_id)
	);

	CREATE TABLE IF NOT EXISTS pool_payments (
		id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		enrollment_id TEXT NOT NULL,
		pool_id TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT '',
		paid_at TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (id, entity_id)
	);

	CREATE INDEX IF NOT EXISTS idx_pool_payments_enrollment ON pool_payments(entity_id, enrollment_id);

	-- Mutations waiting for connectivity
	CREATE TABLE IF NOT EXISTS outbox (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		provisional_id TEXT NOT NULL DEFAULT '',
		owner TEXT NOT NULL DEFAULT '',
		entity_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		retries INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 5,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_outbox_ready ON outbox(status, created_at);
`
