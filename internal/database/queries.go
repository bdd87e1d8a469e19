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

const (
	// Wallet queries
	walletColumns = `id, account_id, currency_id, currency_code, currency_symbol, currency_name,
		balance, reserved_balance, available_balance, last_updated, is_active, is_primary, is_synced`

	queryGetWallets = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE profile_id = ?
		ORDER BY is_primary DESC, currency_code`

	queryGetPrimaryWallet = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE profile_id = ? AND is_primary = 1
		LIMIT 1`

	queryUpsertWallet = `
		INSERT INTO wallets (id, profile_id, account_id, currency_id, currency_code, currency_symbol, currency_name,
			balance, reserved_balance, available_balance, last_updated, is_active, is_primary, is_synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, profile_id) DO UPDATE SET
			account_id = excluded.account_id,
			currency_id = excluded.currency_id,
			currency_code = excluded.currency_code,
			currency_symbol = excluded.currency_symbol,
			currency_name = excluded.currency_name,
			balance = excluded.balance,
			reserved_balance = excluded.reserved_balance,
			available_balance = excluded.available_balance,
			last_updated = excluded.last_updated,
			is_active = excluded.is_active,
			is_primary = excluded.is_primary,
			is_synced = excluded.is_synced`

	queryDeleteConflictingWallet = `
		DELETE FROM wallets
		WHERE profile_id = ? AND account_id = ? AND currency_id = ? AND id <> ?`

	queryClearPrimaryWallets = `
		UPDATE wallets SET is_primary = 0 WHERE profile_id = ? AND id <> ?`

	querySetPrimaryWallet = `
		UPDATE wallets SET is_primary = 1 WHERE profile_id = ? AND id = ?`

	queryDeleteWallet = `DELETE FROM wallets WHERE id = ? AND profile_id = ?`

	queryWalletExists = `SELECT COUNT(1) FROM wallets WHERE id = ?`

	// Transaction queries
	transactionColumns = `id, interaction_id, from_account_id, to_account_id, from_entity_id, to_entity_id,
		amount, currency_id, status, transaction_type, description, metadata, created_at`

	queryGetTransactions = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE profile_id = ?
		ORDER BY created_at DESC`

	queryGetTransactionsByInteraction = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE profile_id = ? AND interaction_id = ?
		ORDER BY created_at ASC`

	queryGetTransactionById = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = ? AND profile_id = ?`

	queryUpsertTransaction = `
		INSERT INTO transactions (id, profile_id, interaction_id, from_account_id, to_account_id, from_entity_id, to_entity_id,
			amount, currency_id, status, transaction_type, description, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, profile_id) DO UPDATE SET
			interaction_id = excluded.interaction_id,
			from_account_id = excluded.from_account_id,
			to_account_id = excluded.to_account_id,
			from_entity_id = excluded.from_entity_id,
			to_entity_id = excluded.to_entity_id,
			amount = excluded.amount,
			currency_id = excluded.currency_id,
			status = excluded.status,
			transaction_type = excluded.transaction_type,
			description = excluded.description,
			metadata = excluded.metadata,
			created_at = excluded.created_at`

	queryUpdateTransactionStatus = `
		UPDATE transactions SET status = ? WHERE id = ? AND profile_id = ?`

	queryDeleteTransaction = `DELETE FROM transactions WHERE id = ? AND profile_id = ?`

	queryTransactionExists = `SELECT COUNT(1) FROM transactions WHERE id = ?`

	// Interaction queries
	interactionColumns = `id, name, is_group, created_by_entity_id, is_active, last_message_snippet,
		last_message_at, last_message_sender_id, unread_count, metadata, updated_at`

	queryGetInteractions = `
		SELECT ` + interactionColumns + `
		FROM interactions
		WHERE profile_id = ?
		ORDER BY last_message_at DESC, updated_at DESC`

	queryUpsertInteraction = `
		INSERT INTO interactions (id, profile_id, name, is_group, created_by_entity_id, is_active, last_message_snippet,
			last_message_at, last_message_sender_id, unread_count, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, profile_id) DO UPDATE SET
			name = excluded.name,
			is_group = excluded.is_group,
			created_by_entity_id = excluded.created_by_entity_id,
			is_active = excluded.is_active,
			last_message_snippet = excluded.last_message_snippet,
			last_message_at = excluded.last_message_at,
			last_message_sender_id = excluded.last_message_sender_id,
			unread_count = excluded.unread_count,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`

	queryInsertStubInteraction = `
		INSERT INTO interactions (id, profile_id, is_active, metadata, updated_at)
		VALUES (?, ?, 1, '{"is_stub":true}', ?)
		ON CONFLICT(id, profile_id) DO NOTHING`

	queryDeleteInteraction = `DELETE FROM interactions WHERE id = ? AND profile_id = ?`

	queryInteractionExists = `SELECT COUNT(1) FROM interactions WHERE id = ?`

	queryGetInteractionMembers = `
		SELECT interaction_id, entity_id, role, display_name, avatar_url, joined_at, last_read_at
		FROM interaction_members
		WHERE interaction_id = ? AND profile_id = ?
		ORDER BY joined_at`

	queryUpsertInteractionMember = `
		INSERT INTO interaction_members (interaction_id, profile_id, entity_id, role, display_name, avatar_url, joined_at, last_read_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(interaction_id, profile_id, entity_id) DO UPDATE SET
			role = excluded.role,
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url,
			joined_at = excluded.joined_at,
			last_read_at = excluded.last_read_at`

	queryDeleteInteractionMembers = `
		DELETE FROM interaction_members WHERE interaction_id = ? AND profile_id = ?`

	queryDeleteInteractionMessages = `
		DELETE FROM messages WHERE interaction_id = ? AND profile_id = ?`

	// Message queries
	messageColumns = `id, interaction_id, sender_entity_id, content, message_type, status, metadata, created_at`

	queryGetMessages = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE profile_id = ?
		ORDER BY created_at ASC`

	queryGetMessagesByInteraction = `
		SELECT ` + messageColumns + ` FROM (
			SELECT ` + messageColumns + `
			FROM messages
			WHERE profile_id = ? AND interaction_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		) ORDER BY created_at ASC`

	querySearchMessages = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE profile_id = ? AND content LIKE ? ESCAPE '\'
		ORDER BY created_at DESC
		LIMIT ?`

	queryUpsertMessage = `
		INSERT INTO messages (id, profile_id, interaction_id, sender_entity_id, content, message_type, status, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, profile_id) DO UPDATE SET
			interaction_id = excluded.interaction_id,
			sender_entity_id = excluded.sender_entity_id,
			content = excluded.content,
			message_type = excluded.message_type,
			status = excluded.status,
			metadata = excluded.metadata,
			created_at = excluded.created_at`

	queryDeleteMessage = `DELETE FROM messages WHERE id = ? AND profile_id = ?`

	queryMessageExists = `SELECT COUNT(1) FROM messages WHERE id = ?`

	// KYC queries
	queryGetKycStatus = `
		SELECT entity_id, status, tier, raw, is_synced, updated_at
		FROM kyc_status
		WHERE profile_id = ? AND entity_id = ?`

	queryUpsertKycStatus = `
		INSERT INTO kyc_status (profile_id, entity_id, status, tier, raw, is_synced, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id, entity_id) DO UPDATE SET
			status = excluded.status,
			tier = excluded.tier,
			raw = excluded.raw,
			is_synced = excluded.is_synced,
			updated_at = excluded.updated_at`

	queryDeleteKycStatus = `DELETE FROM kyc_status WHERE profile_id = ? AND entity_id = ?`

	// Pool queries
	queryGetPools = `
		SELECT id, name, description, contribution_amount, currency_id, frequency, member_count, is_active, updated_at
		FROM pools
		ORDER BY name`

	queryDeleteAllPools = `DELETE FROM pools`

	queryInsertPool = `
		INSERT OR REPLACE INTO pools (id, name, description, contribution_amount, currency_id, frequency, member_count, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetPoolEnrollments = `
		SELECT id, pool_id, status, total_contributed, enrolled_at
		FROM pool_enrollments
		WHERE entity_id = ?
		ORDER BY enrolled_at DESC`

	queryUpsertPoolEnrollment = `
		INSERT INTO pool_enrollments (id, entity_id, pool_id, status, total_contributed, enrolled_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, entity_id) DO UPDATE SET
			pool_id = excluded.pool_id,
			status = excluded.status,
			total_contributed = excluded.total_contributed,
			enrolled_at = excluded.enrolled_at`

	queryDeletePoolEnrollment = `DELETE FROM pool_enrollments WHERE id = ? AND entity_id = ?`

	queryPoolEnrollmentExists = `SELECT COUNT(1) FROM pool_enrollments WHERE id = ?`

	queryGetPoolPayments = `
		SELECT id, enrollment_id, pool_id, amount, status, paid_at
		FROM pool_payments
		WHERE entity_id = ?
		ORDER BY paid_at DESC`

	queryUpsertPoolPayment = `
		INSERT INTO pool_payments (id, entity_id, enrollment_id, pool_id, amount, status, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, entity_id) DO UPDATE SET
			enrollment_id = excluded.enrollment_id,
			pool_id = excluded.pool_id,
			amount = excluded.amount,
			status = excluded.status,
			paid_at = excluded.paid_at`

	queryDeletePoolPayment = `DELETE FROM pool_payments WHERE id = ? AND entity_id = ?`

	queryPoolPaymentExists = `SELECT COUNT(1) FROM pool_payments WHERE id = ?`

	// Outbox queries
	outboxColumns = `id, kind, method, path, body, provisional_id, owner, entity_id, status, retries, max_retries, last_error, created_at`

	queryInsertOutboxOp = `
		INSERT INTO outbox (` + outboxColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryDequeueOutbox = `
		SELECT ` + outboxColumns + `
		FROM outbox
		WHERE status = 'pending' AND retries < max_retries
		ORDER BY created_at ASC
		LIMIT ?`

	queryListOutbox = `
		SELECT ` + outboxColumns + `
		FROM outbox
		ORDER BY created_at ASC`

	queryDeleteOutboxOp = `DELETE FROM outbox WHERE id = ?`

	queryNackOutboxOp = `
		UPDATE outbox
		SET retries = ?, last_error = ?,
			status = CASE WHEN ? >= max_retries THEN 'failed' ELSE 'pending' END
		WHERE id = ?`

	queryFailOutboxOp = `UPDATE outbox SET status = 'failed', last_error = ? WHERE id = ?`

	queryCountPendingOutbox = `SELECT COUNT(1) FROM outbox WHERE status = 'pending'`
)
