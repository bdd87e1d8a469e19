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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency describes the asset a wallet is denominated in
type Currency struct {
	Id     string `json:"id"`
	Code   string `json:"code"`
	Symbol string `json:"symbol,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Wallet represents a per-currency balance account owned by a profile
type Wallet struct {
	Id               string          `json:"id"`
	AccountId        string          `json:"account_id"`
	Currency         Currency        `json:"currency"`
	Balance          decimal.Decimal `json:"balance"`
	ReservedBalance  decimal.Decimal `json:"reserved_balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	LastUpdated      time.Time       `json:"last_updated"`
	IsActive         bool            `json:"is_active"`
	IsPrimary        bool            `json:"is_primary"`
	IsSynced         bool            `json:"is_synced"`
}

func (w Wallet) RecordId() string { return w.Id }
