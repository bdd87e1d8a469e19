package models

import (
	"encoding/json"
	"time"
)

// KycStatus is the cached verification state for one entity
type KycStatus struct {
	EntityId  string          `json:"entity_id"`
	Status    string          `json:"status"`
	Tier      int             `json:"tier"`
	Raw       json.RawMessage `json:"-"`
	IsSynced  bool            `json:"is_synced"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (k KycStatus) RecordId() string { return k.EntityId }
