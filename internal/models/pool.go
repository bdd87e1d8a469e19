package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pool is a shared savings pool from the public catalog
type Pool struct {
	Id                 string          `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	ContributionAmount decimal.Decimal `json:"contribution_amount"`
	CurrencyId         string          `json:"currency_id"`
	Frequency          string          `json:"frequency"`
	MemberCount        int             `json:"member_count"`
	IsActive           bool            `json:"is_active"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (p Pool) RecordId() string { return p.Id }

// PoolEnrollment links an entity to a pool
type PoolEnrollment struct {
	Id               string          `json:"id"`
	PoolId           string          `json:"pool_id"`
	Status           string          `json:"status"`
	TotalContributed decimal.Decimal `json:"total_contributed"`
	EnrolledAt       time.Time       `json:"enrolled_at"`
}

func (e PoolEnrollment) RecordId() string { return e.Id }

// PoolPayment is a single contribution made through an enrollment
type PoolPayment struct {
	Id           string          `json:"id"`
	EnrollmentId string          `json:"enrollment_id"`
	PoolId       string          `json:"pool_id"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
	PaidAt       time.Time       `json:"paid_at"`
}

func (p PoolPayment) RecordId() string { return p.Id }
