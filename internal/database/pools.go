package database

import (
	"context"
	"database/sql"
	"fmt"

	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/store"

	"go.uber.org/zap"
)

// PoolRepo holds the shared pool catalog.
type PoolRepo struct {
	svc *Service
}

var _ store.PoolStore = (*PoolRepo)(nil)

func (r *PoolRepo) GetAll(ctx context.Context) []models.Pool {
	if !r.svc.Available() {
		return nil
	}
	return queryRows(ctx, r.svc.db, models.KindPools, scanPool, queryGetPools)
}

// ReplaceAll swaps the catalog in one transaction. Rows without an id are
// skipped and counted as failed.
func (r *PoolRepo) ReplaceAll(ctx context.Context, pools []models.Pool) store.BatchResult {
	var result store.BatchResult
	if !r.svc.Available() {
		return result
	}

	unique, removed := dedupe(pools, nil)
	result.Duplicates = removed

	err := withTx(ctx, r.svc.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, queryDeleteAllPools); err != nil {
			return fmt.Errorf("failed to clear pools: %w", err)
		}
		for _, p := range unique {
			if p.Id == "" {
				result.Failed++
				continue
			}
			_, err := tx.ExecContext(ctx, queryInsertPool,
				p.Id, p.Name, p.Description, p.ContributionAmount.String(), p.CurrencyId, p.Frequency,
				p.MemberCount, p.IsActive, formatTime(p.UpdatedAt))
			if err != nil {
				zap.L().Error("Failed to insert pool", zap.String("pool_id", p.Id), zap.Error(err))
				result.Failed++
				continue
			}
			result.Written++
		}
		return nil
	})
	if err != nil {
		zap.L().Error("Failed to replace pool catalog", zap.Error(err))
		return store.BatchResult{Failed: len(unique), Duplicates: removed}
	}
	return result
}

func scanPool(row rowScanner) (models.Pool, error) {
	var p models.Pool
	var amount, updatedAt string
	err := row.Scan(&p.Id, &p.Name, &p.Description, &amount, &p.CurrencyId, &p.Frequency, &p.MemberCount, &p.IsActive, &updatedAt)
	if err != nil {
		return p, fmt.Errorf("failed to scan pool: %w", err)
	}
	p.ContributionAmount = parseDecimal(amount)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

// Enrollments and payments are scoped by entity id.

func newPoolEnrollmentTable(s *Service) *table[models.PoolEnrollment] {
	return &table[models.PoolEnrollment]{
		svc:        s,
		kind:       models.KindPoolEnrollments,
		selectAll:  queryGetPoolEnrollments,
		upsert:     queryUpsertPoolEnrollment,
		deleteById: queryDeletePoolEnrollment,
		exists:     queryPoolEnrollmentExists,
		validate: func(e models.PoolEnrollment) error {
			if e.PoolId == "" {
				return fmt.Errorf("%w: enrollment %s missing pool id", store.ErrInvalidRecord, e.Id)
			}
			return nil
		},
		args: func(e models.PoolEnrollment, owner string) []any {
			return []any{e.Id, owner, e.PoolId, e.Status, e.TotalContributed.String(), formatTime(e.EnrolledAt)}
		},
		scan: func(row rowScanner) (models.PoolEnrollment, error) {
			var e models.PoolEnrollment
			var total, enrolledAt string
			if err := row.Scan(&e.Id, &e.PoolId, &e.Status, &total, &enrolledAt); err != nil {
				return e, fmt.Errorf("failed to scan pool enrollment: %w", err)
			}
			e.TotalContributed = parseDecimal(total)
			e.EnrolledAt = parseTime(enrolledAt)
			return e, nil
		},
	}
}

func newPoolPaymentTable(s *Service) *table[models.PoolPayment] {
	return &table[models.PoolPayment]{
		svc:        s,
		kind:       models.KindPoolPayments,
		selectAll:  queryGetPoolPayments,
		upsert:     queryUpsertPoolPayment,
		deleteById: queryDeletePoolPayment,
		exists:     queryPoolPaymentExists,
		validate: func(p models.PoolPayment) error {
			if p.EnrollmentId == "" {
				return fmt.Errorf("%w: payment %s missing enrollment id", store.ErrInvalidRecord, p.Id)
			}
			return nil
		},
		args: func(p models.PoolPayment, owner string) []any {
			return []any{p.Id, owner, p.EnrollmentId, p.PoolId, p.Amount.String(), p.Status, formatTime(p.PaidAt)}
		},
		scan: func(row rowScanner) (models.PoolPayment, error) {
			var p models.PoolPayment
			var amount, paidAt string
			if err := row.Scan(&p.Id, &p.EnrollmentId, &p.PoolId, &amount, &p.Status, &paidAt); err != nil {
				return p, fmt.Errorf("failed to scan pool payment: %w", err)
			}
			p.Amount = parseDecimal(amount)
			p.PaidAt = parseTime(paidAt)
			return p, nil
		},
	}
}
